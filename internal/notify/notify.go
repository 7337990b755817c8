// Package notify posts build outcomes and credit warnings to Slack. The
// notifier is optional: without a bot token every method is a no-op so the
// rest of the service never has to check.
package notify

import (
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/playable-forge/internal/assemble"
	"github.com/p-blackswan/playable-forge/internal/build"
	"github.com/p-blackswan/playable-forge/internal/config"
)

// PosterAPI abstracts the Slack API client for testing.
type PosterAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

// Notifier posts to a fixed channel.
type Notifier struct {
	api     PosterAPI
	channel string
	logger  zerolog.Logger
}

// New creates a notifier. Returns a disabled notifier when Slack is not
// configured.
func New(cfg *config.Config, logger zerolog.Logger) *Notifier {
	n := &Notifier{
		channel: cfg.SlackChannel,
		logger:  logger.With().Str("component", "notify").Logger(),
	}
	if cfg.SlackEnabled() {
		n.api = slack.New(cfg.SlackBotToken)
	}
	return n
}

// SetAPI replaces the Slack client (for testing).
func (n *Notifier) SetAPI(api PosterAPI) {
	n.api = api
}

// Enabled reports whether messages will actually be sent.
func (n *Notifier) Enabled() bool {
	return n.api != nil
}

// NotifyBuildCompletion posts a summary of a finished build. Implements
// build.CompletionNotifier.
func (n *Notifier) NotifyBuildCompletion(b build.Build) {
	if n.api == nil {
		return
	}

	text := buildSummaryText(b)
	_, _, err := n.api.PostMessage(n.channel,
		slack.MsgOptionText(text, false),
		slack.MsgOptionBlocks(buildSummaryBlocks(b)...),
	)
	if err != nil {
		n.logger.Error().Err(err).Str("build_id", b.ID).Msg("failed to post build summary")
		return
	}
	n.logger.Debug().Str("build_id", b.ID).Str("channel", n.channel).Msg("build summary posted")
}

// LowCreditWarning posts a warning when the workspace balance crosses the
// configured threshold. Wired to the credit guard's low-balance callback.
func (n *Notifier) LowCreditWarning(balance int) {
	if n.api == nil {
		return
	}

	text := fmt.Sprintf(":warning: Workspace credit balance is low: %d credits remaining.", balance)
	if _, _, err := n.api.PostMessage(n.channel, slack.MsgOptionText(text, false)); err != nil {
		n.logger.Error().Err(err).Msg("failed to post low credit warning")
	}
}

// buildSummaryText is the plain-text fallback for notification previews.
func buildSummaryText(b build.Build) string {
	game := b.Request.Analysis.GameName
	switch b.Status {
	case build.StatusCompleted:
		r := b.Result
		return fmt.Sprintf("Build for %s completed: %d of %d assets generated, %s playable (%d bytes)",
			game, r.ValidAssets, len(r.Assets), validity(r.Valid), r.SizeBytes)
	case build.StatusFailed:
		return fmt.Sprintf("Build for %s failed: %s", game, b.Error)
	}
	return fmt.Sprintf("Build for %s finished with status %s", game, b.Status)
}

func validity(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}

func buildSummaryBlocks(b build.Build) []slack.Block {
	header := fmt.Sprintf("*%s* — build %s", b.Request.Analysis.GameName, b.Status)
	blocks := []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", header, false, false),
			nil, nil,
		),
	}

	if b.Status == build.StatusFailed {
		blocks = append(blocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "```"+truncate(b.Error, 500)+"```", false, false),
			nil, nil,
		))
		return blocks
	}

	if r := b.Result; r != nil {
		var fields []*slack.TextBlockObject
		fields = append(fields,
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Mechanic:*\n%s", r.Mechanic), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Assets:*\n%d of %d generated", r.ValidAssets, len(r.Assets)), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Size:*\n%d bytes", r.SizeBytes), false, false),
			slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Networks:*\n%s", compatibleList(r)), false, false),
		)
		blocks = append(blocks, slack.NewSectionBlock(nil, fields, nil))

		if len(r.FallbackSlots) > 0 {
			note := fmt.Sprintf("Fallback art used for: %s", strings.Join(r.FallbackSlots, ", "))
			blocks = append(blocks, slack.NewContextBlock("",
				slack.NewTextBlockObject("mrkdwn", note, false, false),
			))
		}
	}
	return blocks
}

func compatibleList(r *build.Result) string {
	var names []string
	for _, n := range assemble.Networks() {
		if r.NetworkCompatibility[n] {
			names = append(names, string(n))
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

// truncate shortens s to max chars, appending "…" if truncated.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
