package api

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/playable-forge/internal/analysis"
	"github.com/p-blackswan/playable-forge/internal/assemble"
	"github.com/p-blackswan/playable-forge/internal/build"
	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/forge"
	"github.com/p-blackswan/playable-forge/internal/health"
	"github.com/p-blackswan/playable-forge/internal/layerapi"
	"github.com/p-blackswan/playable-forge/internal/template"
)

// Backend is the slice of the generation client the catalog endpoints need.
type Backend interface {
	WorkspaceBalance(ctx context.Context) (*layerapi.Workspace, error)
	ListStyles(ctx context.Context, limit int, statusFilter []string) ([]layerapi.Style, error)
	CreateStyle(ctx context.Context, recipe layerapi.StyleRecipe) (string, error)
}

// Forger runs synchronous forge sessions for POST /api/v1/forge.
type Forger interface {
	ForgeAll(ctx context.Context, prompts []analysis.SlotPrompt, styleID string) (*forge.Session, error)
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	engine    *build.Engine
	registry  *template.Registry
	assembler *assemble.Assembler
	forger    Forger  // nil when the generation backend is not configured
	backend   Backend // nil when the generation backend is not configured
	checker   *health.Checker
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a Handlers instance. forger and backend may be nil.
func NewHandlers(engine *build.Engine, registry *template.Registry, assembler *assemble.Assembler, forger Forger, backend Backend, checker *health.Checker, logger zerolog.Logger) *Handlers {
	return &Handlers{
		engine:    engine,
		registry:  registry,
		assembler: assembler,
		forger:    forger,
		backend:   backend,
		checker:   checker,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// SubmitBuild handles POST /api/v1/builds.
func (h *Handlers) SubmitBuild(c *fiber.Ctx) error {
	var req build.Request
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	b, err := h.engine.Submit(req)
	if err != nil {
		if strings.Contains(err.Error(), "queue is full") {
			return problemResponse(c, fiber.StatusServiceUnavailable,
				"queue_full", "Service Unavailable",
				err.Error())
		}
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_request", "Bad Request",
			err.Error())
	}

	return c.Status(fiber.StatusAccepted).JSON(BuildResponse{Build: b})
}

// ListBuilds handles GET /api/v1/builds.
func (h *Handlers) ListBuilds(c *fiber.Ctx) error {
	q := build.ListQuery{
		Status:   c.Query("status"),
		Mechanic: c.Query("mechanic"),
		CallerID: c.Query("caller_id"),
		Limit:    c.QueryInt("limit", 50),
		Offset:   c.QueryInt("offset", 0),
	}

	builds, total := h.engine.List(q)
	if builds == nil {
		builds = []*build.Build{}
	}

	return c.JSON(BuildListResponse{
		Builds: builds,
		Total:  total,
		Limit:  q.Limit,
		Offset: q.Offset,
	})
}

// GetBuild handles GET /api/v1/builds/:id.
func (h *Handlers) GetBuild(c *fiber.Ctx) error {
	id := c.Params("id")
	b, ok := h.engine.Get(id)
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"build_not_found", "Not Found",
			"Build not found: "+id)
	}
	return c.JSON(BuildResponse{Build: b})
}

// CancelBuild handles DELETE /api/v1/builds/:id.
func (h *Handlers) CancelBuild(c *fiber.Ctx) error {
	id := c.Params("id")
	b, err := h.engine.Cancel(id)
	if err != nil {
		if errors.Is(err, ferrors.ErrNotFound) {
			return problemResponse(c, fiber.StatusNotFound,
				"build_not_found", "Not Found",
				err.Error())
		}
		return problemResponse(c, fiber.StatusConflict,
			"invalid_state", "Conflict",
			err.Error())
	}
	return c.JSON(BuildResponse{Build: b})
}

// ExportBuild handles GET /api/v1/builds/:id/export/:network. It packages
// a completed build's document for one network and streams the artifact.
func (h *Handlers) ExportBuild(c *fiber.Ctx) error {
	id := c.Params("id")
	b, ok := h.engine.Get(id)
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"build_not_found", "Not Found",
			"Build not found: "+id)
	}
	if b.Status != build.StatusCompleted || b.Result == nil {
		return problemResponse(c, fiber.StatusConflict,
			"build_not_completed", "Conflict",
			fmt.Sprintf("Build %s is in status %s; only completed builds can be exported", id, b.Status))
	}

	network := assemble.Network(c.Params("network"))
	if !assemble.Known(network) {
		return problemResponse(c, fiber.StatusBadRequest,
			"unknown_network", "Bad Request",
			"Unknown network: "+string(network))
	}

	r := b.Result
	playable := &assemble.Playable{
		Mechanic:             r.Mechanic,
		Document:             r.Document,
		SizeBytes:            r.SizeBytes,
		Valid:                r.Valid,
		ValidationErrors:     r.ValidationErrors,
		NetworkCompatibility: r.NetworkCompatibility,
	}

	out, err := h.assembler.Export(playable, network)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"export_failed", "Bad Request",
			err.Error())
	}

	c.Set("Content-Type", out.ContentType)
	c.Set("Content-Disposition", `attachment; filename="`+out.FileName+`"`)
	c.Set("X-Artifact-Valid", fmt.Sprintf("%t", out.Valid))
	return c.Send(out.Data)
}

// Assemble handles POST /api/v1/assemble: synchronous assembly from
// pre-generated assets.
func (h *Handlers) Assemble(c *fiber.Ctx) error {
	var req AssembleRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}

	mechanic := template.MechanicFromString(req.Mechanic)
	descriptor := h.registry.ResolveOrFallback(mechanic)

	assets := make(map[string]assemble.Asset, len(req.Assets))
	for _, a := range req.Assets {
		assets[a.SlotKey] = assemble.Asset{
			SlotKey: a.SlotKey,
			DataURI: a.DataURI,
			Valid:   a.Valid,
		}
	}

	playable, err := h.assembler.Assemble(descriptor, assets, req.Config)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"assembly_failed", "Bad Request",
			err.Error())
	}

	resp := AssembleResponse{
		Mechanic:             string(playable.Mechanic),
		SizeBytes:            playable.SizeBytes,
		Valid:                playable.Valid,
		ValidationErrors:     playable.ValidationErrors,
		FallbackSlots:        playable.FallbackSlots,
		NetworkCompatibility: playable.NetworkCompatibility,
	}
	if c.QueryBool("include_document", false) {
		resp.Document = playable.Document
	}
	return c.JSON(resp)
}

// Forge handles POST /api/v1/forge: a synchronous forge session without
// assembly, for callers that want raw generated assets.
func (h *Handlers) Forge(c *fiber.Ctx) error {
	if h.forger == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"backend_not_configured", "Service Unavailable",
			"Generation backend is not configured")
	}

	var req ForgeRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if err := req.Analysis.Validate(); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_analysis", "Bad Request",
			err.Error())
	}
	if req.StyleID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_style", "Bad Request",
			"style_id is required")
	}

	descriptor := h.registry.ResolveOrFallback(req.Analysis.Mechanic)
	prompts := analysis.BuildPrompts(descriptor, &req.Analysis)

	session, err := h.forger.ForgeAll(c.Context(), prompts, req.StyleID)
	if err != nil {
		var credErr *ferrors.InsufficientCreditsError
		if errors.As(err, &credErr) {
			return problemResponse(c, fiber.StatusPaymentRequired,
				"insufficient_credits", "Payment Required",
				err.Error())
		}
		var styleErr *ferrors.InvalidStyleError
		if errors.As(err, &styleErr) {
			return problemResponse(c, fiber.StatusUnprocessableEntity,
				"style_not_ready", "Unprocessable Entity",
				err.Error())
		}
		return problemResponse(c, fiber.StatusBadGateway,
			"forge_failed", "Bad Gateway",
			err.Error())
	}

	resp := ForgeResponse{
		SessionID:        session.ID,
		StyleID:          session.StyleID,
		ReferenceImageID: session.ReferenceID,
		StartingBalance:  session.StartingBalance,
		ValidAssets:      session.ValidCount(),
	}
	for _, a := range session.Assets {
		resp.Assets = append(resp.Assets, ForgeAssetResponse{
			SlotKey:  a.SlotKey,
			Valid:    a.Valid,
			Attempts: a.Attempts,
			ImageID:  a.ImageID,
			ImageURL: a.ImageURL,
			Error:    a.Error,
		})
	}
	return c.JSON(resp)
}

// ListTemplates handles GET /api/v1/templates.
func (h *Handlers) ListTemplates(c *fiber.Ctx) error {
	descriptors := h.registry.Descriptors()
	resp := TemplateListResponse{Templates: make([]TemplateInfo, 0, len(descriptors))}
	for _, d := range descriptors {
		info := TemplateInfo{
			Mechanic:    string(d.Mechanic),
			Name:        d.Name,
			Description: d.Description,
			Examples:    d.Examples,
		}
		for _, s := range d.Slots {
			info.Slots = append(info.Slots, SlotInfo{
				Key:          s.Key,
				Description:  s.Description,
				Category:     s.Category,
				Required:     s.Required,
				Transparency: s.Transparency,
			})
		}
		for _, p := range d.Params {
			info.Params = append(info.Params, ParamInfo{
				Key:         p.Key,
				Type:        string(p.Type),
				Default:     p.Default,
				Min:         p.Min,
				Max:         p.Max,
				Description: p.Description,
			})
		}
		resp.Templates = append(resp.Templates, info)
	}
	return c.JSON(resp)
}

// ListStyles handles GET /api/v1/styles.
func (h *Handlers) ListStyles(c *fiber.Ctx) error {
	if h.backend == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"backend_not_configured", "Service Unavailable",
			"Generation backend is not configured")
	}

	limit := c.QueryInt("limit", 20)
	styles, err := h.backend.ListStyles(c.Context(), limit, nil)
	if err != nil {
		return problemResponse(c, fiber.StatusBadGateway,
			"backend_error", "Bad Gateway",
			err.Error())
	}

	resp := StyleListResponse{Styles: make([]StyleResponse, 0, len(styles))}
	for _, s := range styles {
		resp.Styles = append(resp.Styles, StyleResponse{
			ID:     s.ID,
			Name:   s.Name,
			Status: s.Status,
			Ready:  s.Ready(),
		})
	}
	return c.JSON(resp)
}

// CreateStyle handles POST /api/v1/styles. Training is asynchronous on
// the backend side; the returned style starts in a non-ready status.
func (h *Handlers) CreateStyle(c *fiber.Ctx) error {
	if h.backend == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"backend_not_configured", "Service Unavailable",
			"Generation backend is not configured")
	}

	var recipe layerapi.StyleRecipe
	if err := c.BodyParser(&recipe); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_request", "Bad Request",
			"Invalid request body: "+err.Error())
	}
	if recipe.Name == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_request", "Bad Request",
			"name is required")
	}

	id, err := h.backend.CreateStyle(c.Context(), recipe)
	if err != nil {
		return problemResponse(c, fiber.StatusBadGateway,
			"backend_error", "Bad Gateway",
			err.Error())
	}

	h.logger.Info().Str("style_id", id).Str("name", recipe.Name).Msg("style training started")

	return c.Status(fiber.StatusAccepted).JSON(StyleResponse{
		ID:     id,
		Name:   recipe.Name,
		Status: "training",
		Ready:  false,
	})
}

// GetWorkspace handles GET /api/v1/workspace.
func (h *Handlers) GetWorkspace(c *fiber.Ctx) error {
	if h.backend == nil {
		return problemResponse(c, fiber.StatusServiceUnavailable,
			"backend_not_configured", "Service Unavailable",
			"Generation backend is not configured")
	}

	ws, err := h.backend.WorkspaceBalance(c.Context())
	if err != nil {
		return problemResponse(c, fiber.StatusBadGateway,
			"backend_error", "Bad Gateway",
			err.Error())
	}
	return c.JSON(WorkspaceResponse{
		WorkspaceID: ws.WorkspaceID,
		Balance:     ws.Balance,
		HasAccess:   ws.HasAccess,
	})
}

// ListNetworks handles GET /api/v1/networks.
func (h *Handlers) ListNetworks(c *fiber.Ctx) error {
	resp := NetworkListResponse{Networks: make([]assemble.NetworkSpec, 0, len(assemble.Networks()))}
	for _, n := range assemble.Networks() {
		resp.Networks = append(resp.Networks, assemble.Spec(n))
	}
	return c.JSON(resp)
}

// BuildStats handles GET /api/v1/builds/stats.
func (h *Handlers) BuildStats(c *fiber.Ctx) error {
	return c.JSON(h.engine.Stats())
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	if !h.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "not_ready",
		})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

// HealthDetail handles GET /api/v1/health.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	integrations := make(map[string]string, len(results))
	overall := "ok"
	for name, status := range results {
		integrations[name] = string(status)
		if status == health.StatusDown {
			overall = "degraded"
		}
	}

	return c.JSON(fiber.Map{
		"status":       overall,
		"integrations": integrations,
		"uptime":       time.Since(h.startTime).Round(time.Second).String(),
	})
}
