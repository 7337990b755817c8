package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/playable-forge/internal/analysis"
	"github.com/p-blackswan/playable-forge/internal/assemble"
	"github.com/p-blackswan/playable-forge/internal/build"
	"github.com/p-blackswan/playable-forge/internal/config"
	ferrors "github.com/p-blackswan/playable-forge/internal/errors"
	"github.com/p-blackswan/playable-forge/internal/forge"
	"github.com/p-blackswan/playable-forge/internal/health"
	"github.com/p-blackswan/playable-forge/internal/layerapi"
	"github.com/p-blackswan/playable-forge/internal/template"
)

const testDocument = `<!DOCTYPE html>
<html><head><meta name="viewport" content="width=device-width"></head>
<body><script>function openStoreUrl(){if(window.mraid){mraid.open("x")}}</script></body></html>`

type stubRunner struct{}

func (s *stubRunner) Run(_ context.Context, _ build.Request, progress func(build.Stage)) (*build.Result, error) {
	if progress != nil {
		progress(build.StageAssembling)
	}
	return &build.Result{
		SessionID: "sess-1",
		Mechanic:  template.MechanicTapper,
		Document:  testDocument,
		SizeBytes: len(testDocument),
		Valid:     true,
		NetworkCompatibility: map[assemble.Network]bool{
			assemble.NetworkVungle: true,
		},
	}, nil
}

type stubForger struct {
	session *forge.Session
	err     error
}

func (s *stubForger) ForgeAll(_ context.Context, prompts []analysis.SlotPrompt, styleID string) (*forge.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.session != nil {
		return s.session, nil
	}
	sess := &forge.Session{ID: "sess-fg", StyleID: styleID, ReferenceID: "img-1", StartingBalance: 120}
	for _, sp := range prompts {
		sess.Assets = append(sess.Assets, forge.Asset{
			SlotKey: sp.Slot.Key, Valid: true, Attempts: 1, ImageID: "img-1",
		})
	}
	return sess, nil
}

type stubBackend struct {
	ws     *layerapi.Workspace
	styles []layerapi.Style
	err    error
}

func (s *stubBackend) WorkspaceBalance(context.Context) (*layerapi.Workspace, error) {
	return s.ws, s.err
}

func (s *stubBackend) ListStyles(context.Context, int, []string) ([]layerapi.Style, error) {
	return s.styles, s.err
}

func (s *stubBackend) CreateStyle(_ context.Context, recipe layerapi.StyleRecipe) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "style-" + recipe.Name, nil
}

type testEnv struct {
	app    *fiber.App
	engine *build.Engine
}

func newTestEnv(t *testing.T, cfg ServerConfig, forger Forger, backend Backend) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	registry, err := template.NewRegistry("")
	require.NoError(t, err)
	assembler := assemble.NewAssembler(5*1024*1024, logger)

	engine := build.NewEngine(&config.Config{
		BuildWorkers: 2, BuildQueueSize: 32, BuildTimeout: time.Minute,
	}, &stubRunner{}, nil, logger)
	engine.Start(context.Background())
	t.Cleanup(engine.Stop)

	checker := health.NewChecker(logger)
	handlers := NewHandlers(engine, registry, assembler, forger, backend, checker, logger)
	srv := NewServer(cfg, handlers, nil, logger)

	return &testEnv{app: srv.App(), engine: engine}
}

func openConfig() ServerConfig {
	return ServerConfig{
		AuthConfig: AuthConfig{Mode: "none"},
		RateLimit:  RateLimitConfig{RPS: 100, Burst: 200},
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

func buildRequestBody() string {
	return `{
		"analysis": {
			"game_name": "Tap Frenzy",
			"mechanic": "tapper",
			"mechanic_confidence": 0.9
		},
		"style_id": "style-1"
	}`
}

func TestHealthzEndpoint(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	resp := doJSON(t, env.app, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestAuthRequired(t *testing.T) {
	cfg := openConfig()
	cfg.AuthConfig = AuthConfig{Mode: "api-key", APIKey: "secret-key"}
	env := newTestEnv(t, cfg, nil, nil)

	// Probes stay open.
	resp := doJSON(t, env.app, "GET", "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// No header.
	resp = doJSON(t, env.app, "GET", "/api/v1/builds", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var problem ProblemDetail
	decodeBody(t, resp, &problem)
	assert.Equal(t, "missing_auth", problem.Type)
	assert.Equal(t, "/api/v1/builds", problem.Instance)

	// Wrong scheme.
	resp = doJSON(t, env.app, "GET", "/api/v1/builds", "", map[string]string{"Authorization": "Basic abc"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong key.
	resp = doJSON(t, env.app, "GET", "/api/v1/builds", "", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	decodeBody(t, resp, &problem)
	assert.Equal(t, "invalid_api_key", problem.Type)

	// Right key.
	resp = doJSON(t, env.app, "GET", "/api/v1/builds", "", map[string]string{"Authorization": "Bearer secret-key"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRateLimitExceeded(t *testing.T) {
	cfg := openConfig()
	cfg.RateLimit = RateLimitConfig{RPS: 1, Burst: 2}
	env := newTestEnv(t, cfg, nil, nil)

	for i := 0; i < 2; i++ {
		resp := doJSON(t, env.app, "GET", "/api/v1/networks", "", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp := doJSON(t, env.app, "GET", "/api/v1/networks", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)

	var problem ProblemDetail
	decodeBody(t, resp, &problem)
	assert.Equal(t, "rate_limit_exceeded", problem.Type)
	assert.Equal(t, http.StatusTooManyRequests, problem.Status)
}

func TestSubmitAndGetBuild(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/builds", buildRequestBody(), nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var submitted BuildResponse
	decodeBody(t, resp, &submitted)
	require.NotNil(t, submitted.Build)
	assert.NotEmpty(t, submitted.Build.ID)

	require.Eventually(t, func() bool {
		b, ok := env.engine.Get(submitted.Build.ID)
		return ok && b.Status == build.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	resp = doJSON(t, env.app, "GET", "/api/v1/builds/"+submitted.Build.ID, "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var fetched BuildResponse
	decodeBody(t, resp, &fetched)
	assert.Equal(t, build.StatusCompleted, fetched.Build.Status)
	require.NotNil(t, fetched.Build.Result)
	assert.Equal(t, "sess-1", fetched.Build.Result.SessionID)
	assert.Empty(t, fetched.Build.Result.Document, "the raw document is never listed in JSON")
}

func TestSubmitBuildRejectsInvalidAnalysis(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/builds",
		`{"analysis":{"mechanic":"tapper"},"style_id":"style-1"}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var problem ProblemDetail
	decodeBody(t, resp, &problem)
	assert.Equal(t, "invalid_request", problem.Type)
	assert.Contains(t, problem.Detail, "game_name")
}

func TestGetBuildNotFound(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	resp := doJSON(t, env.app, "GET", "/api/v1/builds/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doJSON(t, env.app, "DELETE", "/api/v1/builds/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestListBuilds(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	for i := 0; i < 3; i++ {
		resp := doJSON(t, env.app, "POST", "/api/v1/builds", buildRequestBody(), nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode)
	}

	resp := doJSON(t, env.app, "GET", "/api/v1/builds?limit=2", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list BuildListResponse
	decodeBody(t, resp, &list)
	assert.Equal(t, 3, list.Total)
	assert.Len(t, list.Builds, 2)
	assert.Equal(t, 2, list.Limit)
}

func TestExportBuild(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/builds", buildRequestBody(), nil)
	var submitted BuildResponse
	decodeBody(t, resp, &submitted)

	require.Eventually(t, func() bool {
		b, ok := env.engine.Get(submitted.Build.ID)
		return ok && b.Status == build.StatusCompleted
	}, 2*time.Second, 5*time.Millisecond)

	resp = doJSON(t, env.app, "GET", "/api/v1/builds/"+submitted.Build.ID+"/export/vungle", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="ad.html"`)
	assert.Equal(t, "true", resp.Header.Get("X-Artifact-Valid"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, testDocument, string(body))

	// Unknown network is rejected.
	resp = doJSON(t, env.app, "GET", "/api/v1/builds/"+submitted.Build.ID+"/export/myspace", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAssembleEndpoint(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	body := `{
		"mechanic": "tapper",
		"assets": [
			{"slot_key": "target", "data_uri": "data:image/png;base64,AAAA", "valid": true},
			{"slot_key": "background", "data_uri": "data:image/jpeg;base64,BBBB", "valid": true}
		],
		"config": {"title": "Tap It", "store_url_ios": "https://apps.apple.com/app/id1"}
	}`
	resp := doJSON(t, env.app, "POST", "/api/v1/assemble", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var verdict AssembleResponse
	decodeBody(t, resp, &verdict)
	assert.Equal(t, "tapper", verdict.Mechanic)
	assert.True(t, verdict.Valid)
	assert.Empty(t, verdict.Document, "document withheld unless requested")
	assert.Greater(t, verdict.SizeBytes, 0)

	resp = doJSON(t, env.app, "POST", "/api/v1/assemble?include_document=true", body, nil)
	decodeBody(t, resp, &verdict)
	assert.Contains(t, verdict.Document, "<!DOCTYPE html>")
}

func TestForgeEndpoint(t *testing.T) {
	env := newTestEnv(t, openConfig(), &stubForger{}, nil)

	body := `{"analysis":{"game_name":"Tap Frenzy","mechanic":"tapper","mechanic_confidence":0.9},"style_id":"style-1"}`
	resp := doJSON(t, env.app, "POST", "/api/v1/forge", body, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var forged ForgeResponse
	decodeBody(t, resp, &forged)
	assert.Equal(t, "sess-fg", forged.SessionID)
	assert.Equal(t, 2, forged.ValidAssets, "tapper has two required slots")
	assert.Equal(t, "img-1", forged.ReferenceImageID)
}

func TestForgeInsufficientCredits(t *testing.T) {
	forger := &stubForger{err: &ferrors.InsufficientCreditsError{Available: 10, Required: 50}}
	env := newTestEnv(t, openConfig(), forger, nil)

	body := `{"analysis":{"game_name":"Tap Frenzy","mechanic":"tapper","mechanic_confidence":0.9},"style_id":"style-1"}`
	resp := doJSON(t, env.app, "POST", "/api/v1/forge", body, nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var problem ProblemDetail
	decodeBody(t, resp, &problem)
	assert.Equal(t, "insufficient_credits", problem.Type)
}

func TestForgeWithoutBackend(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	body := `{"analysis":{"game_name":"X","mechanic":"tapper","mechanic_confidence":0.9},"style_id":"s"}`
	resp := doJSON(t, env.app, "POST", "/api/v1/forge", body, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListTemplates(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	resp := doJSON(t, env.app, "GET", "/api/v1/templates", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list TemplateListResponse
	decodeBody(t, resp, &list)
	require.Len(t, list.Templates, 3)
	assert.Equal(t, "match3", list.Templates[0].Mechanic)
	assert.NotEmpty(t, list.Templates[0].Slots)
	assert.NotEmpty(t, list.Templates[0].Params)
}

func TestListNetworks(t *testing.T) {
	env := newTestEnv(t, openConfig(), nil, nil)

	resp := doJSON(t, env.app, "GET", "/api/v1/networks", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list NetworkListResponse
	decodeBody(t, resp, &list)
	assert.Len(t, list.Networks, 9)
}

func TestWorkspaceEndpoint(t *testing.T) {
	backend := &stubBackend{ws: &layerapi.Workspace{WorkspaceID: "ws-1", Balance: 420, HasAccess: true}}
	env := newTestEnv(t, openConfig(), nil, backend)

	resp := doJSON(t, env.app, "GET", "/api/v1/workspace", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var ws WorkspaceResponse
	decodeBody(t, resp, &ws)
	assert.Equal(t, 420, ws.Balance)
	assert.True(t, ws.HasAccess)

	// Without a backend the endpoint degrades to 503.
	env = newTestEnv(t, openConfig(), nil, nil)
	resp = doJSON(t, env.app, "GET", "/api/v1/workspace", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestListStylesEndpoint(t *testing.T) {
	backend := &stubBackend{styles: []layerapi.Style{
		{ID: "s1", Name: "cartoon", Status: layerapi.StyleStatusReady},
		{ID: "s2", Name: "pixel", Status: "TRAINING"},
	}}
	env := newTestEnv(t, openConfig(), nil, backend)

	resp := doJSON(t, env.app, "GET", "/api/v1/styles", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var list StyleListResponse
	decodeBody(t, resp, &list)
	require.Len(t, list.Styles, 2)
	assert.True(t, list.Styles[0].Ready)
	assert.False(t, list.Styles[1].Ready)
}

func TestCreateStyleEndpoint(t *testing.T) {
	backend := &stubBackend{}
	env := newTestEnv(t, openConfig(), nil, backend)

	resp := doJSON(t, env.app, "POST", "/api/v1/styles", `{"name": "neon", "prefix": ["neon glow"]}`, nil)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var style StyleResponse
	decodeBody(t, resp, &style)
	assert.Equal(t, "style-neon", style.ID)
	assert.Equal(t, "neon", style.Name)
	assert.False(t, style.Ready)

	// Missing name is rejected before reaching the backend.
	resp = doJSON(t, env.app, "POST", "/api/v1/styles", `{"prefix": ["neon glow"]}`, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Without a backend the endpoint degrades to 503.
	env = newTestEnv(t, openConfig(), nil, nil)
	resp = doJSON(t, env.app, "POST", "/api/v1/styles", `{"name": "neon"}`, nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
