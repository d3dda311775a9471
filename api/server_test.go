package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianbio/pipeline"
	"github.com/meridianbio/pipeline/engine"
	"github.com/meridianbio/pipeline/store"
)

func testApp(t *testing.T) (*fiber.App, *engine.Engine) {
	t.Helper()

	p := pipeline.NewPipeline()
	desc := pipeline.StageDescriptor{
		Name:     "only",
		Required: true,
		Fallback: pipeline.FallbackNone,
		Retry: pipeline.RetryPolicy{
			MaxRetries:      0,
			BaseDelay:       time.Millisecond,
			MaxDelay:        time.Millisecond,
			ExponentialBase: 2.0,
		},
		Timeout: time.Second,
	}
	exec := pipeline.StageExecutorFunc(func(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	})
	require.NoError(t, p.Register(desc, exec))

	eng, err := engine.New(p, store.NewMemoryStore(), engine.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	app := fiber.New()
	NewServer(eng, zerolog.Nop()).Register(app)
	return app, eng
}

func decodeBody(t *testing.T, body io.Reader) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.NewDecoder(body).Decode(&out))
	return out
}

func TestServer_StartWorkflow(t *testing.T) {
	app, _ := testApp(t)

	req := httptest.NewRequest("POST", "/api/v1/workflows/", strings.NewReader(`{"input":{"gene":"BRCA1"}}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.NotEmpty(t, body["workflowId"])
	assert.Equal(t, "INITIATED", body["status"])
}

func TestServer_StartWorkflowRejectsInvalidInput(t *testing.T) {
	app, _ := testApp(t)

	for _, payload := range []string{
		`{"input":{}}`,
		`{"input":[]}`,
		`{}`,
		`not json at all`,
	} {
		req := httptest.NewRequest("POST", "/api/v1/workflows/", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, payload)
	}
}

func TestServer_GetState(t *testing.T) {
	app, eng := testApp(t)

	id, err := eng.StartWorkflow(context.Background(), json.RawMessage(`{"gene":"BRCA1"}`), engine.WithSynchronous(true))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/workflows/"+id, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, id, body["workflowId"])
	assert.Equal(t, "COMPLETED", body["status"])
}

func TestServer_GetStateUnknown(t *testing.T) {
	app, _ := testApp(t)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/workflows/no-such-id", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestServer_ListWorkflows(t *testing.T) {
	app, eng := testApp(t)

	for i := 0; i < 3; i++ {
		_, err := eng.StartWorkflow(context.Background(), json.RawMessage(`{"gene":"BRCA1"}`), engine.WithSynchronous(true))
		require.NoError(t, err)
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/workflows/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, float64(3), body["count"])

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/workflows/?status=COMPLETED&limit=2", nil))
	require.NoError(t, err)
	body = decodeBody(t, resp.Body)
	assert.Equal(t, float64(2), body["count"])
}

func TestServer_CancelTerminalConflicts(t *testing.T) {
	app, eng := testApp(t)

	id, err := eng.StartWorkflow(context.Background(), json.RawMessage(`{"gene":"BRCA1"}`), engine.WithSynchronous(true))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/workflows/"+id+"/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)
}

func TestServer_CancelUnknownIsNotFound(t *testing.T) {
	app, _ := testApp(t)

	resp, err := app.Test(httptest.NewRequest("POST", "/api/v1/workflows/no-such-id/cancel", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	app, eng := testApp(t)

	_, err := eng.StartWorkflow(context.Background(), json.RawMessage(`{"gene":"BRCA1"}`), engine.WithSynchronous(true))
	require.NoError(t, err)

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp.Body)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body, "stages")
	assert.Contains(t, body, "breakers")
}
