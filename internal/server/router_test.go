package server

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouterDispatchesRootToHandler(t *testing.T) {
	var seenID string
	app := newTestApp(t, RequestHandlerFunc(func(c fiber.Ctx) error {
		seenID = RequestID(c)
		return c.Status(fiber.StatusNoContent).Send(nil)
	}))

	resp, err := app.Test(httptest.NewRequest("GET", "/?uri=https://example.org/onto", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

	reqID := resp.Header.Get("X-Request-ID")
	assert.NotEmpty(t, reqID, "expected X-Request-ID header to be set")
	assert.Equal(t, reqID, seenID, "handler should see the same request id")
}

func TestRouterRendersUnknownRouteAsJSON(t *testing.T) {
	app := newTestApp(t, RequestHandlerFunc(func(c fiber.Ctx) error {
		t.Fatal("handler must not be called for unknown paths")
		return nil
	}))

	resp, err := app.Test(httptest.NewRequest("GET", "/elsewhere", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	var payload map[string]string
	body, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "route_not_found", payload["error"])
}

func TestRouterRecoversFromPanics(t *testing.T) {
	app := newTestApp(t, RequestHandlerFunc(func(c fiber.Ctx) error {
		panic("boom")
	}))

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestNewAppRequiresDependencies(t *testing.T) {
	_, err := NewApp(AppOptions{})
	assert.Error(t, err)

	_, err = NewApp(AppOptions{Logger: logrus.New()})
	assert.Error(t, err)
}

func newTestApp(t *testing.T, handler RequestHandler) *fiber.App {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	app, err := NewApp(AppOptions{Logger: logger, Handler: handler})
	require.NoError(t, err)
	return app
}
