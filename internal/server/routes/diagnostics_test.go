package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rdf-hub/rdf-hub/internal/convert"
	"github.com/rdf-hub/rdf-hub/internal/format"
)

func newDiagnosticsApp(t *testing.T, chain *convert.Chain) *fiber.App {
	t.Helper()
	app := fiber.New()
	RegisterDiagnosticRoutes(app, format.Builtin(), chain)
	return app
}

func getJSON(t *testing.T, app *fiber.App, path string, out any) int {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", path, nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, out), string(body))
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	app := newDiagnosticsApp(t, nil)
	var payload map[string]string
	status := getJSON(t, app, "/-/healthz", &payload)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", payload["status"])
}

func TestFormatsListingKeepsRegistryOrder(t *testing.T) {
	app := newDiagnosticsApp(t, nil)
	var payload struct {
		Default string          `json:"default"`
		Formats []formatPayload `json:"formats"`
	}
	status := getJSON(t, app, "/-/formats", &payload)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "turtle", payload.Default)
	require.Len(t, payload.Formats, len(format.Builtin().All()))
	assert.Equal(t, "turtle", payload.Formats[0].Key)
	assert.Equal(t, "text/turtle", payload.Formats[0].MediaType)
}

func TestFormatDetail(t *testing.T) {
	app := newDiagnosticsApp(t, nil)

	var detail formatPayload
	status := getJSON(t, app, "/-/formats/html", &detail)
	require.Equal(t, fiber.StatusOK, status)
	assert.False(t, detail.MachineReadable)
	assert.True(t, detail.Display)

	var upper formatPayload
	status = getJSON(t, app, "/-/formats/JSONLD", &upper)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "application/ld+json", upper.MediaType)

	var missing map[string]string
	status = getJSON(t, app, "/-/formats/docx", &missing)
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, "format_not_found", missing["error"])
}

func TestConvertersReportAvailability(t *testing.T) {
	missing := convert.NewTool(convert.Riot, filepath.Join(t.TempDir(), "riot"))
	app := newDiagnosticsApp(t, convert.NewChain(convert.Superset{}, missing))

	var payload struct {
		Converters []converterPayload `json:"converters"`
	}
	status := getJSON(t, app, "/-/converters", &payload)
	require.Equal(t, fiber.StatusOK, status)
	require.Len(t, payload.Converters, 2)
	assert.Equal(t, converterPayload{Name: "superset", Available: true}, payload.Converters[0])
	assert.Equal(t, "riot", payload.Converters[1].Name)
	assert.False(t, payload.Converters[1].Available)
	assert.NotEmpty(t, payload.Converters[1].Path)
}
