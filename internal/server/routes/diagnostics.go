package routes

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rdf-hub/rdf-hub/internal/convert"
	"github.com/rdf-hub/rdf-hub/internal/format"
	"github.com/rdf-hub/rdf-hub/internal/version"
)

// RegisterDiagnosticRoutes 暴露 /-/ 前缀的诊断接口，供运维查询格式表与转换器可用性。
func RegisterDiagnosticRoutes(app *fiber.App, registry format.Registry, chain *convert.Chain) {
	if app == nil || registry == nil {
		return
	}

	app.Get("/-/healthz", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"version": version.Full(),
		})
	})

	app.Get("/-/formats", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"default": registry.Default().Key,
			"formats": encodeFormats(registry.All()),
		})
	})

	app.Get("/-/formats/:key", func(c fiber.Ctx) error {
		if f, ok := registry.ByKey(c.Params("key")); ok {
			return c.JSON(encodeFormat(f))
		}
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "format_not_found"})
	})

	app.Get("/-/converters", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"converters": encodeConverters(chain),
		})
	})
}

type formatPayload struct {
	Key             string `json:"key"`
	MediaType       string `json:"media_type"`
	Extension       string `json:"extension"`
	MachineReadable bool   `json:"machine_readable"`
	Display         bool   `json:"display"`
}

type converterPayload struct {
	Name      string `json:"name"`
	Path      string `json:"path,omitempty"`
	Available bool   `json:"available"`
}

func encodeFormats(formats []format.Format) []formatPayload {
	result := make([]formatPayload, 0, len(formats))
	for _, f := range formats {
		result = append(result, encodeFormat(f))
	}
	return result
}

func encodeFormat(f format.Format) formatPayload {
	return formatPayload{
		Key:             f.Key,
		MediaType:       f.MediaType,
		Extension:       f.Extension,
		MachineReadable: f.MachineReadable,
		Display:         f.Display,
	}
}

// encodeConverters 保持链中顺序，外部工具附带路径与可执行文件探测结果。
func encodeConverters(chain *convert.Chain) []converterPayload {
	if chain == nil {
		return []converterPayload{}
	}
	converters := chain.Converters()
	result := make([]converterPayload, 0, len(converters))
	for _, conv := range converters {
		item := converterPayload{Name: conv.Name(), Available: true}
		if tool, ok := conv.(*convert.Tool); ok {
			item.Path = tool.Path()
			item.Available = tool.Available()
		}
		result = append(result, item)
	}
	return result
}
