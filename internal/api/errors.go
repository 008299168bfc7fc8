package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oarkflow/processguard/internal/model"
)

// classifyAPIError maps the core's typed errors to an HTTP status and a
// stable error "kind" string, per spec.md §7's {error: kind, detail:
// string} response body.
func classifyAPIError(err error) (int, string) {
	switch err.(type) {
	case *model.ConfigError:
		return fiber.StatusBadRequest, "config"
	case *model.DependencyNotReadyError:
		return fiber.StatusConflict, "dependency_not_ready"
	case *model.NotFoundError:
		return fiber.StatusNotFound, "not_found"
	case *model.DisabledError:
		return fiber.StatusConflict, "disabled"
	case *model.QuarantinedError:
		return fiber.StatusConflict, "quarantined"
	case *model.SpawnError:
		return fiber.StatusInternalServerError, "spawn"
	case *model.TransientIOError:
		return fiber.StatusInternalServerError, "transient_io"
	default:
		return fiber.StatusInternalServerError, "internal"
	}
}

func respondError(c *fiber.Ctx, err error) error {
	code, kind := classifyAPIError(err)
	return c.Status(code).JSON(fiber.Map{"error": kind, "detail": err.Error()})
}
