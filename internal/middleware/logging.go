package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// requestIDLocal is where the requestid middleware stores the correlation ID.
const requestIDLocal = "requestid"

const maxQueryLogLength = 1024

// RequestID returns the correlation ID of the current request.
func RequestID(c *fiber.Ctx) string {
	return asString(c.Locals(requestIDLocal))
}

// AccessLog emits one structured line per request. The chain error is
// rendered through the app error handler first so the logged status is the
// one the client sees.
func AccessLog() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		renderError(c, c.Next())

		status := c.Response().StatusCode()
		var ev *zerolog.Event
		switch {
		case status >= fiber.StatusInternalServerError:
			ev = log.Error()
		case status >= fiber.StatusBadRequest:
			ev = log.Warn()
		default:
			ev = log.Info()
		}

		userID := ""
		if id, ok := GetCurrentUserID(c); ok {
			userID = id.String()
		}
		ev.Str("request_id", RequestID(c)).
			Str("user_id", userID).
			Str("method", c.Method()).
			Str("path", routePath(c)).
			Str("query", truncate(string(c.Request().URI().QueryString()), maxQueryLogLength)).
			Str("remote_ip", c.IP()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bytes_out", len(c.Response().Body())).
			Msg("request")
		return nil
	}
}

// renderError writes err through the app error handler so later
// middleware observe the final status.
func renderError(c *fiber.Ctx, err error) {
	if err == nil {
		return
	}
	if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
		_ = c.SendStatus(fiber.StatusInternalServerError)
	}
}

func routePath(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" && r.Path != "/" {
		return r.Path
	}
	return c.Path()
}

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	default:
		return fmt.Sprint(s)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
