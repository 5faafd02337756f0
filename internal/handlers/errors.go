package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/example/phonestore/internal/middleware"
	"github.com/example/phonestore/internal/services"
)

type errorMapping struct {
	target error
	status int
	code   string
	// message replaces err.Error() for errors that may carry upstream text.
	message string
}

// Specific errors come before the kinds they wrap.
var errorMappings = []errorMapping{
	{services.ErrEmptyCart, fiber.StatusBadRequest, "empty_cart", ""},
	{services.ErrNotCompleted, fiber.StatusBadRequest, "not_completed", ""},
	{services.ErrInsufficientStock, fiber.StatusConflict, "insufficient_stock", ""},
	{services.ErrUnavailable, fiber.StatusUnprocessableEntity, "unavailable", ""},
	{services.ErrAIFailure, fiber.StatusBadGateway, "ai_failure", "recommendation service is temporarily unavailable"},
	{services.ErrValidation, fiber.StatusBadRequest, "bad_request", ""},
	{services.ErrUnauthorized, fiber.StatusUnauthorized, "unauthorized", ""},
	{services.ErrForbidden, fiber.StatusForbidden, "forbidden", ""},
	{services.ErrNotFound, fiber.StatusNotFound, "not_found", ""},
	{services.ErrConflict, fiber.StatusConflict, "conflict", ""},
}

var statusCodes = map[int]string{
	fiber.StatusBadRequest:            "bad_request",
	fiber.StatusUnauthorized:          "unauthorized",
	fiber.StatusForbidden:             "forbidden",
	fiber.StatusNotFound:              "not_found",
	fiber.StatusMethodNotAllowed:      "method_not_allowed",
	fiber.StatusConflict:              "conflict",
	fiber.StatusRequestEntityTooLarge: "payload_too_large",
	fiber.StatusUnprocessableEntity:   "unprocessable",
	fiber.StatusTooManyRequests:       "rate_limited",
}

// ErrorHandler renders every error returned by a handler in the shared
// failure envelope.
func ErrorHandler(c *fiber.Ctx, err error) error {
	body := fiber.Map{"success": false, "request_id": middleware.RequestID(c)}

	var ove *services.OrderValidationError
	var fe *fiber.Error
	switch {
	case errors.As(err, &ove):
		body["code"] = "order_validation"
		body["message"] = "order validation failed"
		body["errors"] = ove.Problems
		return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
	case errors.As(err, &fe):
		code, ok := statusCodes[fe.Code]
		if !ok {
			code = "internal_error"
		}
		if fe.Code >= fiber.StatusInternalServerError {
			log.Error().Err(err).Str("request_id", middleware.RequestID(c)).Msg("request failed")
		}
		body["code"] = code
		body["message"] = fe.Message
		return c.Status(fe.Code).JSON(body)
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			body["code"] = m.code
			body["message"] = err.Error()
			if m.message != "" {
				log.Warn().Err(err).Str("request_id", middleware.RequestID(c)).Str("code", m.code).Msg("upstream failure")
				body["message"] = m.message
			}
			return c.Status(m.status).JSON(body)
		}
	}

	log.Error().Err(err).
		Str("request_id", middleware.RequestID(c)).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Msg("unhandled error")
	body["code"] = "internal_error"
	body["message"] = "internal server error"
	return c.Status(fiber.StatusInternalServerError).JSON(body)
}

// parseID reads a uuid route param. Malformed ids cannot name an existing
// record, so they surface as not found.
func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusNotFound, "resource not found")
	}
	return id, nil
}

// parseOptionalID reads a uuid query param; empty means unset.
func parseOptionalID(c *fiber.Ctx, key string) (*uuid.UUID, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return &id, nil
}

func currentUser(c *fiber.Ctx) (uuid.UUID, error) {
	id, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return uuid.Nil, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return id, nil
}

func currentActor(c *fiber.Ctx) (services.Actor, error) {
	actor, ok := middleware.GetActor(c)
	if !ok {
		return services.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	return actor, nil
}

func parseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}
