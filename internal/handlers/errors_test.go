package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/phonestore/internal/services"
)

type failure struct {
	Success   bool     `json:"success"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	Errors    []string `json:"errors"`
	RequestID string   `json:"request_id"`
}

func render(t *testing.T, err error) (int, failure) {
	t.Helper()
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(requestid.New())
	app.Get("/", func(*fiber.Ctx) error { return err })

	resp, rerr := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil), -1)
	require.NoError(t, rerr)
	var body failure
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.False(t, body.Success)
	assert.NotEmpty(t, body.RequestID)
	return resp.StatusCode, body
}

func TestErrorHandlerMapsTaxonomy(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{services.ErrEmptyCart, 400, "empty_cart"},
		{services.ErrNotCompleted, 400, "not_completed"},
		{services.ErrInvalidQuantity, 400, "bad_request"},
		{services.ErrBadCredentials, 401, "unauthorized"},
		{services.ErrForbidden, 403, "forbidden"},
		{fmt.Errorf("%w: product not found", services.ErrNotFound), 404, "not_found"},
		{services.ErrNoCandidates, 404, "not_found"},
		{services.ErrDuplicateReview, 409, "conflict"},
		{fmt.Errorf("%w: only 1 left", services.ErrInsufficientStock), 409, "insufficient_stock"},
		{fmt.Errorf("%w: variant inactive", services.ErrUnavailable), 422, "unavailable"},
		{fmt.Errorf("%w: timeout", services.ErrAIFailure), 502, "ai_failure"},
		{fiber.NewError(fiber.StatusForbidden, "admin access required"), 403, "forbidden"},
		{fiber.ErrTooManyRequests, 429, "rate_limited"},
	}
	for _, tc := range cases {
		t.Run(tc.code+"/"+tc.err.Error(), func(t *testing.T) {
			status, body := render(t, tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.code, body.Code)
		})
	}
}

func TestErrorHandlerOrderValidationListsProblems(t *testing.T) {
	err := &services.OrderValidationError{Problems: []string{"Pixel is no longer available", "only 1 of iPhone left"}}
	status, body := render(t, fmt.Errorf("checkout: %w", err))
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "order_validation", body.Code)
	assert.Equal(t, err.Problems, body.Errors)
}

func TestErrorHandlerHidesInternalDetails(t *testing.T) {
	status, body := render(t, errors.New("pq: connection refused"))
	assert.Equal(t, fiber.StatusInternalServerError, status)
	assert.Equal(t, "internal_error", body.Code)
	assert.NotContains(t, body.Message, "pq")
}

func TestErrorHandlerHidesModelProviderText(t *testing.T) {
	upstream := errors.New("chat completion: error, status code: 401, message: Incorrect API key provided: sk-proj-abc***xyz")
	status, body := render(t, fmt.Errorf("%w: %w", services.ErrAIFailure, upstream))
	assert.Equal(t, fiber.StatusBadGateway, status)
	assert.Equal(t, "ai_failure", body.Code)
	assert.NotContains(t, body.Message, "sk-proj")
	assert.NotContains(t, body.Message, "401")
	assert.NotEmpty(t, body.Message)
}

func TestParseIDTreatsMalformedAsNotFound(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/things/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c, "id")
		if err != nil {
			return err
		}
		return c.SendString(id.String())
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/things/not-a-uuid", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/things/7f9c2b8e-3f1a-4c61-9a2e-5d0b8a1c2e3f", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
