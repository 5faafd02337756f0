package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/phonestore/internal/services"
	"github.com/example/phonestore/internal/utils"
)

// ChatbotHandler drives the guided recommendation conversation.
type ChatbotHandler struct {
	reco *services.RecommendationService
}

// NewChatbotHandler constructs ChatbotHandler.
func NewChatbotHandler(reco *services.RecommendationService) *ChatbotHandler {
	return &ChatbotHandler{reco: reco}
}

// Start greets the customer and lists categories.
func (h *ChatbotHandler) Start(c *fiber.Ctx) error {
	start, err := h.reco.StartChat(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": start})
}

// PriceRanges returns the budget ladder for a category.
func (h *ChatbotHandler) PriceRanges(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	prompt, err := h.reco.GetPriceRanges(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": prompt})
}

// StoryRequest asks for the customer's story for a chosen band.
func (h *ChatbotHandler) StoryRequest(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	index, err := c.ParamsInt("index")
	if err != nil {
		return services.ErrInvalidRange
	}

	prompt, err := h.reco.GetStoryRequest(c.UserContext(), id, index)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": prompt})
}

type recommendRequest struct {
	CategoryID      uuid.UUID `json:"category_id"`
	PriceRangeIndex *int      `json:"price_range_index"`
	Story           string    `json:"story"`
}

// Recommend ranks in-budget products against the customer's story.
func (h *ChatbotHandler) Recommend(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req recommendRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.CategoryID == uuid.Nil {
		return fiber.NewError(fiber.StatusBadRequest, "category_id is required")
	}
	if req.PriceRangeIndex == nil {
		return fiber.NewError(fiber.StatusBadRequest, "price_range_index is required")
	}

	result, err := h.reco.GetRecommendations(c.UserContext(), userID, req.CategoryID, *req.PriceRangeIndex, req.Story)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": result})
}

// History lists the caller's past recommendation transcripts.
func (h *ChatbotHandler) History(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	page, err := h.reco.GetChatHistory(c.UserContext(), userID, utils.ParsePagination(c))
	if err != nil {
		return err
	}
	return c.JSON(page.Envelope())
}

// HistoryDetail returns one transcript with live prices.
func (h *ChatbotHandler) HistoryDetail(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	detail, err := h.reco.GetAIMessageDetail(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": detail})
}
