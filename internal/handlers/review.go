package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/phonestore/internal/services"
	"github.com/example/phonestore/internal/utils"
)

// ReviewHandler manages product reviews.
type ReviewHandler struct {
	reviews *services.ReviewService
}

// NewReviewHandler constructs ReviewHandler.
func NewReviewHandler(reviews *services.ReviewService) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// ListProductReviews returns a product's reviews, optionally by rating.
func (h *ReviewHandler) ListProductReviews(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	page, err := h.reviews.ListReviews(c.UserContext(), services.ReviewQuery{
		ProductID: &id,
		Rating:    c.QueryInt("rating", 0),
		Page:      utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(page.Envelope())
}

// ListMine returns the caller's own reviews.
func (h *ReviewHandler) ListMine(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	page, err := h.reviews.ListReviews(c.UserContext(), services.ReviewQuery{
		UserID: &userID,
		Page:   utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(page.Envelope())
}

// ListAll is the admin moderation listing.
func (h *ReviewHandler) ListAll(c *fiber.Ctx) error {
	productID, err := parseOptionalID(c, "product_id")
	if err != nil {
		return err
	}
	userID, err := parseOptionalID(c, "user_id")
	if err != nil {
		return err
	}

	page, err := h.reviews.ListReviews(c.UserContext(), services.ReviewQuery{
		ProductID: productID,
		UserID:    userID,
		Rating:    c.QueryInt("rating", 0),
		Page:      utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(page.Envelope())
}

// Reviewable lists purchased items the caller can still review.
func (h *ReviewHandler) Reviewable(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	items, err := h.reviews.ReviewableItems(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": items})
}

type createReviewRequest struct {
	OrderItemID uuid.UUID `json:"order_item_id"`
	Rating      int       `json:"rating"`
	Comment     string    `json:"comment"`
}

// CreateReview reviews an item of a completed order.
func (h *ReviewHandler) CreateReview(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req createReviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.OrderItemID == uuid.Nil {
		return fiber.NewError(fiber.StatusBadRequest, "order_item_id is required")
	}

	review, err := h.reviews.CreateReview(c.UserContext(), userID, req.OrderItemID, req.Rating, req.Comment)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": review})
}

type updateReviewRequest struct {
	Rating  *int    `json:"rating"`
	Comment *string `json:"comment"`
}

// UpdateReview edits the caller's own review.
func (h *ReviewHandler) UpdateReview(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req updateReviewRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	review, err := h.reviews.UpdateReview(c.UserContext(), userID, id, req.Rating, req.Comment)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": review})
}

// DeleteReview removes a review owned by the caller, or any review for admins.
func (h *ReviewHandler) DeleteReview(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.reviews.DeleteReview(c.UserContext(), actor, id); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}
