package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/phonestore/internal/services"
)

// CartHandler exposes the caller's shopping cart.
type CartHandler struct {
	carts *services.CartService
}

// NewCartHandler constructs CartHandler.
func NewCartHandler(carts *services.CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

// GetCart returns the caller's cart with totals.
func (h *CartHandler) GetCart(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	cart, err := h.carts.GetCart(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

// Count returns line and unit counts for the cart badge.
func (h *CartHandler) Count(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	count, err := h.carts.Count(c.UserContext(), userID)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": count})
}

type addCartItemRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	VariantID uuid.UUID `json:"variant_id"`
	// Quantity defaults to 1 when omitted. An explicit value must be at least 1.
	Quantity *int `json:"quantity"`
}

// AddItem adds a variant to the cart, merging with an existing line.
func (h *CartHandler) AddItem(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req addCartItemRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.ProductID == uuid.Nil || req.VariantID == uuid.Nil {
		return fiber.NewError(fiber.StatusBadRequest, "product_id and variant_id are required")
	}
	qty := 1
	if req.Quantity != nil {
		qty = *req.Quantity
	}

	cart, err := h.carts.AddItem(c.UserContext(), userID, req.ProductID, req.VariantID, qty)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": cart})
}

type updateCartItemRequest struct {
	Quantity int `json:"quantity"`
}

// UpdateItem sets the quantity of one line.
func (h *CartHandler) UpdateItem(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req updateCartItemRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	cart, err := h.carts.UpdateItem(c.UserContext(), userID, id, req.Quantity)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

// RemoveItem deletes one line.
func (h *CartHandler) RemoveItem(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	cart, err := h.carts.RemoveItem(c.UserContext(), userID, id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": cart})
}

// Clear empties the cart.
func (h *CartHandler) Clear(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	if err := h.carts.Clear(c.UserContext(), userID); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}
