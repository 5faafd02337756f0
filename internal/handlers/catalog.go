package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/phonestore/internal/services"
	"github.com/example/phonestore/internal/utils"
)

// CatalogHandler manages categories.
type CatalogHandler struct {
	catalog *services.CatalogService
}

// NewCatalogHandler constructs CatalogHandler.
func NewCatalogHandler(catalog *services.CatalogService) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// ListCategories returns paginated categories. With all=true it returns the
// full cached list instead.
func (h *CatalogHandler) ListCategories(c *fiber.Ctx) error {
	if c.QueryBool("all") {
		categories, err := h.catalog.AllCategories(c.UserContext())
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"success": true, "data": categories})
	}

	page, err := h.catalog.ListCategories(c.UserContext(), strings.TrimSpace(c.Query("search")), utils.ParsePagination(c))
	if err != nil {
		return err
	}
	return c.JSON(page.Envelope())
}

// GetCategory returns a single category by ID.
func (h *CatalogHandler) GetCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	category, err := h.catalog.GetCategory(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": category})
}

// CreateCategory persists a new category.
func (h *CatalogHandler) CreateCategory(c *fiber.Ctx) error {
	var payload services.CategoryInput
	if err := parseBody(c, &payload); err != nil {
		return err
	}

	category, err := h.catalog.CreateCategory(c.UserContext(), payload)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": category})
}

// UpdateCategory updates an existing category.
func (h *CatalogHandler) UpdateCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var payload services.CategoryInput
	if err := parseBody(c, &payload); err != nil {
		return err
	}

	category, err := h.catalog.UpdateCategory(c.UserContext(), id, payload)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": category})
}

// DeleteCategory removes a category that no product references.
func (h *CatalogHandler) DeleteCategory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.catalog.DeleteCategory(c.UserContext(), id); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}
