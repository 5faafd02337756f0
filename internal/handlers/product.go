package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/phonestore/internal/services"
	"github.com/example/phonestore/internal/utils"
)

// ProductHandler manages products with their variants and images.
type ProductHandler struct {
	catalog *services.CatalogService
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(catalog *services.CatalogService) *ProductHandler {
	return &ProductHandler{catalog: catalog}
}

func queryInt64(c *fiber.Ctx, key string) (*int64, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return &v, nil
}

// ListProducts returns paginated active products with optional filters.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	categoryID, err := parseOptionalID(c, "category_id")
	if err != nil {
		return err
	}
	minPrice, err := queryInt64(c, "min_price")
	if err != nil {
		return err
	}
	maxPrice, err := queryInt64(c, "max_price")
	if err != nil {
		return err
	}

	active := true
	page, err := h.catalog.ListProducts(c.UserContext(), services.ProductQuery{
		CategoryID: categoryID,
		Search:     strings.TrimSpace(c.Query("search")),
		Active:     &active,
		MinPrice:   minPrice,
		MaxPrice:   maxPrice,
		Sort:       c.Query("sort"),
		Page:       utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(page.Envelope())
}

// GetProduct loads an active product with relations.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	product, err := h.catalog.GetProduct(c.UserContext(), id, false)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// CreateProduct creates a product and any inline variants.
func (h *ProductHandler) CreateProduct(c *fiber.Ctx) error {
	var req services.ProductInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	product, err := h.catalog.CreateProduct(c.UserContext(), req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

// UpdateProduct patches product fields.
func (h *ProductHandler) UpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req services.ProductInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	product, err := h.catalog.UpdateProduct(c.UserContext(), id, req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

// DeleteProduct removes a product with its variants and images.
func (h *ProductHandler) DeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.catalog.DeleteProduct(c.UserContext(), id); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}

// ListVariants returns all variants of a product.
func (h *ProductHandler) ListVariants(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	variants, err := h.catalog.ListVariants(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": variants})
}

// CreateVariant adds a purchasable configuration to a product.
func (h *ProductHandler) CreateVariant(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req services.VariantInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	variant, err := h.catalog.CreateVariant(c.UserContext(), id, req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": variant})
}

// UpdateVariant patches price, stock and attributes of a variant.
func (h *ProductHandler) UpdateVariant(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req services.VariantInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	variant, err := h.catalog.UpdateVariant(c.UserContext(), id, req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": variant})
}

// DeleteVariant removes a variant.
func (h *ProductHandler) DeleteVariant(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.catalog.DeleteVariant(c.UserContext(), id); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}

// ListImages returns product images in display order.
func (h *ProductHandler) ListImages(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	images, err := h.catalog.ListImages(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": images})
}

// CreateImage attaches an image to a product.
func (h *ProductHandler) CreateImage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req services.ImageInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	image, err := h.catalog.CreateImage(c.UserContext(), id, req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": image})
}

// UpdateImage patches an image.
func (h *ProductHandler) UpdateImage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req services.ImageInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	image, err := h.catalog.UpdateImage(c.UserContext(), id, req)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": image})
}

// DeleteImage removes an image.
func (h *ProductHandler) DeleteImage(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.catalog.DeleteImage(c.UserContext(), id); err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true})
}
