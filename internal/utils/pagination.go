package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Pagination holds pagination parameters.
type Pagination struct {
	Page   int
	Limit  int
	Offset int
}

// NewPagination clamps page and limit to sane values.
func NewPagination(page, limit int) Pagination {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return Pagination{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// ParsePagination reads page and limit query params with sane defaults.
func ParsePagination(c *fiber.Ctx) Pagination {
	return NewPagination(
		parseInt(c.Query("page", "1"), 1),
		parseInt(c.Query("limit", strconv.Itoa(defaultLimit)), defaultLimit),
	)
}

// Page is one slice of a paginated listing.
type Page[T any] struct {
	Items       []T
	Total       int64
	CurrentPage int
	Limit       int
}

// NewPage assembles a Page; nil items become an empty slice.
func NewPage[T any](items []T, total int64, pg Pagination) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, CurrentPage: pg.Page, Limit: pg.Limit}
}

// TotalPages rounds Total/Limit up.
func (p Page[T]) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

// Envelope renders the page in the paginated response shape.
func (p Page[T]) Envelope() fiber.Map {
	return fiber.Map{
		"success":     true,
		"count":       len(p.Items),
		"total":       p.Total,
		"totalPages":  p.TotalPages(),
		"currentPage": p.CurrentPage,
		"data":        p.Items,
	}
}

func parseInt(value string, fallback int) int {
	if parsed, err := strconv.Atoi(value); err == nil {
		return parsed
	}
	return fallback
}
