package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/phonestore/internal/services"
	"github.com/example/phonestore/internal/utils"
)

// HeaderIdempotencyKey lets clients retry checkout without placing twice.
const HeaderIdempotencyKey = "Idempotency-Key"

// OrderHandler manages customer order endpoints.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type createOrderRequest struct {
	CustomerName    string `json:"customer_name"`
	Phone           string `json:"phone"`
	ShippingAddress string `json:"shipping_address"`
	PaymentMethod   string `json:"payment_method"`
	Note            string `json:"note"`
}

// CreateOrder checks out the caller's cart. A repeated Idempotency-Key
// returns the order placed the first time with 200 instead of 201.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	var req createOrderRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, replayed, err := h.orders.CreateOrder(c.UserContext(), userID, services.ShippingInfo{
		CustomerName:    req.CustomerName,
		Phone:           req.Phone,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   req.PaymentMethod,
		Note:            req.Note,
	}, strings.TrimSpace(c.Get(HeaderIdempotencyKey)))
	if err != nil {
		return err
	}

	status := fiber.StatusCreated
	if replayed {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(fiber.Map{"success": true, "data": order})
}

func orderQuery(c *fiber.Ctx) services.OrderQuery {
	return services.OrderQuery{
		Status:        c.Query("status"),
		PaymentStatus: c.Query("payment_status"),
		Sort:          c.Query("sort"),
		Search:        strings.TrimSpace(c.Query("search")),
		Page:          utils.ParsePagination(c),
	}
}

// ListOrders returns orders for authenticated user.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	page, err := h.orders.ListUserOrders(c.UserContext(), userID, orderQuery(c))
	if err != nil {
		return err
	}

	return c.JSON(page.Envelope())
}

// GetOrder returns a single order visible to the caller.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	order, err := h.orders.GetOrder(c.UserContext(), actor, id)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}

type cancelOrderRequest struct {
	Reason string `json:"reason"`
}

// CancelOrder cancels one of the caller's orders and restores stock.
func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	userID, err := currentUser(c)
	if err != nil {
		return err
	}

	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req cancelOrderRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return err
		}
	}

	order, err := h.orders.CancelOrder(c.UserContext(), userID, id, req.Reason)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": order})
}
