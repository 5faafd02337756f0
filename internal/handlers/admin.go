package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/example/phonestore/internal/services"
	"github.com/example/phonestore/internal/utils"
)

// AdminHandler manages admin-only endpoints.
type AdminHandler struct {
	users  *services.UserService
	orders *services.OrderService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(users *services.UserService, orders *services.OrderService) *AdminHandler {
	return &AdminHandler{users: users, orders: orders}
}

// DashboardStats returns aggregate statistics for the admin dashboard.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	stats, err := h.users.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": stats})
}

// ListAllUsers returns all registered users with purchase aggregates.
func (h *AdminHandler) ListAllUsers(c *fiber.Ctx) error {
	page, err := h.users.ListUsers(c.UserContext(), services.UserQuery{
		Search: strings.TrimSpace(c.Query("search")),
		Role:   c.Query("role"),
		Page:   utils.ParsePagination(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(page.Envelope())
}

// GetUser returns one user with their orders.
func (h *AdminHandler) GetUser(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	user, err := h.users.GetUser(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": user})
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

// UpdateUserRole promotes or demotes a user.
func (h *AdminHandler) UpdateUserRole(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req updateRoleRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := h.users.UpdateRole(c.UserContext(), adminID, id, req.Role)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": user})
}

// DeleteUser removes an account. Its orders are kept.
func (h *AdminHandler) DeleteUser(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	if err := h.users.DeleteUser(c.UserContext(), adminID, id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

// ListAllOrders returns all orders with filters and customer info.
func (h *AdminHandler) ListAllOrders(c *fiber.Ctx) error {
	q := orderQuery(c)
	userID, err := parseOptionalID(c, "user_id")
	if err != nil {
		return err
	}
	q.UserID = userID

	page, err := h.orders.ListAllOrders(c.UserContext(), q)
	if err != nil {
		return err
	}
	return c.JSON(page.Envelope())
}

type orderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus moves an order to a new status.
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req orderStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.UpdateOrderStatus(c.UserContext(), adminID, id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// UpdatePaymentStatus records payment progress.
func (h *AdminHandler) UpdatePaymentStatus(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req paymentStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.UpdatePaymentStatus(c.UserContext(), adminID, id, req.PaymentStatus)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type trackingRequest struct {
	TrackingCode string `json:"tracking_code"`
}

// UpdateTrackingCode sets the carrier tracking code.
func (h *AdminHandler) UpdateTrackingCode(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
	if err != nil {
		return err
	}
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	var req trackingRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.UpdateTrackingCode(c.UserContext(), adminID, id, req.TrackingCode)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// CancelOrder cancels any cancelable order and restores stock.
func (h *AdminHandler) CancelOrder(c *fiber.Ctx) error {
	adminID, err := currentUser(c)
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

	order, err := h.orders.AdminCancelOrder(c.UserContext(), adminID, id, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

// OrderHistory returns the audit trail of an order, newest first.
func (h *AdminHandler) OrderHistory(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}

	entries, err := h.orders.History(c.UserContext(), id, int64(c.QueryInt("limit", 50)))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": entries})
}
