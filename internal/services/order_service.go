package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/audit"
	"github.com/example/phonestore/internal/metrics"
	"github.com/example/phonestore/internal/models"
	"github.com/example/phonestore/internal/utils"
)

const maxCancelReason = 500

// ShippingInfo is what the customer supplies at checkout.
type ShippingInfo struct {
	CustomerName    string
	Phone           string
	ShippingAddress string
	PaymentMethod   string
	Note            string
}

func (in ShippingInfo) normalize() (ShippingInfo, error) {
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.ShippingAddress = strings.TrimSpace(in.ShippingAddress)
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	in.Note = strings.TrimSpace(in.Note)

	var missing []string
	if in.CustomerName == "" {
		missing = append(missing, "customer_name")
	}
	if in.Phone == "" {
		missing = append(missing, "phone")
	}
	if in.ShippingAddress == "" {
		missing = append(missing, "shipping_address")
	}
	if len(missing) > 0 {
		return in, invalid("missing required fields: %s", strings.Join(missing, ", "))
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = PaymentCOD
	}
	if !paymentMethods[in.PaymentMethod] {
		return in, invalid("unsupported payment method %q", in.PaymentMethod)
	}
	return in, nil
}

// OrderQuery filters order listings.
type OrderQuery struct {
	Status        string
	PaymentStatus string
	Sort          string
	Search        string
	UserID        *uuid.UUID
	Page          utils.Pagination
}

var orderSorts = map[string]string{
	"":           "created_at desc",
	"newest":     "created_at desc",
	"oldest":     "created_at asc",
	"total_desc": "total_price desc",
	"total_asc":  "total_price asc",
}

// OrderService runs checkout and the order lifecycle.
//
// Checkout and cancel are sequences of single-row atomic writes. Stock is
// reserved with a conditional decrement so concurrent checkouts can never
// oversell; a failed reservation rolls back the rows written so far.
type OrderService struct {
	DB     *gorm.DB
	Notify *Dispatcher
	Audit  audit.Recorder
	// Products, when set, is told about every stock movement.
	Products ProductInvalidator
	tracer   trace.Tracer
}

// NewOrderService constructs an OrderService. A nil recorder disables the
// audit trail.
func NewOrderService(db *gorm.DB, notify *Dispatcher, rec audit.Recorder) *OrderService {
	if rec == nil {
		rec = audit.Noop{}
	}
	return &OrderService{DB: db, Notify: notify, Audit: rec, tracer: otel.Tracer("services/OrderService")}
}

// CreateOrder converts the user's cart into an order. When idempotencyKey is
// non-empty and an order with that key already exists for the user, that
// order is returned and replayed is true.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, info ShippingInfo, idempotencyKey string) (order *models.Order, replayed bool, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder",
		trace.WithAttributes(attribute.String("user.id", userID.String())))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	info, err = info.normalize()
	if err != nil {
		return nil, false, err
	}

	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey != "" {
		if prev, err := s.findByIdempotencyKey(ctx, userID, idempotencyKey); err == nil {
			return prev, true, nil
		} else if !isNotFound(err) {
			return nil, false, err
		}
	}

	db := s.DB.WithContext(ctx)

	var cart models.Cart
	if err := db.First(&cart, "user_id = ?", userID).Error; err != nil {
		if isNotFound(err) {
			metrics.CheckoutFailures.WithLabelValues("empty_cart").Inc()
			return nil, false, ErrEmptyCart
		}
		return nil, false, err
	}

	var lines []models.CartItem
	if err := db.Preload("Product").Preload("Variant").
		Where("cart_id = ?", cart.ID).Order("created_at asc").
		Find(&lines).Error; err != nil {
		return nil, false, err
	}
	if len(lines) == 0 {
		metrics.CheckoutFailures.WithLabelValues("empty_cart").Inc()
		return nil, false, ErrEmptyCart
	}

	if problems := validateCheckoutLines(lines); len(problems) > 0 {
		metrics.CheckoutFailures.WithLabelValues("validation").Inc()
		return nil, false, &OrderValidationError{Problems: problems}
	}

	order = &models.Order{
		UserID:          userID,
		CustomerName:    info.CustomerName,
		Phone:           info.Phone,
		ShippingAddress: info.ShippingAddress,
		PaymentMethod:   info.PaymentMethod,
		Note:            info.Note,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusUnpaid,
		Items:           make([]models.OrderItem, 0, len(lines)),
	}
	if idempotencyKey != "" {
		order.IdempotencyKey = &idempotencyKey
	}
	for _, line := range lines {
		item := models.OrderItem{
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			Quantity:       line.Quantity,
			Price:          line.Variant.Price,
			ProductName:    line.Product.Name,
			VariantColor:   line.Variant.Color,
			VariantStorage: line.Variant.Storage,
		}
		order.TotalPrice += item.LineTotal()
		order.Items = append(order.Items, item)
	}
	span.SetAttributes(attribute.Int("order.items", len(order.Items)), attribute.Int64("order.total", order.TotalPrice))

	// Order and items are one aggregate and are written together.
	if err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(order).Error
	}); err != nil {
		if idempotencyKey != "" && isDuplicate(err) {
			prev, ferr := s.findByIdempotencyKey(ctx, userID, idempotencyKey)
			if ferr == nil {
				return prev, true, nil
			}
		}
		return nil, false, fmt.Errorf("create order: %w", err)
	}

	reserveErr := s.reserveStock(ctx, order)
	s.stockChanged(ctx, order.Items)
	if reserveErr != nil {
		return nil, false, reserveErr
	}

	if err := db.Where("cart_id = ?", cart.ID).Delete(&models.CartItem{}).Error; err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Str("cart_id", cart.ID.String()).Msg("failed to clear cart after checkout")
	}

	metrics.OrdersCreated.Inc()
	s.record(ctx, audit.ActionOrderCreated, order.ID, userID, map[string]any{
		"total_price": order.TotalPrice,
		"items":       len(order.Items),
	})

	var user models.User
	if err := db.First(&user, "id = ?", userID).Error; err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("order owner not loaded for notification")
	}
	s.Notify.Dispatch(NotifyOrderConfirmed, buildOrderNotification(order, &user))

	log.Info().Str("order_id", order.ID.String()).Str("user_id", userID.String()).Int64("total", order.TotalPrice).Msg("order created")
	return order, false, nil
}

func validateCheckoutLines(lines []models.CartItem) []string {
	var problems []string
	for i, line := range lines {
		label := fmt.Sprintf("item %d", i+1)
		switch {
		case line.Product == nil:
			problems = append(problems, label+": product no longer exists")
			continue
		case !line.Product.IsActive:
			problems = append(problems, fmt.Sprintf("%s: %s is no longer available", label, line.Product.Name))
			continue
		}
		name := line.Product.Name
		switch {
		case line.Variant == nil:
			problems = append(problems, fmt.Sprintf("%s: selected option of %s no longer exists", label, name))
		case line.Variant.ProductID != line.ProductID:
			problems = append(problems, fmt.Sprintf("%s: selected option does not belong to %s", label, name))
		case !line.Variant.IsActive:
			problems = append(problems, fmt.Sprintf("%s: %s %s is no longer available", label, name, variantLabel(*line.Variant)))
		case line.Variant.Stock < line.Quantity:
			problems = append(problems, fmt.Sprintf("%s: only %d of %s %s left, %d requested",
				label, line.Variant.Stock, name, variantLabel(*line.Variant), line.Quantity))
		}
	}
	return problems
}

func variantLabel(v models.ProductVariant) string {
	parts := make([]string, 0, 2)
	if v.Color != "" {
		parts = append(parts, v.Color)
	}
	if v.Storage != "" {
		parts = append(parts, v.Storage)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// reserveStock decrements stock for every order line. If any line cannot be
// reserved, earlier reservations are released and the order is removed.
func (s *OrderService) reserveStock(ctx context.Context, order *models.Order) error {
	db := s.DB.WithContext(ctx)
	for i, item := range order.Items {
		res := db.Model(&models.ProductVariant{}).
			Where("id = ? AND stock >= ?", item.VariantID, item.Quantity).
			Update("stock", gorm.Expr("stock - ?", item.Quantity))
		if res.Error == nil && res.RowsAffected == 1 {
			continue
		}

		s.rollbackOrder(ctx, order, order.Items[:i])
		if res.Error != nil {
			return fmt.Errorf("reserve stock: %w", res.Error)
		}
		metrics.CheckoutFailures.WithLabelValues("stock_race").Inc()
		return fmt.Errorf("%w: %s %s sold out while placing the order",
			ErrInsufficientStock, item.ProductName, strings.TrimSpace(item.VariantColor+" "+item.VariantStorage))
	}
	return nil
}

// rollbackOrder releases reserved stock and deletes the order. It runs on a
// context detached from the request so a client disconnect cannot leave
// half-reserved stock behind.
func (s *OrderService) rollbackOrder(ctx context.Context, order *models.Order, reserved []models.OrderItem) {
	db := s.DB.WithContext(context.WithoutCancel(ctx))
	for _, item := range reserved {
		if err := db.Model(&models.ProductVariant{}).Where("id = ?", item.VariantID).
			Update("stock", gorm.Expr("stock + ?", item.Quantity)).Error; err != nil {
			log.Error().Err(err).Str("variant_id", item.VariantID.String()).Int("qty", item.Quantity).Msg("failed to release reserved stock")
		}
	}
	if err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Order{}, "id = ?", order.ID).Error
	}); err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to remove order after stock reservation failure")
	}
}

func (s *OrderService) findByIdempotencyKey(ctx context.Context, userID uuid.UUID, key string) (*models.Order, error) {
	var order models.Order
	err := s.DB.WithContext(ctx).Preload("Items").
		First(&order, "user_id = ? AND idempotency_key = ?", userID, key).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// CancelOrder cancels the caller's own order and restores stock.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.cancel(ctx, Actor{UserID: userID, Role: models.RoleUser}, orderID, reason, "customer")
}

// AdminCancelOrder cancels any order and restores stock.
func (s *OrderService) AdminCancelOrder(ctx context.Context, adminID, orderID uuid.UUID, reason string) (*models.Order, error) {
	return s.cancel(ctx, Actor{UserID: adminID, Role: models.RoleAdmin}, orderID, reason, "admin")
}

func (s *OrderService) cancel(ctx context.Context, actor Actor, orderID uuid.UUID, reason, by string) (_ *models.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CancelOrder",
		trace.WithAttributes(attribute.String("order.id", orderID.String()), attribute.String("canceled.by", by)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	db := s.DB.WithContext(ctx)

	var order models.Order
	if err := db.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		return nil, lookupErr(err, "order")
	}
	if !actor.IsAdmin() && order.UserID != actor.UserID {
		return nil, ErrForbidden
	}
	if !Cancelable(order.Status) {
		return nil, ErrNotCancelable
	}

	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) > maxCancelReason {
		reason = string([]rune(reason)[:maxCancelReason])
	}
	now := time.Now().UTC()

	// The conditional flip makes concurrent cancels restore stock only once.
	res := db.Model(&models.Order{}).
		Where("id = ? AND status IN ?", order.ID, cancelableStatuses).
		Updates(map[string]any{
			"status":        models.OrderStatusCanceled,
			"cancel_reason": reason,
			"canceled_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotCancelable
	}

	restoreDB := s.DB.WithContext(context.WithoutCancel(ctx))
	for _, item := range order.Items {
		r := restoreDB.Model(&models.ProductVariant{}).Where("id = ?", item.VariantID).
			Update("stock", gorm.Expr("stock + ?", item.Quantity))
		switch {
		case r.Error != nil:
			log.Error().Err(r.Error).Str("order_id", order.ID.String()).Str("variant_id", item.VariantID.String()).Msg("failed to restore stock")
		case r.RowsAffected == 0:
			log.Warn().Str("order_id", order.ID.String()).Str("variant_id", item.VariantID.String()).Msg("variant gone, stock not restored")
		}
	}

	s.stockChanged(ctx, order.Items)

	metrics.OrdersCanceled.WithLabelValues(by).Inc()
	s.record(ctx, audit.ActionOrderCanceled, order.ID, actor.UserID, map[string]any{
		"from":   order.Status,
		"reason": reason,
		"by":     by,
	})

	order.Status = models.OrderStatusCanceled
	order.CancelReason = reason
	order.CanceledAt = &now
	return &order, nil
}

// UpdateOrderStatus moves an order forward along pending, confirmed, shipping
// and completed. Completed and canceled orders are frozen. Canceled goes
// through the cancel path so stock is restored. Entering completed sends the
// completion notification.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, adminID, orderID uuid.UUID, status string) (*models.Order, error) {
	status = strings.ToLower(strings.TrimSpace(status))
	if !ValidOrderStatus(status) {
		return nil, ErrInvalidStatus
	}

	db := s.DB.WithContext(ctx)
	var order models.Order
	if err := db.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		return nil, lookupErr(err, "order")
	}
	if Final(order.Status) {
		return nil, ErrOrderNotEditable
	}
	if status == models.OrderStatusCanceled {
		return s.cancel(ctx, Actor{UserID: adminID, Role: models.RoleAdmin}, order.ID, "", "admin")
	}
	if statusStep[status] < statusStep[order.Status] {
		return nil, ErrStatusRegression
	}

	res := db.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, order.Status).
		Update("status", status)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Changed underneath us; the caller should reload.
		return nil, ErrOrderNotEditable
	}

	prev := order.Status
	order.Status = status
	s.record(ctx, audit.ActionStatusChanged, order.ID, adminID, map[string]any{"from": prev, "to": status})

	if status == models.OrderStatusCompleted && prev != models.OrderStatusCompleted {
		var user models.User
		if err := db.First(&user, "id = ?", order.UserID).Error; err != nil {
			log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("order owner not loaded for notification")
		}
		s.Notify.Dispatch(NotifyOrderCompleted, buildOrderNotification(&order, &user))
	}
	return &order, nil
}

// UpdatePaymentStatus sets unpaid, paid or refunded.
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, adminID, orderID uuid.UUID, paymentStatus string) (*models.Order, error) {
	paymentStatus = strings.ToLower(strings.TrimSpace(paymentStatus))
	if !ValidPaymentStatus(paymentStatus) {
		return nil, ErrInvalidPayment
	}
	order, err := s.updateField(ctx, orderID, "payment_status", paymentStatus)
	if err != nil {
		return nil, err
	}
	prev := order.PaymentStatus
	order.PaymentStatus = paymentStatus
	s.record(ctx, audit.ActionPaymentChanged, order.ID, adminID, map[string]any{"from": prev, "to": paymentStatus})
	return order, nil
}

// UpdateTrackingCode stores the carrier tracking code.
func (s *OrderService) UpdateTrackingCode(ctx context.Context, adminID, orderID uuid.UUID, code string) (*models.Order, error) {
	code = strings.TrimSpace(code)
	order, err := s.updateField(ctx, orderID, "tracking_code", code)
	if err != nil {
		return nil, err
	}
	order.TrackingCode = code
	s.record(ctx, audit.ActionTrackingSet, order.ID, adminID, map[string]any{"tracking_code": code})
	return order, nil
}

func (s *OrderService) updateField(ctx context.Context, orderID uuid.UUID, column string, value any) (*models.Order, error) {
	db := s.DB.WithContext(ctx)
	var order models.Order
	if err := db.Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		return nil, lookupErr(err, "order")
	}
	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Update(column, value).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrder returns an order with its items to its owner or an admin.
func (s *OrderService) GetOrder(ctx context.Context, actor Actor, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := s.DB.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		return nil, lookupErr(err, "order")
	}
	if order.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, ErrForbidden
	}
	return &order, nil
}

// ListUserOrders lists the orders of one user.
func (s *OrderService) ListUserOrders(ctx context.Context, userID uuid.UUID, q OrderQuery) (utils.Page[models.Order], error) {
	q.UserID = &userID
	q.Search = ""
	return s.list(ctx, q, false)
}

// ListAllOrders lists every order with the owning user attached.
func (s *OrderService) ListAllOrders(ctx context.Context, q OrderQuery) (utils.Page[models.Order], error) {
	return s.list(ctx, q, true)
}

func (s *OrderService) list(ctx context.Context, q OrderQuery, withUser bool) (utils.Page[models.Order], error) {
	order, ok := orderSorts[q.Sort]
	if !ok {
		return utils.Page[models.Order]{}, invalid("unknown sort %q", q.Sort)
	}

	query := s.DB.WithContext(ctx).Model(&models.Order{})
	if q.UserID != nil {
		query = query.Where("user_id = ?", *q.UserID)
	}
	if q.Status != "" {
		if !ValidOrderStatus(q.Status) {
			return utils.Page[models.Order]{}, ErrInvalidStatus
		}
		query = query.Where("status = ?", q.Status)
	}
	if q.PaymentStatus != "" {
		if !ValidPaymentStatus(q.PaymentStatus) {
			return utils.Page[models.Order]{}, ErrInvalidPayment
		}
		query = query.Where("payment_status = ?", q.PaymentStatus)
	}
	if search := strings.ToLower(strings.TrimSpace(q.Search)); search != "" {
		like := "%" + search + "%"
		query = query.Where("LOWER(customer_name) LIKE ? OR LOWER(phone) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return utils.Page[models.Order]{}, err
	}

	find := query.Preload("Items")
	if withUser {
		find = find.Preload("User")
	}
	var orders []models.Order
	if err := find.Order(order).Limit(q.Page.Limit).Offset(q.Page.Offset).Find(&orders).Error; err != nil {
		return utils.Page[models.Order]{}, err
	}
	return utils.NewPage(orders, total, q.Page), nil
}

// History returns the audit trail of an order, newest first.
func (s *OrderService) History(ctx context.Context, orderID uuid.UUID, limit int64) ([]audit.Entry, error) {
	var count int64
	if err := s.DB.WithContext(ctx).Model(&models.Order{}).Where("id = ?", orderID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, notFound("order")
	}
	return s.Audit.List(ctx, orderID.String(), limit)
}

func (s *OrderService) stockChanged(ctx context.Context, items []models.OrderItem) {
	if s.Products == nil {
		return
	}
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ProductID)
	}
	s.Products.InvalidateProducts(context.WithoutCancel(ctx), ids...)
}

func (s *OrderService) record(ctx context.Context, action string, orderID, actorID uuid.UUID, data map[string]any) {
	err := s.Audit.Record(context.WithoutCancel(ctx), audit.Entry{
		Action:   action,
		EntityID: orderID.String(),
		ActorID:  actorID.String(),
		Data:     data,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn().Err(err).Str("order_id", orderID.String()).Str("action", action).Msg("audit record failed")
	}
}
