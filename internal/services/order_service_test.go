package services

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/phonestore/internal/audit"
	"github.com/example/phonestore/internal/models"
	"github.com/example/phonestore/internal/utils"
)

func TestCreateOrderDecrementsStockAndClearsCart(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	c := f.category("Phones")
	p := f.product(c.ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)

	order := f.checkout(u.ID, v, 2)
	f.notify.Wait()

	assert.Equal(t, int64(2000), order.TotalPrice)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusUnpaid, order.PaymentStatus)
	assert.Equal(t, PaymentCOD, order.PaymentMethod)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Pixel", order.Items[0].ProductName)
	assert.Equal(t, "Black", order.Items[0].VariantColor)
	assert.Equal(t, int64(1000), order.Items[0].Price)

	assert.Equal(t, 3, f.stockOf(v.ID))

	cart, err := f.carts.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, cart.Items)

	confirmed, _ := f.notes.counts()
	assert.Equal(t, 1, confirmed)

	entries, err := f.audit.List(f.ctx, order.ID.String(), 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, audit.ActionOrderCreated, entries[0].Action)
}

func TestCreateOrderSnapshotSurvivesCatalogEdits(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)

	order := f.checkout(u.ID, v, 1)
	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", p.ID).Update("name", "Pixel Pro").Error)
	require.NoError(t, f.db.Model(&models.ProductVariant{}).Where("id = ?", v.ID).Update("price", 9999).Error)

	got, err := f.orders.GetOrder(f.ctx, Actor{UserID: u.ID}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pixel", got.Items[0].ProductName)
	assert.Equal(t, int64(1000), got.Items[0].Price)
}

func TestCreateOrderEmptyCart(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")

	_, _, err := f.orders.CreateOrder(f.ctx, u.ID, testShipping, "")
	assert.ErrorIs(t, err, ErrEmptyCart)
	assert.ErrorIs(t, err, ErrValidation)

	// An existing but empty cart is still empty.
	_, err = f.carts.GetCart(f.ctx, u.ID)
	require.NoError(t, err)
	_, _, err = f.orders.CreateOrder(f.ctx, u.ID, testShipping, "")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreateOrderRequiresShippingFields(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")

	_, _, err := f.orders.CreateOrder(f.ctx, u.ID, ShippingInfo{CustomerName: "A"}, "")
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "phone")
	assert.Contains(t, err.Error(), "shipping_address")

	info := testShipping
	info.PaymentMethod = "bitcoin"
	_, _, err = f.orders.CreateOrder(f.ctx, u.ID, info, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreateOrderValidationListsEveryProblem(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	c := f.category("Phones")
	pa := f.product(c.ID, "Alpha", true)
	va := f.variant(pa.ID, "Red", 1000, 5)
	pb := f.product(c.ID, "Beta", true)
	vb := f.variant(pb.ID, "Blue", 2000, 5)

	_, err := f.carts.AddItem(f.ctx, u.ID, pa.ID, va.ID, 1)
	require.NoError(t, err)
	_, err = f.carts.AddItem(f.ctx, u.ID, pb.ID, vb.ID, 3)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.Product{}).Where("id = ?", pa.ID).Update("is_active", false).Error)
	require.NoError(t, f.db.Model(&models.ProductVariant{}).Where("id = ?", vb.ID).Update("stock", 1).Error)

	_, _, err = f.orders.CreateOrder(f.ctx, u.ID, testShipping, "")
	var verr *OrderValidationError
	require.True(t, errors.As(err, &verr))
	assert.ErrorIs(t, err, ErrValidation)
	require.Len(t, verr.Problems, 2)
	assert.Contains(t, verr.Problems[0], "Alpha")
	assert.Contains(t, verr.Problems[1], "only 1")

	assert.Equal(t, int64(0), f.count(&models.Order{}, ""))
	assert.Equal(t, 5, f.stockOf(va.ID))
	assert.Equal(t, 1, f.stockOf(vb.ID))
	assert.Equal(t, int64(2), f.count(&models.CartItem{}, ""))
}

func TestCreateOrderIdempotencyKeyReplays(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)

	_, err := f.carts.AddItem(f.ctx, u.ID, p.ID, v.ID, 2)
	require.NoError(t, err)

	first, replayed, err := f.orders.CreateOrder(f.ctx, u.ID, testShipping, "key-1")
	require.NoError(t, err)
	assert.False(t, replayed)

	second, replayed, err := f.orders.CreateOrder(f.ctx, u.ID, testShipping, "key-1")
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.Items, 1)

	assert.Equal(t, 3, f.stockOf(v.ID))
	assert.Equal(t, int64(1), f.count(&models.Order{}, ""))
	f.notify.Wait()
}

func TestReserveStockReleasesEarlierLinesOnShortage(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	c := f.category("Phones")
	pa := f.product(c.ID, "Alpha", true)
	va := f.variant(pa.ID, "Red", 1000, 5)
	pb := f.product(c.ID, "Beta", true)
	vb := f.variant(pb.ID, "Blue", 2000, 2)

	// Stock was validated earlier but another checkout drained vb since.
	order := &models.Order{
		UserID: u.ID, CustomerName: "A", Phone: "1", ShippingAddress: "x",
		PaymentMethod: PaymentCOD, Status: models.OrderStatusPending, PaymentStatus: models.PaymentStatusUnpaid,
		Items: []models.OrderItem{
			{ProductID: pa.ID, VariantID: va.ID, Quantity: 2, Price: 1000, ProductName: "Alpha"},
			{ProductID: pb.ID, VariantID: vb.ID, Quantity: 3, Price: 2000, ProductName: "Beta"},
		},
	}
	require.NoError(t, f.db.Create(order).Error)

	err := f.orders.reserveStock(f.ctx, order)
	require.ErrorIs(t, err, ErrInsufficientStock)

	assert.Equal(t, 5, f.stockOf(va.ID))
	assert.Equal(t, 2, f.stockOf(vb.ID))
	assert.Equal(t, int64(0), f.count(&models.Order{}, ""))
	assert.Equal(t, int64(0), f.count(&models.OrderItem{}, ""))
}

func TestCancelOrderRestoresStock(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)

	order := f.checkout(u.ID, v, 2)
	require.Equal(t, 3, f.stockOf(v.ID))

	canceled, err := f.orders.CancelOrder(f.ctx, u.ID, order.ID, "  changed my mind ")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, canceled.Status)
	assert.Equal(t, "changed my mind", canceled.CancelReason)
	assert.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, 5, f.stockOf(v.ID))

	_, err = f.orders.CancelOrder(f.ctx, u.ID, order.ID, "")
	assert.ErrorIs(t, err, ErrNotCancelable)
	assert.Equal(t, 5, f.stockOf(v.ID))

	history, err := f.orders.History(f.ctx, order.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	f.notify.Wait()
}

func TestCancelOrderRejectedOutsidePendingAndConfirmed(t *testing.T) {
	for _, status := range []string{models.OrderStatusShipping, models.OrderStatusCompleted, models.OrderStatusCanceled} {
		t.Run(status, func(t *testing.T) {
			f := newFixture(t)
			u := f.user("buyer@example.com")
			p := f.product(f.category("Phones").ID, "Pixel", true)
			v := f.variant(p.ID, "Black", 1000, 5)

			order := f.checkout(u.ID, v, 2)
			f.setStatus(order.ID, status)

			_, err := f.orders.CancelOrder(f.ctx, u.ID, order.ID, "")
			assert.ErrorIs(t, err, ErrNotCancelable)
			assert.ErrorIs(t, err, ErrConflict)
			assert.Equal(t, 3, f.stockOf(v.ID))
			f.notify.Wait()
		})
	}
}

func TestCancelOrderOwnership(t *testing.T) {
	f := newFixture(t)
	owner := f.user("owner@example.com")
	other := f.user("other@example.com")
	admin := f.user("admin@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)

	order := f.checkout(owner.ID, v, 1)

	_, err := f.orders.CancelOrder(f.ctx, other.ID, order.ID, "")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.orders.GetOrder(f.ctx, Actor{UserID: other.ID, Role: models.RoleUser}, order.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	canceled, err := f.orders.AdminCancelOrder(f.ctx, admin.ID, order.ID, "fraud")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, canceled.Status)
	assert.Equal(t, 5, f.stockOf(v.ID))
	f.notify.Wait()
}

func TestUpdateOrderStatus(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	admin := f.user("admin@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 1)

	_, err := f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, "lost")
	assert.ErrorIs(t, err, ErrInvalidStatus)

	updated, err := f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, "Completed")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCompleted, updated.Status)
	f.notify.Wait()
	confirmed, completed := f.notes.counts()
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, 1, completed)

	for _, next := range []string{models.OrderStatusCanceled, models.OrderStatusPending, models.OrderStatusShipping} {
		_, err = f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, next)
		assert.ErrorIs(t, err, ErrOrderNotEditable, next)
	}
	assert.Equal(t, 4, f.stockOf(v.ID))

	entries, err := f.orders.History(f.ctx, order.ID, 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestUpdateOrderStatusOnlyMovesForward(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	admin := f.user("admin@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 2)

	_, err := f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, models.OrderStatusShipping)
	require.NoError(t, err)

	_, err = f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, models.OrderStatusPending)
	assert.ErrorIs(t, err, ErrStatusRegression)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, models.OrderStatusCanceled)
	assert.ErrorIs(t, err, ErrNotCancelable)

	_, err = f.orders.CancelOrder(f.ctx, u.ID, order.ID, "changed my mind")
	assert.ErrorIs(t, err, ErrNotCancelable)
	assert.Equal(t, 3, f.stockOf(v.ID))

	var got models.Order
	require.NoError(t, f.db.First(&got, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusShipping, got.Status)
}

func TestUpdateOrderStatusCancelRestoresStock(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	admin := f.user("admin@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 2)
	require.Equal(t, 3, f.stockOf(v.ID))

	_, err := f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, models.OrderStatusConfirmed)
	require.NoError(t, err)

	canceled, err := f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, models.OrderStatusCanceled)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusCanceled, canceled.Status)
	assert.NotNil(t, canceled.CanceledAt)
	assert.Equal(t, 5, f.stockOf(v.ID))

	_, err = f.orders.UpdateOrderStatus(f.ctx, admin.ID, order.ID, models.OrderStatusConfirmed)
	assert.ErrorIs(t, err, ErrOrderNotEditable)
	assert.Equal(t, 5, f.stockOf(v.ID))
}

func TestUpdatePaymentAndTracking(t *testing.T) {
	f := newFixture(t)
	u := f.user("buyer@example.com")
	admin := f.user("admin@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 5)
	order := f.checkout(u.ID, v, 1)

	_, err := f.orders.UpdatePaymentStatus(f.ctx, admin.ID, order.ID, "maybe")
	assert.ErrorIs(t, err, ErrInvalidPayment)

	paid, err := f.orders.UpdatePaymentStatus(f.ctx, admin.ID, order.ID, models.PaymentStatusPaid)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, paid.PaymentStatus)

	tracked, err := f.orders.UpdateTrackingCode(f.ctx, admin.ID, order.ID, " VN123 ")
	require.NoError(t, err)
	assert.Equal(t, "VN123", tracked.TrackingCode)

	got, err := f.orders.GetOrder(f.ctx, Actor{UserID: admin.ID, Role: models.RoleAdmin}, order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPaid, got.PaymentStatus)
	assert.Equal(t, "VN123", got.TrackingCode)
	f.notify.Wait()
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	a := f.user("a@example.com")
	b := f.user("b@example.com")
	p := f.product(f.category("Phones").ID, "Pixel", true)
	v := f.variant(p.ID, "Black", 1000, 10)

	f.checkout(a.ID, v, 1)
	second := f.checkout(a.ID, v, 2)
	f.checkout(b.ID, v, 3)
	f.setStatus(second.ID, models.OrderStatusShipping)
	f.notify.Wait()

	mine, err := f.orders.ListUserOrders(f.ctx, a.ID, OrderQuery{Page: utils.NewPagination(1, 10)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), mine.Total)

	shipping, err := f.orders.ListUserOrders(f.ctx, a.ID, OrderQuery{Status: models.OrderStatusShipping, Page: utils.NewPagination(1, 10)})
	require.NoError(t, err)
	require.Len(t, shipping.Items, 1)
	assert.Equal(t, second.ID, shipping.Items[0].ID)

	all, err := f.orders.ListAllOrders(f.ctx, OrderQuery{Sort: "total_desc", Page: utils.NewPagination(1, 2)})
	require.NoError(t, err)
	assert.Equal(t, int64(3), all.Total)
	assert.Equal(t, 2, all.TotalPages())
	require.Len(t, all.Items, 2)
	assert.Equal(t, int64(3000), all.Items[0].TotalPrice)
	require.NotNil(t, all.Items[0].User)
	assert.Equal(t, "b@example.com", all.Items[0].User.Email)

	_, err = f.orders.ListAllOrders(f.ctx, OrderQuery{Sort: "random", Page: utils.NewPagination(1, 2)})
	assert.ErrorIs(t, err, ErrValidation)
}
