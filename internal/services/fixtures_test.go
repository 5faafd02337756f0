package services

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/example/phonestore/internal/audit"
	"github.com/example/phonestore/internal/database/dbtest"
	"github.com/example/phonestore/internal/models"
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	db     *gorm.DB
	audit  *audit.Memory
	notes  *recordingNotifier
	notify *Dispatcher
	orders *OrderService
	carts  *CartService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	rec := &audit.Memory{}
	notes := &recordingNotifier{}
	notify := NewDispatcher(notes, 0)
	return &fixture{
		t:      t,
		ctx:    context.Background(),
		db:     db,
		audit:  rec,
		notes:  notes,
		notify: notify,
		orders: NewOrderService(db, notify, rec),
		carts:  NewCartService(db),
	}
}

func (f *fixture) user(email string) models.User {
	f.t.Helper()
	u := models.User{Email: email, PasswordHash: "x", FirstName: "Test", LastName: "User", Role: models.RoleUser}
	require.NoError(f.t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) category(name string) models.Category {
	f.t.Helper()
	c := models.Category{Name: name, Slug: Slugify(name)}
	require.NoError(f.t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) product(categoryID uuid.UUID, name string, active bool) models.Product {
	f.t.Helper()
	p := models.Product{Name: name, Description: name + " description", CategoryID: categoryID, IsActive: active}
	require.NoError(f.t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) variant(productID uuid.UUID, color string, price int64, stock int) models.ProductVariant {
	f.t.Helper()
	v := models.ProductVariant{ProductID: productID, Color: color, Storage: "128GB", Price: price, Stock: stock, IsActive: true}
	require.NoError(f.t, f.db.Create(&v).Error)
	return v
}

func (f *fixture) stockOf(variantID uuid.UUID) int {
	f.t.Helper()
	var v models.ProductVariant
	require.NoError(f.t, f.db.First(&v, "id = ?", variantID).Error)
	return v.Stock
}

func (f *fixture) count(model any, query string, args ...any) int64 {
	f.t.Helper()
	var n int64
	q := f.db.Model(model)
	if query != "" {
		q = q.Where(query, args...)
	}
	require.NoError(f.t, q.Count(&n).Error)
	return n
}

var testShipping = ShippingInfo{
	CustomerName:    "Nguyen Van A",
	Phone:           "0900000000",
	ShippingAddress: "1 Le Loi, District 1",
}

// checkout adds qty of v to the user's cart and places an order.
func (f *fixture) checkout(userID uuid.UUID, v models.ProductVariant, qty int) *models.Order {
	f.t.Helper()
	_, err := f.carts.AddItem(f.ctx, userID, v.ProductID, v.ID, qty)
	require.NoError(f.t, err)
	order, _, err := f.orders.CreateOrder(f.ctx, userID, testShipping, "")
	require.NoError(f.t, err)
	return order
}

func (f *fixture) setStatus(orderID uuid.UUID, status string) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&models.Order{}).Where("id = ?", orderID).Update("status", status).Error)
}

type recordingNotifier struct {
	mu        sync.Mutex
	confirmed []OrderNotification
	completed []OrderNotification
}

func (r *recordingNotifier) OrderConfirmed(_ context.Context, n OrderNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.confirmed = append(r.confirmed, n)
	return nil
}

func (r *recordingNotifier) OrderCompleted(_ context.Context, n OrderNotification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, n)
	return nil
}

func (r *recordingNotifier) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.confirmed), len(r.completed)
}
