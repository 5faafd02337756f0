package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/phonestore/internal/metrics"
	"github.com/example/phonestore/internal/models"
)

// Notification kinds.
const (
	NotifyOrderConfirmed = "order_confirmed"
	NotifyOrderCompleted = "order_completed"
)

// OrderNotification is the payload handed to notifiers. It is built before
// dispatch so notifiers never read the database.
type OrderNotification struct {
	OrderID         string
	UserEmail       string
	UserName        string
	CustomerName    string
	Phone           string
	ShippingAddress string
	PaymentMethod   string
	Status          string
	TotalPrice      int64
	Items           []OrderItemNotification
}

// OrderItemNotification describes one purchased line.
type OrderItemNotification struct {
	Name     string
	Color    string
	Storage  string
	Quantity int
	Price    int64
}

// Notifier delivers order notifications to customers or staff.
type Notifier interface {
	OrderConfirmed(ctx context.Context, n OrderNotification) error
	OrderCompleted(ctx context.Context, n OrderNotification) error
}

// LogNotifier only records that a notification would have been sent.
type LogNotifier struct{}

func (LogNotifier) OrderConfirmed(_ context.Context, n OrderNotification) error {
	log.Info().Str("order_id", n.OrderID).Str("to", n.UserEmail).Int64("total", n.TotalPrice).Msg("order confirmation")
	return nil
}

func (LogNotifier) OrderCompleted(_ context.Context, n OrderNotification) error {
	log.Info().Str("order_id", n.OrderID).Str("to", n.UserEmail).Msg("order completed")
	return nil
}

// MultiNotifier fans a notification out to every member; the first error is
// returned after all members ran.
type MultiNotifier []Notifier

func (m MultiNotifier) OrderConfirmed(ctx context.Context, n OrderNotification) error {
	var first error
	for _, x := range m {
		if err := x.OrderConfirmed(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m MultiNotifier) OrderCompleted(ctx context.Context, n OrderNotification) error {
	var first error
	for _, x := range m {
		if err := x.OrderCompleted(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Dispatcher sends notifications on background goroutines. Failures are
// logged and counted, never returned to the request that triggered them.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	wg       sync.WaitGroup
}

// NewDispatcher wraps n. A nil notifier falls back to LogNotifier.
func NewDispatcher(n Notifier, timeout time.Duration) *Dispatcher {
	if n == nil {
		n = LogNotifier{}
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Dispatcher{notifier: n, timeout: timeout}
}

// Dispatch sends the notification of the given kind without blocking.
func (d *Dispatcher) Dispatch(kind string, n OrderNotification) {
	if d == nil {
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("kind", kind).Str("order_id", n.OrderID).Msg("notifier panicked")
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		log.Debug().Str("kind", kind).Str("order_id", n.OrderID).Msg("dispatching notification")
		var err error
		switch kind {
		case NotifyOrderConfirmed:
			err = d.notifier.OrderConfirmed(ctx, n)
		case NotifyOrderCompleted:
			err = d.notifier.OrderCompleted(ctx, n)
		default:
			log.Warn().Str("kind", kind).Msg("unknown notification kind")
			return
		}
		if err != nil {
			metrics.NotificationsFailed.WithLabelValues(kind).Inc()
			log.Error().Err(err).Str("kind", kind).Str("order_id", n.OrderID).Msg("notification failed")
		}
	}()
}

// Wait blocks until every dispatched notification finished.
func (d *Dispatcher) Wait() {
	if d != nil {
		d.wg.Wait()
	}
}

func buildOrderNotification(order *models.Order, user *models.User) OrderNotification {
	n := OrderNotification{
		OrderID:         order.ID.String(),
		CustomerName:    order.CustomerName,
		Phone:           order.Phone,
		ShippingAddress: order.ShippingAddress,
		PaymentMethod:   order.PaymentMethod,
		Status:          order.Status,
		TotalPrice:      order.TotalPrice,
		Items:           make([]OrderItemNotification, 0, len(order.Items)),
	}
	if user != nil {
		n.UserEmail = user.Email
		n.UserName = user.FullName()
	}
	for _, it := range order.Items {
		n.Items = append(n.Items, OrderItemNotification{
			Name:     it.ProductName,
			Color:    it.VariantColor,
			Storage:  it.VariantStorage,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}
	return n
}
