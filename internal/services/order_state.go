package services

import (
	"github.com/google/uuid"

	"github.com/example/phonestore/internal/models"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == models.RoleAdmin }

var orderStatuses = map[string]bool{
	models.OrderStatusPending:   true,
	models.OrderStatusConfirmed: true,
	models.OrderStatusShipping:  true,
	models.OrderStatusCompleted: true,
	models.OrderStatusCanceled:  true,
}

var paymentStatuses = map[string]bool{
	models.PaymentStatusUnpaid:   true,
	models.PaymentStatusPaid:     true,
	models.PaymentStatusRefunded: true,
}

// cancelableStatuses are the states a customer may still cancel from.
var cancelableStatuses = []string{models.OrderStatusPending, models.OrderStatusConfirmed}

// statusStep orders the forward path. Canceled is reached only through cancel.
var statusStep = map[string]int{
	models.OrderStatusPending:   0,
	models.OrderStatusConfirmed: 1,
	models.OrderStatusShipping:  2,
	models.OrderStatusCompleted: 3,
}

// Final reports whether an order in status can no longer change.
func Final(status string) bool {
	return status == models.OrderStatusCompleted || status == models.OrderStatusCanceled
}

// ValidOrderStatus reports whether s is one of the five order states.
func ValidOrderStatus(s string) bool { return orderStatuses[s] }

// ValidPaymentStatus reports whether s is unpaid, paid or refunded.
func ValidPaymentStatus(s string) bool { return paymentStatuses[s] }

// Cancelable reports whether an order in status can be canceled.
// Shipping, completed and already canceled orders cannot.
func Cancelable(status string) bool {
	for _, s := range cancelableStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Payment methods accepted at checkout.
const (
	PaymentCOD          = "cod"
	PaymentBankTransfer = "bank_transfer"
	PaymentEWallet      = "e_wallet"
)

var paymentMethods = map[string]bool{
	PaymentCOD:          true,
	PaymentBankTransfer: true,
	PaymentEWallet:      true,
}
