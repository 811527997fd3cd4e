package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Métodos de pago aceptados en caja.
const (
	PaymentMethodCash     = "cash"
	PaymentMethodCard     = "card"
	PaymentMethodTransfer = "transfer"
)

// ValidPaymentMethod valida el método contra la lista aceptada.
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodCash, PaymentMethodCard, PaymentMethodTransfer:
		return true
	}
	return false
}

// PaymentTransaction es un pago registrado en el ledger del HIS. Inmutable una
// vez creado; una factura puede acumular varios (pagos parciales, o el saldo de
// otra factura canalizado por esta visita).
type PaymentTransaction struct {
	ID            string
	InvoiceID     string
	Amount        decimal.Decimal
	PaymentMethod string
	PaymentNotes  string
	HoldReason    string // solo pagos parciales
	DueDate       *time.Time
	ReceivedBy    string
	CreatedAt     time.Time
}
