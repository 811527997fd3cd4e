package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutstandingInvoice es una factura impaga del paciente distinta de la que se
// está procesando, con su propio token de versión y saldo.
type OutstandingInvoice struct {
	ID         string
	Number     string
	Status     string
	Version    int64
	BalanceDue decimal.Decimal
	CreatedAt  time.Time
}

// OutstandingBalanceSet es el conjunto derivado (no persistido) de facturas
// impagas del paciente, excluida la factura en curso.
type OutstandingBalanceSet struct {
	PatientID    string
	Invoices     []OutstandingInvoice
	TotalBalance decimal.Decimal
	InvoiceCount int
}

// LimitReached indica si aplica la política de tope: con 2 o más facturas
// impagas el pago parcial exige consolidar y se bloquea crear una tercera.
func (s *OutstandingBalanceSet) LimitReached() bool {
	return s != nil && s.InvoiceCount >= 2
}

// HasBalance indica si hay saldo pendiente mayor que cero por consolidar.
func (s *OutstandingBalanceSet) HasBalance() bool {
	return s != nil && s.TotalBalance.GreaterThan(decimal.Zero)
}

// Find busca una factura del conjunto por ID; nil si no está.
func (s *OutstandingBalanceSet) Find(invoiceID string) *OutstandingInvoice {
	if s == nil {
		return nil
	}
	for idx := range s.Invoices {
		if s.Invoices[idx].ID == invoiceID {
			return &s.Invoices[idx]
		}
	}
	return nil
}
