// Package clinicapi implementa el puerto ClinicGateway sobre la API REST del
// backend clínico (HIS), dueño de facturas, ledger de pagos y visitas. Este
// servicio nunca persiste facturas por su cuenta: lee, muta con versión
// esperada y acata lo que el HIS devuelve.
package clinicapi

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// ── Documentos de cable ───────────────────────────────────────────────────────

type invoiceItemDoc struct {
	ID         string          `json:"id"`
	ItemType   string          `json:"item_type"`
	ItemName   string          `json:"item_name"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Notes      string          `json:"notes"`
}

type invoiceDoc struct {
	ID                        string           `json:"id"`
	Number                    string           `json:"number"`
	PatientID                 string           `json:"patient_id"`
	VisitID                   string           `json:"visit_id"`
	Status                    string           `json:"status"`
	Version                   int64            `json:"version"`
	TotalAmount               decimal.Decimal  `json:"total_amount"`
	BalanceDue                decimal.Decimal  `json:"balance_due"`
	DiscountPercentage        decimal.Decimal  `json:"discount_percentage"`
	DiscountAmount            decimal.Decimal  `json:"discount_amount"`
	IncludeOutstandingBalance bool             `json:"include_outstanding_balance"`
	Items                     []invoiceItemDoc `json:"items"`
	CreatedAt                 time.Time        `json:"created_at"`
	UpdatedAt                 time.Time        `json:"updated_at"`
}

type paymentDoc struct {
	ID            string          `json:"id"`
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentNotes  string          `json:"payment_notes"`
	HoldReason    string          `json:"hold_reason"`
	DueDate       *time.Time      `json:"due_date"`
	ReceivedBy    string          `json:"received_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

type outstandingDoc struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	Status     string          `json:"status"`
	Version    int64           `json:"version"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	CreatedAt  time.Time       `json:"created_at"`
}

// invoiceEnvelope es la respuesta estándar del HIS para operaciones de
// factura: el documento completo con su versión nueva.
type invoiceEnvelope struct {
	Invoice invoiceDoc `json:"invoice"`
}

// paymentEnvelope respuesta de los endpoints de pago: factura actualizada más
// la transacción registrada.
type paymentEnvelope struct {
	Invoice invoiceDoc  `json:"invoice"`
	Payment *paymentDoc `json:"payment"`
}

type outstandingEnvelope struct {
	Invoices []outstandingDoc `json:"invoices"`
}

// errorDoc cuerpo de error del HIS. En rechazos por versión (409) trae las
// versiones en juego.
type errorDoc struct {
	Code            string `json:"code"`
	Message         string `json:"message"`
	CurrentVersion  int64  `json:"current_version"`
	ExpectedVersion int64  `json:"expected_version"`
}

// ── Mapeo a entidades ─────────────────────────────────────────────────────────

func (d invoiceDoc) toEntity() *entity.Invoice {
	inv := &entity.Invoice{
		ID:                        d.ID,
		Number:                    d.Number,
		PatientID:                 d.PatientID,
		VisitID:                   d.VisitID,
		Status:                    d.Status,
		Version:                   d.Version,
		TotalAmount:               d.TotalAmount,
		BalanceDue:                d.BalanceDue,
		DiscountPercentage:        d.DiscountPercentage,
		DiscountAmount:            d.DiscountAmount,
		IncludeOutstandingBalance: d.IncludeOutstandingBalance,
		CreatedAt:                 d.CreatedAt,
		UpdatedAt:                 d.UpdatedAt,
	}
	for _, it := range d.Items {
		inv.Items = append(inv.Items, entity.InvoiceItem{
			ID:         it.ID,
			ItemType:   it.ItemType,
			ItemName:   it.ItemName,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
			Notes:      it.Notes,
		})
	}
	return inv
}

func (d paymentDoc) toEntity() *entity.PaymentTransaction {
	return &entity.PaymentTransaction{
		ID:            d.ID,
		InvoiceID:     d.InvoiceID,
		Amount:        d.Amount,
		PaymentMethod: d.PaymentMethod,
		PaymentNotes:  d.PaymentNotes,
		HoldReason:    d.HoldReason,
		DueDate:       d.DueDate,
		ReceivedBy:    d.ReceivedBy,
		CreatedAt:     d.CreatedAt,
	}
}

func (d outstandingDoc) toEntity() entity.OutstandingInvoice {
	return entity.OutstandingInvoice{
		ID:         d.ID,
		Number:     d.Number,
		Status:     d.Status,
		Version:    d.Version,
		BalanceDue: d.BalanceDue,
		CreatedAt:  d.CreatedAt,
	}
}

// ── Cuerpos de petición ───────────────────────────────────────────────────────

type itemBody struct {
	ItemType        string          `json:"item_type"`
	ItemName        string          `json:"item_name,omitempty"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	TotalPrice      decimal.Decimal `json:"total_price"`
	Notes           string          `json:"notes,omitempty"`
	ExpectedVersion int64           `json:"expected_version"`
}

type discountBody struct {
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	ExpectedVersion    int64           `json:"expected_version"`
}

type outstandingFlagBody struct {
	IncludeOutstandingBalance bool  `json:"include_outstanding_balance"`
	ExpectedVersion           int64 `json:"expected_version"`
}

type partialPaymentBody struct {
	Amount          decimal.Decimal `json:"amount"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentNotes    string          `json:"payment_notes,omitempty"`
	HoldReason      string          `json:"hold_reason"`
	DueDate         *time.Time      `json:"due_date,omitempty"`
	ReceivedBy      string          `json:"received_by"`
	ExpectedVersion int64           `json:"expected_version"`
}

type fullPaymentBody struct {
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentNotes    string          `json:"payment_notes,omitempty"`
	ReceivedBy      string          `json:"received_by"`
	ExpectedVersion int64           `json:"expected_version"`
}

type completeBody struct {
	CompletedBy     string `json:"completed_by"`
	ExpectedVersion int64  `json:"expected_version"`
}
