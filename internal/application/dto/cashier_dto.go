package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// InvoiceItemResponse línea de factura en la vista de caja.
type InvoiceItemResponse struct {
	ID         string          `json:"id"`
	ItemType   string          `json:"item_type"` // service|medicine
	ItemName   string          `json:"item_name"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Notes      string          `json:"notes,omitempty"`
}

// InvoiceResponse snapshot de factura para GET /api/cashier/invoices/:id.
// Version es el token de concurrencia: toda mutación posterior debe enviarlo
// como expected_version.
type InvoiceResponse struct {
	ID                        string                `json:"id"`
	Number                    string                `json:"number"`
	PatientID                 string                `json:"patient_id"`
	VisitID                   string                `json:"visit_id,omitempty"`
	Status                    string                `json:"status"` // pending|partial_paid|paid
	Version                   int64                 `json:"version"`
	TotalAmount               decimal.Decimal       `json:"total_amount"`
	BalanceDue                decimal.Decimal       `json:"balance_due"`
	DiscountPercentage        decimal.Decimal       `json:"discount_percentage"`
	DiscountAmount            decimal.Decimal       `json:"discount_amount"`
	IncludeOutstandingBalance bool                  `json:"include_outstanding_balance"`
	Items                     []InvoiceItemResponse `json:"items"`
}

// TotalsResponse totales derivados (nunca persistidos por este servicio).
type TotalsResponse struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
}

// VersionConflictResponse detalle del conflicto en respuestas 409.
type VersionConflictResponse struct {
	InvoiceID       string `json:"invoice_id"`
	ExpectedVersion int64  `json:"expected_version"`
	ActualVersion   int64  `json:"actual_version"`
	OriginalVersion int64  `json:"original_version,omitempty"`
}

// MutationResponse resultado etiquetado de una mutación optimista. Si
// applied es false, invoice trae el estado fresco del servidor con el que el
// formulario debe re-sincronizarse y conflict el motivo.
type MutationResponse struct {
	Applied  bool                     `json:"applied"`
	Invoice  *InvoiceResponse         `json:"invoice"`
	Totals   *TotalsResponse          `json:"totals,omitempty"`
	Conflict *VersionConflictResponse `json:"conflict,omitempty"`
}

// ItemRequest body para crear/editar una línea.
type ItemRequest struct {
	ItemType        string          `json:"item_type"` // service|medicine
	ItemName        string          `json:"item_name"`
	Quantity        decimal.Decimal `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Notes           string          `json:"notes,omitempty"`
	ExpectedVersion int64           `json:"expected_version"`
}

// DiscountRequest body para PUT /api/cashier/invoices/:id/discount.
// Porcentaje y monto fijo son mutuamente excluyentes.
type DiscountRequest struct {
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	DiscountAmount     decimal.Decimal `json:"discount_amount"`
	ExpectedVersion    int64           `json:"expected_version"`
}

// OutstandingFlagRequest body para PUT /api/cashier/invoices/:id/outstanding-flag.
type OutstandingFlagRequest struct {
	IncludeOutstandingBalance bool  `json:"include_outstanding_balance"`
	ExpectedVersion           int64 `json:"expected_version"`
}

// OutstandingInvoiceResponse una factura impaga del conjunto pendiente.
type OutstandingInvoiceResponse struct {
	ID         string          `json:"id"`
	Number     string          `json:"number"`
	Status     string          `json:"status"`
	Version    int64           `json:"version"`
	BalanceDue decimal.Decimal `json:"balance_due"`
	CreatedAt  time.Time       `json:"created_at"`
}

// OutstandingResponse conjunto pendiente del paciente para
// GET /api/cashier/patients/:patientId/outstanding.
type OutstandingResponse struct {
	PatientID    string                       `json:"patient_id"`
	Invoices     []OutstandingInvoiceResponse `json:"invoices"`
	TotalBalance decimal.Decimal              `json:"total_balance"`
	InvoiceCount int                          `json:"invoice_count"`
	LimitReached bool                         `json:"limit_reached"`
}

// MedicineSelectionRequest decisión del cajero por línea de medicamento.
type MedicineSelectionRequest struct {
	ItemID       string          `json:"item_id"`
	Action       string          `json:"action"` // pending|dispense|write-out
	DispensedQty decimal.Decimal `json:"dispensed_qty,omitempty"`
}

// SettleRequest body para POST /api/cashier/invoices/:id/settle.
// BaseVersion es la versión con la que se abrió el diálogo de pago.
type SettleRequest struct {
	BaseVersion        int64                        `json:"base_version"`
	Selections         []MedicineSelectionRequest   `json:"selections,omitempty"`
	IncludeOutstanding bool                         `json:"include_outstanding"`
	Outstanding        []OutstandingInvoiceResponse `json:"outstanding,omitempty"` // snapshot visto por el cajero
	IsPartialPayment   bool                         `json:"is_partial_payment"`
	Amount             decimal.Decimal              `json:"amount,omitempty"`
	PaymentMethod      string                       `json:"payment_method"`
	PaymentNotes       string                       `json:"payment_notes,omitempty"`
	HoldReason         string                       `json:"hold_reason,omitempty"`
	DueDate            *time.Time                   `json:"due_date,omitempty"`
}

// PaymentResponse transacción de pago registrada.
type PaymentResponse struct {
	ID            string          `json:"id"`
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	PaymentNotes  string          `json:"payment_notes,omitempty"`
	HoldReason    string          `json:"hold_reason,omitempty"`
	ReceivedBy    string          `json:"received_by"`
	CreatedAt     time.Time       `json:"created_at"`
}

// SettleResponse resultado de una liquidación completada.
type SettleResponse struct {
	AttemptID       string            `json:"attempt_id"`
	Outcome         string            `json:"outcome"` // paid_full|paid_partial|zero_charge
	Invoice         *InvoiceResponse  `json:"invoice"`
	Payments        []PaymentResponse `json:"payments"`
	Totals          TotalsResponse    `json:"totals"`
	OutstandingPaid decimal.Decimal   `json:"outstanding_paid"`
}

// LocalReceiptRequest datos para emitir la copia interna de caja de un recibo.
// Si el HIS ya emitió el recibo oficial del pago, se devuelve ese; si no,
// se genera uno local con estos datos.
type LocalReceiptRequest struct {
	InvoiceID     string          `json:"invoice_id"`
	PaymentID     string          `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

// RecoveryMarkerResponse marcador de pago en vuelo.
type RecoveryMarkerResponse struct {
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Timestamp     time.Time       `json:"timestamp"`
}

// RecoveryCheckResponse resultado de GET /api/cashier/recovery.
type RecoveryCheckResponse struct {
	Status string                  `json:"status"` // none|succeeded|resolved_elsewhere|discarded|verify_manually
	Marker *RecoveryMarkerResponse `json:"marker,omitempty"`
}

// SettlementLegResponse pago de saldo pendiente aplicado dentro de un intento.
type SettlementLegResponse struct {
	InvoiceID  string          `json:"invoice_id"`
	Amount     decimal.Decimal `json:"amount"`
	PaymentID  string          `json:"payment_id,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// SettlementAttemptResponse intento de liquidación en el reporte de conciliación.
type SettlementAttemptResponse struct {
	ID              string                  `json:"id"`
	InvoiceID       string                  `json:"invoice_id"`
	InvoiceNumber   string                  `json:"invoice_number"`
	PatientID       string                  `json:"patient_id"`
	CashierID       string                  `json:"cashier_id"`
	Outcome         string                  `json:"outcome"`
	FailureReason   string                  `json:"failure_reason,omitempty"`
	OutstandingPaid decimal.Decimal         `json:"outstanding_paid"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      *time.Time              `json:"finished_at,omitempty"`
	Legs            []SettlementLegResponse `json:"legs"`
}

// ReconciliationResponse reporte de GET /api/cashier/reconciliation.
type ReconciliationResponse struct {
	Attempts      []SettlementAttemptResponse `json:"attempts"`
	TotalExposure decimal.Decimal             `json:"total_exposure"`
	Page          PageResponse                `json:"page"`
}
