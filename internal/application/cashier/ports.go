package cashier

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// ItemPayload es el cuerpo de creación/actualización de una línea de factura.
type ItemPayload struct {
	ItemType   string
	ItemName   string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	Notes      string
}

// PartialPayment es el cuerpo de un pago parcial.
type PartialPayment struct {
	Amount     decimal.Decimal
	Method     string
	Notes      string
	HoldReason string
	DueDate    *time.Time
	ReceivedBy string
}

// FullPayment es el cuerpo de un pago total.
type FullPayment struct {
	AmountPaid decimal.Decimal
	Method     string
	Notes      string
	ReceivedBy string
}

// ClinicGateway es el puerto de salida hacia el backend clínico (HIS), dueño
// de facturas, ledger de pagos y visitas. Toda llamada mutadora envía la
// versión con la que se leyó la factura; un desajuste llega como
// *domain.VersionConflictError y el servidor siempre gana. El HIS garantiza
// que cada escritura aceptada deja la versión estrictamente mayor, sin
// prometer un paso fijo de +1.
//
// La implementación concreta es HTTP (internal/infrastructure/clinicapi);
// para tests se inyecta un fake guionado.
type ClinicGateway interface {
	GetInvoice(ctx context.Context, invoiceID string) (*entity.Invoice, error)
	UpdateDiscount(ctx context.Context, invoiceID string, pct, amount decimal.Decimal, expectedVersion int64) (*entity.Invoice, error)
	UpdateOutstandingFlag(ctx context.Context, invoiceID string, include bool, expectedVersion int64) (*entity.Invoice, error)
	AddItem(ctx context.Context, invoiceID string, payload ItemPayload, expectedVersion int64) (*entity.Invoice, error)
	UpdateItem(ctx context.Context, invoiceID, itemID string, payload ItemPayload, expectedVersion int64) (*entity.Invoice, error)
	RemoveItem(ctx context.Context, invoiceID, itemID string, expectedVersion int64) (*entity.Invoice, error)
	OutstandingBalance(ctx context.Context, patientID string) ([]entity.OutstandingInvoice, error)
	PayPartial(ctx context.Context, invoiceID string, p PartialPayment, expectedVersion int64) (*entity.Invoice, *entity.PaymentTransaction, error)
	PayFull(ctx context.Context, invoiceID string, p FullPayment, expectedVersion int64) (*entity.Invoice, *entity.PaymentTransaction, error)
	CompleteInvoice(ctx context.Context, invoiceID, completedBy string, expectedVersion int64) (*entity.Invoice, error)
	ReceiptPDF(ctx context.Context, paymentID string) ([]byte, error)
}

// RecoveryStore es el almacén clave-valor inyectado para el marcador de pago
// en vuelo. Abstraído del runtime concreto (Redis en producción, mapa en
// tests) para que el Recovery Monitor sea verificable sin red.
type RecoveryStore interface {
	// Get devuelve "" sin error si la clave no existe.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// SettlementJournal es la bitácora durable de intentos de liquidación.
// Sus escrituras son best-effort: un fallo de bitácora se loggea y nunca
// bloquea el flujo de pago.
type SettlementJournal interface {
	CreateAttempt(ctx context.Context, attempt *entity.SettlementAttempt) error
	AddLeg(ctx context.Context, leg *entity.SettlementLeg) error
	FinishAttempt(ctx context.Context, attemptID, outcome, failureReason string, amountPaid, outstandingPaid decimal.Decimal) error
	ListUnreconciled(ctx context.Context, limit int) ([]entity.SettlementAttempt, error)
}

// ReceiptLine es una línea del recibo de caja.
type ReceiptLine struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
	Total       decimal.Decimal
}

// ReceiptData son los datos para la representación PDF del recibo de caja.
type ReceiptData struct {
	ClinicName    string
	InvoiceNumber string
	PatientID     string
	CashierID     string
	Lines         []ReceiptLine
	Subtotal      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
	AmountPaid    decimal.Decimal
	BalanceDue    decimal.Decimal
	PaymentMethod string
	IssuedAt      time.Time
}

// ReceiptGenerator genera el PDF del recibo (Maroto en producción).
type ReceiptGenerator interface {
	GenerateReceiptPDF(ctx context.Context, data *ReceiptData) ([]byte, error)
}
