package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Resultados de un intento de liquidación en la bitácora.
const (
	AttemptOutcomeCompleted = "completed"
	AttemptOutcomeAborted   = "aborted"
	AttemptOutcomeRunning   = "running"
)

// SettlementAttempt es el registro de bitácora de un intento de liquidación.
// La liquidación multi-factura no es atómica: si un pago de saldo pendiente se
// aplicó y un paso posterior falló, la bitácora es la evidencia para la
// conciliación manual (no hay compensación automática).
type SettlementAttempt struct {
	ID              string
	InvoiceID       string
	InvoiceNumber   string
	PatientID       string
	CashierID       string
	Outcome         string // running | completed | aborted
	FailureReason   string
	OriginalVersion int64
	AmountPaid      decimal.Decimal
	OutstandingPaid decimal.Decimal
	StartedAt       time.Time
	FinishedAt      *time.Time
	Legs            []SettlementLeg
}

// SettlementLeg es un pago de saldo pendiente aplicado dentro de un intento.
// Cada leg se registra en cuanto el HIS lo acepta, antes de continuar el flujo.
type SettlementLeg struct {
	ID          string
	AttemptID   string
	InvoiceID   string
	Amount      decimal.Decimal
	PaymentID   string
	RecordedAt  time.Time
}
