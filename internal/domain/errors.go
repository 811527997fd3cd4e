package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound           = errors.New("recurso no encontrado")
	ErrInvalidInput       = errors.New("entrada inválida")
	ErrForbidden          = errors.New("acceso denegado")
	ErrVersionConflict    = errors.New("conflicto de versión con el servidor")
	ErrAlreadyFullyPaid   = errors.New("la factura ya fue pagada en su totalidad")
	ErrHoldReasonRequired = errors.New("un pago parcial requiere motivo de retención")
	ErrOutstandingLimit   = errors.New("límite de facturas pendientes alcanzado: se requiere consolidar el saldo")
	ErrFlagChanged        = errors.New("otro operador modificó la opción de consolidar saldo pendiente")
)

// VersionConflictError señala que la versión esperada de la factura ya no coincide
// con la del servidor. El servidor siempre gana; el estado local debe descartarse.
// OriginalVersion es la versión base capturada al abrir el diálogo de pago
// (cero si el chequeo no ocurre dentro de una liquidación).
type VersionConflictError struct {
	InvoiceID       string
	ExpectedVersion int64
	ActualVersion   int64
	OriginalVersion int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("conflicto de versión en factura %s: esperada %d, servidor %d",
		e.InvoiceID, e.ExpectedVersion, e.ActualVersion)
}

// Is permite detectar el conflicto con errors.Is(err, ErrVersionConflict).
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// Motivos de divergencia en la re-validación del conjunto de facturas pendientes.
const (
	OutstandingReasonPaid            = "paid"             // otro operador la pagó primero
	OutstandingReasonVersionMismatch = "version_mismatch" // la versión cambió desde que se abrió el detalle
	OutstandingReasonBalanceChanged  = "balance_changed"  // el saldo adeudado cambió
)

// OutstandingConflictError señala que una factura pendiente divergió del snapshot
// tomado al abrir el detalle. Aborta la liquidación antes de emitir cualquier pago.
type OutstandingConflictError struct {
	InvoiceID string
	Reason    string
}

func (e *OutstandingConflictError) Error() string {
	switch e.Reason {
	case OutstandingReasonPaid:
		return fmt.Sprintf("la factura pendiente %s ya fue pagada por otro operador", e.InvoiceID)
	case OutstandingReasonVersionMismatch:
		return fmt.Sprintf("la factura pendiente %s cambió de versión desde que se abrió el detalle", e.InvoiceID)
	case OutstandingReasonBalanceChanged:
		return fmt.Sprintf("el saldo de la factura pendiente %s cambió desde que se abrió el detalle", e.InvoiceID)
	}
	return fmt.Sprintf("la factura pendiente %s divergió del snapshot (%s)", e.InvoiceID, e.Reason)
}

// Is permite agrupar los tres motivos bajo ErrVersionConflict para decidir
// la limpieza del marcador de recuperación (ver Recovery Monitor).
func (e *OutstandingConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}
