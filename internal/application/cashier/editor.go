package cashier

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

// MutationResult es el resultado etiquetado de una mutación optimista.
//
// Applied=true  → Invoice es el estado nuevo devuelto por el servidor (la
//                 caché del llamador debe reemplazarse con él).
// Applied=false → hubo conflicto de versión: Invoice es el estado fresco del
//                 servidor (re-fetch ya hecho) al que debe revertirse todo
//                 estado local dependiente, y Conflict el motivo. El rollback
//                 queda como función pura del resultado, sin cirugía de
//                 estado repartida por los call sites.
type MutationResult struct {
	Applied  bool
	Invoice  *entity.Invoice
	Conflict *domain.VersionConflictError
}

// LineItemEditor aplica altas, ediciones y bajas de líneas y cambios de
// descuento sobre la factura cacheada, cada mutación gatillada por la versión
// vigente. El HIS es autoritativo: en aceptación devuelve la factura completa
// con versión nueva; en rechazo por versión se re-lee y NUNCA se reintenta en
// silencio con datos obsoletos.
type LineItemEditor struct {
	gateway ClinicGateway
	log     *logger.Logger
}

// NewLineItemEditor construye el editor.
func NewLineItemEditor(gateway ClinicGateway, log *logger.Logger) *LineItemEditor {
	return &LineItemEditor{gateway: gateway, log: log}
}

// apply ejecuta la mutación y normaliza el resultado. Un conflicto de versión
// no es un error del flujo: se materializa como MutationResult no aplicado con
// el estado fresco del servidor. Cualquier otro error sube tal cual.
func (e *LineItemEditor) apply(ctx context.Context, invoiceID string, op func() (*entity.Invoice, error)) (*MutationResult, error) {
	inv, err := op()
	if err == nil {
		return &MutationResult{Applied: true, Invoice: inv}, nil
	}

	var conflict *domain.VersionConflictError
	if !errors.As(err, &conflict) {
		return nil, err
	}

	// Servidor gana: re-fetch y devolver la verdad para sincronizar el
	// formulario (descuento, checkbox de saldo pendiente) con sus valores.
	fresh, ferr := NewSnapshotCache(e.gateway).Load(ctx, invoiceID)
	if ferr != nil {
		return nil, fmt.Errorf("re-fetch tras conflicto de versión: %w", ferr)
	}
	e.log.Warn().
		Str("invoice_id", invoiceID).
		Int64("expected_version", conflict.ExpectedVersion).
		Int64("server_version", conflict.ActualVersion).
		Msg("mutación rechazada por conflicto de versión")
	return &MutationResult{Applied: false, Invoice: fresh, Conflict: conflict}, nil
}

// AddService agrega un servicio a la factura.
func (e *LineItemEditor) AddService(ctx context.Context, invoiceID string, payload ItemPayload, expectedVersion int64) (*MutationResult, error) {
	if err := validateItemPayload(payload); err != nil {
		return nil, err
	}
	payload.ItemType = entity.ItemTypeService
	return e.apply(ctx, invoiceID, func() (*entity.Invoice, error) {
		return e.gateway.AddItem(ctx, invoiceID, payload, expectedVersion)
	})
}

// AddMedicineItem agrega un medicamento a la factura.
func (e *LineItemEditor) AddMedicineItem(ctx context.Context, invoiceID string, payload ItemPayload, expectedVersion int64) (*MutationResult, error) {
	if err := validateItemPayload(payload); err != nil {
		return nil, err
	}
	payload.ItemType = entity.ItemTypeMedicine
	return e.apply(ctx, invoiceID, func() (*entity.Invoice, error) {
		return e.gateway.AddItem(ctx, invoiceID, payload, expectedVersion)
	})
}

// UpdateService edita una línea de servicio existente.
func (e *LineItemEditor) UpdateService(ctx context.Context, invoiceID, itemID string, payload ItemPayload, expectedVersion int64) (*MutationResult, error) {
	if err := validateItemPayload(payload); err != nil {
		return nil, err
	}
	payload.ItemType = entity.ItemTypeService
	return e.apply(ctx, invoiceID, func() (*entity.Invoice, error) {
		return e.gateway.UpdateItem(ctx, invoiceID, itemID, payload, expectedVersion)
	})
}

// UpdateInvoiceItem edita una línea arbitraria (usada por la liquidación para
// traducir entregas de medicamentos).
func (e *LineItemEditor) UpdateInvoiceItem(ctx context.Context, invoiceID, itemID string, payload ItemPayload, expectedVersion int64) (*MutationResult, error) {
	return e.apply(ctx, invoiceID, func() (*entity.Invoice, error) {
		return e.gateway.UpdateItem(ctx, invoiceID, itemID, payload, expectedVersion)
	})
}

// RemoveService elimina una línea de servicio.
func (e *LineItemEditor) RemoveService(ctx context.Context, invoiceID, itemID string, expectedVersion int64) (*MutationResult, error) {
	return e.apply(ctx, invoiceID, func() (*entity.Invoice, error) {
		return e.gateway.RemoveItem(ctx, invoiceID, itemID, expectedVersion)
	})
}

// UpdateDiscount cambia el descuento. Porcentaje y monto fijo son mutuamente
// excluyentes: setear uno no-cero fuerza el otro a cero antes de enviar.
func (e *LineItemEditor) UpdateDiscount(ctx context.Context, invoiceID string, pct, amount decimal.Decimal, expectedVersion int64) (*MutationResult, error) {
	if pct.LessThan(decimal.Zero) || amount.LessThan(decimal.Zero) {
		return nil, fmt.Errorf("descuento negativo: %w", domain.ErrInvalidInput)
	}
	if pct.GreaterThan(decimal.NewFromInt(100)) {
		return nil, fmt.Errorf("porcentaje de descuento mayor a 100: %w", domain.ErrInvalidInput)
	}
	if pct.GreaterThan(decimal.Zero) {
		amount = decimal.Zero
	} else if amount.GreaterThan(decimal.Zero) {
		pct = decimal.Zero
	}
	return e.apply(ctx, invoiceID, func() (*entity.Invoice, error) {
		return e.gateway.UpdateDiscount(ctx, invoiceID, pct, amount, expectedVersion)
	})
}

// UpdateOutstandingBalanceFlag persiste el flag include_outstanding_balance.
func (e *LineItemEditor) UpdateOutstandingBalanceFlag(ctx context.Context, invoiceID string, include bool, expectedVersion int64) (*MutationResult, error) {
	return e.apply(ctx, invoiceID, func() (*entity.Invoice, error) {
		return e.gateway.UpdateOutstandingFlag(ctx, invoiceID, include, expectedVersion)
	})
}

func validateItemPayload(p ItemPayload) error {
	if p.ItemName == "" {
		return fmt.Errorf("nombre de línea requerido: %w", domain.ErrInvalidInput)
	}
	if !p.Quantity.GreaterThan(decimal.Zero) {
		return fmt.Errorf("cantidad debe ser positiva: %w", domain.ErrInvalidInput)
	}
	if p.UnitPrice.LessThan(decimal.Zero) {
		return fmt.Errorf("precio unitario negativo: %w", domain.ErrInvalidInput)
	}
	return nil
}
