package billing

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// ItemUpdate es una actualización de línea que la liquidación enviará al HIS,
// gatillada por la versión vigente en ese momento.
type ItemUpdate struct {
	ItemID     string
	Quantity   decimal.Decimal
	UnitPrice  decimal.Decimal
	TotalPrice decimal.Decimal
	Notes      string
}

// WriteOutItem es una línea nueva de precio cero por el remanente no entregado.
type WriteOutItem struct {
	ItemName string
	Quantity decimal.Decimal
	Notes    string
}

// DispensePlan es la traducción de las selecciones del cajero a escrituras
// concretas contra la factura. Las líneas "pending" no aparecen en el plan.
type DispensePlan struct {
	Updates   []ItemUpdate
	WriteOuts []WriteOutItem
}

// Empty indica si el plan no produce ninguna escritura.
func (p DispensePlan) Empty() bool {
	return len(p.Updates) == 0 && len(p.WriteOuts) == 0
}

// BuildDispensePlan deriva el plan de escrituras a partir de las selecciones
// del cajero sobre las líneas de medicamento de la factura cacheada.
//
//   - "dispense" con entrega completa → update de cantidad (precio sin cambio).
//   - "dispense" con entrega parcial  → update por lo entregado + línea
//     write-out de precio cero por el remanente.
//   - "write-out" → cantidad y precio a cero con nota.
//   - "pending"   → intacta.
//
// Función pura: no emite red, solo describe las escrituras.
func BuildDispensePlan(inv *entity.Invoice, selections []entity.MedicineSelection) (DispensePlan, error) {
	var plan DispensePlan
	for _, sel := range selections {
		item := inv.Item(sel.ItemID)
		if item == nil {
			return DispensePlan{}, fmt.Errorf("línea %s no existe en la factura: %w", sel.ItemID, domain.ErrInvalidInput)
		}
		if item.ItemType != entity.ItemTypeMedicine {
			return DispensePlan{}, fmt.Errorf("línea %s no es un medicamento: %w", sel.ItemID, domain.ErrInvalidInput)
		}

		switch sel.Action {
		case entity.MedicineActionPending:
			continue

		case entity.MedicineActionDispense:
			dispensed := sel.DispensedQty
			if dispensed.LessThanOrEqual(decimal.Zero) || dispensed.GreaterThan(item.Quantity) {
				return DispensePlan{}, fmt.Errorf("cantidad entregada %s inválida para línea %s: %w",
					dispensed.String(), sel.ItemID, domain.ErrInvalidInput)
			}
			plan.Updates = append(plan.Updates, ItemUpdate{
				ItemID:     item.ID,
				Quantity:   dispensed,
				UnitPrice:  item.UnitPrice,
				TotalPrice: item.UnitPrice.Mul(dispensed),
				Notes:      item.Notes,
			})
			remainder := item.Quantity.Sub(dispensed)
			if remainder.GreaterThan(decimal.Zero) {
				plan.WriteOuts = append(plan.WriteOuts, WriteOutItem{
					ItemName: item.ItemName,
					Quantity: remainder,
					Notes:    fmt.Sprintf("write-out: %s unidades no entregadas de %s", remainder.String(), item.ItemName),
				})
			}

		case entity.MedicineActionWriteOut:
			plan.Updates = append(plan.Updates, ItemUpdate{
				ItemID:     item.ID,
				Quantity:   decimal.Zero,
				UnitPrice:  decimal.Zero,
				TotalPrice: decimal.Zero,
				Notes:      fmt.Sprintf("write-out: %s no entregado", item.ItemName),
			})

		default:
			return DispensePlan{}, fmt.Errorf("acción %q desconocida para línea %s: %w", sel.Action, sel.ItemID, domain.ErrInvalidInput)
		}
	}
	return plan, nil
}
