package billing

import (
	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// TotalsForInvoice arma el TotalsInput desde la factura cacheada y las
// selecciones locales de medicamentos, y calcula los totales.
//
// Los servicios suman con su precio total. Los medicamentos solo suman lo
// entregado: "dispense" aporta precio unitario × cantidad entregada,
// "write-out" y "pending" aportan cero. Una línea de medicamento sin
// selección se trata como pendiente.
func TotalsForInvoice(inv *entity.Invoice, selections []entity.MedicineSelection, outstandingBalance decimal.Decimal) Totals {
	selByItem := make(map[string]entity.MedicineSelection, len(selections))
	for _, s := range selections {
		selByItem[s.ItemID] = s
	}

	in := TotalsInput{
		OutstandingBalance: outstandingBalance,
		IncludeOutstanding: inv.IncludeOutstandingBalance,
		DiscountPercentage: inv.DiscountPercentage,
		DiscountAmount:     inv.DiscountAmount,
	}
	for _, item := range inv.Items {
		switch item.ItemType {
		case entity.ItemTypeService:
			in.ServicePrices = append(in.ServicePrices, item.TotalPrice)
		case entity.ItemTypeMedicine:
			sel, ok := selByItem[item.ID]
			if !ok || sel.Action != entity.MedicineActionDispense {
				continue
			}
			in.MedicineSubtotals = append(in.MedicineSubtotals, item.UnitPrice.Mul(sel.DispensedQty))
		}
	}
	return ComputeTotals(in)
}
