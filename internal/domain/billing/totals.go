// Package billing contiene los cálculos puros de caja: totales de la factura
// bajo edición y el plan de entrega/write-out de medicamentos. Nada aquí toca
// red ni estado compartido; se recalcula en cada cambio y nunca se persiste.
package billing

import "github.com/shopspring/decimal"

// TotalsInput son los insumos del cálculo de totales.
//
// Regla de exclusividad del descuento: porcentaje y monto fijo son mutuamente
// excluyentes; quien setea uno debe dejar el otro en cero (lo garantiza el
// Line-Item Editor). Si ambos llegan no-cero, el porcentaje gana.
type TotalsInput struct {
	ServicePrices      []decimal.Decimal // precio total de cada servicio
	MedicineSubtotals  []decimal.Decimal // subtotal de cada medicamento entregado
	OutstandingBalance decimal.Decimal   // saldo pendiente consolidable
	IncludeOutstanding bool              // flag include_outstanding_balance
	DiscountPercentage decimal.Decimal
	DiscountAmount     decimal.Decimal
}

// Totals es el resultado del cálculo. Derivado, nunca persistido por el cliente.
type Totals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ComputeTotals calcula subtotal, descuento y total a pagar.
//
//	subtotal  = Σ servicios + Σ medicamentos entregados + saldo pendiente (si aplica)
//	descuento = subtotal × pct/100   (o monto fijo si pct es cero)
//	total     = max(0, subtotal − descuento)
//
// Función pura: mismos insumos, mismo resultado.
func ComputeTotals(in TotalsInput) Totals {
	subtotal := decimal.Zero
	for _, p := range in.ServicePrices {
		subtotal = subtotal.Add(p)
	}
	for _, m := range in.MedicineSubtotals {
		subtotal = subtotal.Add(m)
	}
	if in.IncludeOutstanding {
		subtotal = subtotal.Add(in.OutstandingBalance)
	}

	var discount decimal.Decimal
	if in.DiscountPercentage.GreaterThan(decimal.Zero) {
		discount = subtotal.Mul(in.DiscountPercentage).Div(hundred)
	} else {
		discount = in.DiscountAmount
	}

	total := subtotal.Sub(discount)
	if total.LessThan(decimal.Zero) {
		total = decimal.Zero
	}

	return Totals{Subtotal: subtotal, Discount: discount, Total: total}
}
