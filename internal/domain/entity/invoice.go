package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de una factura en el HIS.
const (
	InvoiceStatusPending     = "pending"
	InvoiceStatusPartialPaid = "partial_paid"
	InvoiceStatusPaid        = "paid"
)

// Tipos de línea de factura.
const (
	ItemTypeService  = "service"
	ItemTypeMedicine = "medicine"
)

// Acciones del cajero sobre una línea de medicamento. Son estado local del
// cliente: en la liquidación se traducen a updates de cantidad/precio y, si la
// entrega fue parcial, a una línea "write-out" de precio cero por el remanente.
const (
	MedicineActionPending  = "pending"
	MedicineActionDispense = "dispense"
	MedicineActionWriteOut = "write-out"
)

// Invoice es la copia cacheada de una factura del HIS. El HIS es el dueño del
// estado: Version es el token de bloqueo optimista que incrementa en cada
// escritura aceptada, y toda mutación debe enviar la versión con la que se leyó.
type Invoice struct {
	ID                        string
	Number                    string
	PatientID                 string
	VisitID                   string
	Status                    string // pending | partial_paid | paid
	Version                   int64
	TotalAmount               decimal.Decimal
	BalanceDue                decimal.Decimal
	DiscountPercentage        decimal.Decimal
	DiscountAmount            decimal.Decimal
	IncludeOutstandingBalance bool
	Items                     []InvoiceItem
	CreatedAt                 time.Time
	UpdatedAt                 time.Time
}

// IsPaid indica si la factura quedó totalmente saldada.
func (i *Invoice) IsPaid() bool { return i.Status == InvoiceStatusPaid }

// Item busca una línea por ID; nil si no existe.
func (i *Invoice) Item(itemID string) *InvoiceItem {
	for idx := range i.Items {
		if i.Items[idx].ID == itemID {
			return &i.Items[idx]
		}
	}
	return nil
}

// Clone devuelve una copia profunda (las líneas se copian, no se comparten).
func (i *Invoice) Clone() *Invoice {
	if i == nil {
		return nil
	}
	c := *i
	c.Items = make([]InvoiceItem, len(i.Items))
	copy(c.Items, i.Items)
	return &c
}

// InvoiceItem es una línea de factura (servicio o medicamento).
type InvoiceItem struct {
	ID        string
	ItemType  string // service | medicine
	ItemName  string
	Quantity  decimal.Decimal
	UnitPrice decimal.Decimal
	TotalPrice decimal.Decimal
	Notes     string
}

// MedicineSelection es la decisión local del cajero sobre una línea de
// medicamento antes de liquidar. DispensedQty solo aplica con acción "dispense".
type MedicineSelection struct {
	ItemID       string
	Action       string // pending | dispense | write-out
	DispensedQty decimal.Decimal
}
