package cashier

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// OutstandingResolver descubre las facturas impagas del paciente, calcula el
// saldo consolidado y decide si deben plegarse a la factura en curso.
//
// Política de tope: con 2 o más facturas impagas el pago parcial queda
// indisponible salvo que se consolide el saldo, y se bloquea la creación de
// una tercera impaga. El tope acota la deuda sin resolver de un paciente.
type OutstandingResolver struct {
	gateway ClinicGateway
}

// NewOutstandingResolver construye el resolver.
func NewOutstandingResolver(gateway ClinicGateway) *OutstandingResolver {
	return &OutstandingResolver{gateway: gateway}
}

// Resolve trae las facturas impagas del paciente, excluye la factura en curso
// y las ya saldadas, y suma balance_due. El resultado queda ordenado de la
// más antigua a la más nueva (el orden en que luego se pagan).
func (r *OutstandingResolver) Resolve(ctx context.Context, patientID, currentInvoiceID string) (*entity.OutstandingBalanceSet, error) {
	invoices, err := r.gateway.OutstandingBalance(ctx, patientID)
	if err != nil {
		return nil, err
	}

	set := &entity.OutstandingBalanceSet{PatientID: patientID, TotalBalance: decimal.Zero}
	for _, inv := range invoices {
		if inv.ID == currentInvoiceID {
			continue
		}
		if inv.Status == entity.InvoiceStatusPaid || !inv.BalanceDue.GreaterThan(decimal.Zero) {
			continue
		}
		set.Invoices = append(set.Invoices, inv)
		set.TotalBalance = set.TotalBalance.Add(inv.BalanceDue)
	}
	sort.Slice(set.Invoices, func(i, j int) bool {
		return set.Invoices[i].CreatedAt.Before(set.Invoices[j].CreatedAt)
	})
	set.InvoiceCount = len(set.Invoices)
	return set, nil
}

// Revalidate re-resuelve el conjunto inmediatamente antes de comprometer la
// liquidación y contrasta cada miembro del snapshot tomado al abrir el detalle
// contra la verdad fresca del servidor. Cualquier divergencia (pagada por otro
// operador, saldo cambiado, versión cambiada) aborta la liquidación completa
// con su motivo específico, antes de emitir cualquier pago.
func (r *OutstandingResolver) Revalidate(ctx context.Context, snapshot *entity.OutstandingBalanceSet, currentInvoiceID string) (*entity.OutstandingBalanceSet, error) {
	fresh, err := r.Resolve(ctx, snapshot.PatientID, currentInvoiceID)
	if err != nil {
		return nil, err
	}

	for _, member := range snapshot.Invoices {
		current := fresh.Find(member.ID)
		if current == nil || current.Status == entity.InvoiceStatusPaid {
			return nil, &domain.OutstandingConflictError{InvoiceID: member.ID, Reason: domain.OutstandingReasonPaid}
		}
		if current.Version != member.Version {
			return nil, &domain.OutstandingConflictError{InvoiceID: member.ID, Reason: domain.OutstandingReasonVersionMismatch}
		}
		if !current.BalanceDue.Equal(member.BalanceDue) {
			return nil, &domain.OutstandingConflictError{InvoiceID: member.ID, Reason: domain.OutstandingReasonBalanceChanged}
		}
	}
	return fresh, nil
}
