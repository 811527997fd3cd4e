package cashier

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

func TestOutstanding_ResolveExcluyeActualYPagadas(t *testing.T) {
	now := time.Now()
	current := serviceInvoice("inv-current", "p1", 1, 100)

	older := serviceInvoice("inv-old", "p1", 2, 40)
	older.CreatedAt = now.Add(-72 * time.Hour)
	newer := serviceInvoice("inv-new", "p1", 1, 25)
	newer.CreatedAt = now.Add(-24 * time.Hour)

	paid := serviceInvoice("inv-paid", "p1", 3, 60)
	paid.Status = entity.InvoiceStatusPaid
	paid.BalanceDue = decimal.Zero

	otherPatient := serviceInvoice("inv-other", "p2", 1, 80)

	g := newFakeGateway(current, older, newer, paid, otherPatient)
	resolver := NewOutstandingResolver(g)

	set, err := resolver.Resolve(context.Background(), "p1", "inv-current")
	require.NoError(t, err)

	assert.Equal(t, 2, set.InvoiceCount)
	assert.True(t, set.TotalBalance.Equal(decimal.NewFromInt(65)), "40 + 25")
	require.Len(t, set.Invoices, 2)
	assert.Equal(t, "inv-old", set.Invoices[0].ID, "orden de la más antigua a la más nueva")
	assert.Equal(t, "inv-new", set.Invoices[1].ID)
}

func TestOutstanding_TopeConDosImpagas(t *testing.T) {
	set := &entity.OutstandingBalanceSet{InvoiceCount: 1}
	assert.False(t, set.LimitReached(), "una sola impaga no activa el tope")

	set.InvoiceCount = 2
	assert.True(t, set.LimitReached(), "dos impagas activan el tope")

	var nilSet *entity.OutstandingBalanceSet
	assert.False(t, nilSet.LimitReached())
	assert.False(t, nilSet.HasBalance())
}

func TestOutstanding_RevalidateDetectaVersionCambiada(t *testing.T) {
	old := serviceInvoice("inv-old", "p1", 5, 40)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	g := newFakeGateway(old)
	resolver := NewOutstandingResolver(g)

	snapshot := &entity.OutstandingBalanceSet{
		PatientID: "p1",
		Invoices: []entity.OutstandingInvoice{
			{ID: "inv-old", Version: 4, BalanceDue: decimal.NewFromInt(40), CreatedAt: old.CreatedAt},
		},
		TotalBalance: decimal.NewFromInt(40),
		InvoiceCount: 1,
	}

	_, err := resolver.Revalidate(context.Background(), snapshot, "inv-current")
	var conflict *domain.OutstandingConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.OutstandingReasonVersionMismatch, conflict.Reason)
	// El conflicto de pendientes cae en la misma categoría que el de versión.
	assert.ErrorIs(t, err, domain.ErrVersionConflict)
}

func TestOutstanding_RevalidateDetectaSaldoCambiado(t *testing.T) {
	old := serviceInvoice("inv-old", "p1", 4, 35) // el saldo ya no es 40
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	g := newFakeGateway(old)
	resolver := NewOutstandingResolver(g)

	snapshot := &entity.OutstandingBalanceSet{
		PatientID: "p1",
		Invoices: []entity.OutstandingInvoice{
			{ID: "inv-old", Version: 4, BalanceDue: decimal.NewFromInt(40), CreatedAt: old.CreatedAt},
		},
		TotalBalance: decimal.NewFromInt(40),
		InvoiceCount: 1,
	}

	_, err := resolver.Revalidate(context.Background(), snapshot, "inv-current")
	var conflict *domain.OutstandingConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, domain.OutstandingReasonBalanceChanged, conflict.Reason)
}

func TestOutstanding_RevalidateSinCambiosDevuelveFresco(t *testing.T) {
	old := serviceInvoice("inv-old", "p1", 4, 40)
	old.CreatedAt = time.Now().Add(-48 * time.Hour)
	g := newFakeGateway(old)
	resolver := NewOutstandingResolver(g)

	snapshot := &entity.OutstandingBalanceSet{
		PatientID: "p1",
		Invoices: []entity.OutstandingInvoice{
			{ID: "inv-old", Version: 4, BalanceDue: decimal.NewFromInt(40), CreatedAt: old.CreatedAt},
		},
		TotalBalance: decimal.NewFromInt(40),
		InvoiceCount: 1,
	}

	fresh, err := resolver.Revalidate(context.Background(), snapshot, "inv-current")
	require.NoError(t, err)
	assert.Equal(t, 1, fresh.InvoiceCount)
	assert.True(t, fresh.TotalBalance.Equal(decimal.NewFromInt(40)))
}
