package cashier

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

func newEditor(g *fakeGateway) *LineItemEditor {
	return NewLineItemEditor(g, logger.Nop())
}

func TestEditor_AddServiceAvanzaVersion(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 1, 100))
	editor := newEditor(g)

	result, err := editor.AddService(context.Background(), "inv1", ItemPayload{
		ItemName:   "Radiografía",
		Quantity:   decimal.NewFromInt(1),
		UnitPrice:  decimal.NewFromInt(45),
		TotalPrice: decimal.NewFromInt(45),
	}, 1)
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Nil(t, result.Conflict)
	assert.Equal(t, int64(2), result.Invoice.Version, "la versión debe avanzar con la escritura aceptada")
	assert.Len(t, result.Invoice.Items, 2)
}

// Una mutación con versión obsoleta no se aplica: el resultado trae el estado
// fresco del servidor y el conflicto etiquetado, nunca un reintento silencioso.
func TestEditor_ConflictoDeVersionDevuelveEstadoFresco(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 3, 100))
	editor := newEditor(g)

	result, err := editor.AddService(context.Background(), "inv1", ItemPayload{
		ItemName:  "Radiografía",
		Quantity:  decimal.NewFromInt(1),
		UnitPrice: decimal.NewFromInt(45),
	}, 2) // versión vieja
	require.NoError(t, err, "el conflicto de versión no es un error del flujo")

	assert.False(t, result.Applied)
	require.NotNil(t, result.Conflict)
	assert.Equal(t, int64(2), result.Conflict.ExpectedVersion)
	assert.Equal(t, int64(3), result.Conflict.ActualVersion)
	assert.Equal(t, int64(3), result.Invoice.Version, "debe traer la verdad del servidor")
	assert.Len(t, result.Invoice.Items, 1, "la línea rechazada no debe aparecer")
}

func TestEditor_ValidacionLocalDeLinea(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 1, 100))
	editor := newEditor(g)

	cases := []struct {
		name    string
		payload ItemPayload
	}{
		{"sin nombre", ItemPayload{Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)}},
		{"cantidad cero", ItemPayload{ItemName: "x", Quantity: decimal.Zero, UnitPrice: decimal.NewFromInt(5)}},
		{"precio negativo", ItemPayload{ItemName: "x", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(-5)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := editor.AddService(context.Background(), "inv1", tc.payload, 1)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

// Porcentaje y monto fijo son mutuamente excluyentes: setear el porcentaje
// fuerza el monto a cero antes de enviar, y viceversa.
func TestEditor_DescuentoExcluyente(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 1, 100))
	editor := newEditor(g)

	result, err := editor.UpdateDiscount(context.Background(), "inv1",
		decimal.NewFromInt(10), decimal.NewFromInt(99), 1)
	require.NoError(t, err)
	require.True(t, result.Applied)

	assert.True(t, result.Invoice.DiscountPercentage.Equal(decimal.NewFromInt(10)))
	assert.True(t, result.Invoice.DiscountAmount.IsZero(), "el porcentaje gana y anula el monto fijo")

	// Ahora el monto fijo: el porcentaje debe quedar en cero.
	result, err = editor.UpdateDiscount(context.Background(), "inv1",
		decimal.Zero, decimal.NewFromInt(15), result.Invoice.Version)
	require.NoError(t, err)
	require.True(t, result.Applied)
	assert.True(t, result.Invoice.DiscountPercentage.IsZero())
	assert.True(t, result.Invoice.DiscountAmount.Equal(decimal.NewFromInt(15)))
}

func TestEditor_DescuentoInvalido(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 1, 100))
	editor := newEditor(g)

	_, err := editor.UpdateDiscount(context.Background(), "inv1",
		decimal.NewFromInt(101), decimal.Zero, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "porcentaje mayor a 100")

	_, err = editor.UpdateDiscount(context.Background(), "inv1",
		decimal.NewFromInt(-1), decimal.Zero, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "descuento negativo")
}

func TestEditor_RemoveServiceYFlag(t *testing.T) {
	inv := serviceInvoice("inv1", "p1", 1, 100)
	g := newFakeGateway(inv)
	editor := newEditor(g)

	result, err := editor.RemoveService(context.Background(), "inv1", "inv1-svc", 1)
	require.NoError(t, err)
	require.True(t, result.Applied)
	assert.Empty(t, result.Invoice.Items)

	result, err = editor.UpdateOutstandingBalanceFlag(context.Background(), "inv1", true, result.Invoice.Version)
	require.NoError(t, err)
	require.True(t, result.Applied)
	assert.True(t, result.Invoice.IncludeOutstandingBalance)
}

func TestSnapshotCache_CurrentDevuelveCopia(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 1, 100))
	cache := NewSnapshotCache(g)

	_, err := cache.Load(context.Background(), "inv1")
	require.NoError(t, err)

	copy1 := cache.Current()
	copy1.Items[0].ItemName = "mutado"
	copy2 := cache.Current()
	assert.Equal(t, "Consulta general", copy2.Items[0].ItemName,
		"mutar la copia no debe tocar la caché")
	assert.Equal(t, int64(1), cache.Version())
}
