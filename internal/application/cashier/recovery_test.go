package cashier

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

func newMonitor(g *fakeGateway, store *memStore) *RecoveryMonitor {
	return NewRecoveryMonitor(store, g, logger.Nop())
}

func TestRecovery_SinMarcador(t *testing.T) {
	g := newFakeGateway()
	monitor := newMonitor(g, newMemStore())

	check, err := monitor.Check(context.Background(), "caj-1")
	require.NoError(t, err)
	assert.Equal(t, RecoveryNone, check.Status)
	assert.Nil(t, check.Marker)
}

func TestRecovery_PersistGuardaConTTLIgualALaVentana(t *testing.T) {
	g := newFakeGateway()
	store := newMemStore()
	monitor := newMonitor(g, store)

	err := monitor.Persist(context.Background(), "caj-1", RecoveryMarker{
		InvoiceID:     "inv1",
		Amount:        decimal.NewFromInt(100),
		PaymentMethod: entity.PaymentMethodCash,
	})
	require.NoError(t, err)

	assert.Equal(t, 1, store.len())
	assert.Equal(t, RecoveryStalenessWindow, store.ttls["cashier:recovery:caj-1"],
		"el TTL debe igualar la ventana de frescura")
}

// La factura quedó pagada: el intento anterior terminó bien aunque la página
// se recargó. Limpiar y avisar éxito.
func TestRecovery_FacturaPagadaEsExito(t *testing.T) {
	inv := serviceInvoice("inv1", "p1", 2, 100)
	inv.Status = entity.InvoiceStatusPaid
	g := newFakeGateway(inv)
	store := newMemStore()
	monitor := newMonitor(g, store)

	require.NoError(t, monitor.Persist(context.Background(), "caj-1", RecoveryMarker{
		InvoiceID: "inv1", Amount: decimal.NewFromInt(100), PaymentMethod: entity.PaymentMethodCash,
	}))

	check, err := monitor.Check(context.Background(), "caj-1")
	require.NoError(t, err)
	assert.Equal(t, RecoverySucceeded, check.Status)
	require.NotNil(t, check.Marker)
	assert.Equal(t, "inv1", check.Marker.InvoiceID)
	assert.Equal(t, 0, store.len(), "el marcador debe limpiarse")
}

// La factura sigue viva e impaga: nunca adivinar; conservar el marcador y
// pedir verificación manual.
func TestRecovery_FacturaImpagaPideVerificacionManual(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 2, 100))
	store := newMemStore()
	monitor := newMonitor(g, store)

	require.NoError(t, monitor.Persist(context.Background(), "caj-1", RecoveryMarker{
		InvoiceID: "inv1", Amount: decimal.NewFromInt(100), PaymentMethod: entity.PaymentMethodCash,
	}))

	check, err := monitor.Check(context.Background(), "caj-1")
	require.NoError(t, err)
	assert.Equal(t, RecoveryVerifyManually, check.Status)
	assert.Equal(t, 1, store.len(), "el marcador se conserva hasta que el cajero verifique")
}

// La factura ya no existe en el servidor: resuelta por otra vía; limpiar.
func TestRecovery_FacturaInexistenteSeLimpia(t *testing.T) {
	g := newFakeGateway() // sin facturas
	store := newMemStore()
	monitor := newMonitor(g, store)

	require.NoError(t, monitor.Persist(context.Background(), "caj-1", RecoveryMarker{
		InvoiceID: "inv-borrada", Amount: decimal.NewFromInt(50), PaymentMethod: entity.PaymentMethodCard,
	}))

	check, err := monitor.Check(context.Background(), "caj-1")
	require.NoError(t, err)
	assert.Equal(t, RecoveryResolvedOutside, check.Status)
	assert.Equal(t, 0, store.len())
}

// Un marcador más viejo que la ventana se descarta sin consultar al servidor.
func TestRecovery_MarcadorVencidoSeDescarta(t *testing.T) {
	g := newFakeGateway(serviceInvoice("inv1", "p1", 2, 100))
	store := newMemStore()
	monitor := newMonitor(g, store)

	require.NoError(t, monitor.Persist(context.Background(), "caj-1", RecoveryMarker{
		InvoiceID: "inv1", Amount: decimal.NewFromInt(100), PaymentMethod: entity.PaymentMethodCash,
	}))

	// Avanzar el reloj del monitor más allá de la ventana.
	monitor.now = func() time.Time { return time.Now().Add(RecoveryStalenessWindow + time.Minute) }

	check, err := monitor.Check(context.Background(), "caj-1")
	require.NoError(t, err)
	assert.Equal(t, RecoveryDiscarded, check.Status)
	assert.Equal(t, 0, store.len())
	assert.Equal(t, 0, g.getCalls, "un marcador vencido no debe generar consultas al servidor")
}

func TestRecovery_MarcadorCorruptoSeDescarta(t *testing.T) {
	g := newFakeGateway()
	store := newMemStore()
	require.NoError(t, store.Set(context.Background(), "cashier:recovery:caj-1", "{no es json", 0))
	monitor := newMonitor(g, store)

	check, err := monitor.Check(context.Background(), "caj-1")
	require.NoError(t, err)
	assert.Equal(t, RecoveryDiscarded, check.Status)
	assert.Equal(t, 0, store.len())
}

func TestRecovery_ClearEsIdempotente(t *testing.T) {
	g := newFakeGateway()
	monitor := newMonitor(g, newMemStore())

	require.NoError(t, monitor.Clear(context.Background(), "caj-1"))
	require.NoError(t, monitor.Clear(context.Background(), "caj-1"))
}
