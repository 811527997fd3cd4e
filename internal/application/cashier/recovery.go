package cashier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

// RecoveryStalenessWindow es la ventana de frescura del marcador: un marcador
// más viejo se descarta incondicionalmente sin consultar al servidor.
const RecoveryStalenessWindow = 5 * time.Minute

const recoveryKeyPrefix = "cashier:recovery:"

// RecoveryMarker es el marcador durable de un pago en vuelo. Se persiste
// recién cuando la validación de versiones del ejecutor pasó, justo antes del
// primer pago, y se borra al completar.
type RecoveryMarker struct {
	InvoiceID     string          `json:"invoice_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Estados de la verificación de recuperación al montar la superficie de caja.
const (
	RecoveryNone            = "none"             // no había marcador
	RecoverySucceeded       = "succeeded"        // la factura quedó pagada: el intento anterior terminó bien
	RecoveryResolvedOutside = "resolved_elsewhere" // la factura ya no existe (404)
	RecoveryDiscarded       = "discarded"        // marcador vencido, descartado sin consulta
	RecoveryVerifyManually  = "verify_manually"  // factura viva y no pagada: verificar a mano
)

// RecoveryCheck es el resultado de reconciliar un marcador contra el servidor.
type RecoveryCheck struct {
	Status string
	Marker *RecoveryMarker // presente salvo en Status "none"
}

// RecoveryMonitor reconcilia un recargo de página a mitad de liquidación
// contra la verdad del servidor, en vez de duplicar o perder la operación en
// silencio. El marcador va en un almacén clave-valor inyectado, uno por
// cajero.
type RecoveryMonitor struct {
	store   RecoveryStore
	gateway ClinicGateway
	log     *logger.Logger
	now     func() time.Time
}

// NewRecoveryMonitor construye el monitor.
func NewRecoveryMonitor(store RecoveryStore, gateway ClinicGateway, log *logger.Logger) *RecoveryMonitor {
	return &RecoveryMonitor{store: store, gateway: gateway, log: log, now: time.Now}
}

func recoveryKey(cashierID string) string { return recoveryKeyPrefix + cashierID }

// Persist guarda el marcador del pago en vuelo. El TTL igual a la ventana de
// frescura hace que los marcadores abandonados desaparezcan solos.
func (m *RecoveryMonitor) Persist(ctx context.Context, cashierID string, marker RecoveryMarker) error {
	if marker.Timestamp.IsZero() {
		marker.Timestamp = m.now()
	}
	raw, err := json.Marshal(marker)
	if err != nil {
		return fmt.Errorf("serializar marcador de recuperación: %w", err)
	}
	return m.store.Set(ctx, recoveryKey(cashierID), string(raw), RecoveryStalenessWindow)
}

// Clear borra el marcador del cajero. Idempotente.
func (m *RecoveryMonitor) Clear(ctx context.Context, cashierID string) error {
	return m.store.Delete(ctx, recoveryKey(cashierID))
}

// Check se llama al montar la superficie de caja. Si existe un marcador más
// joven que la ventana, consulta el estado actual de la factura: pagada →
// intento anterior exitoso, se limpia con aviso; 404 → resuelta por otra vía,
// se limpia; si sigue viva e impaga, el marcador se conserva y se pide
// verificación manual en vez de adivinar.
func (m *RecoveryMonitor) Check(ctx context.Context, cashierID string) (*RecoveryCheck, error) {
	raw, err := m.store.Get(ctx, recoveryKey(cashierID))
	if err != nil {
		return nil, fmt.Errorf("leer marcador de recuperación: %w", err)
	}
	if raw == "" {
		return &RecoveryCheck{Status: RecoveryNone}, nil
	}

	var marker RecoveryMarker
	if err := json.Unmarshal([]byte(raw), &marker); err != nil {
		// Marcador corrupto: tratar como abandonado.
		_ = m.store.Delete(ctx, recoveryKey(cashierID))
		m.log.Warn().Str("cashier_id", cashierID).Msg("marcador de recuperación corrupto, descartado")
		return &RecoveryCheck{Status: RecoveryDiscarded}, nil
	}

	if m.now().Sub(marker.Timestamp) > RecoveryStalenessWindow {
		if err := m.store.Delete(ctx, recoveryKey(cashierID)); err != nil {
			return nil, err
		}
		return &RecoveryCheck{Status: RecoveryDiscarded, Marker: &marker}, nil
	}

	inv, err := m.gateway.GetInvoice(ctx, marker.InvoiceID)
	if errors.Is(err, domain.ErrNotFound) {
		if derr := m.store.Delete(ctx, recoveryKey(cashierID)); derr != nil {
			return nil, derr
		}
		return &RecoveryCheck{Status: RecoveryResolvedOutside, Marker: &marker}, nil
	}
	if err != nil {
		// Error transitorio: conservar el marcador y subir el error crudo.
		return nil, err
	}

	if inv.IsPaid() {
		if derr := m.store.Delete(ctx, recoveryKey(cashierID)); derr != nil {
			return nil, derr
		}
		m.log.Info().
			Str("cashier_id", cashierID).
			Str("invoice_id", marker.InvoiceID).
			Msg("pago en vuelo confirmado como exitoso tras recarga")
		return &RecoveryCheck{Status: RecoverySucceeded, Marker: &marker}, nil
	}

	return &RecoveryCheck{Status: RecoveryVerifyManually, Marker: &marker}, nil
}
