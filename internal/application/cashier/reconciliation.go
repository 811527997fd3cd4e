package cashier

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

// ReconciliationReport agrupa los intentos de liquidación que quedaron a medio
// camino: abortados después de haber pagado al menos una factura pendiente.
// Esos pagos no se reversan automáticamente; supervisión los revisa a mano.
type ReconciliationReport struct {
	Attempts      []entity.SettlementAttempt
	TotalExposure decimal.Decimal // suma de los legs aplicados en intentos abortados
}

// ReconciliationService arma el reporte desde la bitácora de liquidaciones.
type ReconciliationService struct {
	journal SettlementJournal
	log     *logger.Logger
}

// NewReconciliationService construye el servicio.
func NewReconciliationService(journal SettlementJournal, log *logger.Logger) *ReconciliationService {
	return &ReconciliationService{journal: journal, log: log}
}

const defaultReconciliationLimit = 100

// Report lista los intentos sin conciliar, los más recientes primero.
func (s *ReconciliationService) Report(ctx context.Context, limit int) (*ReconciliationReport, error) {
	if limit <= 0 || limit > defaultReconciliationLimit {
		limit = defaultReconciliationLimit
	}
	attempts, err := s.journal.ListUnreconciled(ctx, limit)
	if err != nil {
		return nil, err
	}

	report := &ReconciliationReport{Attempts: attempts, TotalExposure: decimal.Zero}
	for _, a := range attempts {
		for _, leg := range a.Legs {
			report.TotalExposure = report.TotalExposure.Add(leg.Amount)
		}
	}
	if len(attempts) > 0 {
		s.log.Warn().
			Int("attempts", len(attempts)).
			Str("exposure", report.TotalExposure.StringFixed(2)).
			Msg("existen liquidaciones abortadas con pagos aplicados sin conciliar")
	}
	return report, nil
}
