package cashier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/billing"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

// ── Máquina de estados ────────────────────────────────────────────────────────

// SettlementState es el estado del ejecutor dentro de un intento.
type SettlementState int

const (
	StateIdle SettlementState = iota
	StatePreparing
	StateCommittingItems
	StateValidatingVersion
	StatePayingOutstanding
	StatePayingCurrent
	StateCompleted
	StateAborted
)

func (s SettlementState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateCommittingItems:
		return "committing_items"
	case StateValidatingVersion:
		return "validating_version"
	case StatePayingOutstanding:
		return "paying_outstanding"
	case StatePayingCurrent:
		return "paying_current"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	}
	return "unknown"
}

// allowedTransitions: la secuencia es estrictamente lineal; Aborted es
// alcanzable desde cualquier estado no-idle. Pagar desde Aborted no es
// representable.
var allowedTransitions = map[SettlementState][]SettlementState{
	StateIdle:              {StatePreparing},
	StatePreparing:         {StateCommittingItems, StateAborted},
	StateCommittingItems:   {StateValidatingVersion, StateAborted},
	StateValidatingVersion: {StatePayingOutstanding, StateAborted},
	StatePayingOutstanding: {StatePayingCurrent, StateAborted},
	StatePayingCurrent:     {StateCompleted, StateAborted},
}

// ── Petición y resultado ──────────────────────────────────────────────────────

// SettlementRequest describe un intento de liquidación.
//
// BaseVersion es la versión de la factura al momento de abrir el diálogo de
// pago (la base del chequeo más estricto). OutstandingSnapshot es el conjunto
// de facturas pendientes tal como se vio al abrir el detalle; se re-valida
// miembro a miembro antes de comprometer.
type SettlementRequest struct {
	InvoiceID           string
	BaseVersion         int64
	Selections          []entity.MedicineSelection
	IncludeOutstanding  bool
	OutstandingSnapshot *entity.OutstandingBalanceSet
	IsPartialPayment    bool
	Amount              decimal.Decimal // monto ingresado; solo pagos parciales
	PaymentMethod       string
	PaymentNotes        string
	HoldReason          string
	DueDate             *time.Time
	CashierID           string
}

// Desenlaces de una liquidación completada.
const (
	OutcomePaidFull    = "paid_full"
	OutcomePaidPartial = "paid_partial"
	OutcomeZeroCharge  = "zero_charge"
)

// SettlementResult es el resultado de un intento que llegó a Completed.
type SettlementResult struct {
	AttemptID       string
	Outcome         string
	Invoice         *entity.Invoice
	Payments        []entity.PaymentTransaction
	Totals          billing.Totals
	OutstandingPaid decimal.Decimal
}

// ── Ejecutor ──────────────────────────────────────────────────────────────────

// SettlementExecutor realiza la secuencia ordenada de llamadas remotas que
// materializa un pago (total, parcial o de cargo cero), re-validando versiones
// en cada punto de control:
//
//	Idle → Preparing → CommittingItems → ValidatingVersion →
//	PayingOutstanding → PayingCurrent → Completed  (Aborted desde cualquiera)
//
// Las escrituras de un intento se emiten estrictamente en serie: la respuesta
// de cada una provee la versión que exige la siguiente. Entre dos llamadas
// otro operador puede mutar la misma factura o sus pendientes; de eso
// defienden las re-validaciones repetidas (defensa en profundidad
// intencional, no código redundante a colapsar).
//
// La liquidación multi-factura no es atómica: los pagos de saldo ya aplicados
// no se reversan ante un fallo posterior. Cada leg queda en la bitácora y los
// intentos abortados con legs aplicados salen en el reporte de conciliación.
type SettlementExecutor struct {
	gateway  ClinicGateway
	resolver *OutstandingResolver
	recovery *RecoveryMonitor
	journal  SettlementJournal
	log      *logger.Logger
}

// NewSettlementExecutor construye el ejecutor con todas sus dependencias.
func NewSettlementExecutor(
	gateway ClinicGateway,
	resolver *OutstandingResolver,
	recovery *RecoveryMonitor,
	journal SettlementJournal,
	log *logger.Logger,
) *SettlementExecutor {
	return &SettlementExecutor{
		gateway:  gateway,
		resolver: resolver,
		recovery: recovery,
		journal:  journal,
		log:      log,
	}
}

// execution es el estado mutable de un intento en curso.
type execution struct {
	state           SettlementState
	attemptID       string
	cache           *SnapshotCache
	originalVersion int64 // versión al abrir el diálogo de pago; no avanza
	currentVersion  int64 // versión rodante; avanza tras cada escritura propia
	writesIssued    int64
	markerPersisted bool
	outstandingPaid decimal.Decimal
	payments        []entity.PaymentTransaction
}

// transition avanza la máquina validando contra la tabla de transiciones.
func (x *execution) transition(to SettlementState) error {
	for _, allowed := range allowedTransitions[x.state] {
		if allowed == to {
			x.state = to
			return nil
		}
	}
	return fmt.Errorf("transición ilegal de liquidación: %s → %s", x.state, to)
}

// Execute corre un intento completo de liquidación. Devuelve el resultado si
// llegó a Completed; en caso contrario el error que lo abortó.
func (e *SettlementExecutor) Execute(ctx context.Context, req SettlementRequest) (*SettlementResult, error) {
	x := &execution{
		state:           StateIdle,
		attemptID:       uuid.New().String(),
		cache:           NewSnapshotCache(e.gateway),
		originalVersion: req.BaseVersion,
		currentVersion:  req.BaseVersion,
		outstandingPaid: decimal.Zero,
	}
	log := e.log.With().
		Str("attempt_id", x.attemptID).
		Str("invoice_id", req.InvoiceID).
		Str("cashier_id", req.CashierID).
		Logger()

	// abort cierra el intento: limpia el marcador solo en las categorías de
	// conflicto (para no dejar un aviso de pago obsoleto engañoso); ante un
	// fallo genérico el marcador se conserva para que el Recovery Monitor
	// reconcilie en la próxima carga.
	abort := func(err error) error {
		_ = x.transition(StateAborted)
		if x.markerPersisted && isConflictCategory(err) {
			if cerr := e.recovery.Clear(ctx, req.CashierID); cerr != nil {
				log.Error().Err(cerr).Msg("no se pudo limpiar el marcador de recuperación")
			}
		}
		e.finishJournal(ctx, x, entity.AttemptOutcomeAborted, err.Error(), decimal.Zero)
		log.Warn().Err(err).Str("state", x.state.String()).Msg("liquidación abortada")
		return err
	}

	// ═══════════════════════════════════════════════════════════════════════
	// 1. Preparing: baseline de versión y validaciones locales (sin red
	//    mutadora). Todo rechazo aquí ocurre antes de cualquier escritura.
	// ═══════════════════════════════════════════════════════════════════════
	if err := x.transition(StatePreparing); err != nil {
		return nil, err
	}

	inv, err := x.cache.Load(ctx, req.InvoiceID)
	if err != nil {
		return nil, abort(err)
	}
	if inv.IsPaid() {
		return nil, abort(domain.ErrAlreadyFullyPaid)
	}
	if req.OutstandingSnapshot != nil && req.OutstandingSnapshot.PatientID == "" {
		req.OutstandingSnapshot.PatientID = inv.PatientID
	}
	if inv.Version != req.BaseVersion {
		return nil, abort(&domain.VersionConflictError{
			InvoiceID:       req.InvoiceID,
			ExpectedVersion: req.BaseVersion,
			ActualVersion:   inv.Version,
			OriginalVersion: x.originalVersion,
		})
	}

	outstandingBalance := decimal.Zero
	if req.IncludeOutstanding && req.OutstandingSnapshot != nil {
		outstandingBalance = req.OutstandingSnapshot.TotalBalance
	}
	totals := billing.TotalsForInvoice(inv, req.Selections, outstandingBalance)

	if err := validateSettlementRequest(req, totals); err != nil {
		return nil, abort(err)
	}

	plan, err := billing.BuildDispensePlan(inv, req.Selections)
	if err != nil {
		return nil, abort(err)
	}

	// ═══════════════════════════════════════════════════════════════════════
	// 2. CommittingItems: traducir entregas de medicamentos a escrituras,
	//    cada una gatillada por la versión rodante, refrescando la caché y
	//    avanzando currentVersion tras cada llamada.
	// ═══════════════════════════════════════════════════════════════════════
	if err := x.transition(StateCommittingItems); err != nil {
		return nil, err
	}
	for _, upd := range plan.Updates {
		fresh, err := e.gateway.UpdateItem(ctx, req.InvoiceID, upd.ItemID, ItemPayload{
			ItemType:   entity.ItemTypeMedicine,
			Quantity:   upd.Quantity,
			UnitPrice:  upd.UnitPrice,
			TotalPrice: upd.TotalPrice,
			Notes:      upd.Notes,
		}, x.currentVersion)
		if err != nil {
			return nil, abort(err)
		}
		x.cache.Replace(fresh)
		x.currentVersion = fresh.Version
		x.writesIssued++
	}
	for _, wo := range plan.WriteOuts {
		fresh, err := e.gateway.AddItem(ctx, req.InvoiceID, ItemPayload{
			ItemType:   entity.ItemTypeMedicine,
			ItemName:   wo.ItemName,
			Quantity:   wo.Quantity,
			UnitPrice:  decimal.Zero,
			TotalPrice: decimal.Zero,
			Notes:      wo.Notes,
		}, x.currentVersion)
		if err != nil {
			return nil, abort(err)
		}
		x.cache.Replace(fresh)
		x.currentVersion = fresh.Version
		x.writesIssued++
	}

	// ═══════════════════════════════════════════════════════════════════════
	// 3. ValidatingVersion: re-fetch y comparación contra originalVersion y
	//    currentVersion; divergencia del flag de consolidación o de algún
	//    miembro del conjunto pendiente aborta antes de emitir pago alguno.
	// ═══════════════════════════════════════════════════════════════════════
	if err := x.transition(StateValidatingVersion); err != nil {
		return nil, err
	}
	fresh, err := e.gateway.GetInvoice(ctx, req.InvoiceID)
	if err != nil {
		return nil, abort(err)
	}
	if err := x.checkVersions(req.InvoiceID, fresh.Version); err != nil {
		return nil, abort(err)
	}
	if fresh.IncludeOutstandingBalance != req.IncludeOutstanding {
		return nil, abort(domain.ErrFlagChanged)
	}
	x.cache.Replace(fresh)

	var freshOutstanding *entity.OutstandingBalanceSet
	if req.IncludeOutstanding && req.OutstandingSnapshot != nil {
		freshOutstanding, err = e.resolver.Revalidate(ctx, req.OutstandingSnapshot, req.InvoiceID)
		if err != nil {
			return nil, abort(err)
		}
	}

	// El marcador de recuperación se persiste recién ahora, con la validación
	// de versiones aprobada y antes del primer pago.
	markerAmount := totals.Total
	if req.IsPartialPayment {
		markerAmount = req.Amount
	}
	if err := e.recovery.Persist(ctx, req.CashierID, RecoveryMarker{
		InvoiceID:     req.InvoiceID,
		Amount:        markerAmount,
		PaymentMethod: req.PaymentMethod,
	}); err != nil {
		return nil, abort(fmt.Errorf("persistir marcador de recuperación: %w", err))
	}
	x.markerPersisted = true

	e.openJournal(ctx, x, req, fresh)

	// ═══════════════════════════════════════════════════════════════════════
	// 4. PayingOutstanding: saldar las pendientes de la más antigua a la más
	//    nueva, cada pago anotado con el número de la factura en curso (la
	//    vista de historial usa esa nota para no duplicar ingresos).
	//    "Ya pagada" es benigno; cualquier otro error aborta sin reversar los
	//    pagos ya aplicados.
	// ═══════════════════════════════════════════════════════════════════════
	if err := x.transition(StatePayingOutstanding); err != nil {
		return nil, err
	}
	if freshOutstanding.HasBalance() {
		for _, member := range freshOutstanding.Invoices {
			if !member.BalanceDue.GreaterThan(decimal.Zero) {
				continue
			}
			_, payment, err := e.gateway.PayFull(ctx, member.ID, FullPayment{
				AmountPaid: member.BalanceDue,
				Method:     req.PaymentMethod,
				Notes:      fmt.Sprintf("saldo consolidado vía factura %s", fresh.Number),
				ReceivedBy: req.CashierID,
			}, member.Version)
			if errors.Is(err, domain.ErrAlreadyFullyPaid) {
				// Otro operador la saldó entre la re-validación y este pago.
				log.Info().Str("outstanding_id", member.ID).Msg("pendiente ya saldada por otro operador, se continúa")
				continue
			}
			if err != nil {
				return nil, abort(err)
			}
			x.outstandingPaid = x.outstandingPaid.Add(member.BalanceDue)
			if payment != nil {
				x.payments = append(x.payments, *payment)
			}
			e.recordLeg(ctx, x, member, payment)
		}
	}

	// ═══════════════════════════════════════════════════════════════════════
	// 5. PayingCurrent: cargo cero → completar directo; parcial → pago con
	//    motivo de retención; total → una re-validación inmediata más y pago
	//    completo, con complete-invoice explícito si el HIS no auto-transó.
	// ═══════════════════════════════════════════════════════════════════════
	if err := x.transition(StatePayingCurrent); err != nil {
		return nil, err
	}

	var final *entity.Invoice
	var outcome string
	switch {
	case totals.Total.IsZero():
		final, err = e.gateway.CompleteInvoice(ctx, req.InvoiceID, req.CashierID, x.currentVersion)
		if err != nil {
			return nil, abort(err)
		}
		outcome = OutcomeZeroCharge

	case req.IsPartialPayment:
		var payment *entity.PaymentTransaction
		final, payment, err = e.gateway.PayPartial(ctx, req.InvoiceID, PartialPayment{
			Amount:     req.Amount,
			Method:     req.PaymentMethod,
			Notes:      req.PaymentNotes,
			HoldReason: req.HoldReason,
			DueDate:    req.DueDate,
			ReceivedBy: req.CashierID,
		}, x.currentVersion)
		if err != nil {
			return nil, abort(err)
		}
		if payment != nil {
			x.payments = append(x.payments, *payment)
		}
		outcome = OutcomePaidPartial

	default:
		// Defensa contra una escritura ocurrida durante las idas de red del
		// paso 4: re-fetch y comparación inmediata antes del pago total.
		check, err := e.gateway.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return nil, abort(err)
		}
		if err := x.checkVersions(req.InvoiceID, check.Version); err != nil {
			return nil, abort(err)
		}
		x.cache.Replace(check)

		var payment *entity.PaymentTransaction
		final, payment, err = e.gateway.PayFull(ctx, req.InvoiceID, FullPayment{
			AmountPaid: totals.Total,
			Method:     req.PaymentMethod,
			Notes:      req.PaymentNotes,
			ReceivedBy: req.CashierID,
		}, x.currentVersion)
		if err != nil {
			return nil, abort(err)
		}
		if payment != nil {
			x.payments = append(x.payments, *payment)
		}
		if !final.IsPaid() {
			// El HIS debió auto-transicionar a paid y cascadear la visita;
			// si no lo hizo, completar explícitamente.
			final, err = e.gateway.CompleteInvoice(ctx, req.InvoiceID, req.CashierID, final.Version)
			if err != nil {
				return nil, abort(err)
			}
		}
		outcome = OutcomePaidFull
	}
	x.cache.Replace(final)

	// ═══════════════════════════════════════════════════════════════════════
	// 6. Completed: limpiar marcador y cerrar bitácora. El refresh de los
	//    listados pendiente/completado es del llamador (la UI).
	// ═══════════════════════════════════════════════════════════════════════
	if err := x.transition(StateCompleted); err != nil {
		return nil, err
	}
	if err := e.recovery.Clear(ctx, req.CashierID); err != nil {
		log.Error().Err(err).Msg("no se pudo limpiar el marcador de recuperación tras completar")
	}
	amountPaid := decimal.Zero
	for _, p := range x.payments {
		amountPaid = amountPaid.Add(p.Amount)
	}
	e.finishJournal(ctx, x, entity.AttemptOutcomeCompleted, "", amountPaid)

	log.Info().
		Str("outcome", outcome).
		Str("total", totals.Total.StringFixed(2)).
		Str("outstanding_paid", x.outstandingPaid.StringFixed(2)).
		Msg("liquidación completada")

	return &SettlementResult{
		AttemptID:       x.attemptID,
		Outcome:         outcome,
		Invoice:         final,
		Payments:        x.payments,
		Totals:          totals,
		OutstandingPaid: x.outstandingPaid,
	}, nil
}

// checkVersions compara la versión del servidor contra la rodante y verifica
// la coherencia del avance desde la base: sin escrituras propias la versión no
// debe haberse movido; con escrituras debe haber avanzado estrictamente. El
// HIS solo garantiza avance monótono por escritura aceptada, no un paso fijo
// de +1, así que no se exige aritmética exacta sobre el delta.
func (x *execution) checkVersions(invoiceID string, serverVersion int64) error {
	drifted := serverVersion != x.currentVersion ||
		(x.writesIssued == 0 && x.currentVersion != x.originalVersion) ||
		(x.writesIssued > 0 && x.currentVersion <= x.originalVersion)
	if drifted {
		return &domain.VersionConflictError{
			InvoiceID:       invoiceID,
			ExpectedVersion: x.currentVersion,
			ActualVersion:   serverVersion,
			OriginalVersion: x.originalVersion,
		}
	}
	return nil
}

// validateSettlementRequest son los rechazos de dominio previos a toda red
// mutadora: método de pago, motivo de retención, montos y política de tope.
func validateSettlementRequest(req SettlementRequest, totals billing.Totals) error {
	mustPay := !totals.Total.IsZero()
	if mustPay && !entity.ValidPaymentMethod(req.PaymentMethod) {
		return fmt.Errorf("método de pago %q: %w", req.PaymentMethod, domain.ErrInvalidInput)
	}
	if req.IsPartialPayment {
		if req.HoldReason == "" {
			return domain.ErrHoldReasonRequired
		}
		if !req.Amount.GreaterThan(decimal.Zero) {
			return fmt.Errorf("monto parcial debe ser positivo: %w", domain.ErrInvalidInput)
		}
		if req.Amount.GreaterThanOrEqual(totals.Total) {
			return fmt.Errorf("monto parcial %s no es menor que el total %s: %w",
				req.Amount.StringFixed(2), totals.Total.StringFixed(2), domain.ErrInvalidInput)
		}
	}
	// Tope de impagas: con 2 o más pendientes, el pago parcial exige
	// consolidar; de lo contrario se crearía una tercera impaga.
	if req.OutstandingSnapshot.LimitReached() && req.IsPartialPayment && !req.IncludeOutstanding {
		return domain.ErrOutstandingLimit
	}
	return nil
}

// isConflictCategory agrupa los errores ante los que el marcador de
// recuperación debe limpiarse proactivamente (un reintento reconciliaría
// contra un estado que ya se sabe divergente).
func isConflictCategory(err error) bool {
	return errors.Is(err, domain.ErrVersionConflict) ||
		errors.Is(err, domain.ErrFlagChanged) ||
		errors.Is(err, domain.ErrAlreadyFullyPaid) ||
		errors.Is(err, domain.ErrNotFound)
}

// ── Bitácora (best-effort) ────────────────────────────────────────────────────

func (e *SettlementExecutor) openJournal(ctx context.Context, x *execution, req SettlementRequest, inv *entity.Invoice) {
	err := e.journal.CreateAttempt(ctx, &entity.SettlementAttempt{
		ID:              x.attemptID,
		InvoiceID:       req.InvoiceID,
		InvoiceNumber:   inv.Number,
		PatientID:       inv.PatientID,
		CashierID:       req.CashierID,
		Outcome:         entity.AttemptOutcomeRunning,
		OriginalVersion: x.originalVersion,
		AmountPaid:      decimal.Zero,
		OutstandingPaid: decimal.Zero,
		StartedAt:       time.Now(),
	})
	if err != nil {
		e.log.Error().Err(err).Str("attempt_id", x.attemptID).Msg("no se pudo abrir la bitácora de liquidación")
	}
}

func (e *SettlementExecutor) recordLeg(ctx context.Context, x *execution, member entity.OutstandingInvoice, payment *entity.PaymentTransaction) {
	leg := &entity.SettlementLeg{
		ID:         uuid.New().String(),
		AttemptID:  x.attemptID,
		InvoiceID:  member.ID,
		Amount:     member.BalanceDue,
		RecordedAt: time.Now(),
	}
	if payment != nil {
		leg.PaymentID = payment.ID
	}
	if err := e.journal.AddLeg(ctx, leg); err != nil {
		e.log.Error().Err(err).Str("attempt_id", x.attemptID).Str("outstanding_id", member.ID).
			Msg("no se pudo registrar el leg en la bitácora")
	}
}

func (e *SettlementExecutor) finishJournal(ctx context.Context, x *execution, outcome, reason string, amountPaid decimal.Decimal) {
	if x.attemptID == "" {
		return
	}
	if err := e.journal.FinishAttempt(ctx, x.attemptID, outcome, reason, amountPaid, x.outstandingPaid); err != nil {
		e.log.Error().Err(err).Str("attempt_id", x.attemptID).Msg("no se pudo cerrar la bitácora de liquidación")
	}
}
