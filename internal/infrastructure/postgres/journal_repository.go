package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Caja-clinica-api/internal/application/cashier"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

var _ cashier.SettlementJournal = (*JournalRepo)(nil)

// JournalRepo implementa SettlementJournal sobre PostgreSQL.
//
// Esquema esperado:
//
//	CREATE TABLE settlement_attempts (
//	    id               TEXT PRIMARY KEY,
//	    invoice_id       TEXT NOT NULL,
//	    invoice_number   TEXT NOT NULL,
//	    patient_id       TEXT NOT NULL,
//	    cashier_id       TEXT NOT NULL,
//	    outcome          TEXT NOT NULL,          -- running|completed|aborted
//	    failure_reason   TEXT NOT NULL DEFAULT '',
//	    original_version BIGINT NOT NULL,
//	    amount_paid      NUMERIC(14,2) NOT NULL DEFAULT 0,
//	    outstanding_paid NUMERIC(14,2) NOT NULL DEFAULT 0,
//	    started_at       TIMESTAMPTZ NOT NULL,
//	    finished_at      TIMESTAMPTZ
//	);
//
//	CREATE TABLE settlement_legs (
//	    id          TEXT PRIMARY KEY,
//	    attempt_id  TEXT NOT NULL REFERENCES settlement_attempts(id),
//	    invoice_id  TEXT NOT NULL,
//	    amount      NUMERIC(14,2) NOT NULL,
//	    payment_id  TEXT NOT NULL DEFAULT '',
//	    recorded_at TIMESTAMPTZ NOT NULL
//	);
type JournalRepo struct {
	pool *pgxpool.Pool
}

// NewJournalRepository construye el repositorio.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepo {
	return &JournalRepo{pool: pool}
}

func (r *JournalRepo) CreateAttempt(ctx context.Context, a *entity.SettlementAttempt) error {
	const q = `
		INSERT INTO settlement_attempts
			(id, invoice_id, invoice_number, patient_id, cashier_id, outcome,
			 failure_reason, original_version, amount_paid, outstanding_paid, started_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.pool.Exec(ctx, q,
		a.ID, a.InvoiceID, a.InvoiceNumber, a.PatientID, a.CashierID, a.Outcome,
		a.FailureReason, a.OriginalVersion, a.AmountPaid, a.OutstandingPaid, a.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement_attempt: %w", err)
	}
	return nil
}

func (r *JournalRepo) AddLeg(ctx context.Context, leg *entity.SettlementLeg) error {
	const q = `
		INSERT INTO settlement_legs (id, attempt_id, invoice_id, amount, payment_id, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.pool.Exec(ctx, q,
		leg.ID, leg.AttemptID, leg.InvoiceID, leg.Amount, leg.PaymentID, leg.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("insert settlement_leg: %w", err)
	}
	return nil
}

func (r *JournalRepo) FinishAttempt(ctx context.Context, attemptID, outcome, failureReason string, amountPaid, outstandingPaid decimal.Decimal) error {
	const q = `
		UPDATE settlement_attempts
		SET outcome = $2, failure_reason = $3, amount_paid = $4,
		    outstanding_paid = $5, finished_at = now()
		WHERE id = $1`
	_, err := r.pool.Exec(ctx, q, attemptID, outcome, failureReason, amountPaid, outstandingPaid)
	if err != nil {
		return fmt.Errorf("update settlement_attempt: %w", err)
	}
	return nil
}

// ListUnreconciled devuelve los intentos abortados que alcanzaron a aplicar al
// menos un pago de saldo pendiente: dinero real movido por un intento que no
// terminó, candidato a revisión manual.
func (r *JournalRepo) ListUnreconciled(ctx context.Context, limit int) ([]entity.SettlementAttempt, error) {
	const q = `
		SELECT a.id, a.invoice_id, a.invoice_number, a.patient_id, a.cashier_id,
		       a.outcome, a.failure_reason, a.original_version,
		       a.amount_paid, a.outstanding_paid, a.started_at, a.finished_at
		FROM settlement_attempts a
		WHERE a.outcome = $1
		  AND EXISTS (SELECT 1 FROM settlement_legs l WHERE l.attempt_id = a.id)
		ORDER BY a.started_at DESC
		LIMIT $2`
	rows, err := r.pool.Query(ctx, q, entity.AttemptOutcomeAborted, limit)
	if err != nil {
		return nil, fmt.Errorf("list unreconciled attempts: %w", err)
	}
	defer rows.Close()

	var attempts []entity.SettlementAttempt
	for rows.Next() {
		var a entity.SettlementAttempt
		err := rows.Scan(
			&a.ID, &a.InvoiceID, &a.InvoiceNumber, &a.PatientID, &a.CashierID,
			&a.Outcome, &a.FailureReason, &a.OriginalVersion,
			&a.AmountPaid, &a.OutstandingPaid, &a.StartedAt, &a.FinishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan settlement_attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range attempts {
		legs, err := r.legsForAttempt(ctx, attempts[i].ID)
		if err != nil {
			return nil, err
		}
		attempts[i].Legs = legs
	}
	return attempts, nil
}

func (r *JournalRepo) legsForAttempt(ctx context.Context, attemptID string) ([]entity.SettlementLeg, error) {
	const q = `
		SELECT id, attempt_id, invoice_id, amount, payment_id, recorded_at
		FROM settlement_legs
		WHERE attempt_id = $1
		ORDER BY recorded_at`
	rows, err := r.pool.Query(ctx, q, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list settlement_legs: %w", err)
	}
	defer rows.Close()

	var legs []entity.SettlementLeg
	for rows.Next() {
		var l entity.SettlementLeg
		if err := rows.Scan(&l.ID, &l.AttemptID, &l.InvoiceID, &l.Amount, &l.PaymentID, &l.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan settlement_leg: %w", err)
		}
		legs = append(legs, l)
	}
	return legs, rows.Err()
}
