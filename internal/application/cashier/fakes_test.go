package cashier

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes guionados para los tests de la capa de aplicación: un HIS en memoria
// con versionado optimista real, un almacén clave-valor y una bitácora.
// ──────────────────────────────────────────────────────────────────────────────

type fakeGateway struct {
	mu       sync.Mutex
	invoices map[string]*entity.Invoice
	payments []entity.PaymentTransaction

	getCalls int
	// onGet permite simular a otro operador mutando el estado entre llamadas:
	// recibe el número de GetInvoice (1-based) y el estado interno.
	onGet func(call int, invoices map[string]*entity.Invoice)

	// payFullErr fuerza un error en PayFull para una factura concreta.
	payFullErr map[string]error

	// versionStep es cuánto avanza la versión por escritura aceptada (por
	// defecto 1); el contrato real solo promete avance estrictamente mayor.
	versionStep int64

	receiptPDF []byte
}

func newFakeGateway(invoices ...*entity.Invoice) *fakeGateway {
	g := &fakeGateway{
		invoices:   make(map[string]*entity.Invoice),
		payFullErr: make(map[string]error),
	}
	for _, inv := range invoices {
		g.invoices[inv.ID] = inv.Clone()
	}
	return g
}

func (g *fakeGateway) invoice(id string) *entity.Invoice {
	g.mu.Lock()
	defer g.mu.Unlock()
	if inv, ok := g.invoices[id]; ok {
		return inv.Clone()
	}
	return nil
}

func (g *fakeGateway) bump(inv *entity.Invoice) {
	step := g.versionStep
	if step <= 0 {
		step = 1
	}
	inv.Version += step
}

func (g *fakeGateway) checkVersion(inv *entity.Invoice, expected int64) error {
	if inv.Version != expected {
		return &domain.VersionConflictError{
			InvoiceID:       inv.ID,
			ExpectedVersion: expected,
			ActualVersion:   inv.Version,
		}
	}
	return nil
}

func (g *fakeGateway) GetInvoice(_ context.Context, invoiceID string) (*entity.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.getCalls++
	if g.onGet != nil {
		g.onGet(g.getCalls, g.invoices)
	}
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return inv.Clone(), nil
}

func (g *fakeGateway) UpdateDiscount(_ context.Context, invoiceID string, pct, amount decimal.Decimal, expectedVersion int64) (*entity.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, err
	}
	inv.DiscountPercentage = pct
	inv.DiscountAmount = amount
	g.bump(inv)
	return inv.Clone(), nil
}

func (g *fakeGateway) UpdateOutstandingFlag(_ context.Context, invoiceID string, include bool, expectedVersion int64) (*entity.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, err
	}
	inv.IncludeOutstandingBalance = include
	g.bump(inv)
	return inv.Clone(), nil
}

func (g *fakeGateway) AddItem(_ context.Context, invoiceID string, p ItemPayload, expectedVersion int64) (*entity.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, err
	}
	inv.Items = append(inv.Items, entity.InvoiceItem{
		ID:         fmt.Sprintf("item-%d", len(inv.Items)+1),
		ItemType:   p.ItemType,
		ItemName:   p.ItemName,
		Quantity:   p.Quantity,
		UnitPrice:  p.UnitPrice,
		TotalPrice: p.TotalPrice,
		Notes:      p.Notes,
	})
	g.bump(inv)
	return inv.Clone(), nil
}

func (g *fakeGateway) UpdateItem(_ context.Context, invoiceID, itemID string, p ItemPayload, expectedVersion int64) (*entity.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, err
	}
	for i := range inv.Items {
		if inv.Items[i].ID == itemID {
			inv.Items[i].Quantity = p.Quantity
			inv.Items[i].UnitPrice = p.UnitPrice
			inv.Items[i].TotalPrice = p.TotalPrice
			if p.ItemName != "" {
				inv.Items[i].ItemName = p.ItemName
			}
			inv.Items[i].Notes = p.Notes
			g.bump(inv)
			return inv.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (g *fakeGateway) RemoveItem(_ context.Context, invoiceID, itemID string, expectedVersion int64) (*entity.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, err
	}
	for i := range inv.Items {
		if inv.Items[i].ID == itemID {
			inv.Items = append(inv.Items[:i], inv.Items[i+1:]...)
			g.bump(inv)
			return inv.Clone(), nil
		}
	}
	return nil, domain.ErrNotFound
}

// OutstandingBalance deriva el conjunto del estado interno: facturas impagas
// con saldo del paciente, como haría el HIS real.
func (g *fakeGateway) OutstandingBalance(_ context.Context, patientID string) ([]entity.OutstandingInvoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []entity.OutstandingInvoice
	for _, inv := range g.invoices {
		if inv.PatientID != patientID || inv.IsPaid() || !inv.BalanceDue.GreaterThan(decimal.Zero) {
			continue
		}
		out = append(out, entity.OutstandingInvoice{
			ID:         inv.ID,
			Number:     inv.Number,
			Status:     inv.Status,
			Version:    inv.Version,
			BalanceDue: inv.BalanceDue,
			CreatedAt:  inv.CreatedAt,
		})
	}
	return out, nil
}

func (g *fakeGateway) PayPartial(_ context.Context, invoiceID string, p PartialPayment, expectedVersion int64) (*entity.Invoice, *entity.PaymentTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, nil, err
	}
	inv.Status = entity.InvoiceStatusPartialPaid
	inv.BalanceDue = inv.BalanceDue.Sub(p.Amount)
	g.bump(inv)
	payment := entity.PaymentTransaction{
		ID:            fmt.Sprintf("pay-%d", len(g.payments)+1),
		InvoiceID:     invoiceID,
		Amount:        p.Amount,
		PaymentMethod: p.Method,
		PaymentNotes:  p.Notes,
		HoldReason:    p.HoldReason,
		DueDate:       p.DueDate,
		ReceivedBy:    p.ReceivedBy,
		CreatedAt:     time.Now(),
	}
	g.payments = append(g.payments, payment)
	return inv.Clone(), &payment, nil
}

func (g *fakeGateway) PayFull(_ context.Context, invoiceID string, p FullPayment, expectedVersion int64) (*entity.Invoice, *entity.PaymentTransaction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err, ok := g.payFullErr[invoiceID]; ok {
		return nil, nil, err
	}
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, nil, domain.ErrNotFound
	}
	if inv.IsPaid() {
		return nil, nil, domain.ErrAlreadyFullyPaid
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, nil, err
	}
	inv.Status = entity.InvoiceStatusPaid
	inv.BalanceDue = decimal.Zero
	g.bump(inv)
	payment := entity.PaymentTransaction{
		ID:            fmt.Sprintf("pay-%d", len(g.payments)+1),
		InvoiceID:     invoiceID,
		Amount:        p.AmountPaid,
		PaymentMethod: p.Method,
		PaymentNotes:  p.Notes,
		ReceivedBy:    p.ReceivedBy,
		CreatedAt:     time.Now(),
	}
	g.payments = append(g.payments, payment)
	return inv.Clone(), &payment, nil
}

func (g *fakeGateway) CompleteInvoice(_ context.Context, invoiceID, _ string, expectedVersion int64) (*entity.Invoice, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	inv, ok := g.invoices[invoiceID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := g.checkVersion(inv, expectedVersion); err != nil {
		return nil, err
	}
	inv.Status = entity.InvoiceStatusPaid
	inv.BalanceDue = decimal.Zero
	g.bump(inv)
	return inv.Clone(), nil
}

func (g *fakeGateway) ReceiptPDF(_ context.Context, _ string) ([]byte, error) {
	if g.receiptPDF == nil {
		return nil, domain.ErrNotFound
	}
	return g.receiptPDF, nil
}

// ── Almacén clave-valor en memoria ────────────────────────────────────────────

type memStore struct {
	mu   sync.Mutex
	data map[string]string
	ttls map[string]time.Duration
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string), ttls: make(map[string]time.Duration)}
}

func (s *memStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *memStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	delete(s.ttls, key)
	return nil
}

func (s *memStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// ── Bitácora en memoria ───────────────────────────────────────────────────────

type memJournal struct {
	mu       sync.Mutex
	attempts map[string]*entity.SettlementAttempt
}

func newMemJournal() *memJournal {
	return &memJournal{attempts: make(map[string]*entity.SettlementAttempt)}
}

func (j *memJournal) CreateAttempt(_ context.Context, a *entity.SettlementAttempt) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	cp := *a
	j.attempts[a.ID] = &cp
	return nil
}

func (j *memJournal) AddLeg(_ context.Context, leg *entity.SettlementLeg) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if a, ok := j.attempts[leg.AttemptID]; ok {
		a.Legs = append(a.Legs, *leg)
	}
	return nil
}

func (j *memJournal) FinishAttempt(_ context.Context, attemptID, outcome, failureReason string, amountPaid, outstandingPaid decimal.Decimal) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if a, ok := j.attempts[attemptID]; ok {
		now := time.Now()
		a.Outcome = outcome
		a.FailureReason = failureReason
		a.AmountPaid = amountPaid
		a.OutstandingPaid = outstandingPaid
		a.FinishedAt = &now
	}
	return nil
}

func (j *memJournal) ListUnreconciled(_ context.Context, limit int) ([]entity.SettlementAttempt, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []entity.SettlementAttempt
	for _, a := range j.attempts {
		if a.Outcome == entity.AttemptOutcomeAborted && len(a.Legs) > 0 {
			out = append(out, *a)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (j *memJournal) attempt(id string) *entity.SettlementAttempt {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.attempts[id]
}
