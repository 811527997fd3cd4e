package clinicapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/application/cashier"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

// Códigos de error del HIS que se mapean a sentinelas de dominio.
const (
	errCodeVersionConflict = "version_conflict"
	errCodeAlreadyPaid     = "already_paid"
)

const maxResponseBytes = 4 << 20 // las facturas con muchas líneas siguen lejos de 4 MB

// Client habla con la API REST del HIS. Autentica con API key de servicio y
// usa net/http de la stdlib; no requiere librerías de terceros.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logger.Logger
}

// compile-time check del puerto.
var _ cashier.ClinicGateway = (*Client)(nil)

// NewClient construye el cliente. timeout acota cada llamada individual; las
// secuencias largas (liquidación) gobiernan además con el context.
func NewClient(baseURL, apiKey string, timeout time.Duration, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// do ejecuta una llamada JSON y decodifica la respuesta en out (si no es nil).
// Los estados de error del HIS se traducen a errores de dominio en mapError.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("clinicapi: serializar cuerpo: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("clinicapi: crear request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("clinicapi: timeout o cancelación: %w", ctx.Err())
		}
		return fmt.Errorf("clinicapi: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("clinicapi: leer respuesta: %w", err)
	}

	if resp.StatusCode >= 400 {
		return c.mapError(resp.StatusCode, raw, path)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("clinicapi: decodificar respuesta de %s: %w", path, err)
	}
	return nil
}

// mapError traduce los estados HTTP del HIS a errores de dominio. El 409 trae
// en el cuerpo las versiones en juego y se materializa como
// *domain.VersionConflictError para que la capa de aplicación pueda
// re-sincronizar sin parsear mensajes.
func (c *Client) mapError(status int, raw []byte, path string) error {
	var doc errorDoc
	_ = json.Unmarshal(raw, &doc) // cuerpo no-JSON: doc queda en ceros

	switch {
	case status == http.StatusNotFound:
		return domain.ErrNotFound
	case status == http.StatusConflict && doc.Code == errCodeVersionConflict:
		return &domain.VersionConflictError{
			ExpectedVersion: doc.ExpectedVersion,
			ActualVersion:   doc.CurrentVersion,
		}
	case status == http.StatusConflict && doc.Code == errCodeAlreadyPaid:
		return domain.ErrAlreadyFullyPaid
	case status == http.StatusUnprocessableEntity, status == http.StatusBadRequest:
		return fmt.Errorf("clinicapi: %s rechazado (%s): %w", path, doc.Message, domain.ErrInvalidInput)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return fmt.Errorf("clinicapi: credenciales de servicio rechazadas en %s: %w", path, domain.ErrForbidden)
	}
	c.log.Error().Int("status", status).Str("path", path).Str("body", string(raw)).
		Msg("respuesta inesperada del HIS")
	return fmt.Errorf("clinicapi: %s devolvió estado %d", path, status)
}

// ── ClinicGateway ─────────────────────────────────────────────────────────────

func (c *Client) GetInvoice(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	var env invoiceEnvelope
	if err := c.do(ctx, http.MethodGet, "/api/v1/invoices/"+url.PathEscape(invoiceID), nil, &env); err != nil {
		return nil, err
	}
	return env.Invoice.toEntity(), nil
}

func (c *Client) UpdateDiscount(ctx context.Context, invoiceID string, pct, amount decimal.Decimal, expectedVersion int64) (*entity.Invoice, error) {
	var env invoiceEnvelope
	body := discountBody{DiscountPercentage: pct, DiscountAmount: amount, ExpectedVersion: expectedVersion}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/invoices/"+url.PathEscape(invoiceID)+"/discount", body, &env); err != nil {
		return nil, err
	}
	return env.Invoice.toEntity(), nil
}

func (c *Client) UpdateOutstandingFlag(ctx context.Context, invoiceID string, include bool, expectedVersion int64) (*entity.Invoice, error) {
	var env invoiceEnvelope
	body := outstandingFlagBody{IncludeOutstandingBalance: include, ExpectedVersion: expectedVersion}
	if err := c.do(ctx, http.MethodPatch, "/api/v1/invoices/"+url.PathEscape(invoiceID)+"/outstanding-flag", body, &env); err != nil {
		return nil, err
	}
	return env.Invoice.toEntity(), nil
}

func (c *Client) AddItem(ctx context.Context, invoiceID string, p cashier.ItemPayload, expectedVersion int64) (*entity.Invoice, error) {
	var env invoiceEnvelope
	body := itemBody{
		ItemType:        p.ItemType,
		ItemName:        p.ItemName,
		Quantity:        p.Quantity,
		UnitPrice:       p.UnitPrice,
		TotalPrice:      p.TotalPrice,
		Notes:           p.Notes,
		ExpectedVersion: expectedVersion,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices/"+url.PathEscape(invoiceID)+"/items", body, &env); err != nil {
		return nil, err
	}
	return env.Invoice.toEntity(), nil
}

func (c *Client) UpdateItem(ctx context.Context, invoiceID, itemID string, p cashier.ItemPayload, expectedVersion int64) (*entity.Invoice, error) {
	var env invoiceEnvelope
	body := itemBody{
		ItemType:        p.ItemType,
		ItemName:        p.ItemName,
		Quantity:        p.Quantity,
		UnitPrice:       p.UnitPrice,
		TotalPrice:      p.TotalPrice,
		Notes:           p.Notes,
		ExpectedVersion: expectedVersion,
	}
	path := "/api/v1/invoices/" + url.PathEscape(invoiceID) + "/items/" + url.PathEscape(itemID)
	if err := c.do(ctx, http.MethodPut, path, body, &env); err != nil {
		return nil, err
	}
	return env.Invoice.toEntity(), nil
}

func (c *Client) RemoveItem(ctx context.Context, invoiceID, itemID string, expectedVersion int64) (*entity.Invoice, error) {
	var env invoiceEnvelope
	path := "/api/v1/invoices/" + url.PathEscape(invoiceID) + "/items/" + url.PathEscape(itemID) +
		"?expected_version=" + strconv.FormatInt(expectedVersion, 10)
	if err := c.do(ctx, http.MethodDelete, path, nil, &env); err != nil {
		return nil, err
	}
	return env.Invoice.toEntity(), nil
}

func (c *Client) OutstandingBalance(ctx context.Context, patientID string) ([]entity.OutstandingInvoice, error) {
	var env outstandingEnvelope
	path := "/api/v1/patients/" + url.PathEscape(patientID) + "/invoices?status=unpaid"
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}
	out := make([]entity.OutstandingInvoice, 0, len(env.Invoices))
	for _, doc := range env.Invoices {
		out = append(out, doc.toEntity())
	}
	return out, nil
}

func (c *Client) PayPartial(ctx context.Context, invoiceID string, p cashier.PartialPayment, expectedVersion int64) (*entity.Invoice, *entity.PaymentTransaction, error) {
	var env paymentEnvelope
	body := partialPaymentBody{
		Amount:          p.Amount,
		PaymentMethod:   p.Method,
		PaymentNotes:    p.Notes,
		HoldReason:      p.HoldReason,
		DueDate:         p.DueDate,
		ReceivedBy:      p.ReceivedBy,
		ExpectedVersion: expectedVersion,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices/"+url.PathEscape(invoiceID)+"/payments/partial", body, &env); err != nil {
		return nil, nil, err
	}
	return env.Invoice.toEntity(), paymentOrNil(env.Payment), nil
}

func (c *Client) PayFull(ctx context.Context, invoiceID string, p cashier.FullPayment, expectedVersion int64) (*entity.Invoice, *entity.PaymentTransaction, error) {
	var env paymentEnvelope
	body := fullPaymentBody{
		AmountPaid:      p.AmountPaid,
		PaymentMethod:   p.Method,
		PaymentNotes:    p.Notes,
		ReceivedBy:      p.ReceivedBy,
		ExpectedVersion: expectedVersion,
	}
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices/"+url.PathEscape(invoiceID)+"/payments/full", body, &env); err != nil {
		return nil, nil, err
	}
	return env.Invoice.toEntity(), paymentOrNil(env.Payment), nil
}

func (c *Client) CompleteInvoice(ctx context.Context, invoiceID, completedBy string, expectedVersion int64) (*entity.Invoice, error) {
	var env invoiceEnvelope
	body := completeBody{CompletedBy: completedBy, ExpectedVersion: expectedVersion}
	if err := c.do(ctx, http.MethodPost, "/api/v1/invoices/"+url.PathEscape(invoiceID)+"/complete", body, &env); err != nil {
		return nil, err
	}
	return env.Invoice.toEntity(), nil
}

// ReceiptPDF trae el PDF oficial del recibo. No pasa por do() porque la
// respuesta es binaria, no JSON.
func (c *Client) ReceiptPDF(ctx context.Context, paymentID string) ([]byte, error) {
	path := c.baseURL + "/api/v1/payments/" + url.PathEscape(paymentID) + "/receipt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("clinicapi: crear request: %w", err)
	}
	req.Header.Set("Accept", "application/pdf")
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clinicapi: llamada HTTP fallida: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		return nil, c.mapError(resp.StatusCode, raw, "/api/v1/payments/:id/receipt")
	}
	pdf, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("clinicapi: leer PDF del recibo: %w", err)
	}
	return pdf, nil
}

func paymentOrNil(doc *paymentDoc) *entity.PaymentTransaction {
	if doc == nil {
		return nil
	}
	return doc.toEntity()
}
