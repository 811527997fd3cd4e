package cashier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
	"github.com/jhoicas/Caja-clinica-api/pkg/logger"
)

// ReceiptService obtiene el recibo de un pago. Primero intenta el PDF oficial
// del HIS; si el HIS no lo tiene (o falla transitoriamente), genera un recibo
// de caja local con los datos ya en mano, para que el cajero nunca quede sin
// comprobante que imprimir.
type ReceiptService struct {
	gateway   ClinicGateway
	generator ReceiptGenerator
	clinic    string
	log       *logger.Logger
}

// NewReceiptService construye el servicio de recibos.
func NewReceiptService(gateway ClinicGateway, generator ReceiptGenerator, clinicName string, log *logger.Logger) *ReceiptService {
	return &ReceiptService{gateway: gateway, generator: generator, clinic: clinicName, log: log}
}

// Fetch devuelve el PDF oficial del recibo emitido por el HIS.
func (s *ReceiptService) Fetch(ctx context.Context, paymentID string) ([]byte, error) {
	pdf, err := s.gateway.ReceiptPDF(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	return pdf, nil
}

// GenerateLocal arma un recibo de caja desde la factura y el pago, sin pasar
// por el HIS. Se usa como respaldo cuando el recibo oficial no está disponible
// y para la copia interna de caja.
func (s *ReceiptService) GenerateLocal(ctx context.Context, inv *entity.Invoice, payment *entity.PaymentTransaction, totals ReceiptTotals) ([]byte, error) {
	if inv == nil || payment == nil {
		return nil, fmt.Errorf("factura y pago requeridos para el recibo: %w", domain.ErrInvalidInput)
	}

	data := &ReceiptData{
		ClinicName:    s.clinic,
		InvoiceNumber: inv.Number,
		PatientID:     inv.PatientID,
		CashierID:     payment.ReceivedBy,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		Total:         totals.Total,
		AmountPaid:    payment.Amount,
		BalanceDue:    inv.BalanceDue,
		PaymentMethod: payment.PaymentMethod,
		IssuedAt:      payment.CreatedAt,
	}
	if data.IssuedAt.IsZero() {
		data.IssuedAt = time.Now()
	}
	for _, item := range inv.Items {
		data.Lines = append(data.Lines, ReceiptLine{
			Description: item.ItemName,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			Total:       item.TotalPrice,
		})
	}

	pdf, err := s.generator.GenerateReceiptPDF(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("generar recibo local: %w", err)
	}
	return pdf, nil
}

// FetchOrGenerate intenta el recibo oficial y cae al local ante 404 del HIS.
func (s *ReceiptService) FetchOrGenerate(ctx context.Context, paymentID string, inv *entity.Invoice, payment *entity.PaymentTransaction, totals ReceiptTotals) ([]byte, error) {
	pdf, err := s.gateway.ReceiptPDF(ctx, paymentID)
	if err == nil {
		return pdf, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	s.log.Warn().Str("payment_id", paymentID).Msg("recibo oficial no disponible, se genera recibo local")
	return s.GenerateLocal(ctx, inv, payment, totals)
}

// ReceiptTotals son los totales mostrados en el recibo, tal como se calcularon
// al liquidar.
type ReceiptTotals struct {
	Subtotal decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}
