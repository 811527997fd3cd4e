package http

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/Caja-clinica-api/internal/application/cashier"
	"github.com/jhoicas/Caja-clinica-api/internal/application/dto"
	"github.com/jhoicas/Caja-clinica-api/internal/domain"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/billing"
	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// CashierHandler maneja la superficie HTTP de caja (protegida).
type CashierHandler struct {
	gateway        cashier.ClinicGateway
	editor         *cashier.LineItemEditor
	resolver       *cashier.OutstandingResolver
	executor       *cashier.SettlementExecutor
	recovery       *cashier.RecoveryMonitor
	receipts       *cashier.ReceiptService
	reconciliation *cashier.ReconciliationService
}

// NewCashierHandler construye el handler.
func NewCashierHandler(
	gateway cashier.ClinicGateway,
	editor *cashier.LineItemEditor,
	resolver *cashier.OutstandingResolver,
	executor *cashier.SettlementExecutor,
	recovery *cashier.RecoveryMonitor,
	receipts *cashier.ReceiptService,
	reconciliation *cashier.ReconciliationService,
) *CashierHandler {
	return &CashierHandler{
		gateway:        gateway,
		editor:         editor,
		resolver:       resolver,
		executor:       executor,
		recovery:       recovery,
		receipts:       receipts,
		reconciliation: reconciliation,
	}
}

// GetInvoice devuelve el snapshot fresco de la factura con sus totales
// derivados y el conjunto de facturas pendientes del paciente.
// GET /api/cashier/invoices/:id
func (h *CashierHandler) GetInvoice(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "id requerido"})
	}

	inv, err := h.gateway.GetInvoice(c.Context(), id)
	if err != nil {
		return h.mapError(c, err)
	}
	outstanding, err := h.resolver.Resolve(c.Context(), inv.PatientID, inv.ID)
	if err != nil {
		return h.mapError(c, err)
	}

	totals := billing.TotalsForInvoice(inv, nil, outstanding.TotalBalance)
	return c.JSON(fiber.Map{
		"invoice":     toInvoiceResponse(inv),
		"totals":      toTotalsResponse(totals),
		"outstanding": toOutstandingResponse(outstanding),
	})
}

// GetOutstanding devuelve el conjunto de facturas impagas de un paciente.
// GET /api/cashier/patients/:patientId/outstanding?exclude=<invoiceID>
func (h *CashierHandler) GetOutstanding(c *fiber.Ctx) error {
	patientID := c.Params("patientId")
	if patientID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "patientId requerido"})
	}
	set, err := h.resolver.Resolve(c.Context(), patientID, c.Query("exclude"))
	if err != nil {
		return h.mapError(c, err)
	}
	return c.JSON(toOutstandingResponse(set))
}

// AddItem agrega una línea (servicio o medicamento) a la factura.
// POST /api/cashier/invoices/:id/items
func (h *CashierHandler) AddItem(c *fiber.Ctx) error {
	id := c.Params("id")
	var in dto.ItemRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	payload := cashier.ItemPayload{
		ItemName:   in.ItemName,
		Quantity:   in.Quantity,
		UnitPrice:  in.UnitPrice,
		TotalPrice: in.UnitPrice.Mul(in.Quantity),
		Notes:      in.Notes,
	}
	var result *cashier.MutationResult
	var err error
	switch in.ItemType {
	case entity.ItemTypeMedicine:
		result, err = h.editor.AddMedicineItem(c.Context(), id, payload, in.ExpectedVersion)
	default:
		result, err = h.editor.AddService(c.Context(), id, payload, in.ExpectedVersion)
	}
	if err != nil {
		return h.mapError(c, err)
	}
	return writeMutation(c, result)
}

// UpdateItem edita una línea existente.
// PUT /api/cashier/invoices/:id/items/:itemId
func (h *CashierHandler) UpdateItem(c *fiber.Ctx) error {
	id, itemID := c.Params("id"), c.Params("itemId")
	var in dto.ItemRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	payload := cashier.ItemPayload{
		ItemName:   in.ItemName,
		Quantity:   in.Quantity,
		UnitPrice:  in.UnitPrice,
		TotalPrice: in.UnitPrice.Mul(in.Quantity),
		Notes:      in.Notes,
	}
	var result *cashier.MutationResult
	var err error
	switch in.ItemType {
	case entity.ItemTypeMedicine:
		payload.ItemType = entity.ItemTypeMedicine
		result, err = h.editor.UpdateInvoiceItem(c.Context(), id, itemID, payload, in.ExpectedVersion)
	default:
		result, err = h.editor.UpdateService(c.Context(), id, itemID, payload, in.ExpectedVersion)
	}
	if err != nil {
		return h.mapError(c, err)
	}
	return writeMutation(c, result)
}

// RemoveItem elimina una línea de la factura.
// DELETE /api/cashier/invoices/:id/items/:itemId?expected_version=N
func (h *CashierHandler) RemoveItem(c *fiber.Ctx) error {
	id, itemID := c.Params("id"), c.Params("itemId")
	expected, err := strconv.ParseInt(c.Query("expected_version"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "expected_version requerido"})
	}
	result, err := h.editor.RemoveService(c.Context(), id, itemID, expected)
	if err != nil {
		return h.mapError(c, err)
	}
	return writeMutation(c, result)
}

// UpdateDiscount cambia el descuento de la factura (porcentaje XOR monto fijo).
// PUT /api/cashier/invoices/:id/discount
func (h *CashierHandler) UpdateDiscount(c *fiber.Ctx) error {
	id := c.Params("id")
	var in dto.DiscountRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	result, err := h.editor.UpdateDiscount(c.Context(), id, in.DiscountPercentage, in.DiscountAmount, in.ExpectedVersion)
	if err != nil {
		return h.mapError(c, err)
	}
	return writeMutation(c, result)
}

// UpdateOutstandingFlag persiste el flag de consolidación de saldo pendiente.
// PUT /api/cashier/invoices/:id/outstanding-flag
func (h *CashierHandler) UpdateOutstandingFlag(c *fiber.Ctx) error {
	id := c.Params("id")
	var in dto.OutstandingFlagRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	result, err := h.editor.UpdateOutstandingBalanceFlag(c.Context(), id, in.IncludeOutstandingBalance, in.ExpectedVersion)
	if err != nil {
		return h.mapError(c, err)
	}
	return writeMutation(c, result)
}

// Settle ejecuta la liquidación completa de la factura.
// POST /api/cashier/invoices/:id/settle
func (h *CashierHandler) Settle(c *fiber.Ctx) error {
	id := c.Params("id")
	cashierID := GetUserID(c)
	var in dto.SettleRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}

	req := cashier.SettlementRequest{
		InvoiceID:          id,
		BaseVersion:        in.BaseVersion,
		IncludeOutstanding: in.IncludeOutstanding,
		IsPartialPayment:   in.IsPartialPayment,
		Amount:             in.Amount,
		PaymentMethod:      in.PaymentMethod,
		PaymentNotes:       in.PaymentNotes,
		HoldReason:         in.HoldReason,
		DueDate:            in.DueDate,
		CashierID:          cashierID,
	}
	for _, s := range in.Selections {
		req.Selections = append(req.Selections, entity.MedicineSelection{
			ItemID:       s.ItemID,
			Action:       s.Action,
			DispensedQty: s.DispensedQty,
		})
	}
	if len(in.Outstanding) > 0 {
		set := &entity.OutstandingBalanceSet{TotalBalance: decimal.Zero}
		for _, o := range in.Outstanding {
			set.Invoices = append(set.Invoices, entity.OutstandingInvoice{
				ID:         o.ID,
				Number:     o.Number,
				Status:     o.Status,
				Version:    o.Version,
				BalanceDue: o.BalanceDue,
				CreatedAt:  o.CreatedAt,
			})
			set.TotalBalance = set.TotalBalance.Add(o.BalanceDue)
		}
		set.InvoiceCount = len(set.Invoices)
		req.OutstandingSnapshot = set
	}

	result, err := h.executor.Execute(c.Context(), req)
	if err != nil {
		return h.mapError(c, err)
	}

	out := dto.SettleResponse{
		AttemptID:       result.AttemptID,
		Outcome:         result.Outcome,
		Invoice:         toInvoiceResponse(result.Invoice),
		Totals:          *toTotalsResponse(result.Totals),
		OutstandingPaid: result.OutstandingPaid,
	}
	for _, p := range result.Payments {
		out.Payments = append(out.Payments, toPaymentResponse(p))
	}
	return c.JSON(out)
}

// CheckRecovery reconcilia el marcador de pago en vuelo del cajero autenticado.
// GET /api/cashier/recovery
func (h *CashierHandler) CheckRecovery(c *fiber.Ctx) error {
	check, err := h.recovery.Check(c.Context(), GetUserID(c))
	if err != nil {
		return h.mapError(c, err)
	}
	out := dto.RecoveryCheckResponse{Status: check.Status}
	if check.Marker != nil {
		out.Marker = &dto.RecoveryMarkerResponse{
			InvoiceID:     check.Marker.InvoiceID,
			Amount:        check.Marker.Amount,
			PaymentMethod: check.Marker.PaymentMethod,
			Timestamp:     check.Marker.Timestamp,
		}
	}
	return c.JSON(out)
}

// ClearRecovery descarta el marcador tras la verificación manual del cajero.
// DELETE /api/cashier/recovery
func (h *CashierHandler) ClearRecovery(c *fiber.Ctx) error {
	if err := h.recovery.Clear(c.Context(), GetUserID(c)); err != nil {
		return h.mapError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetReceipt devuelve el PDF del recibo de un pago.
// GET /api/cashier/payments/:paymentId/receipt
func (h *CashierHandler) GetReceipt(c *fiber.Ctx) error {
	paymentID := c.Params("paymentId")
	pdf, err := h.receipts.Fetch(c.Context(), paymentID)
	if err != nil {
		return h.mapError(c, err)
	}
	c.Set("Content-Type", "application/pdf")
	return c.Send(pdf)
}

// GenerateReceipt emite la copia interna de caja de un recibo: intenta el PDF
// oficial del HIS y, si no existe, genera uno local con maroto.
// POST /api/cashier/receipts
func (h *CashierHandler) GenerateReceipt(c *fiber.Ctx) error {
	var in dto.LocalReceiptRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	if in.InvoiceID == "" || in.PaymentID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "invoice_id y payment_id requeridos"})
	}

	inv, err := h.gateway.GetInvoice(c.Context(), in.InvoiceID)
	if err != nil {
		return h.mapError(c, err)
	}

	totals := billing.TotalsForInvoice(inv, nil, decimal.Zero)
	payment := &entity.PaymentTransaction{
		ID:            in.PaymentID,
		InvoiceID:     inv.ID,
		Amount:        in.Amount,
		PaymentMethod: in.PaymentMethod,
		ReceivedBy:    GetUserID(c),
	}
	pdf, err := h.receipts.FetchOrGenerate(c.Context(), in.PaymentID, inv, payment, cashier.ReceiptTotals{
		Subtotal: totals.Subtotal,
		Discount: totals.Discount,
		Total:    totals.Total,
	})
	if err != nil {
		return h.mapError(c, err)
	}
	c.Set("Content-Type", "application/pdf")
	return c.Send(pdf)
}

// GetReconciliation lista los intentos abortados con pagos aplicados (solo admin).
// GET /api/cashier/reconciliation?limit=N
func (h *CashierHandler) GetReconciliation(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{
			Code: "VALIDATION", Message: "parámetros de paginación inválidos",
		})
	}
	page.DefaultPage()

	report, err := h.reconciliation.Report(c.Context(), page.Limit)
	if err != nil {
		return h.mapError(c, err)
	}

	out := dto.ReconciliationResponse{
		TotalExposure: report.TotalExposure,
		Page: dto.PageResponse{
			Limit:  page.Limit,
			Offset: page.Offset,
			Total:  len(report.Attempts),
		},
	}
	for _, a := range report.Attempts {
		resp := dto.SettlementAttemptResponse{
			ID:              a.ID,
			InvoiceID:       a.InvoiceID,
			InvoiceNumber:   a.InvoiceNumber,
			PatientID:       a.PatientID,
			CashierID:       a.CashierID,
			Outcome:         a.Outcome,
			FailureReason:   a.FailureReason,
			OutstandingPaid: a.OutstandingPaid,
			StartedAt:       a.StartedAt,
			FinishedAt:      a.FinishedAt,
		}
		for _, l := range a.Legs {
			resp.Legs = append(resp.Legs, dto.SettlementLegResponse{
				InvoiceID:  l.InvoiceID,
				Amount:     l.Amount,
				PaymentID:  l.PaymentID,
				RecordedAt: l.RecordedAt,
			})
		}
		out.Attempts = append(out.Attempts, resp)
	}
	return c.JSON(out)
}

// ── Mapeo de errores y respuestas ─────────────────────────────────────────────

// writeMutation serializa un MutationResult: 200 si se aplicó, 409 con el
// estado fresco del servidor si hubo conflicto de versión.
func writeMutation(c *fiber.Ctx, result *cashier.MutationResult) error {
	out := dto.MutationResponse{
		Applied: result.Applied,
		Invoice: toInvoiceResponse(result.Invoice),
	}
	if result.Applied {
		return c.JSON(out)
	}
	out.Conflict = &dto.VersionConflictResponse{
		InvoiceID:       result.Conflict.InvoiceID,
		ExpectedVersion: result.Conflict.ExpectedVersion,
		ActualVersion:   result.Conflict.ActualVersion,
		OriginalVersion: result.Conflict.OriginalVersion,
	}
	return c.Status(fiber.StatusConflict).JSON(out)
}

// mapError traduce errores de dominio a respuestas HTTP.
func (h *CashierHandler) mapError(c *fiber.Ctx, err error) error {
	var versionConflict *domain.VersionConflictError
	if errors.As(err, &versionConflict) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"code":    "VERSION_CONFLICT",
			"message": versionConflict.Error(),
			"conflict": dto.VersionConflictResponse{
				InvoiceID:       versionConflict.InvoiceID,
				ExpectedVersion: versionConflict.ExpectedVersion,
				ActualVersion:   versionConflict.ActualVersion,
				OriginalVersion: versionConflict.OriginalVersion,
			},
		})
	}
	var outstandingConflict *domain.OutstandingConflictError
	if errors.As(err, &outstandingConflict) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"code":       "OUTSTANDING_CONFLICT",
			"message":    outstandingConflict.Error(),
			"invoice_id": outstandingConflict.InvoiceID,
			"reason":     outstandingConflict.Reason,
		})
	}

	switch {
	case errors.Is(err, domain.ErrFlagChanged):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "FLAG_CHANGED", Message: "el flag de consolidación cambió en el servidor"})
	case errors.Is(err, domain.ErrAlreadyFullyPaid):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "ALREADY_PAID", Message: "la factura ya está pagada"})
	case errors.Is(err, domain.ErrOutstandingLimit):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "OUTSTANDING_LIMIT", Message: "el paciente tiene 2 o más facturas impagas: el pago parcial exige consolidar el saldo"})
	case errors.Is(err, domain.ErrHoldReasonRequired):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "HOLD_REASON_REQUIRED", Message: "el pago parcial exige un motivo de retención"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "recurso no encontrado"})
	case errors.Is(err, domain.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(dto.ErrorResponse{Code: "FORBIDDEN", Message: "acceso denegado"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

// ── Mapeo entidad → DTO ───────────────────────────────────────────────────────

func toInvoiceResponse(inv *entity.Invoice) *dto.InvoiceResponse {
	if inv == nil {
		return nil
	}
	out := &dto.InvoiceResponse{
		ID:                        inv.ID,
		Number:                    inv.Number,
		PatientID:                 inv.PatientID,
		VisitID:                   inv.VisitID,
		Status:                    inv.Status,
		Version:                   inv.Version,
		TotalAmount:               inv.TotalAmount,
		BalanceDue:                inv.BalanceDue,
		DiscountPercentage:        inv.DiscountPercentage,
		DiscountAmount:            inv.DiscountAmount,
		IncludeOutstandingBalance: inv.IncludeOutstandingBalance,
	}
	for _, it := range inv.Items {
		out.Items = append(out.Items, dto.InvoiceItemResponse{
			ID:         it.ID,
			ItemType:   it.ItemType,
			ItemName:   it.ItemName,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			TotalPrice: it.TotalPrice,
			Notes:      it.Notes,
		})
	}
	return out
}

func toTotalsResponse(t billing.Totals) *dto.TotalsResponse {
	return &dto.TotalsResponse{Subtotal: t.Subtotal, Discount: t.Discount, Total: t.Total}
}

func toOutstandingResponse(set *entity.OutstandingBalanceSet) dto.OutstandingResponse {
	out := dto.OutstandingResponse{
		PatientID:    set.PatientID,
		TotalBalance: set.TotalBalance,
		InvoiceCount: set.InvoiceCount,
		LimitReached: set.LimitReached(),
	}
	for _, inv := range set.Invoices {
		out.Invoices = append(out.Invoices, dto.OutstandingInvoiceResponse{
			ID:         inv.ID,
			Number:     inv.Number,
			Status:     inv.Status,
			Version:    inv.Version,
			BalanceDue: inv.BalanceDue,
			CreatedAt:  inv.CreatedAt,
		})
	}
	return out
}

func toPaymentResponse(p entity.PaymentTransaction) dto.PaymentResponse {
	return dto.PaymentResponse{
		ID:            p.ID,
		InvoiceID:     p.InvoiceID,
		Amount:        p.Amount,
		PaymentMethod: p.PaymentMethod,
		PaymentNotes:  p.PaymentNotes,
		HoldReason:    p.HoldReason,
		ReceivedBy:    p.ReceivedBy,
		CreatedAt:     p.CreatedAt,
	}
}
