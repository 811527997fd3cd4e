package http

import (
	"github.com/gofiber/fiber/v2"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Cashier   *CashierHandler
	JWTSecret string
}

// Router registra las rutas de la API. Toda la superficie de caja exige un
// Bearer Token válido con rol de cajero o admin; el reporte de conciliación es
// solo admin. /health queda abierto para probes.
func Router(app *fiber.App, deps RouterDeps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/cashier",
		AuthMiddleware(deps.JWTSecret),
		RequireRole(RoleAdmin, RoleCashier),
	)

	h := deps.Cashier

	// Facturas: snapshot, líneas, descuento, flag de consolidación.
	invoices := api.Group("/invoices")
	invoices.Get("/:id", h.GetInvoice)
	invoices.Post("/:id/items", h.AddItem)
	invoices.Put("/:id/items/:itemId", h.UpdateItem)
	invoices.Delete("/:id/items/:itemId", h.RemoveItem)
	invoices.Put("/:id/discount", h.UpdateDiscount)
	invoices.Put("/:id/outstanding-flag", h.UpdateOutstandingFlag)
	invoices.Post("/:id/settle", h.Settle)

	// Saldo pendiente del paciente.
	api.Get("/patients/:patientId/outstanding", h.GetOutstanding)

	// Recuperación de pagos en vuelo (por cajero autenticado).
	api.Get("/recovery", h.CheckRecovery)
	api.Delete("/recovery", h.ClearRecovery)

	// Recibos: PDF oficial del HIS y copia interna de caja.
	api.Get("/payments/:paymentId/receipt", h.GetReceipt)
	api.Post("/receipts", h.GenerateReceipt)

	// Conciliación (solo admin).
	api.Get("/reconciliation", RequireRole(RoleAdmin), h.GetReconciliation)
}
