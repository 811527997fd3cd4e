package cashier

import (
	"context"
	"sync"

	"github.com/jhoicas/Caja-clinica-api/internal/domain/entity"
)

// SnapshotCache guarda la última representación leída de la factura bajo
// edición, incluida su versión monotónica. Es el único estado mutable
// compartido del núcleo: Replace es la única vía por la que la versión avanza
// localmente, y todo componente debe llamarla tras cada ida al servidor que
// devuelva una factura. Nunca se muta parcialmente en sitio.
type SnapshotCache struct {
	gateway ClinicGateway

	mu  sync.Mutex
	inv *entity.Invoice
}

// NewSnapshotCache construye la caché vacía.
func NewSnapshotCache(gateway ClinicGateway) *SnapshotCache {
	return &SnapshotCache{gateway: gateway}
}

// Load trae la factura fresca del HIS y reemplaza la caché. Nunca confía en
// la aproximación de una fila de listado.
func (c *SnapshotCache) Load(ctx context.Context, invoiceID string) (*entity.Invoice, error) {
	inv, err := c.gateway.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	c.Replace(inv)
	return inv.Clone(), nil
}

// Replace sobreescribe la caché completa con la respuesta del servidor.
func (c *SnapshotCache) Replace(inv *entity.Invoice) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inv = inv.Clone()
}

// Current devuelve una copia de la factura cacheada; nil si nunca se cargó.
func (c *SnapshotCache) Current() *entity.Invoice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inv.Clone()
}

// Version devuelve la versión cacheada; 0 si la caché está vacía.
func (c *SnapshotCache) Version() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inv == nil {
		return 0
	}
	return c.inv.Version
}
