package dto

// PageRequest acota los listados de caja; hoy lo consume el reporte de
// conciliación, cuyo universo de intentos abortados puede crecer sin límite.
type PageRequest struct {
	Limit  int `query:"limit" validate:"min=1,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// DefaultPage normaliza Limit/Offset cuando el llamador no los envía.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// PageResponse son los metadatos de página que acompañan a un listado.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total,omitempty"`
}

// ErrorResponse es el cuerpo uniforme de error de la API de caja; Code es la
// etiqueta estable que la UI usa para decidir el mensaje al cajero.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
