package output

import (
	"context"

	"bpm-agent/internal/domain/entity"
)

// OCRPort is the OCR collaborator boundary: raw document bytes in,
// structured invoice out. It is invoked from the upload path only, never
// from chat.
type OCRPort interface {
	ExtractInvoice(ctx context.Context, data []byte, contentType string) (*entity.Invoice, error)
}
