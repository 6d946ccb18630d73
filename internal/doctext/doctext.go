// Package doctext turns classified attachments into prompt-ready text.
package doctext

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/model"
)

// PDFExtractor extracts text content from PDF bytes.
type PDFExtractor interface {
	ExtractText(ctx context.Context, data []byte) (string, error)
}

// NewPDFExtractor creates a PDFExtractor based on config.
func NewPDFExtractor(cfg config.DocTextConfig) (PDFExtractor, error) {
	switch cfg.PDFProvider {
	case "inproc", "":
		return NewInprocPDF(), nil
	case "pdftotext":
		return NewPdfToText(cfg.PdfToTextPath), nil
	default:
		return nil, eris.Errorf("doctext: unknown pdf provider %q", cfg.PDFProvider)
	}
}

// FromAttachment returns the text content of a classified attachment.
// Images and unknown blobs yield no text; the extraction engine represents
// them with placeholder notes instead.
func FromAttachment(ctx context.Context, pdf PDFExtractor, att model.Attachment) (string, error) {
	switch att.Kind {
	case model.KindPDF:
		text, err := pdf.ExtractText(ctx, att.Data)
		if err != nil {
			return "", eris.Wrapf(err, "doctext: extract pdf %s", att.Filename)
		}
		return strings.TrimSpace(text), nil
	case model.KindPlainText, model.KindEmail:
		return strings.TrimSpace(asText(att.Data)), nil
	default:
		return "", nil
	}
}

// asText decodes bytes to a UTF-8 string, replacing invalid sequences.
func asText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}
