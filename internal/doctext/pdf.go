package doctext

import (
	"bytes"
	"context"
	"strings"

	pdf "github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
)

// InprocPDF extracts PDF text in-process, no external binaries required.
type InprocPDF struct{}

// NewInprocPDF creates the default in-process PDF extractor.
func NewInprocPDF() *InprocPDF {
	return &InprocPDF{}
}

// ExtractText reads PDF bytes and returns the plain text of all pages.
func (e *InprocPDF) ExtractText(ctx context.Context, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", eris.Wrap(err, "doctext: open pdf")
	}

	var sb strings.Builder
	total := reader.NumPage()
	for page := 1; page <= total; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		p := reader.Page(page)
		if p.V.IsNull() {
			continue
		}
		content, err := p.GetPlainText(nil)
		if err != nil {
			// A single broken page should not discard the rest.
			continue
		}
		sb.WriteString(content)
		sb.WriteString("\n")
	}
	return sb.String(), nil
}
