package doctext

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool. Useful
// where poppler handles scans better than the in-process reader.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractText writes the bytes to a temp file and runs pdftotext -layout.
func (p *PdfToText) ExtractText(ctx context.Context, data []byte) (string, error) {
	dir, err := os.MkdirTemp("", "intake-pdf-*")
	if err != nil {
		return "", eris.Wrap(err, "doctext: temp dir")
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "attachment.pdf")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", eris.Wrap(err, "doctext: write temp pdf")
	}

	cmd := exec.CommandContext(ctx, p.binPath, "-layout", path, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "doctext: pdftotext failed: %s", stderr.String())
	}

	return stdout.String(), nil
}
