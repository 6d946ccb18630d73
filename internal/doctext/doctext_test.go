package doctext

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kanzlei-labs/intake-service/internal/config"
	"github.com/kanzlei-labs/intake-service/internal/model"
)

type fakePDF struct {
	text string
	err  error
}

func (f *fakePDF) ExtractText(ctx context.Context, data []byte) (string, error) {
	return f.text, f.err
}

func TestNewPDFExtractor(t *testing.T) {
	t.Parallel()

	inproc, err := NewPDFExtractor(config.DocTextConfig{PDFProvider: "inproc"})
	require.NoError(t, err)
	assert.IsType(t, &InprocPDF{}, inproc)

	byDefault, err := NewPDFExtractor(config.DocTextConfig{})
	require.NoError(t, err)
	assert.IsType(t, &InprocPDF{}, byDefault)

	cli, err := NewPDFExtractor(config.DocTextConfig{PDFProvider: "pdftotext", PdfToTextPath: "/usr/bin/pdftotext"})
	require.NoError(t, err)
	assert.IsType(t, &PdfToText{}, cli)

	_, err = NewPDFExtractor(config.DocTextConfig{PDFProvider: "ocr-cloud"})
	assert.Error(t, err)
}

func TestFromAttachment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	text, err := FromAttachment(ctx, &fakePDF{text: "  Fahrzeugschein Inhalt  "}, model.Attachment{
		Kind: model.KindPDF,
		Data: []byte("%PDF-1.4"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Fahrzeugschein Inhalt", text)

	text, err = FromAttachment(ctx, &fakePDF{}, model.Attachment{
		Kind: model.KindPlainText,
		Data: []byte("Polizeibericht\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Polizeibericht", text)

	text, err = FromAttachment(ctx, &fakePDF{}, model.Attachment{
		Kind: model.KindEmail,
		Data: []byte("From: a@b.de\n\nweitergeleitet"),
	})
	require.NoError(t, err)
	assert.Contains(t, text, "weitergeleitet")

	// Images and unknown blobs yield no text and no error.
	for _, kind := range []model.AttachmentKind{model.KindImage, model.KindUnknown} {
		text, err = FromAttachment(ctx, &fakePDF{}, model.Attachment{Kind: kind, Data: []byte{0xff}})
		require.NoError(t, err)
		assert.Empty(t, text)
	}
}

func TestFromAttachmentWrapsPDFError(t *testing.T) {
	t.Parallel()

	_, err := FromAttachment(context.Background(), &fakePDF{err: errors.New("kaputt")}, model.Attachment{
		Kind:     model.KindPDF,
		Filename: "defekt.pdf",
		Data:     []byte("%PDF-"),
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "defekt.pdf")
}

func TestAsTextReplacesInvalidUTF8(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ok", asText([]byte("ok")))
	out := asText([]byte{'a', 0xff, 'b'})
	assert.Contains(t, out, "a")
	assert.Contains(t, out, "b")
	assert.Contains(t, out, "�")
}
