// Package classify assigns a content-type tag to attachment blobs.
//
// Classification is signature-based: filenames and declared MIME types are
// untrusted and at most break ties between textual kinds. Same bytes always
// classify identically, and corrupt input classifies as unknown rather than
// failing.
package classify

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/kanzlei-labs/intake-service/internal/model"
)

// sniffLen bounds how many bytes signature checks look at.
const sniffLen = 512

var imageSignatures = [][]byte{
	{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}, // PNG
	{0xFF, 0xD8, 0xFF},                            // JPEG
	[]byte("GIF87a"),
	[]byte("GIF89a"),
	{'I', 'I', '*', 0x00}, // TIFF little-endian
	{'M', 'M', 0x00, '*'}, // TIFF big-endian
	[]byte("BM"),          // BMP
}

// Classify inspects a byte blob and returns its attachment kind. The
// filename hint is consulted only to distinguish an .eml text blob from
// ordinary plain text.
func Classify(data []byte, filenameHint string) model.AttachmentKind {
	if len(data) == 0 {
		return model.KindUnknown
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}

	// A few junk bytes before the %PDF- marker are tolerated; real-world
	// scanners emit them.
	if pdfIdx := bytes.Index(head, []byte("%PDF-")); pdfIdx >= 0 && pdfIdx < 16 {
		return model.KindPDF
	}

	for _, sig := range imageSignatures {
		if bytes.HasPrefix(head, sig) {
			return model.KindImage
		}
	}
	// RIFF container: WEBP images only.
	if bytes.HasPrefix(head, []byte("RIFF")) && len(head) >= 12 && bytes.Equal(head[8:12], []byte("WEBP")) {
		return model.KindImage
	}

	if !looksTextual(data) {
		return model.KindUnknown
	}

	if looksLikeEmail(head) {
		return model.KindEmail
	}
	if strings.HasSuffix(strings.ToLower(filenameHint), ".eml") {
		return model.KindEmail
	}
	return model.KindPlainText
}

// looksTextual reports whether the blob is plausibly human-readable text:
// valid UTF-8 with no NUL bytes and a low share of control characters.
func looksTextual(data []byte) bool {
	if bytes.IndexByte(data, 0x00) >= 0 {
		return false
	}
	if !utf8.Valid(data) {
		// Latin-1 style single-byte text is still usable downstream.
		ctrl := 0
		for _, b := range data {
			if b < 0x20 && b != '\n' && b != '\r' && b != '\t' {
				ctrl++
			}
		}
		return ctrl*20 < len(data)
	}
	ctrl := 0
	for _, r := range string(data) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			ctrl++
		}
	}
	return ctrl*20 < len(data)
}

// looksLikeEmail checks for an RFC 5322 header block: the first lines are
// "Name: value" pairs with at least one well-known mail header among them.
func looksLikeEmail(head []byte) bool {
	knownHeaders := []string{
		"from:", "to:", "subject:", "date:", "received:",
		"return-path:", "message-id:", "mime-version:", "delivered-to:",
	}

	lines := strings.Split(string(head), "\n")
	headerLines := 0
	known := false
	for _, line := range lines {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			break
		}
		// Folded continuation lines belong to the previous header.
		if line[0] == ' ' || line[0] == '\t' {
			continue
		}
		name, _, ok := strings.Cut(line, ":")
		if !ok || name == "" || strings.ContainsAny(name, " \t") {
			return false
		}
		headerLines++
		lower := strings.ToLower(name) + ":"
		for _, h := range knownHeaders {
			if lower == h {
				known = true
			}
		}
	}
	return headerLines >= 2 && known
}
