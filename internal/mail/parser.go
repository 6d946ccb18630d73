// Package mail decodes raw RFC 5322 messages into the intake model.
package mail

import (
	"bytes"
	"encoding/base64"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/kanzlei-labs/intake-service/internal/model"
)

// MalformedEmailError reports input that has no parseable header block or
// body. It fails the whole intake request.
type MalformedEmailError struct {
	Reason string
}

func (e *MalformedEmailError) Error() string {
	return "mail: malformed email: " + e.Reason
}

// IsMalformed reports whether err is (or wraps) a MalformedEmailError.
func IsMalformed(err error) bool {
	var m *MalformedEmailError
	return errors.As(err, &m)
}

// maxNestingDepth bounds multipart recursion against crafted messages.
const maxNestingDepth = 8

// Parse decodes raw email bytes into a ParsedEmail. Missing or partial
// headers are treated as empty, not fatal; non-UTF-8 bodies are decoded
// best-effort. It is a pure transformation of its input.
func Parse(raw []byte) (*model.ParsedEmail, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &MalformedEmailError{Reason: "empty input"}
	}

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		// No header block. Plain text still carries a usable body.
		if utf8.Valid(raw) && len(bytes.TrimSpace(raw)) > 0 {
			return &model.ParsedEmail{Body: strings.TrimSpace(string(raw))}, nil
		}
		return nil, &MalformedEmailError{Reason: "no parseable headers or body"}
	}

	parsed := &model.ParsedEmail{
		From:    extractAddress(decodeHeader(msg.Header.Get("From"))),
		To:      extractAddress(decodeHeader(msg.Header.Get("To"))),
		Subject: decodeHeader(msg.Header.Get("Subject")),
		Date:    msg.Header.Get("Date"),
	}

	mediaType, params, ctErr := mime.ParseMediaType(msg.Header.Get("Content-Type"))
	if ctErr != nil {
		mediaType = "text/plain"
		params = nil
	}

	var body strings.Builder
	if strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "" {
		if err := walkParts(msg.Body, params["boundary"], parsed, &body, 0); err != nil {
			return nil, err
		}
	} else {
		text := decodeBody(msg.Body, msg.Header.Get("Content-Transfer-Encoding"), params["charset"])
		body.WriteString(text)
	}

	parsed.Body = strings.TrimSpace(body.String())
	if parsed.Body == "" && len(parsed.Attachments) == 0 &&
		parsed.From == "" && parsed.Subject == "" {
		return nil, &MalformedEmailError{Reason: "no parseable headers or body"}
	}
	return parsed, nil
}

func walkParts(r io.Reader, boundary string, parsed *model.ParsedEmail, body *strings.Builder, depth int) error {
	if depth >= maxNestingDepth {
		return nil
	}

	mr := multipart.NewReader(r, boundary)
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			// A truncated inner part is tolerated; whatever was
			// collected so far stands.
			if depth > 0 || body.Len() > 0 || len(parsed.Attachments) > 0 {
				return nil
			}
			return &MalformedEmailError{Reason: "unreadable multipart body"}
		}

		mediaType, params, ctErr := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if ctErr != nil {
			mediaType = "text/plain"
			params = nil
		}
		disposition, dispParams, _ := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
		filename := partFilename(part.FileName(), dispParams, params)

		switch {
		case strings.HasPrefix(mediaType, "multipart/") && params["boundary"] != "":
			if err := walkParts(part, params["boundary"], parsed, body, depth+1); err != nil {
				return err
			}

		case disposition == "attachment" || filename != "":
			data := decodeRaw(part, part.Header.Get("Content-Transfer-Encoding"))
			if len(data) == 0 {
				continue
			}
			parsed.Attachments = append(parsed.Attachments, model.Attachment{
				Filename:     filename,
				DeclaredType: mediaType,
				Size:         len(data),
				Data:         data,
			})

		case mediaType == "text/plain":
			body.WriteString(decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"]))
			body.WriteString("\n")

		case mediaType == "text/html":
			// Only used when no plain part contributes a body.
			if body.Len() == 0 {
				body.WriteString(stripTags(decodeBody(part, part.Header.Get("Content-Transfer-Encoding"), params["charset"])))
			}
		}
	}
}

// partFilename picks the attachment filename from the disposition or
// content-type parameters, decoding RFC 2047 words.
func partFilename(name string, dispParams, ctParams map[string]string) string {
	if name == "" {
		name = dispParams["filename"]
	}
	if name == "" {
		name = ctParams["name"]
	}
	return decodeHeader(name)
}

// decodeRaw decodes a part's transfer encoding and returns the raw bytes.
func decodeRaw(r io.Reader, transferEncoding string) []byte {
	switch strings.ToLower(strings.TrimSpace(transferEncoding)) {
	case "base64":
		// The decoder skips \r and \n itself. A padding error late in
		// the stream still yields the bytes decoded so far.
		data, _ := io.ReadAll(base64.NewDecoder(base64.StdEncoding, r))
		return data
	case "quoted-printable":
		data, _ := io.ReadAll(quotedprintable.NewReader(r))
		return data
	default:
		data, _ := io.ReadAll(r)
		return data
	}
}

// decodeBody decodes transfer encoding plus charset into a UTF-8 string.
// Decoding is best-effort: on any failure the bytes are kept as-is with
// invalid sequences replaced.
func decodeBody(r io.Reader, transferEncoding, charsetName string) string {
	data := decodeRaw(r, transferEncoding)
	if len(data) == 0 {
		return ""
	}

	if charsetName != "" && !strings.EqualFold(charsetName, "utf-8") && !strings.EqualFold(charsetName, "us-ascii") {
		if enc, err := ianaindex.MIME.Encoding(charsetName); err == nil && enc != nil {
			if decoded, _, derr := transform.Bytes(enc.NewDecoder(), data); derr == nil {
				data = decoded
			}
		}
	}

	if utf8.Valid(data) {
		return string(data)
	}
	return strings.ToValidUTF8(string(data), "�")
}

// decodeHeader decodes RFC 2047 encoded words, tolerating non-UTF-8 charsets.
func decodeHeader(s string) string {
	if s == "" {
		return ""
	}
	dec := mime.WordDecoder{
		CharsetReader: func(charsetName string, input io.Reader) (io.Reader, error) {
			enc, err := ianaindex.MIME.Encoding(charsetName)
			if err != nil || enc == nil {
				return input, nil
			}
			return transform.NewReader(input, enc.NewDecoder()), nil
		},
	}
	decoded, err := dec.DecodeHeader(s)
	if err != nil {
		return s
	}
	return decoded
}

// extractAddress returns the bare address from a header like
// "Max Mustermann <max@example.com>". Unparseable input passes through
// trimmed, since the value feeds a prompt, not an SMTP envelope.
func extractAddress(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(s); err == nil {
		return addr.Address
	}
	if i, j := strings.Index(s, "<"), strings.Index(s, ">"); i >= 0 && j > i {
		return s[i+1 : j]
	}
	return s
}

// stripTags reduces an HTML body to rough plain text. Good enough for the
// prompt context; never used when a text/plain part exists.
func stripTags(s string) string {
	var b strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
			b.WriteByte(' ')
		case !inTag:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
