package model

// AttachmentKind represents the detected content type of an attachment.
// Detection is signature-based; the filename and declared MIME type are
// untrusted hints.
type AttachmentKind string

const (
	KindPDF       AttachmentKind = "pdf"
	KindImage     AttachmentKind = "image"
	KindPlainText AttachmentKind = "plain-text"
	KindEmail     AttachmentKind = "email"
	KindUnknown   AttachmentKind = "unknown"
)

// AllAttachmentKinds returns all defined attachment kinds.
func AllAttachmentKinds() []AttachmentKind {
	return []AttachmentKind{
		KindPDF,
		KindImage,
		KindPlainText,
		KindEmail,
		KindUnknown,
	}
}

// Attachment is a single file extracted from an intake request, either a
// MIME part of the email or a separately uploaded blob.
type Attachment struct {
	Filename     string         `json:"filename"`
	DeclaredType string         `json:"declared_type,omitempty"` // MIME type from the part header, untrusted
	Kind         AttachmentKind `json:"kind"`
	Size         int            `json:"size"`
	Data         []byte         `json:"-"`
}

// ParsedEmail is the structured form of a raw email message. It is derived
// once from the raw bytes and never mutated afterwards.
type ParsedEmail struct {
	From        string       `json:"from"`
	To          string       `json:"to"`
	Subject     string       `json:"subject"`
	Date        string       `json:"date"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
}

// RawIntake is an intake request as received: the email bytes plus any
// separately uploaded attachment blobs.
type RawIntake struct {
	EmailFilename string
	Email         []byte
	Uploads       []Attachment
}
