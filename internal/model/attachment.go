package model

import (
	"fmt"
	"strings"
)

// AttachmentKind distinguishes images from generic files.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentFile  AttachmentKind = "file"
)

// Attachment is a file the user attached to a message. Data carries the
// payload as a base64 data URL (`data:<mime>;base64,<payload>`), the format
// the frontend produces and most vendor protocols want re-sliced rather than
// re-encoded.
type Attachment struct {
	ID       string         `json:"id"`
	Kind     AttachmentKind `json:"kind"`
	Name     string         `json:"name"`
	MimeType string         `json:"mime_type"`
	Size     int64          `json:"size"`
	Data     string         `json:"data"`
}

// DecodeDataURL splits Data into its media type and raw base64 payload.
// Vendors that take `{media_type, data}` pairs (Anthropic, Gemini) need the
// two halves; vendors that take the URL verbatim (OpenAI) use Data directly.
func (a Attachment) DecodeDataURL() (mime, payload string, err error) {
	const prefix = "data:"
	if !strings.HasPrefix(a.Data, prefix) {
		return "", "", fmt.Errorf("attachment %s: not a data URL", a.Name)
	}
	rest := a.Data[len(prefix):]
	sep := strings.Index(rest, ";base64,")
	if sep < 0 {
		return "", "", fmt.Errorf("attachment %s: data URL is not base64-encoded", a.Name)
	}
	mime = rest[:sep]
	payload = rest[sep+len(";base64,"):]
	if mime == "" && a.MimeType != "" {
		mime = a.MimeType
	}
	return mime, payload, nil
}

// IsImage reports whether the attachment should be sent through a vendor's
// image channel.
func (a Attachment) IsImage() bool {
	return a.Kind == AttachmentImage || strings.HasPrefix(a.MimeType, "image/")
}

// IsPDF reports whether the attachment is a PDF document. Anthropic requires
// a beta header on any request carrying one.
func (a Attachment) IsPDF() bool {
	return a.MimeType == "application/pdf" || strings.HasSuffix(strings.ToLower(a.Name), ".pdf")
}
