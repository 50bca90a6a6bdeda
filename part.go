package metagen

import "github.com/gabriel-vasile/mimetype"

// Part is one piece of multimodal request content: plain text, or raw image
// bytes that the client embeds as a base64 data URI.
type Part struct {
	Type     string
	Text     string
	Data     []byte
	MimeType string
}

// NewTextPart creates a text part.
func NewTextPart(text string) *Part {
	return &Part{Type: "text", Text: text}
}

// NewImagePart creates an image part. When mime is empty the media type is
// sniffed from the data.
func NewImagePart(data []byte, mime string) *Part {
	if mime == "" {
		mime = mimetype.Detect(data).String()
	}
	return &Part{Type: "image", Data: data, MimeType: mime}
}
