package interaction

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// MaxEmbeddableBase64Len caps the base64 length of an attachment that is
// embedded verbatim in a tool result. Larger attachments are only described,
// which guards against blowing up the response returned through the RPC
// channel.
const MaxEmbeddableBase64Len = 800_000

// CancelSentinel is written to the response file by the UI when the user
// explicitly cancels from within the dialog.
const CancelSentinel = "CANCELLED"

// ResponseState is the tagged decode of the response file contents.
type ResponseState int

const (
	// ResponseEmpty: file missing or blank — the user has not answered yet.
	ResponseEmpty ResponseState = iota
	// ResponseCancelled: the cancellation sentinel was written.
	ResponseCancelled
	// ResponseAnswered: a structured reply was decoded.
	ResponseAnswered
	// ResponseRaw: plain text that is not JSON; surfaced verbatim.
	ResponseRaw
	// ResponseMalformed: looks like JSON but does not decode; surfaced
	// verbatim so nothing the user wrote is silently dropped.
	ResponseMalformed
)

// Decoded is the result of decoding a response file.
type Decoded struct {
	State ResponseState
	Reply *Reply
	Raw   string
}

// legacyBlock is the content-block array form produced by older UI builds:
// a heterogeneous list tagged by "type".
type legacyBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Data      string `json:"data,omitempty"`
	MediaType string `json:"media_type,omitempty"`
}

// DecodeResponse classifies and decodes raw response file contents.
func DecodeResponse(raw []byte) Decoded {
	trimmed := strings.TrimSpace(string(raw))

	if trimmed == "" {
		return Decoded{State: ResponseEmpty}
	}
	if trimmed == CancelSentinel || trimmed == `"`+CancelSentinel+`"` {
		return Decoded{State: ResponseCancelled, Raw: trimmed}
	}

	switch trimmed[0] {
	case '{':
		var reply Reply
		if err := json.Unmarshal([]byte(trimmed), &reply); err != nil {
			return Decoded{State: ResponseMalformed, Raw: trimmed}
		}
		return Decoded{State: ResponseAnswered, Reply: &reply, Raw: trimmed}
	case '[':
		var blocks []legacyBlock
		if err := json.Unmarshal([]byte(trimmed), &blocks); err != nil {
			return Decoded{State: ResponseMalformed, Raw: trimmed}
		}
		return Decoded{State: ResponseAnswered, Reply: replyFromBlocks(blocks), Raw: trimmed}
	}

	return Decoded{State: ResponseRaw, Raw: trimmed}
}

// replyFromBlocks converts the legacy content-block array into the canonical
// Reply shape so nothing downstream has to know about the old format.
func replyFromBlocks(blocks []legacyBlock) *Reply {
	var reply Reply
	var texts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				texts = append(texts, b.Text)
			}
		case "image":
			reply.Attachments = append(reply.Attachments, Attachment{
				Data:      b.Data,
				MediaType: b.MediaType,
			})
		}
	}
	reply.UserInput = strings.Join(texts, "\n")
	return &reply
}

// Part is one element of the content returned to the calling agent: either
// text or a decoded image payload.
type Part struct {
	Text      string
	ImageData []byte
	MIMEType  string
}

// TextPart builds a text part.
func TextPart(s string) Part {
	return Part{Text: s}
}

// IsImage reports whether the part carries image data.
func (p Part) IsImage() bool {
	return len(p.ImageData) > 0
}

// embeddableMediaTypes is the allow-list of attachment types returned as
// image content.
func embeddable(mediaType string) bool {
	switch mediaType {
	case "image/png", "image/jpeg", "image/webp":
		return true
	}
	return false
}

// estimateDecodedSize renders a human-readable size estimate for a base64
// payload of the given length.
func estimateDecodedSize(base64Len int) string {
	size := (base64Len * 3) / 4
	switch {
	case size < 1024:
		return fmt.Sprintf("%d B", size)
	case size < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(size)/1024.0)
	default:
		return fmt.Sprintf("%.1f MB", float64(size)/(1024.0*1024.0))
	}
}

// BuildParts turns a decoded response into the ordered content parts returned
// to the calling agent: text first (selections joined, then free text), then
// one image part per embedded attachment, then a summary block describing
// attachments that were not embedded. Never returns an empty slice.
func BuildParts(d Decoded) []Part {
	switch d.State {
	case ResponseCancelled:
		return []Part{TextPart("Operation cancelled by user")}
	case ResponseRaw, ResponseMalformed:
		return []Part{TextPart(d.Raw)}
	case ResponseAnswered:
		return buildReplyParts(d.Reply)
	}
	return []Part{TextPart("No content provided")}
}

func buildReplyParts(reply *Reply) []Part {
	var textParts []string
	if len(reply.SelectedOptions) > 0 {
		textParts = append(textParts, "Selected: "+strings.Join(reply.SelectedOptions, ", "))
	}
	if note := strings.TrimSpace(reply.UserInput); note != "" {
		textParts = append(textParts, note)
	}

	var parts []Part
	if len(textParts) > 0 {
		parts = append(parts, TextPart(strings.Join(textParts, "\n\n")))
	}

	var infoParts []string
	for i, att := range reply.Attachments {
		base64Len := len(att.Data)
		supported := embeddable(att.MediaType)
		tooLarge := base64Len > MaxEmbeddableBase64Len

		if supported && !tooLarge {
			payload, err := base64.StdEncoding.DecodeString(att.Data)
			if err != nil {
				supported = false
			} else {
				parts = append(parts, Part{ImageData: payload, MIMEType: att.MediaType})
			}
		}

		var note string
		switch {
		case !supported:
			note = " (omitted: unsupported media type, use PNG/JPG/WebP)"
		case tooLarge:
			note = " (omitted: attachment too large to embed)"
		}

		var filenameInfo string
		if att.Filename != "" {
			filenameInfo = "\nFilename: " + att.Filename
		}

		infoParts = append(infoParts, fmt.Sprintf(
			"=== Attachment %d ===%s\nType: %s\nSize: %s\nBase64 length: %d chars%s",
			i+1, filenameInfo, att.MediaType, estimateDecodedSize(base64Len), base64Len, note))
	}

	if len(reply.Attachments) > 0 {
		infoParts = append(infoParts, fmt.Sprintf("Note: User provided %d attachment(s).", len(reply.Attachments)))
	}
	if len(infoParts) > 0 {
		parts = append(parts, TextPart(strings.Join(infoParts, "\n\n")))
	}

	if len(parts) == 0 {
		parts = append(parts, TextPart("No content provided"))
	}
	return parts
}
