// Package decode selects and performs format-specific transformation of a
// downloaded document payload for display.
package decode

import "strings"

// Mode is the representation a decoded payload should be displayed as.
type Mode string

const (
	// ModePDF hands the payload to the paginated PDF rendering surface.
	ModePDF Mode = "pdf"
	// ModeHTML renders a sanitized HTML fragment inline.
	ModeHTML Mode = "html"
	// ModeImage displays the URL directly.
	ModeImage Mode = "image"
	// ModeText renders preformatted plain text.
	ModeText Mode = "text"
	// ModeDownload is the universal fallback: open the raw payload URL.
	ModeDownload Mode = "download"
)

// Source is the fetched payload handed to the decoder: a URL, raw bytes, or
// both.
type Source struct {
	URL  string
	Data []byte
}

// Result is a renderable representation. Exactly one of HTML, Text, or URL is
// meaningful depending on Mode.
type Result struct {
	Mode Mode
	URL  string
	HTML string
	Text string
}

// Release drops the decoded payload so repeated open/close cycles do not
// accumulate memory.
func (r *Result) Release() {
	if r == nil {
		return
	}
	r.HTML = ""
	r.Text = ""
	r.URL = ""
}

// normalizeType lower-cases a file-type label and strips a leading dot.
func normalizeType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}
