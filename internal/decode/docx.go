package decode

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"strings"

	"docvault/client/internal/apperr"
)

// ConvertDOCX turns a DOCX payload into an HTML fragment: one <p> per
// paragraph, with bold/italic runs and explicit breaks preserved. The input
// must actually be a DOCX archive; anything else fails with a decode error
// instead of crashing the viewer.
func ConvertDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", apperr.Wrap(apperr.KindDecode, "payload is not a docx archive", err)
	}

	var document *zip.File
	for _, file := range reader.File {
		if file.Name == "word/document.xml" {
			document = file
			break
		}
	}
	if document == nil {
		return "", apperr.New(apperr.KindDecode, "archive has no word/document.xml")
	}

	rc, err := document.Open()
	if err != nil {
		return "", apperr.Wrap(apperr.KindDecode, "open document part", err)
	}
	defer rc.Close()

	fragment, err := documentXMLToHTML(rc)
	if err != nil {
		return "", apperr.Wrap(apperr.KindDecode, "malformed document part", err)
	}
	return fragment, nil
}

// documentXMLToHTML walks the WordprocessingML token stream. Only the
// elements the viewer can represent are kept; everything else is skipped.
func documentXMLToHTML(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)

	var out strings.Builder
	var paragraph strings.Builder
	inParagraph := false
	bold := false
	italic := false
	inRunProps := false

	openRun := func() string {
		var tags string
		if bold {
			tags += "<strong>"
		}
		if italic {
			tags += "<em>"
		}
		return tags
	}
	closeRun := func() string {
		var tags string
		if italic {
			tags += "</em>"
		}
		if bold {
			tags += "</strong>"
		}
		return tags
	}

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read token: %w", err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				inParagraph = true
				paragraph.Reset()
			case "r":
				bold, italic = false, false
			case "rPr":
				inRunProps = true
			case "b":
				if inRunProps {
					bold = true
				}
			case "i":
				if inRunProps {
					italic = true
				}
			case "t":
				if !inParagraph {
					continue
				}
				var text string
				if err := decoder.DecodeElement(&text, &t); err != nil {
					return "", fmt.Errorf("read text run: %w", err)
				}
				paragraph.WriteString(openRun())
				paragraph.WriteString(html.EscapeString(text))
				paragraph.WriteString(closeRun())
			case "br":
				if inParagraph {
					paragraph.WriteString("<br>")
				}
			case "tab":
				if inParagraph {
					paragraph.WriteString("&#9;")
				}
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "p":
				if inParagraph {
					out.WriteString("<p>")
					out.WriteString(paragraph.String())
					out.WriteString("</p>\n")
					inParagraph = false
				}
			case "rPr":
				inRunProps = false
			}
		}
	}

	return out.String(), nil
}
