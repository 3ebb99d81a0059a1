package prompt

import (
	"errors"
	"strings"
)

// ErrEmptyInput is returned when a turn carries neither text nor an image.
// Callers must not reach the model backend in that case.
var ErrEmptyInput = errors.New("prompt: no text or image provided")

// DefaultImageInstruction is prepended when the user attaches an image
// without any text. The model requires a leading text part whenever an
// image part is present.
const DefaultImageInstruction = "ماذا ترى في هذه الصورة؟ صفها بالتفصيل."

type Part struct {
	Text  string
	Media *Media
}

type Media struct {
	// URL is a self-contained data URI: data:<mime>;base64,<payload>.
	URL string
}

// Request is the assembled multi-part prompt for one chat turn.
type Request struct {
	Parts []Part
}

// Assemble builds the part list for a turn. Text always precedes the
// image part; an image-only turn gets DefaultImageInstruction as its
// text part.
func Assemble(text, photoDataURI string) (Request, error) {
	text = strings.TrimSpace(text)
	hasImage := strings.TrimSpace(photoDataURI) != ""

	if text == "" && !hasImage {
		return Request{}, ErrEmptyInput
	}

	parts := make([]Part, 0, 2)
	if text != "" {
		parts = append(parts, Part{Text: text})
	} else {
		parts = append(parts, Part{Text: DefaultImageInstruction})
	}
	if hasImage {
		parts = append(parts, Part{Media: &Media{URL: photoDataURI}})
	}
	return Request{Parts: parts}, nil
}

// Single reports whether the request collapses to a bare text string,
// the simplified shape some backends accept for text-only prompts.
func (r Request) Single() (string, bool) {
	if len(r.Parts) == 1 && r.Parts[0].Media == nil {
		return r.Parts[0].Text, true
	}
	return "", false
}

// ImageURL returns the data URI of the image part, if any.
func (r Request) ImageURL() string {
	for _, p := range r.Parts {
		if p.Media != nil {
			return p.Media.URL
		}
	}
	return ""
}

// Text returns the text of the first text part, if any.
func (r Request) Text() string {
	for _, p := range r.Parts {
		if p.Media == nil && p.Text != "" {
			return p.Text
		}
	}
	return ""
}
