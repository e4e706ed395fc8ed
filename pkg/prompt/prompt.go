package prompt

import (
	"fmt"
	"strings"
)

// Attachment modes supported by prompt definitions.
const (
	AttachmentSelection = "selection" // operates on the selected/typed text
	AttachmentPDF       = "pdf"       // pulls context from an attached PDF
	AttachmentInquiry   = "inquiry"   // asks the user for one extra input
)

// Definition is one entry of the user-configurable prompt library.
type Definition struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	UserPrompt  string `json:"user-prompt"`
	Attachment  string `json:"attachment"`
}

// Library provides name-based lookup over the configured prompt definitions.
type Library struct {
	defs []Definition
}

func NewLibrary(defs []Definition) *Library {
	return &Library{defs: defs}
}

// Get returns the definition with the given name.
func (l *Library) Get(name string) (Definition, bool) {
	for _, d := range l.defs {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// All returns the configured definitions in order.
func (l *Library) All() []Definition {
	cp := make([]Definition, len(l.defs))
	copy(cp, l.defs)
	return cp
}

// InquiryText extracts the placeholder text of an inquiry prompt.
// The placeholder is delimited by '|' characters inside the user prompt,
// e.g. "Translate the following text to |target language|:".
func InquiryText(def Definition) (string, bool) {
	if def.Attachment != AttachmentInquiry {
		return "", false
	}
	parts := strings.Split(def.UserPrompt, "|")
	if len(parts) < 3 {
		return "", false
	}
	return parts[1], true
}

// ApplyInquiry substitutes the user's answer for the inquiry placeholder.
func ApplyInquiry(def Definition, response string) string {
	inquiry, ok := InquiryText(def)
	if !ok {
		return def.UserPrompt
	}
	return strings.Replace(def.UserPrompt, fmt.Sprintf("|%s|", inquiry), response, 1)
}

// CleanResponse trims the model output and strips surrounding code fences.
func CleanResponse(content string) string {
	content = strings.TrimSpace(content)
	if strings.HasSuffix(content, "```") {
		content = strings.TrimSpace(strings.TrimSuffix(content, "```"))
	}
	if strings.HasPrefix(content, "```") {
		if _, rest, found := strings.Cut(content, "\n"); found {
			content = strings.TrimSpace(rest)
		} else {
			content = ""
		}
	}
	return content
}

// FormatForEditor wraps the cleaned content with the configured header and
// footer for insertion into the document.
func FormatForEditor(content, header, footer string) string {
	return fmt.Sprintf("%s\n%s%s\n", header, content, footer)
}
