package content

import (
	"bytes"
	"errors"
	"regexp"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
)

var (
	policy  = bluemonday.UGCPolicy()
	md      = goldmark.New()
	idRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)
)

// Sanitize removes unsafe HTML from the input string using a strict policy.
// It is applied to message content before persistence.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// RenderMarkdown converts markdown message content into sanitized HTML for
// the broadcast payload.
func RenderMarkdown(input string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(input), &buf); err != nil {
		return "", err
	}
	return policy.Sanitize(buf.String()), nil
}

// ValidateID checks that an entity identifier matches the store's
// identifier scheme (non-empty, alphanumeric plus dot, dash, underscore).
func ValidateID(id string) error {
	if id == "" {
		return errors.New("identifier cannot be empty")
	}
	if !idRegex.MatchString(id) {
		return errors.New("identifier contains invalid characters (allowed: alphanumeric, dot, dash, underscore)")
	}
	return nil
}
