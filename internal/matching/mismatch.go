// Package matching implements the recursive comparison of actual HTTP
// parts and messages against expected ones, driven by matching rules.
package matching

import (
	"fmt"
	"strings"
)

// MismatchKind classifies where a mismatch was found.
type MismatchKind string

const (
	MismatchMethod   MismatchKind = "MethodMismatch"
	MismatchPath     MismatchKind = "PathMismatch"
	MismatchStatus   MismatchKind = "StatusMismatch"
	MismatchQuery    MismatchKind = "QueryMismatch"
	MismatchHeader   MismatchKind = "HeaderMismatch"
	MismatchBodyType MismatchKind = "BodyTypeMismatch"
	MismatchBody     MismatchKind = "BodyMismatch"
	MismatchMetadata MismatchKind = "MetadataMismatch"
)

// Mismatch is one value-level disagreement between expected and
// actual. Mismatches are aggregated, never fatal by themselves.
type Mismatch struct {
	// Kind classifies the mismatch.
	Kind MismatchKind `json:"type"`

	// Path locates the mismatch inside the compared part.
	Path string `json:"path,omitempty"`

	// Parameter is the query parameter or header name, when relevant.
	Parameter string `json:"parameter,omitempty"`

	// Expected and Actual are human-readable forms of both sides.
	Expected string `json:"expected"`
	Actual   string `json:"actual"`

	// Description explains the disagreement.
	Description string `json:"mismatch"`
}

func (m Mismatch) String() string {
	var b strings.Builder
	b.WriteString(string(m.Kind))
	if m.Path != "" {
		fmt.Fprintf(&b, " at %s", m.Path)
	}
	if m.Parameter != "" {
		fmt.Fprintf(&b, " (parameter %s)", m.Parameter)
	}
	fmt.Fprintf(&b, ": %s", m.Description)
	return b.String()
}

// pathString renders a concrete path slice like ["$", "a", "0"] back to
// the dotted form used in mismatch output.
func pathString(path []string) string {
	var b strings.Builder
	for i, seg := range path {
		if i == 0 {
			b.WriteString(seg)
			continue
		}
		if isNumeric(seg) {
			fmt.Fprintf(&b, "[%s]", seg)
		} else {
			b.WriteByte('.')
			b.WriteString(seg)
		}
	}
	return b.String()
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
