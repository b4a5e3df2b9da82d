package secret

import (
	"sort"
	"strings"
)

const redacted = "[REDACTED]"

// Redactor masks known secret values in free text before it is shown to
// anyone outside the process.
type Redactor struct {
	values []string
}

func NewRedactor(values ...string) *Redactor {
	var kept []string
	for _, v := range values {
		// short values would mask ordinary words
		if len(v) >= 6 {
			kept = append(kept, v)
		}
	}
	// longest first so a secret containing another is masked whole
	sort.Slice(kept, func(i, j int) bool { return len(kept[i]) > len(kept[j]) })
	return &Redactor{values: kept}
}

func (r *Redactor) Redact(s string) string {
	if r == nil {
		return s
	}
	for _, v := range r.values {
		s = strings.ReplaceAll(s, v, redacted)
	}
	return s
}
