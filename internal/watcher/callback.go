package watcher

import "strings"

// Placeholders substituted in a callback template.
const (
	FilePlaceholder  = "%file%"
	EventPlaceholder = "%event%"
)

// Template is a callback command line containing placeholders.
type Template string

// Expand substitutes every %file% with file and every %event% with the
// name of kind. Substitution is a single pass: placeholders appearing in
// the substituted values are left as they are.
func (t Template) Expand(file string, kind Kind) string {
	return strings.NewReplacer(
		FilePlaceholder, file,
		EventPlaceholder, kind.String(),
	).Replace(string(t))
}

// IsZero reports whether no callback is configured.
func (t Template) IsZero() bool {
	return strings.TrimSpace(string(t)) == ""
}
