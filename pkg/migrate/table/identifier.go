package table

import (
	"regexp"
	"strings"
)

// DefaultName : table drained on the source and filled on the target when none is configured
const DefaultName = "events"

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// IsIdentifier : true for a plain unquoted sql identifier (column or table name).
// Names end up inside generated statements unquoted, so anything else is rejected.
func IsIdentifier(name string) bool {
	return identifierRe.MatchString(name)
}

// IsQualifiedName : identifier optionally prefixed by up to two qualifiers, e.g. dbo.events
func IsQualifiedName(name string) bool {
	parts := strings.Split(name, ".")
	if len(parts) > 3 {
		return false
	}
	for _, p := range parts {
		if !IsIdentifier(p) {
			return false
		}
	}
	return true
}
