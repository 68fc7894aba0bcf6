// Package model defines the request-scoped types passed between gateway stages.
package model

import "strings"

// HeaderField is a single header line. Name keeps the spelling it was received
// with; comparisons against it are case-insensitive.
type HeaderField struct {
	Name  string
	Value string
}

// HeaderList is an ordered header sequence. Unlike http.Header it keeps the
// relative order of fields and allows repeated names.
type HeaderList []HeaderField

// Last returns the value of the last field named name.
func (l HeaderList) Last(name string) (string, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if strings.EqualFold(l[i].Name, name) {
			return l[i].Value, true
		}
	}
	return "", false
}

// Has reports whether any field is named name.
func (l HeaderList) Has(name string) bool {
	_, ok := l.Last(name)
	return ok
}

// Names returns the field names in order.
func (l HeaderList) Names() []string {
	names := make([]string, len(l))
	for i, f := range l {
		names[i] = f.Name
	}
	return names
}

// Clone returns a copy that shares no backing array with l.
func (l HeaderList) Clone() HeaderList {
	if l == nil {
		return nil
	}
	out := make(HeaderList, len(l))
	copy(out, l)
	return out
}
