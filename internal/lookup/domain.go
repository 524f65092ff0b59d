// Package lookup loads select-box options for foreign-key fields from a fixed
// allow-list of sources.
package lookup

import (
	"errors"
	"strings"
)

// Source names an option list.
type Source string

// Allowed sources. Each maps to one fixed query.
const (
	SourceRoles Source = "roles"
	SourceUsers Source = "users"
)

// ErrUnknownSource is returned for sources outside the allow-list.
var ErrUnknownSource = errors.New("lookup: unknown source")

// Option is one select-box entry.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// Sources lists the allowed sources.
func Sources() []Source {
	return []Source{SourceRoles, SourceUsers}
}

// ParseSource validates name against the allow-list.
func ParseSource(name string) (Source, error) {
	candidate := Source(strings.ToLower(strings.TrimSpace(name)))
	for _, s := range Sources() {
		if candidate == s {
			return s, nil
		}
	}
	return "", ErrUnknownSource
}
