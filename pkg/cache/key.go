package cache

import (
	"strings"
)

// Key identifies a cached packument. Version is empty for the full packument.
type Key struct {
	// Name is the package name, including any scope (e.g. "@types/node").
	Name string

	// Version pins a single version document; empty means the full packument.
	Version string
}

// String generates a deterministic Redis key.
// Format: npm:packument:<name>[@<version>]
func (k Key) String() string {
	var b strings.Builder
	b.WriteString("npm:packument:")
	b.WriteString(k.Name)
	if k.Version != "" {
		b.WriteString("@")
		b.WriteString(k.Version)
	}
	return b.String()
}
