package catalog

import (
	_ "embed"
)

//go:embed default.yml
var defaultYAML []byte

// DefaultYAML returns the built-in clinic catalog source.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultYAML...)
}

// Default returns the built-in clinic catalog definition. It panics if the
// embedded file is invalid, which the package tests rule out.
func Default() Definition {
	def, err := Parse(defaultYAML)
	if err != nil {
		panic(err)
	}
	return def
}
