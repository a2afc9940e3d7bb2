package builder

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed extras.yaml
var extrasYAML []byte

var (
	// DefaultBinaryGems are already compiled into the OS X wrapper (or
	// confuse it, like bundler) and are never vendored.
	DefaultBinaryGems = []string{"bundler", "gosu", "texplay", "chipmunk"}

	// DefaultSourceGemsToRemove ship inside the wrapper but are only needed
	// while resolving dependencies.
	DefaultSourceGemsToRemove = []string{"chingu"}
)

// ParseExtraFiles decodes a gem name -> extra paths table.
func ParseExtraFiles(data []byte) (map[string][]string, error) {
	extras := map[string][]string{}
	if err := yaml.Unmarshal(data, &extras); err != nil {
		return nil, fmt.Errorf("parse extra files: %w", err)
	}
	return extras, nil
}

// DefaultExtraFiles returns a fresh copy of the built-in extras table.
func DefaultExtraFiles() map[string][]string {
	extras, err := ParseExtraFiles(extrasYAML)
	if err != nil {
		panic(err)
	}
	return extras
}
