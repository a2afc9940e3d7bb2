package builder

import "fmt"

// ConfigError reports a missing or invalid builder setting. It is always
// returned before any file is touched.
type ConfigError struct {
	Variant Variant
	Field   string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s %s", e.Variant, e.Field, e.Reason)
}

func configErr(v Variant, field, format string, a ...any) error {
	return &ConfigError{Variant: v, Field: field, Reason: fmt.Sprintf(format, a...)}
}
