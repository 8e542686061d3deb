package billing

import (
	"fmt"
)

// ConfigError represents a fatal configuration problem: a missing input file,
// a missing required column, an unusable reference folder. The pipeline aborts
// on these rather than continuing with degraded data.
type ConfigError struct {
	Subject string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error for %s: %s: %v", e.Subject, e.Message, e.Err)
	}
	return fmt.Sprintf("configuration error for %s: %s", e.Subject, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
