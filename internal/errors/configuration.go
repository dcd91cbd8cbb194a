package errors

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every ConfigurationError through errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports a required setting that is missing. It is raised
// before any network attempt is made.
type ConfigurationError struct {
	Key string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s is not set", e.Key)
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func NewConfigurationError(key string) error {
	return &ConfigurationError{Key: key}
}
