package recv

import "github.com/pkg/errors"

// ConfigError reports an invalid receive Config field, returned
// synchronously from NewConfig -- never from the packet/stream path.
type ConfigError struct {
	Field string
	Value any
}

func (e *ConfigError) Error() string {
	return errors.Errorf("recv: invalid %s=%v", e.Field, e.Value).Error()
}

func cfgErr(field string, value any) error {
	return &ConfigError{Field: field, Value: value}
}
