package suite

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySuite     = errors.New("no experiments found in the suite")
	ErrInvalidConfig  = errors.New("invalid suite configuration")
	ErrTaskOutOfRange = errors.New("task id out of range")
)

// ConfigError reports a suite file that cannot be dispatched.
type ConfigError struct {
	Kind error
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Path != "" {
		msg = fmt.Sprintf("%s: %s", e.Path, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ConfigError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
