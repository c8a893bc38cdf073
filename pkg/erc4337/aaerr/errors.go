// Package aaerr holds the closed set of error kinds returned across the SDK.
//
// Every failure that leaves a package boundary is one of ConfigurationError,
// ValidationError, RpcError or TimeoutError, possibly wrapped with extra
// context. Callers discriminate with errors.As or the Is* helpers.
package aaerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ConfigurationError reports missing required wiring: no factory, no
// paymaster address, an EntryPoint without code, no signer.
type ConfigurationError struct {
	Message string
	Details map[string]interface{}
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// ValidationError reports a malformed or incomplete intent.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// RpcError is a JSON-RPC failure with its numeric code and optional data.
type RpcError struct {
	Code    int
	Message string
	Data    json.RawMessage
}

func (e *RpcError) Error() string {
	name := CodeName(e.Code)
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d (%s): %s: %s", e.Code, name, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d (%s): %s", e.Code, name, e.Message)
}

// TimeoutError is returned when a bounded poll exceeds its deadline.
type TimeoutError struct {
	Operation string
	Timeout   time.Duration
	Attempts  int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout: %s did not complete within %s (%d attempts)", e.Operation, e.Timeout, e.Attempts)
}

func NewConfigurationError(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func NewRpcError(code int, message string, data json.RawMessage) *RpcError {
	return &RpcError{Code: code, Message: message, Data: data}
}

func NewTimeoutError(operation string, timeout time.Duration, attempts int) *TimeoutError {
	return &TimeoutError{Operation: operation, Timeout: timeout, Attempts: attempts}
}

func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsRpc(err error) bool {
	var target *RpcError
	return errors.As(err, &target)
}

func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// RpcCode returns the JSON-RPC code carried by err, if any.
func RpcCode(err error) (int, bool) {
	var target *RpcError
	if errors.As(err, &target) {
		return target.Code, true
	}
	return 0, false
}

// RequireFields fails with a ValidationError naming every empty field.
// A field counts as empty when its value is nil or an empty string.
func RequireFields(fields map[string]interface{}, names ...string) error {
	var missing []string
	for _, name := range names {
		v, ok := fields[name]
		if !ok || isEmpty(v) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return NewValidationError(strings.Join(missing, ","), "missing required field")
	}
	return nil
}

// RequireCond returns a ValidationError with msg when cond is false.
func RequireCond(cond bool, field, msg string) error {
	if !cond {
		return NewValidationError(field, msg)
	}
	return nil
}

func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []byte:
		return len(t) == 0
	}
	return false
}
