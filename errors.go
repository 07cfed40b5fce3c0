package pallet

import (
	"errors"
	"fmt"

	"github.com/hupe1980/pallet/index"
)

// Error kinds. Every error returned by a Store matches exactly one of them
// with errors.Is, except context cancellation, which is returned unchanged.
// The underlying cause stays reachable through errors.Unwrap.
var (
	// ErrSearchEngine covers index I/O, schema and query execution failures.
	ErrSearchEngine = errors.New("pallet: search engine failure")
	// ErrQuerySyntax is returned for malformed query text.
	ErrQuerySyntax = errors.New("pallet: query syntax error")
	// ErrStorage covers record tree failures.
	ErrStorage = errors.New("pallet: storage failure")
	// ErrSerialization covers record encode and decode failures.
	ErrSerialization = errors.New("pallet: serialization failure")
	// ErrConfiguration is returned for incomplete or invalid configuration.
	ErrConfiguration = errors.New("pallet: configuration error")
	// ErrCustom wraps failures raised by caller-supplied code, such as
	// search handlers.
	ErrCustom = errors.New("pallet: custom failure")
	// ErrClosed is returned by every operation on a closed Store.
	ErrClosed = errors.New("pallet: store closed")
)

var kinds = []error{ErrSearchEngine, ErrQuerySyntax, ErrStorage, ErrSerialization, ErrConfiguration, ErrCustom, ErrClosed}

// ConfigError reports a missing required configuration option.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("`%s` not set", e.Field) }

// Is makes errors.Is(err, ErrConfiguration) hold.
func (e *ConfigError) Is(target error) bool { return target == ErrConfiguration }

// Custom returns an ErrCustom error with the given message.
func Custom(msg string) error {
	return fmt.Errorf("%w: %s", ErrCustom, msg)
}

// Customf is like Custom with a format string. %w verbs keep their operands
// reachable with errors.Is and errors.As.
func Customf(format string, args ...any) error {
	return fmt.Errorf("%w: %w", ErrCustom, fmt.Errorf(format, args...))
}

func hasKind(err error) bool {
	for _, k := range kinds {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// wrap tags err with kind unless it already carries one.
func wrap(kind, err error) error {
	if err == nil || hasKind(err) {
		return err
	}
	return fmt.Errorf("%w: %w", kind, err)
}

// translateError maps search index errors into the error kinds.
func translateError(err error) error {
	if err == nil || hasKind(err) || isContextErr(err) {
		return err
	}
	if errors.Is(err, index.ErrQuerySyntax) {
		return fmt.Errorf("%w: %w", ErrQuerySyntax, err)
	}
	return fmt.Errorf("%w: %w", ErrSearchEngine, err)
}
