package ddns

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound matches a LookupError whose query returned no records.
	ErrNotFound = errors.New("DNS record not found")

	// ErrRejected matches a WriteError where the provider answered success=false.
	ErrRejected = errors.New("update rejected by provider")
)

// ConfigError reports a missing or invalid setting.
// It is raised before any network call is made.
type ConfigError struct {
	Setting string
	Reason  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration: %s %s", e.Setting, e.Reason)
}

// ResolveError is returned when the public address could not be determined.
type ResolveError struct {
	Source string
	Err    error
}

func (e *ResolveError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("unable to resolve public address: %s", e.Err)
	}
	return fmt.Sprintf("unable to resolve public address from %s: %s", e.Source, e.Err)
}

func (e *ResolveError) Unwrap() error { return e.Err }

type LookupKind int

const (
	LookupTransport LookupKind = iota
	LookupNotFound
)

func (k LookupKind) String() string {
	if k == LookupNotFound {
		return "not found"
	}
	return "transport"
}

// LookupError is returned by record queries.
type LookupError struct {
	Kind LookupKind
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	if e.Kind == LookupNotFound {
		return fmt.Sprintf("no DNS record found for %s", e.Name)
	}
	return fmt.Sprintf("error fetching DNS records for %s: %s", e.Name, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

func (e *LookupError) Is(target error) bool {
	return target == ErrNotFound && e.Kind == LookupNotFound
}

type WriteKind int

const (
	WriteTransport WriteKind = iota
	WriteRejected
)

func (k WriteKind) String() string {
	if k == WriteRejected {
		return "rejected"
	}
	return "transport"
}

// WriteError is returned when a record update did not take effect.
// Errors holds the provider's error list when Kind is WriteRejected.
type WriteError struct {
	Kind   WriteKind
	ID     RecordID
	Errors []ProviderError
	Err    error
}

func (e *WriteError) Error() string {
	if e.Kind == WriteRejected {
		return fmt.Sprintf("failed to update DNS record %s: %s", e.ID, formatErrors(e.Errors))
	}
	return fmt.Sprintf("failed to update DNS record %s: %s", e.ID, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool {
	return target == ErrRejected && e.Kind == WriteRejected
}

// ProviderError is one entry of the provider's "errors" array.
type ProviderError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e ProviderError) String() string {
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

func formatErrors(errs []ProviderError) string {
	if len(errs) == 0 {
		return "unknown error"
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.String())
	}
	return strings.Join(msgs, "; ")
}
