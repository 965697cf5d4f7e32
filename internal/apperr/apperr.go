package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can render a message without
// inspecting internals.
type Kind string

const (
	KindInvalidAdjustment Kind = "invalid_adjustment"
	KindInvalidEnum       Kind = "invalid_enum"
	KindInvalidRuleSet    Kind = "invalid_rule_set"
	KindInvalidInput      Kind = "invalid_input"
	KindMissingRuleSet    Kind = "missing_rule_set"
	KindIndexOutOfRange   Kind = "index_out_of_range"
	KindVersionConflict   Kind = "version_conflict"
	KindNetwork           Kind = "network_error"
)

// Sentinels for errors.Is; they match any *Error of the same kind.
var (
	ErrInvalidAdjustment = &Error{Kind: KindInvalidAdjustment}
	ErrInvalidEnum       = &Error{Kind: KindInvalidEnum}
	ErrInvalidRuleSet    = &Error{Kind: KindInvalidRuleSet}
	ErrInvalidInput      = &Error{Kind: KindInvalidInput}
	ErrMissingRuleSet    = &Error{Kind: KindMissingRuleSet}
	ErrIndexOutOfRange   = &Error{Kind: KindIndexOutOfRange}
	ErrVersionConflict   = &Error{Kind: KindVersionConflict}
	ErrNetwork           = &Error{Kind: KindNetwork}
)

// Error is a classified failure.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return string(e.Kind)
	}
	return e.Msg
}

// Is reports kind equality so wrapped errors match the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// New builds a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Validation reports whether the kind is a local validation failure that
// should never reach persistence.
func (k Kind) Validation() bool {
	switch k {
	case KindInvalidAdjustment, KindInvalidEnum, KindInvalidRuleSet, KindInvalidInput, KindIndexOutOfRange:
		return true
	}
	return false
}
