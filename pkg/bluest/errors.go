// Package bluest holds the error taxonomy shared by every BlueST package.
package bluest

import (
	"errors"
	"fmt"
)

// ErrorKind identifies the class of a BlueST failure.
type ErrorKind string

const (
	InvalidAdvertisingData     ErrorKind = "invalid_advertising_data"
	UnsupportedPayloadLength   ErrorKind = "unsupported_payload_length"
	UnknownManufacturerID      ErrorKind = "unknown_manufacturer_id"
	UnsupportedProtocolVersion ErrorKind = "unsupported_protocol_version"
	UnknownDeviceType          ErrorKind = "unknown_device_type"
	InsufficientData           ErrorKind = "insufficient_data"
	InvalidOperation           ErrorKind = "invalid_operation"
	InvalidFeatureBitMask      ErrorKind = "invalid_feature_bit_mask"
	CatalogLookupFailed        ErrorKind = "catalog_lookup_failed"
	LinkError                  ErrorKind = "link_error"
)

// Error is a BlueST failure of a given kind. Err, when set, is the cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	switch {
	case e.Msg == "" && e.Err == nil:
		return string(e.Kind)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	case e.Msg == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Predefined sentinel errors, one per kind
var (
	ErrInvalidAdvertisingData     = &Error{Kind: InvalidAdvertisingData}
	ErrUnsupportedPayloadLength   = &Error{Kind: UnsupportedPayloadLength}
	ErrUnknownManufacturerID      = &Error{Kind: UnknownManufacturerID}
	ErrUnsupportedProtocolVersion = &Error{Kind: UnsupportedProtocolVersion}
	ErrUnknownDeviceType          = &Error{Kind: UnknownDeviceType}
	ErrInsufficientData           = &Error{Kind: InsufficientData}
	ErrInvalidOperation           = &Error{Kind: InvalidOperation}
	ErrInvalidFeatureBitMask      = &Error{Kind: InvalidFeatureBitMask}
	ErrCatalogLookupFailed        = &Error{Kind: CatalogLookupFailed}
	ErrLinkError                  = &Error{Kind: LinkError}
)

// Errorf builds an Error of the given kind with a formatted message.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind around cause. A nil cause yields nil.
func Wrap(kind ErrorKind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// IsKind reports whether err is an Error with the given kind
func IsKind(err error, kind ErrorKind) bool {
	var berr *Error
	if errors.As(err, &berr) {
		return berr.Kind == kind
	}
	return false
}
