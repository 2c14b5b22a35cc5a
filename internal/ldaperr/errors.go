// Package ldaperr defines the typed LDAP result-code error used to
// report failures back to clients as a proper LDAPResult, and a handful
// of sentinel errors for conditions internal to the proxy and the entry
// modification engine.
package ldaperr

import (
	"errors"
	"fmt"
)

// ResultCode is an LDAP result code as defined by RFC 4511 section 4.1.9.
type ResultCode int

// The result codes produced by this module. Others (e.g. success) are
// represented by a nil error, never by this type.
const (
	Success               ResultCode = 0
	OperationsError       ResultCode = 1
	ProtocolError         ResultCode = 2
	TimeLimitExceeded     ResultCode = 3
	NoSuchAttribute       ResultCode = 16
	UndefinedAttrType     ResultCode = 17
	InvalidAttributeSyntax ResultCode = 21
	NoSuchObject          ResultCode = 32
	Busy                  ResultCode = 51
	Unavailable           ResultCode = 52
	UnwillingToPerform    ResultCode = 53
	ConstraintViolation   ResultCode = 19
	AttributeOrValueExists ResultCode = 20
	InsufficientAccess    ResultCode = 50
	Other                 ResultCode = 80
)

// Error is a failed LDAP operation outcome carrying both the wire result
// code and a human-readable diagnostic message, mirroring the
// (err, matched, text) triple that OpenLDAP's send_ldap_result populates
// from a LDAPMessage's resultCode/diagnosticMessage fields.
type Error struct {
	Code       ResultCode
	Diagnostic string

	// wrapped, if set, is the underlying cause for errors.Is/As support.
	wrapped error
}

func (e *Error) Error() string {
	if e.Diagnostic == "" {
		return fmt.Sprintf("ldap: result code %d", e.Code)
	}
	return fmt.Sprintf("ldap: result code %d: %s", e.Code, e.Diagnostic)
}

func (e *Error) Unwrap() error {
	return e.wrapped
}

// New constructs an Error with the given result code and formatted
// diagnostic message.
func New(code ResultCode, format string, args ...any) *Error {
	return &Error{Code: code, Diagnostic: fmt.Sprintf(format, args...)}
}

// Wrap constructs an Error that also chains cause for errors.Is/As,
// useful when a lower-level failure (a codec error, a store error) is
// being surfaced as a specific LDAP result code.
func Wrap(code ResultCode, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Diagnostic: fmt.Sprintf(format, args...), wrapped: cause}
}

// As is a convenience wrapper over errors.As for *Error.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Sentinel errors for conditions internal to the proxy core and the
// entry modification engine that callers may need to distinguish with
// errors.Is before they are ever translated into an Error/ResultCode.
var (
	// ErrCodec is wrapped by the errors internal/ldapwire returns when a
	// BER packet it has read is not a well-formed LDAPMessage envelope.
	// Failures of the underlying BER read are returned as they are.
	ErrCodec = errors.New("ldaperr: malformed LDAP message envelope")

	// ErrDuplicateMsgID is returned when a connection's operation index
	// already holds an entry for a message id being inserted.
	ErrDuplicateMsgID = errors.New("ldaperr: duplicate message id")

	// ErrNoUpstream is returned by a backend.Selector when no upstream
	// connection is available to carry a request.
	ErrNoUpstream = errors.New("ldaperr: no upstream connection available")

	// ErrNoSuchAttribute is returned by the entry modification engine
	// when a Delete or Increment targets an attribute the entry does
	// not have.
	ErrNoSuchAttribute = errors.New("ldaperr: no such attribute")

	// ErrNoSuchValue is returned by the entry modification engine when a
	// Delete names a value the attribute does not currently hold.
	ErrNoSuchValue = errors.New("ldaperr: no such attribute value")

	// ErrMatchUnavailable is returned when a Modification names an
	// attribute with no registered equality matching rule.
	ErrMatchUnavailable = errors.New("ldaperr: no equality matching rule for attribute")
)
