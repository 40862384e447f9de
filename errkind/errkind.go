// Package errkind defines the behavioral error categories shared by the
// Spotify client, the ingestion pipeline, and the tool dispatcher. Every
// error that crosses a package boundary in this module is either one of
// these kinds or gets wrapped as Internal before it reaches a caller.
package errkind

import "fmt"

type Kind string

const (
	AuthExpired       Kind = "AuthExpired"
	RateLimited       Kind = "RateLimited"
	TransientUpstream Kind = "TransientUpstream"
	CorruptCredential Kind = "CorruptCredential"
	UnrecognizedFormat Kind = "UnrecognizedFormat"
	RecordCapExceeded Kind = "RecordCapExceeded"
	ArchiveTooLarge   Kind = "ArchiveTooLarge"
	InvalidArgument   Kind = "InvalidArgument"
	NotFound          Kind = "NotFound"
	Internal          Kind = "Internal"
)

// Error is the typed error carried across layer boundaries. Message is the
// human-readable detail — for upstream Spotify failures this is the
// provider's own error.message, preserved verbatim per spec's firm contract
// that assistant clients can rely on the actual error text.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is lets callers do errors.Is(err, errkind.New(errkind.RateLimited, "")):
// any *Error target matches when its Kind equals e's; the target's Message
// and Cause are not compared.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == other.Kind
}

// KindOf extracts the Kind of err if it is (or wraps) an *Error, defaulting
// to Internal for anything else.
func KindOf(err error) Kind {
	var e *Error
	if As(err, &e) {
		return e.Kind
	}
	return Internal
}

// As walks err's single-error Unwrap chain and stores the first *Error it
// finds in target, so callers needn't import errors separately when they
// only care about this package's Error type. Errors that unwrap to a slice
// (Unwrap() []error) end the walk.
func As(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
