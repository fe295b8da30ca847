package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures that can reach the conversation.
type Kind string

const (
	KindCredentialStore Kind = "CREDENTIAL_STORE_ERROR"
	KindNetwork         Kind = "NETWORK_ERROR"
	KindDecoding        Kind = "DECODING_ERROR"
	KindUnknown         Kind = "UNKNOWN_ERROR"
)

// Error is the result error shared by provider adapters, credential stores
// and the chat controller. Its Error text is what the user sees in the chat.
type Error struct {
	Kind Kind
	// Code is the credential store's native status code.
	Code string
	// StatusCode is the HTTP status for network errors; 0 for transport failures.
	StatusCode  int
	Description string
	Err         error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch e.Kind {
	case KindCredentialStore:
		return fmt.Sprintf("Credential store operation failed with status code: %s. Message: %s", e.Code, e.detail())
	case KindNetwork:
		return fmt.Sprintf("Network request failed: %s", e.detail())
	case KindDecoding:
		return fmt.Sprintf("Failed to decode API response: %s", e.Description)
	default:
		return fmt.Sprintf("An unknown error occurred: %s", e.detail())
	}
}

func (e *Error) detail() string {
	switch {
	case e.Kind == KindNetwork && e.StatusCode != 0:
		return fmt.Sprintf("unexpected status %d (%s)", e.StatusCode, http.StatusText(e.StatusCode))
	case e.Description != "":
		return e.Description
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "unknown error"
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// HTTPStatusCode reports the upstream HTTP status, 0 when there was none.
func (e *Error) HTTPStatusCode() int {
	if e == nil {
		return 0
	}
	return e.StatusCode
}

func CredentialStoreError(code string, err error) *Error {
	if code == "" {
		code = "unknown"
	}
	return &Error{Kind: KindCredentialStore, Code: code, Err: err}
}

// NetworkError reports a transport failure (statusCode 0) or a non-2xx response.
func NetworkError(statusCode int, err error) *Error {
	return &Error{Kind: KindNetwork, StatusCode: statusCode, Err: err}
}

func DecodingError(description string) *Error {
	return &Error{Kind: KindDecoding, Description: description}
}

func UnknownError(context string) *Error {
	return &Error{Kind: KindUnknown, Description: context}
}

// AsError extracts a taxonomy error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of err; errors outside the taxonomy are KindUnknown.
func KindOf(err error) Kind {
	if e, ok := AsError(err); ok {
		return e.Kind
	}
	return KindUnknown
}
