package auth

import (
	"errors"
	"fmt"
)

var (
	ErrBind                     = errors.New("callback listener bind failed")
	ErrAuthorizationDenied      = errors.New("authorization denied by provider")
	ErrStateMismatch            = errors.New("state mismatch")
	ErrMissingCallbackParameter = errors.New("missing callback parameter")
	ErrTokenExchange            = errors.New("token exchange failed")
	ErrAuthorizationRequest     = errors.New("authorization request failed")
	ErrCancelled                = errors.New("authorization flow cancelled")
	ErrFlowAlreadyRun           = errors.New("authorization flow already run")
	ErrNoRefreshToken           = errors.New("no refresh token available")
)

// BindError is returned when the callback listener cannot bind the redirect
// host and port.
type BindError struct {
	Address string
	Err     error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("failed to start callback listener on %s: %v", e.Address, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

func (e *BindError) Is(target error) bool { return target == ErrBind }

// AuthorizationDeniedError carries the error reported by the provider on the
// redirect.
type AuthorizationDeniedError struct {
	Code        string
	Description string
}

func (e *AuthorizationDeniedError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("authorization denied: %s", e.Code)
	}
	return fmt.Sprintf("authorization denied: %s: %s", e.Code, e.Description)
}

func (e *AuthorizationDeniedError) Is(target error) bool { return target == ErrAuthorizationDenied }

// StateMismatchError means the callback did not echo the state generated for
// this flow. Possible CSRF or compromised redirect.
type StateMismatchError struct {
	Received string
}

func (e *StateMismatchError) Error() string {
	if e.Received == "" {
		return "callback carried no state, authentication possibly compromised"
	}
	return fmt.Sprintf("received state %q does not match the generated state, authentication possibly compromised", e.Received)
}

func (e *StateMismatchError) Is(target error) bool { return target == ErrStateMismatch }

type MissingCallbackParameterError struct {
	Param string
}

func (e *MissingCallbackParameterError) Error() string {
	return fmt.Sprintf("missing argument in callback: %s", e.Param)
}

func (e *MissingCallbackParameterError) Is(target error) bool {
	return target == ErrMissingCallbackParameter
}

// TokenExchangeError is returned for any unexpected token endpoint response.
// Body holds the raw response for diagnostics; Error masks token values in it.
type TokenExchangeError struct {
	GrantType  string
	StatusCode int
	Body       []byte
	Err        error
}

func (e *TokenExchangeError) Error() string {
	msg := fmt.Sprintf("%s exchange failed (%d)", e.GrantType, e.StatusCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Body) > 0 {
		msg += ": " + redactBody(e.Body)
	}
	return msg
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

func (e *TokenExchangeError) Is(target error) bool { return target == ErrTokenExchange }

type AuthorizationRequestError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *AuthorizationRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authorization request failed: %v", e.Err)
	}
	return fmt.Sprintf("authorization request failed (%d): %s", e.StatusCode, redactBody(e.Body))
}

func (e *AuthorizationRequestError) Unwrap() error { return e.Err }

func (e *AuthorizationRequestError) Is(target error) bool { return target == ErrAuthorizationRequest }

// cancelledError keeps both ErrCancelled and the context cause visible to
// errors.Is.
type cancelledError struct {
	cause error
}

func (e *cancelledError) Error() string {
	if e.cause == nil {
		return ErrCancelled.Error()
	}
	return fmt.Sprintf("%s: %v", ErrCancelled.Error(), e.cause)
}

func (e *cancelledError) Unwrap() []error { return []error{ErrCancelled, e.cause} }
