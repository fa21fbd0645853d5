package cfauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	vaultapi "github.com/hashicorp/vault/api"
)

// CredentialLoadError reports a local credential resource that could not be
// read. It is not retried: build a new supplier after the platform rotates
// the credential.
type CredentialLoadError struct {
	Kind string // "certificate" or "key"
	Path string
	Err  error
}

func (e *CredentialLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("cf instance %s retrieval failed: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("cf instance %s retrieval from %s failed: %v", e.Kind, e.Path, e.Err)
}

func (e *CredentialLoadError) Unwrap() error { return e.Err }

// AuthenticationError reports a login rejected by Vault or a transport
// failure during login.
type AuthenticationError struct {
	Method string
	Detail string
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("Cannot login using %s: %s", e.Method, e.Detail)
	}
	return fmt.Sprintf("Cannot login using %s", e.Method)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// MalformedResponseError reports a successful response that cannot be turned
// into a Token. Retrying does not help.
type MalformedResponseError struct {
	Reason string
}

func (e *MalformedResponseError) Error() string {
	return "malformed login response: " + e.Reason
}

func malformed(format string, args ...any) *MalformedResponseError {
	return &MalformedResponseError{Reason: fmt.Sprintf(format, args...)}
}

// responseBodyError is implemented by transport errors that keep the raw
// response body of a failed request.
type responseBodyError interface {
	ResponseBody() []byte
}

// NewLoginError maps a transport failure of the given auth method into an
// AuthenticationError. Every login strategy shares it.
func NewLoginError(method string, err error) *AuthenticationError {
	if detail, ok := errorDetail(err); ok {
		return &AuthenticationError{Method: method, Detail: detail, Err: err}
	}
	return &AuthenticationError{Method: method, Err: err}
}

func errorDetail(err error) (string, bool) {
	if err == nil {
		return "", false
	}

	var respErr *vaultapi.ResponseError
	if errors.As(err, &respErr) && len(respErr.Errors) > 0 {
		return joinErrors(respErr.Errors), true
	}

	var bodyErr responseBodyError
	if errors.As(err, &bodyErr) {
		body := strings.TrimSpace(string(bodyErr.ResponseBody()))
		if body == "" {
			return "", false
		}
		return vaultErrorFromBody(body), true
	}
	return "", false
}

// vaultErrorFromBody extracts the "errors" list of a Vault error payload and
// falls back to the body itself.
func vaultErrorFromBody(body string) string {
	if !strings.Contains(body, `"errors"`) {
		return body
	}
	var payload struct {
		Errors []string `json:"errors"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil || payload.Errors == nil {
		return body
	}
	return joinErrors(payload.Errors)
}

func joinErrors(errs []string) string {
	if len(errs) == 1 {
		return errs[0]
	}
	return "[" + strings.Join(errs, ", ") + "]"
}
