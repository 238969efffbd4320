package api

import "fmt"

// AuthenticationError means the login credentials were rejected. No session
// token is issued and no session state changes.
type AuthenticationError struct {
	Message string
}

func (e *AuthenticationError) Error() string {
	if e.Message == "" {
		return "authentication failed"
	}
	return "authentication failed: " + e.Message
}

// AuthorizationError means the remote rejected the call for lack of role or
// permission. It names the restricted capability and does not touch the
// session: permission denial is role-level, not session-level.
type AuthorizationError struct {
	Capability string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("not permitted: %s", e.Capability)
}

// SessionExpiredError means the remote rejected the call for a missing or
// invalid session. The client has already cleared the stored token by the
// time this error is returned; the caller redirects to login.
type SessionExpiredError struct{}

func (e *SessionExpiredError) Error() string {
	return "session expired; log in again"
}

// RemoteError is any other transport or server fault. Local state is
// unchanged and the same action may be retried.
type RemoteError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("remote call failed: %v", e.Err)
	}
	return fmt.Sprintf("remote call failed: status=%d body=%s", e.StatusCode, e.Body)
}

func (e *RemoteError) Unwrap() error { return e.Err }
