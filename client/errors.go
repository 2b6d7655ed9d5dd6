package client

import (
	"errors"
	"fmt"
)

// ErrSessionExpired reports that the session could not be renewed: either the
// renewal exchange failed or a replayed request expired again. The client has
// already cleared its local session state when this is returned.
var ErrSessionExpired = errors.New("session expired")

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.Status, e.Code, e.Message)
}
