package gazette

import (
	"errors"
	"fmt"
)

var (
	// ErrRemoteService signals that the gazette site was unreachable or
	// answered with a non-success status.
	ErrRemoteService = errors.New("gazette remote service error")
	// ErrStorageUnavailable signals that the post store is unset or unreachable.
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// RemoteServiceError describes a failed listing fetch. StatusCode is zero for
// transport-level failures.
type RemoteServiceError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RemoteServiceError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("gazette returned status %d", e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("gazette request failed: %v", e.Err)
	default:
		return ErrRemoteService.Error()
	}
}

// Unwrap exposes the underlying transport error.
func (e *RemoteServiceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrRemoteService) match any RemoteServiceError.
func (e *RemoteServiceError) Is(target error) bool {
	return target == ErrRemoteService
}
