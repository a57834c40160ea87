package origin

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrTransport covers every way a fetch can fail: network errors, non-2xx
// responses and bodies that are not JSON.
var ErrTransport = errors.New("origin request failed")

// ErrMalformedBody is returned when the origin answers 2xx with a body that
// does not parse as JSON.
var ErrMalformedBody = fmt.Errorf("%w: malformed JSON body", ErrTransport)

// StatusError reports a non-2xx origin response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d %s", ErrTransport, e.Code, http.StatusText(e.Code))
}

func (e *StatusError) Is(target error) bool {
	return target == ErrTransport
}
