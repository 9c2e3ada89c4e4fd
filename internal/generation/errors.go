package generation

import (
	"errors"
	"fmt"
)

// Domain errors for the generation pipeline.
var (
	// ErrInvalidRequest is the validation class: nothing is sent upstream.
	ErrInvalidRequest = errors.New("generation: invalid request")

	// ErrEmptySource is returned when the source text is blank.
	ErrEmptySource = fmt.Errorf("%w: source text is empty", ErrInvalidRequest)

	// ErrRateLimited is returned when the service answered 429. Transient.
	ErrRateLimited = errors.New("generation: rate limited")

	// ErrServiceUnavailable covers 5xx answers, refused credentials and
	// transport failures.
	ErrServiceUnavailable = errors.New("generation: service unavailable")

	// ErrMalformedResponse is returned when the answer is empty or unparseable.
	ErrMalformedResponse = errors.New("generation: malformed response")

	// ErrTimeout is returned when the service did not answer in time.
	ErrTimeout = errors.New("generation: timed out")

	// ErrHumanizer wraps humanizer failures. The pipeline never returns it.
	ErrHumanizer = errors.New("generation: humanizer failed")
)
