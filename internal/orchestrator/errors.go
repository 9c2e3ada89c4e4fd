package orchestrator

import "errors"

// ErrGenerationInProgress is returned when Generate is triggered while a
// generation for the same target is still running.
var ErrGenerationInProgress = errors.New("orchestrator: generation already in progress")
