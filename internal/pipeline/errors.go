package pipeline

import (
	"fmt"

	"github.com/ZebulonRouseFrantzich/shellapp/internal/platform"
)

// PlatformError attributes a failure to one target platform.
type PlatformError struct {
	Target platform.Target
	Stage  Stage
	Err    error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Target, e.Stage, e.Err)
}

func (e *PlatformError) Unwrap() error {
	return e.Err
}

// StageError is returned by Run when a stage aborts the pipeline.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
