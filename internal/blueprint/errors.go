package blueprint

import (
	"fmt"

	"github.com/pkg/errors"
)

// Stage names the step of building or compiling a blueprint that failed.
type Stage string

const (
	// StageConstruct covers bad options, hostnames, and ranges.
	StageConstruct Stage = "construct"
	// StageSize covers unknown providers and unsatisfiable machine sizes.
	StageSize Stage = "size"
	// StageTopology covers rejected traffic rules.
	StageTopology Stage = "topology"
	// StageValidate covers whole-graph consistency checks at compile time.
	StageValidate Stage = "validate"
	// StageInfrastructure covers a second Infrastructure in one Context.
	StageInfrastructure Stage = "infrastructure"
)

// Error is returned by every failing operation in this package. All errors
// are fatal to the blueprint; none are worth retrying.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// IsStage reports whether err (or any error in its chain) failed in stage.
func IsStage(err error, stage Stage) bool {
	var be *Error
	return errors.As(err, &be) && be.Stage == stage
}

func stageErr(stage Stage, err error) error { return &Error{Stage: stage, Err: err} }

func stageErrf(stage Stage, format string, a ...interface{}) error {
	return stageErr(stage, errors.Errorf(format, a...))
}
