package analysis

import (
	"errors"
	"fmt"
)

// ErrAnalysis is the root of every detector failure. Match it with errors.Is.
var ErrAnalysis = errors.New("analysis failed")

// Specific failures, each wrapping ErrAnalysis.
var (
	ErrInvalidInput  = fmt.Errorf("%w: invalid input", ErrAnalysis)
	ErrTooShort      = fmt.Errorf("%w: track too short", ErrAnalysis)
	ErrSilent        = fmt.Errorf("%w: track is silent", ErrAnalysis)
	ErrNoPeriodicity = fmt.Errorf("%w: no periodic onsets", ErrAnalysis)
)
