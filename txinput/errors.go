package txinput

import "errors"

var (
	errInvalidLiquidation        = errors.New("txinput: liquidation_percent must be in [0,10]")
	errResumeWithoutContinuation = errors.New("txinput: ResumeContinuation requires a non-empty post_execution on the paired snapshot")
	errInvalidRepeat             = errors.New("txinput: repeat must be >= 1")
)
