package propagation

import "errors"

// Sentinel error kinds for this package.
var (
	// ErrPropagationFailed means no state is available for the requested time.
	ErrPropagationFailed = errors.New("propagation failed")
	// ErrInvalidTLE is returned when TLE lines fail format validation.
	ErrInvalidTLE = errors.New("invalid TLE")
	// ErrInvalidState is returned when a seed state vector is not finite.
	ErrInvalidState = errors.New("invalid state vector")
)

// FrameTEME is the frame SGP4 output is expressed in.
const FrameTEME = "TEME"
