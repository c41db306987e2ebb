package still

import (
	"github.com/pkg/errors"

	"stillcam/mmal"
)

// ErrUsage marks bad command line input.
var ErrUsage = errors.New("usage")

// Process exit codes, following sysexits where one fits.
const (
	ExitOK       = 0
	ExitUsage    = 64
	ExitSoftware = 70
	ExitResource = 71
	ExitHardware = 74
	ExitConfig   = 78
	ExitAborted  = 255
)

// ExitCode maps the error returned by Run to the process exit code. A
// hardware fault wins over everything else since the device may be left in
// a bad state.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrUsage):
		return ExitUsage
	case errors.Is(err, mmal.ErrDrainTimeout), errors.Is(err, ErrCaptureTimeout), errors.Is(err, ErrFrameCorrupt):
		return ExitHardware
	case errors.Is(err, ErrAborted):
		return ExitAborted
	}
	switch mmal.Class(err) {
	case mmal.ClassConfiguration:
		return ExitConfig
	case mmal.ClassResource:
		return ExitResource
	}
	return ExitSoftware
}
