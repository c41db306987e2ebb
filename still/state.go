package still

import "fmt"

// State of the pipeline. A controller only ever moves forward through them.
type State int

const (
	Uninitialized State = iota
	ComponentsCreated
	Configured
	Connected
	Capturing
	Draining
	Destroyed
)

var stateNames = []string{
	"uninitialized",
	"components_created",
	"configured",
	"connected",
	"capturing",
	"draining",
	"destroyed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Mode selects when stills are taken.
type Mode int

const (
	// ModeSingle waits for the timeout and takes one still.
	ModeSingle Mode = iota
	// ModeTimelapse takes a still every interval until the timeout.
	ModeTimelapse
	// ModeTriggered takes a still on every Trigger until the timeout.
	ModeTriggered
)

func (m Mode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeTimelapse:
		return "timelapse"
	case ModeTriggered:
		return "triggered"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}
