package mmal

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Configuration errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrInvalidParameter  = errors.New("invalid parameter")
)

// Resource errors.
var (
	ErrAllocation = errors.New("buffer allocation failed")
	ErrPoolInUse  = errors.New("pool has outstanding buffers")
)

// Protocol errors.
var (
	ErrPortState        = errors.New("invalid port state")
	ErrPortFull         = errors.New("port has no room for another buffer")
	ErrPortMismatch     = errors.New("incompatible ports")
	ErrAlreadyConnected = errors.New("port already connected")
	ErrActiveConnection = errors.New("connection is active")
	ErrForeignBuffer    = errors.New("buffer does not belong to pool")
	ErrBufferState      = errors.New("invalid buffer ownership transition")
)

// Hardware errors.
var (
	ErrDrainTimeout = errors.New("port drain timed out")
)

// Debug turns protocol errors into panics. Release builds leave it false, so
// protocol errors are logged and returned for the caller to ignore.
var Debug = false

type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassConfiguration
	ClassResource
	ClassProtocol
	ClassHardware
	ClassUnknown
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassConfiguration:
		return "configuration"
	case ClassResource:
		return "resource"
	case ClassProtocol:
		return "protocol"
	case ClassHardware:
		return "hardware"
	}
	return "unknown"
}

// Class reports which failure class err belongs to.
func Class(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrUnsupportedFormat), errors.Is(err, ErrInvalidParameter):
		return ClassConfiguration
	case errors.Is(err, ErrAllocation), errors.Is(err, ErrPoolInUse):
		return ClassResource
	case errors.Is(err, ErrDrainTimeout):
		return ClassHardware
	case errors.Is(err, ErrPortState), errors.Is(err, ErrPortFull),
		errors.Is(err, ErrPortMismatch), errors.Is(err, ErrAlreadyConnected),
		errors.Is(err, ErrActiveConnection), errors.Is(err, ErrForeignBuffer),
		errors.Is(err, ErrBufferState):
		return ClassProtocol
	}
	return ClassUnknown
}

func protocolError(err error, fields log.Fields) error {
	if Debug {
		log.WithFields(fields).Panic(err)
	}
	log.WithFields(fields).Warn(err)
	return err
}
