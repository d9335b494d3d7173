package actuator

import (
	"errors"
	"fmt"
)

// Sentinel errors for lookups that have no opcode.
var (
	ErrUnknownDirection = errors.New("actuator: unknown direction")
	ErrUnmappedAngle    = errors.New("actuator: unmapped head angle")
	ErrUnknownLetter    = errors.New("actuator: unknown direction letter")
	ErrUnknownArea      = errors.New("actuator: unknown area")
	ErrArmLevel         = errors.New("actuator: arm level out of range")
	ErrUnknownCommand   = errors.New("actuator: unknown command kind")
)

// ConfigError is a lookup failure in one of the opcode tables. It means the
// caller asked for something the firmware cannot do, so it is never retried.
type ConfigError struct {
	Table string
	Key   any
	Err   error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("actuator %s[%v]: %v", e.Table, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
