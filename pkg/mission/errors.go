package mission

import (
	"errors"
	"fmt"
)

// ErrUnknownMode is returned for a mode with no handler.
var ErrUnknownMode = errors.New("mission: unknown mode")

// PerceptionGap means a handler could not act on the tick's snapshot or
// context: a field it needs is missing or contradicts what it knows. The
// tick is skipped and retried with the next snapshot.
type PerceptionGap struct {
	Mode  Mode   `json:"mode"`
	Field string `json:"field"`
}

func (e *PerceptionGap) Error() string {
	return fmt.Sprintf("mission: %s needs %s", e.Mode, e.Field)
}
