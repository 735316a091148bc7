package callstate

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is the sentinel wrapped by transition errors (spec
// §4.4: "Any transition not in the table fails with an InvalidTransition
// error").
var ErrInvalidTransition = errors.New("callstate: invalid transition")

func invalidTransitionErr(event string, phase Phase) error {
	return fmt.Errorf("%w: event %q not legal in phase %q", ErrInvalidTransition, event, phase)
}
