package tracker

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrInvalidTaskID indicates a task id that is not a dotted number.
var ErrInvalidTaskID = errors.New("invalid task ID format")

// taskIDPattern matches "7", "10.2" and deeper subtask ids.
var taskIDPattern = regexp.MustCompile(`^[0-9]{1,9}(\.[0-9]{1,9}){0,8}$`)

// ValidateID checks a user-supplied task id before it is passed to the
// tracker as --id=<id>.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: task ID is required", ErrInvalidTaskID)
	}
	if !taskIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %q must be a number or dotted subtask number", ErrInvalidTaskID, id)
	}
	return nil
}
