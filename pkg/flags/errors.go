package flags

import (
	"errors"
	"fmt"
)

var ErrUnknownEnvironment = errors.New("unknown environment")

// DuplicateFlagError is returned when creating a flag whose (name,
// environment) record already exists.
type DuplicateFlagError struct {
	Name string
}

func (e *DuplicateFlagError) Error() string {
	return fmt.Sprintf("a flag with this name already exists: %s", e.Name)
}

// FlagNotFoundError is returned when updating a flag that has no record.
type FlagNotFoundError struct {
	Name string
}

func (e *FlagNotFoundError) Error() string {
	return fmt.Sprintf("flag %s not found", e.Name)
}

// IsDuplicate reports whether err is or wraps a *DuplicateFlagError.
func IsDuplicate(err error) bool {
	var dup *DuplicateFlagError
	return errors.As(err, &dup)
}

// IsNotFound reports whether err is or wraps a *FlagNotFoundError.
func IsNotFound(err error) bool {
	var nf *FlagNotFoundError
	return errors.As(err, &nf)
}
