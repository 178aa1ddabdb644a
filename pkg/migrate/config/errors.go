package config

import "fmt"

// Error : the configuration cannot be used, the process must not start
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid configuration: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
