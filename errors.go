package main

import (
	"errors"
	"fmt"
)

// ErrInvalidInput is returned when the request payload cannot be decoded.
var ErrInvalidInput = errors.New("invalid request payload")

// ErrMissingIdentity is returned when an approval lacks an id or a name.
var ErrMissingIdentity = errors.New("Missing id or name")

// ErrInvalidData is returned when the data attribute of an approval is not an object.
var ErrInvalidData = errors.New("data must be a JSON object")

// RemoteWriteError is returned when the contents API rejects a create-or-update call.
type RemoteWriteError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *RemoteWriteError) Error() string {
	return fmt.Sprintf("GitHub push failed: %s\n%s", e.Status, e.Body)
}
