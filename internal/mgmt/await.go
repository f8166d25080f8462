package mgmt

import (
	"context"
	"fmt"
)

// Result is the terminal status of one command.
type Result struct {
	Status  Status
	Message string
}

// Err returns nil for StatusComplete and a *StatusError otherwise.
func (r Result) Err() error {
	if r.Status == StatusComplete {
		return nil
	}
	return &StatusError{Status: r.Status, Message: r.Message}
}

// StatusError is a non-complete Result as an error.
type StatusError struct {
	Status  Status
	Message string
}

// Error implements the error interface
func (e *StatusError) Error() string {
	if e.Message == "" {
		return e.Status.String()
	}
	return fmt.Sprintf("%s: %s", e.Status, e.Message)
}

// Observable is implemented by every group.
type Observable interface {
	OnStatus(fn StatusFunc) func()
	Abort()
}

// Await runs start and blocks until g reports a terminal status or ctx is
// done. When ctx ends first the command is aborted and ctx.Err() returned.
//
//	var out string
//	res, err := mgmt.Await(ctx, osGroup, func() error {
//	    return osGroup.StartEcho("hello", &out)
//	})
func Await(ctx context.Context, g Observable, start func() error) (Result, error) {
	done := make(chan Result, 1)
	remove := g.OnStatus(func(status Status, message string) {
		select {
		case done <- Result{Status: status, Message: message}:
		default:
		}
	})
	defer remove()

	if err := start(); err != nil {
		select {
		case res := <-done:
			return res, err
		default:
			return Result{}, err
		}
	}

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		g.Abort()
		return Result{Status: StatusCancelled}, ctx.Err()
	}
}
