// Package command binds protocol requests to a project and document and
// runs them against the engine under a read/write lock.
package command

import (
	"context"

	"lspadapter/internal/engine"
)

// Access is the kind of engine access a command needs.
type Access int

const (
	// Read commands only inspect engine state and may run together.
	Read Access = iota
	// Write commands mutate engine state and run alone.
	Write
)

func (a Access) String() string {
	if a == Write {
		return "write"
	}
	return "read"
}

// ExecutionContext is assembled for a single command invocation and
// dropped afterwards. Document is nil for project-wide commands and both
// Project and Document are nil for commands that need neither.
type ExecutionContext struct {
	Ctx      context.Context
	Project  engine.Project
	Document engine.Document
}

// Check returns engine.ErrCancelled once the request was cancelled.
func (ec *ExecutionContext) Check() error {
	return engine.CheckCancelled(ec.Ctx)
}

// Command maps one request to its result.
type Command[R any] interface {
	Name() string
	Access() Access
	Execute(ec *ExecutionContext) (R, error)
}
