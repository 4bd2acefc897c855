// Package branch implements the per-(project, branch) serialized state
// machine: the engine that owns a branch's workspace, Docker container,
// current subprocess, parsed Makefile, and git status, and exposes the
// fixed operation set spec.md §4.2.1 names (spec.md §4.2, §4.2.4).
package branch

import (
	"time"

	"github.com/STRML/droid/internal/git"
	"github.com/STRML/droid/internal/makefile"
	"github.com/STRML/droid/internal/runner"
)

// State is the branch engine's lifecycle state (spec.md §4.2.4).
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateRunning    State = "running"
	StateCancelling State = "cancelling"
	StateDeleted    State = "deleted"
)

// Snapshot is the public, read-only view of a branch engine's state that
// callers observe synchronously (the op's return value) or asynchronously
// (Engine.Snapshot) (spec.md §3's "Branch engine state").
type Snapshot struct {
	Project string
	Name    string

	State   State
	Action  string
	Command string

	// ExitCodePending/ExitCodeResolved/ExitCode/ExitCodeTimedOut mirror runner.ExitCode's three
	// states without exposing the process handle itself.
	ExitCodePending   bool
	ExitCodeResolved  bool
	ExitCode          int
	ExitCodeTimedOut  bool
	StartTime         time.Time
	RunTime           time.Duration
	Cancelled         bool

	GitStatus git.Status
	Makefile  *makefile.Makefile
	Console   string
}

func snapshotFromEngine(e *Engine) Snapshot {
	s := Snapshot{
		Project:   e.Project,
		Name:      e.Name,
		State:     e.state,
		Action:    e.action,
		Command:   e.command,
		Cancelled: e.cancelled,
		StartTime: e.startTime,
		GitStatus: e.gitStatus,
		Makefile:  e.makefile,
		Console:   e.consoleText(),
	}
	if e.proc != nil {
		code, resolved := e.proc.ExitCode.Value()
		s.ExitCodePending = !resolved
		s.ExitCodeResolved = resolved
		if resolved {
			if code == runner.Timeout {
				s.ExitCodeTimedOut = true
			} else {
				s.ExitCode = code
			}
		}
		if !e.startTime.IsZero() {
			if resolved {
				s.RunTime = 0
			} else {
				s.RunTime = time.Since(e.startTime)
			}
		}
	}
	return s
}
