package rollback

import (
	"fmt"
	"strings"
)

// BranchNotFoundError reports a branch that is neither a local branch nor a
// remote-tracking branch of origin.
type BranchNotFoundError struct {
	Branch string
}

func (e *BranchNotFoundError) Error() string {
	return fmt.Sprintf("branch %q does not exist locally or remotely", e.Branch)
}

// DirtyWorkingTreeError reports uncommitted changes found before a revert.
type DirtyWorkingTreeError struct {
	Status string
}

func (e *DirtyWorkingTreeError) Error() string {
	return fmt.Sprintf("uncommitted changes must be committed or stashed first:\n%s", strings.TrimRight(e.Status, "\n"))
}

// TargetNotAncestorError reports a target commit that is not part of the
// checked out branch history. Reverting target..HEAD would not restore it.
type TargetNotAncestorError struct {
	Target string
	Head   string
}

func (e *TargetNotAncestorError) Error() string {
	return fmt.Sprintf("target commit %s is not an ancestor of HEAD %s", e.Target, e.Head)
}

// EmptyRevertError reports a target..HEAD range whose changes cancel out, so
// HEAD already carries the tree of the target and there is nothing to commit.
type EmptyRevertError struct {
	Target string
	Head   string
}

func (e *EmptyRevertError) Error() string {
	return fmt.Sprintf("reverting %s..%s stages no changes: HEAD already has the tree of the target commit", e.Target, e.Head)
}

// TransitionError reports an operation invoked out of order, or after an
// earlier step already failed. Err holds that earlier failure, if any.
type TransitionError struct {
	Op     string
	State  State
	Reason string
	Err    error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// VerificationError reports a pushed rollback whose tree does not match the
// target commit, or a clone left with pending changes.
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	return "rollback verification failed: " + e.Reason
}
