package gh

import (
	"context"
	"errors"
)

// Client exposes the read-only GitHub checks run before a rollback touches the
// local clone.
type Client interface {
	EnsureBranchExists(ctx context.Context, owner, repo, branch string) error
	CommitExistsOnBranch(ctx context.Context, owner, repo, commitSHA, branch string) (bool, error)
	CanPush(ctx context.Context, owner, repo string) (bool, error)
}

// Factory builds concrete GitHub clients (e.g., REST-backed) for the preflight.
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

// ErrBranchNotFound indicates the requested branch does not exist on the remote.
var ErrBranchNotFound = errors.New("github: branch not found")

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a transient
// GitHub API failure. The rollback never retries; the flag only shapes the
// message shown to the operator.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
