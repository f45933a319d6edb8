package git

import "context"

// Runner executes a single git invocation. Implementations return the captured
// standard output on success and a *GitError when git exits non-zero.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}
