package rollback

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rancher/rollback-action/internal/git"
)

const remoteName = "origin"

// Repository drives a single rollback run against one local clone. Operations
// must be called in order: Clone, SetRemoteOrigin, CheckoutBranch, AssertClean,
// RevertToCommit. The first failure moves the repository to StateFailed and the
// clone is left untouched for inspection.
//
// A Repository is not safe for concurrent use, and two runs must never share a
// ClonePath: Clone removes the directory unconditionally.
type Repository struct {
	cfg    Config
	runner git.Runner
	log    *slog.Logger

	state     State
	lastState State
	failure   error

	branch       BranchRef
	previousHead string
	targetSHA    string
	noop         bool
}

// New returns a Repository in StateAbsent.
func New(cfg Config, runner git.Runner, logger *slog.Logger) *Repository {
	return &Repository{cfg: cfg, runner: runner, log: logger, state: StateAbsent}
}

// State returns the current state.
func (r *Repository) State() State {
	return r.state
}

// LastState returns the last state reached before a failure. It equals State
// while the run is healthy.
func (r *Repository) LastState() State {
	if r.state == StateFailed {
		return r.lastState
	}
	return r.state
}

// Err returns the failure that moved the repository to StateFailed.
func (r *Repository) Err() error {
	return r.failure
}

// Branch returns the branch selected by CheckoutBranch.
func (r *Repository) Branch() BranchRef {
	return r.branch
}

// Path returns the local clone directory.
func (r *Repository) Path() string {
	return r.cfg.ClonePath
}

// Clone removes any previous clone at ClonePath and clones the remote into it.
func (r *Repository) Clone(ctx context.Context) error {
	if err := r.expect("clone", StateAbsent); err != nil {
		return err
	}

	path := filepath.Clean(r.cfg.ClonePath)
	if !filepath.IsAbs(path) || path == filepath.Dir(path) {
		return r.fail(fmt.Errorf("refusing to clone into %q", r.cfg.ClonePath))
	}

	cloneURL := strings.TrimSpace(r.cfg.RemoteURL)
	if cloneURL == "" {
		authURL, err := r.authenticatedURL()
		if err != nil {
			return r.fail(err)
		}
		cloneURL = authURL
	}

	if r.log != nil {
		r.log.Info("cloning repository", "url", git.RedactURL(cloneURL), "path", path)
	}

	if err := os.RemoveAll(path); err != nil {
		return r.fail(fmt.Errorf("remove previous clone: %w", err))
	}

	if _, err := r.runner.Run(ctx, filepath.Dir(path), "clone", cloneURL, path); err != nil {
		return r.fail(fmt.Errorf("git clone: %w", err))
	}

	if r.cfg.UserName != "" {
		if _, err := r.git(ctx, "config", "user.name", r.cfg.UserName); err != nil {
			return r.fail(fmt.Errorf("git config user.name: %w", err))
		}
	}
	if r.cfg.UserEmail != "" {
		if _, err := r.git(ctx, "config", "user.email", r.cfg.UserEmail); err != nil {
			return r.fail(fmt.Errorf("git config user.email: %w", err))
		}
	}

	r.transition(StateCloned)
	return nil
}

// SetRemoteOrigin points origin at the authenticated remote URL, updating the
// remote when it already exists and adding it otherwise. It does not change the
// state and is only allowed right after Clone or CheckoutBranch, so it can never
// land between AssertClean and RevertToCommit.
func (r *Repository) SetRemoteOrigin(ctx context.Context) error {
	if err := r.expect("set remote origin", StateCloned, StateBranchSelected); err != nil {
		return err
	}

	remoteURL, err := r.authenticatedURL()
	if err != nil {
		return r.fail(err)
	}

	verb := "set-url"
	if _, err := r.git(ctx, "remote", "get-url", remoteName); err != nil {
		if _, ok := git.ExitCode(err); !ok {
			return r.fail(fmt.Errorf("git remote get-url: %w", err))
		}
		verb = "add"
	}

	if r.log != nil {
		r.log.Info("configuring remote", "remote", remoteName, "action", verb, "url", git.RedactURL(remoteURL))
	}

	if _, err := r.git(ctx, "remote", verb, remoteName, remoteURL); err != nil {
		return r.fail(fmt.Errorf("git remote %s: %w", verb, err))
	}
	return nil
}

// CheckoutBranch fetches all remotes and checks out name, or the configured
// branch when name is empty. A local branch wins over origin/<name>; when only
// the remote-tracking branch exists a local tracking branch is created.
func (r *Repository) CheckoutBranch(ctx context.Context, name string) (BranchRef, error) {
	if err := r.expect("checkout branch", StateCloned, StateBranchSelected); err != nil {
		return BranchRef{}, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = r.cfg.Branch
	}

	if r.log != nil {
		r.log.Info("checking out branch", "branch", name)
	}

	if _, err := r.git(ctx, "fetch", "--all"); err != nil {
		return BranchRef{}, r.fail(fmt.Errorf("git fetch --all: %w", err))
	}

	local, err := r.git(ctx, "branch", "--list", name)
	if err != nil {
		return BranchRef{}, r.fail(fmt.Errorf("git branch --list %s: %w", name, err))
	}

	if containsBranch(parseBranchList(local), name) {
		if _, err := r.git(ctx, "checkout", name); err != nil {
			return BranchRef{}, r.fail(fmt.Errorf("git checkout %s: %w", name, err))
		}
		r.branch = BranchRef{Name: name}
		r.transition(StateBranchSelected)
		return r.branch, nil
	}

	all, err := r.git(ctx, "branch", "--all")
	if err != nil {
		return BranchRef{}, r.fail(fmt.Errorf("git branch --all: %w", err))
	}

	if containsBranch(parseBranchList(all), fmt.Sprintf("remotes/%s/%s", remoteName, name)) {
		if r.log != nil {
			r.log.Info("creating local tracking branch", "branch", name, "remote", remoteName)
		}
		upstream := fmt.Sprintf("%s/%s", remoteName, name)
		if _, err := r.git(ctx, "checkout", "-b", name, upstream); err != nil {
			return BranchRef{}, r.fail(fmt.Errorf("git checkout -b %s %s: %w", name, upstream, err))
		}
		r.branch = BranchRef{Name: name, Remote: true}
		r.transition(StateBranchSelected)
		return r.branch, nil
	}

	return BranchRef{}, r.fail(&BranchNotFoundError{Branch: name})
}

// AssertClean fails with *DirtyWorkingTreeError when the working tree or index
// has pending changes. It must immediately precede RevertToCommit.
func (r *Repository) AssertClean(ctx context.Context) error {
	if err := r.expect("check working tree", StateBranchSelected); err != nil {
		return err
	}

	status, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return r.fail(fmt.Errorf("git status --porcelain: %w", err))
	}
	if strings.TrimSpace(status) != "" {
		return r.fail(&DirtyWorkingTreeError{Status: status})
	}

	r.transition(StateClean)
	return nil
}

// RevertToCommit restores the tree of target on the selected branch by
// reverting every commit in target..HEAD as a single new commit, then pushes
// it. When HEAD already is target nothing is reverted, committed or pushed.
// When HEAD differs from target but already carries its tree the revert stages
// nothing and *EmptyRevertError is returned.
// An empty target falls back to the configured TargetCommit.
func (r *Repository) RevertToCommit(ctx context.Context, target string) (RevertResult, error) {
	if err := r.expect("revert", StateClean); err != nil {
		return RevertResult{}, err
	}

	target = strings.TrimSpace(target)
	if target == "" {
		target = r.cfg.TargetCommit
	}

	resolved, err := r.git(ctx, "rev-parse", "--verify", target+"^{commit}")
	if err != nil {
		return RevertResult{}, r.fail(fmt.Errorf("resolve target %s: %w", target, err))
	}
	targetSHA := strings.TrimSpace(resolved)

	head, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return RevertResult{}, r.fail(fmt.Errorf("git rev-parse HEAD: %w", err))
	}
	headSHA := strings.TrimSpace(head)

	r.previousHead = headSHA
	r.targetSHA = targetSHA
	result := RevertResult{Target: target, TargetSHA: targetSHA, PreviousHead: headSHA}

	if headSHA == targetSHA {
		if r.log != nil {
			r.log.Info("already at target commit, nothing to revert", "target", target, "head", headSHA)
		}
		r.noop = true
		result.NoOp = true
		r.transition(StateReverted)
		return result, nil
	}

	if _, err := r.git(ctx, "merge-base", "--is-ancestor", targetSHA, "HEAD"); err != nil {
		if code, ok := git.ExitCode(err); ok && code == 1 {
			return RevertResult{}, r.fail(&TargetNotAncestorError{Target: targetSHA, Head: headSHA})
		}
		return RevertResult{}, r.fail(fmt.Errorf("git merge-base --is-ancestor: %w", err))
	}

	if r.log != nil {
		r.log.Info("reverting commits", "range", fmt.Sprintf("%s..HEAD", targetSHA), "target", target)
	}

	if _, err := r.git(ctx, "revert", "--no-commit", targetSHA+"..HEAD"); err != nil {
		return RevertResult{}, r.fail(fmt.Errorf("git revert: %w", err))
	}

	// Exit status 1 means the index differs from HEAD.
	if _, err := r.git(ctx, "diff", "--cached", "--quiet"); err == nil {
		return RevertResult{}, r.fail(&EmptyRevertError{Target: targetSHA, Head: headSHA})
	} else if code, ok := git.ExitCode(err); !ok || code != 1 {
		return RevertResult{}, r.fail(fmt.Errorf("git diff --cached --quiet: %w", err))
	}
	r.transition(StateReverted)

	commit, err := r.CommitAndPush(ctx, fmt.Sprintf("Reverting to commit %s", target))
	if err != nil {
		return RevertResult{}, err
	}

	result.Commit = commit
	return result, nil
}

// CommitAndPush stages everything, commits it with message and pushes the
// selected branch to origin. It returns the new commit id.
func (r *Repository) CommitAndPush(ctx context.Context, message string) (string, error) {
	if err := r.expect("commit and push", StateReverted); err != nil {
		return "", err
	}
	if r.noop {
		return "", &TransitionError{Op: "commit and push", State: r.state, Reason: "already at target commit"}
	}

	branch := r.branch.Name
	if branch == "" {
		branch = r.cfg.Branch
	}

	if r.log != nil {
		r.log.Info("committing and pushing changes", "branch", branch, "message", message)
	}

	if _, err := r.git(ctx, "add", "."); err != nil {
		return "", r.fail(fmt.Errorf("git add: %w", err))
	}
	if _, err := r.git(ctx, "commit", "-m", message); err != nil {
		return "", r.fail(fmt.Errorf("git commit: %w", err))
	}

	head, err := r.git(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", r.fail(fmt.Errorf("git rev-parse HEAD: %w", err))
	}
	commit := strings.TrimSpace(head)

	if _, err := r.git(ctx, "push", remoteName, branch); err != nil {
		return "", r.fail(fmt.Errorf("git push %s %s: %w", remoteName, branch, err))
	}

	r.transition(StatePushed)
	if r.log != nil {
		r.log.Info("changes committed and pushed", "branch", branch, "commit", commit)
	}
	return commit, nil
}

func (r *Repository) authenticatedURL() (string, error) {
	remoteURL, err := git.BuildRemoteURL(r.cfg.HostURL, r.cfg.UserName, r.cfg.Token, r.cfg.RepoOwner, r.cfg.RepoName)
	if err != nil {
		return "", fmt.Errorf("build remote url: %w", err)
	}
	return remoteURL, nil
}

func (r *Repository) git(ctx context.Context, args ...string) (string, error) {
	return r.runner.Run(ctx, r.cfg.ClonePath, args...)
}

func (r *Repository) expect(op string, allowed ...State) error {
	if r.state == StateFailed {
		return &TransitionError{Op: op, State: r.state, Reason: "an earlier step failed", Err: r.failure}
	}
	for _, s := range allowed {
		if r.state == s {
			return nil
		}
	}
	return &TransitionError{Op: op, State: r.state, Reason: fmt.Sprintf("expected one of %v", allowed)}
}

func (r *Repository) transition(next State) {
	if r.log != nil {
		r.log.Info("state transition",
			"owner", r.cfg.RepoOwner,
			"repo", r.cfg.RepoName,
			"branch", r.cfg.Branch,
			"from", r.state,
			"state", next,
		)
	}
	r.state = next
}

func (r *Repository) fail(err error) error {
	r.lastState = r.state
	r.state = StateFailed
	r.failure = err
	if r.log != nil {
		r.log.Error("rollback step failed", "state", r.lastState, "error", err)
	}
	return err
}

// parseBranchList turns `git branch` output into branch names, dropping the
// current-branch marker and symbolic ref targets such as "HEAD -> origin/main".
func parseBranchList(output string) []string {
	var names []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "* ")
		line = strings.TrimPrefix(line, "+ ")
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "(") {
			continue
		}
		if idx := strings.Index(line, " -> "); idx >= 0 {
			line = line[:idx]
		}
		names = append(names, line)
	}
	return names
}

func containsBranch(names []string, want string) bool {
	for _, name := range names {
		if name == want {
			return true
		}
	}
	return false
}
