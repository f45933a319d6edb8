package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/rancher/rollback-action/internal/git"
	gh "github.com/rancher/rollback-action/internal/github"
	"github.com/rancher/rollback-action/internal/publish"
	"github.com/rancher/rollback-action/internal/rollback"
)

var commitSHAPattern = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)

// Publisher uploads a directory tree to the remote workspace.
type Publisher interface {
	Publish(ctx context.Context, dir string) (publish.Result, error)
}

// Result summarises a rollback run. It is populated as far as the run got.
type Result struct {
	RunID     string
	Owner     string
	Repo      string
	Branch    rollback.BranchRef
	Revert    rollback.RevertResult
	State     rollback.State
	LastState rollback.State
	Verified  bool
	Published bool
	Publish   publish.Result
	Err       error
}

// Runner glues together the rollback state machine and supporting services.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	runID     string
	ghFactory gh.Factory
	gitRunner git.Runner
	publisher Publisher
}

// NewRunner constructs a Runner with the supplied configuration.
func NewRunner(cfg Config) (*Runner, error) {
	logger, err := NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	factory := gh.NewNoopFactory()
	if cfg.VerifyRemote {
		baseURL := cfg.GitHubAPIURL
		if baseURL == "" {
			baseURL, err = gh.APIBaseURL(cfg.Git.HostURL)
			if err != nil {
				return nil, fmt.Errorf("derive github api url: %w", err)
			}
		}
		factory = gh.NewRESTFactory(baseURL, "")
	}

	var publisher Publisher
	if cfg.PublishEnabled() {
		publisher = &publish.Publisher{
			InstanceURL:   cfg.Workspace.Instance,
			Token:         cfg.Workspace.Token,
			WorkspacePath: cfg.Workspace.Path,
		}
	}

	return NewRunnerWithDeps(cfg, logger, factory, git.NewShellRunner(), publisher), nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for testing.
// A nil publisher disables publishing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, ghFactory gh.Factory, gitRunner git.Runner, publisher Publisher) *Runner {
	runID := uuid.NewString()
	if log != nil {
		log = log.With("run_id", runID)
	}
	if p, ok := publisher.(*publish.Publisher); ok && p.Logger == nil {
		p.Logger = log
	}
	return &Runner{cfg: cfg, log: log, runID: runID, ghFactory: ghFactory, gitRunner: gitRunner, publisher: publisher}
}

// RunID returns the identifier attached to every log line of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// Run executes a single rollback: optional remote preflight, clone, branch
// selection, clean check, revert and push, verification and publish. The step
// summary and action outputs are written whether or not the run succeeds.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	repoCfg := r.cfg.Repository()
	result := Result{RunID: r.runID, Owner: repoCfg.RepoOwner, Repo: repoCfg.RepoName}

	if r.log != nil {
		r.log.Info("starting rollback run",
			"owner", repoCfg.RepoOwner,
			"repo", repoCfg.RepoName,
			"branch", repoCfg.Branch,
			"target", repoCfg.TargetCommit,
			"publish", r.publisher != nil,
		)
	}

	repo := rollback.New(repoCfg, r.gitRunner, r.log)
	err := r.execute(ctx, repo, &result)

	result.State = repo.State()
	result.LastState = repo.LastState()
	result.Branch = repo.Branch()
	result.Err = err

	if err := r.writeStepSummary(result); err != nil && r.log != nil {
		r.log.Warn("failed to write step summary", "error", err)
	}
	if err := r.writeGitHubOutputs(result); err != nil && r.log != nil {
		r.log.Warn("failed to write action outputs", "error", err)
	}

	if err != nil {
		return result, err
	}

	if r.log != nil {
		r.log.Info("rollback run complete",
			"noop", result.Revert.NoOp,
			"commit", result.Revert.Commit,
			"published", result.Published,
		)
	}
	return result, nil
}

func (r *Runner) execute(ctx context.Context, repo *rollback.Repository, result *Result) error {
	if err := r.preflight(ctx); err != nil {
		return err
	}

	if err := os.MkdirAll(repo.Path(), 0o755); err != nil {
		return fmt.Errorf("create clone path: %w", err)
	}

	if err := repo.Clone(ctx); err != nil {
		return fmt.Errorf("clone: %w", err)
	}
	if err := repo.SetRemoteOrigin(ctx); err != nil {
		return fmt.Errorf("set remote origin: %w", err)
	}
	if _, err := repo.CheckoutBranch(ctx, ""); err != nil {
		return fmt.Errorf("checkout branch: %w", err)
	}
	if err := repo.AssertClean(ctx); err != nil {
		return fmt.Errorf("check working tree: %w", err)
	}

	revert, err := repo.RevertToCommit(ctx, "")
	if err != nil {
		return fmt.Errorf("revert: %w", err)
	}
	result.Revert = revert

	if !r.cfg.SkipVerify {
		if err := repo.Verify(); err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		result.Verified = true
	}

	if r.publisher == nil {
		if r.log != nil {
			r.log.Debug("publishing disabled")
		}
		return nil
	}

	published, err := r.publisher.Publish(ctx, repo.Path())
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	result.Published = true
	result.Publish = published
	return nil
}

// preflight checks the remote through the GitHub API before anything touches
// the local clone. API failures are reported once; nothing is retried. With
// remote verification off the factory hands out a client that accepts
// everything.
func (r *Runner) preflight(ctx context.Context) error {
	repoCfg := r.cfg.Repository()
	client, err := r.ghFactory.New(ctx, repoCfg.Token)
	if err != nil {
		return fmt.Errorf("initialize github client: %w", err)
	}

	owner, name, branch := repoCfg.RepoOwner, repoCfg.RepoName, repoCfg.Branch

	if err := client.EnsureBranchExists(ctx, owner, name, branch); err != nil {
		if errors.Is(err, gh.ErrBranchNotFound) {
			return &rollback.BranchNotFoundError{Branch: branch}
		}
		return r.preflightError("check branch", err)
	}

	canPush, err := client.CanPush(ctx, owner, name)
	if err != nil {
		return r.preflightError("check push access", err)
	}
	if !canPush {
		return fmt.Errorf("token for %s cannot push to %s/%s", repoCfg.UserName, owner, name)
	}

	target := strings.TrimSpace(repoCfg.TargetCommit)
	if commitSHAPattern.MatchString(target) {
		onBranch, err := client.CommitExistsOnBranch(ctx, owner, name, target, branch)
		if err != nil {
			return r.preflightError("check target commit", err)
		}
		if !onBranch {
			return fmt.Errorf("target commit %s is not part of %s/%s@%s", target, owner, name, branch)
		}
	} else if r.log != nil {
		r.log.Debug("target is not a commit id, skipping remote commit check", "target", target)
	}

	if r.log != nil && r.cfg.VerifyRemote {
		r.log.Info("remote preflight passed", "owner", owner, "repo", name, "branch", branch)
	}
	return nil
}

func (r *Runner) preflightError(op string, err error) error {
	if r.log != nil {
		r.log.Error("remote preflight failed", "op", op, "retryable", gh.IsRetryable(err), "error", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
