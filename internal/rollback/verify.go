package rollback

import (
	"fmt"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
)

// Verify reads the clone back through go-git and checks that HEAD now carries
// exactly the tree of the target commit and that nothing is left uncommitted.
// It never modifies the repository. A failed check moves the repository to
// StateFailed like any other failed step.
func (r *Repository) Verify() error {
	if err := r.expect("verify", StateReverted, StatePushed); err != nil {
		return err
	}
	if err := r.verifyTree(); err != nil {
		return r.fail(err)
	}
	return nil
}

func (r *Repository) verifyTree() error {
	repo, err := gogit.PlainOpen(r.cfg.ClonePath)
	if err != nil {
		return fmt.Errorf("open clone: %w", err)
	}

	head, err := repo.Head()
	if err != nil {
		return fmt.Errorf("resolve HEAD: %w", err)
	}

	headCommit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("read HEAD commit %s: %w", head.Hash(), err)
	}

	targetCommit, err := repo.CommitObject(plumbing.NewHash(r.targetSHA))
	if err != nil {
		return fmt.Errorf("read target commit %s: %w", r.targetSHA, err)
	}

	if headCommit.TreeHash != targetCommit.TreeHash {
		return &VerificationError{Reason: fmt.Sprintf("HEAD %s has tree %s, target %s has tree %s",
			headCommit.Hash, headCommit.TreeHash, targetCommit.Hash, targetCommit.TreeHash)}
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("open worktree: %w", err)
	}
	status, err := worktree.Status()
	if err != nil {
		return fmt.Errorf("worktree status: %w", err)
	}
	if !status.IsClean() {
		return &VerificationError{Reason: fmt.Sprintf("working tree has pending changes:\n%s", status.String())}
	}

	if r.log != nil {
		r.log.Info("verified rollback tree", "head", headCommit.Hash.String(), "tree", headCommit.TreeHash.String())
	}
	return nil
}
