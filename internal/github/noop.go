package gh

import "context"

// NewNoopFactory returns a Factory whose clients accept every check. It is used
// when remote verification is disabled.
func NewNoopFactory() Factory {
	return noopFactory{}
}

type noopFactory struct{}

func (noopFactory) New(ctx context.Context, token string) (Client, error) {
	return noopClient{}, nil
}

type noopClient struct{}

func (noopClient) EnsureBranchExists(ctx context.Context, owner, repo, branch string) error {
	return nil
}

func (noopClient) CommitExistsOnBranch(ctx context.Context, owner, repo, commitSHA, branch string) (bool, error) {
	return true, nil
}

func (noopClient) CanPush(ctx context.Context, owner, repo string) (bool, error) {
	return true, nil
}
