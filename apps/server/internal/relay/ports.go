package relay

import "context"

// Indexer is the indexing / question-answering service.
// The adapters/greptile package provides the concrete implementation.
type Indexer interface {
	Index(ctx context.Context, creds Credentials, target IndexTarget) (*Passthrough, error)
	Query(ctx context.Context, creds Credentials, q IndexQuery) (*Passthrough, error)
}

// GitHost is the source-hosting platform, bound to one caller token.
// Non-success upstream responses must be returned as ExternalServiceError.
type GitHost interface {
	GetBranchSHA(ctx context.Context, repo Repo, branch string) (string, error)
	CreateBranch(ctx context.Context, repo Repo, branch, sha string) error
	CreateTree(ctx context.Context, repo Repo, baseTree string, files []FileChange) (string, error)
	CreateCommit(ctx context.Context, repo Repo, message, treeSHA, parentSHA string) (string, error)
	UpdateBranch(ctx context.Context, repo Repo, branch, sha string) error
	CreatePullRequest(ctx context.Context, repo Repo, pr PullRequestIntent) (*Passthrough, error)
	DeleteBranch(ctx context.Context, repo Repo, branch string) error
}

// GitHostProvider builds a GitHost authenticated with a caller's token.
type GitHostProvider interface {
	ForToken(token string) GitHost
}
