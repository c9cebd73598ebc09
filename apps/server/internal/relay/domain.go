// Package relay implements the coverbot use cases: indexing a repository,
// querying the indexing service about it, pushing a set of file edits as a
// new branch, and opening a pull request. It depends only on the port
// interfaces in ports.go; HTTP and upstream clients live in sub-packages.
package relay

import (
	"regexp"
	"strings"
)

// Remote is the indexing service's name for the source-hosting platform.
const Remote = "github"

// SuccessMessage is returned after a successful ModifyRepository call.
const SuccessMessage = "Files updated and pushed to new branch successfully"

var repoPattern = regexp.MustCompile(`^[^/]+/[^/]+$`)

// Credentials are the caller-supplied tokens for one request. They are never
// logged or stored.
type Credentials struct {
	IndexerKey  string
	GitHubToken string
}

// Repo is a parsed "<owner>/<name>" repository identifier.
type Repo struct {
	Owner string
	Name  string
}

// String returns the identifier in "<owner>/<name>" form.
func (r Repo) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepo validates s against "<non-empty>/<non-empty>" and splits it.
// It makes no network calls; a malformed identifier yields a ValidationError.
func ParseRepo(s string) (Repo, error) {
	if !repoPattern.MatchString(s) {
		return Repo{}, ValidationError{
			Field:  "githubRepo",
			Reason: `must be of the form "<username>/<repoName>"`,
		}
	}
	owner, name, _ := strings.Cut(s, "/")
	return Repo{Owner: owner, Name: name}, nil
}

// FileChange replaces (or creates) the file at Path with Content.
type FileChange struct {
	Path    string
	Content string
}

// CommitIntent is the unit submitted to ModifyRepository.
type CommitIntent struct {
	Message    string
	BaseBranch string
	// BaseSHA, when set, is used as the parent commit and base tree instead of
	// resolving BaseBranch.
	BaseSHA   string
	NewBranch string
	Files     []FileChange
}

// QueryRequest asks the indexing service a question about one repository branch.
type QueryRequest struct {
	Repo      string
	Branch    string
	Query     string
	SessionID string
	Genius    bool
}

// PullRequestIntent describes the pull request to open.
type PullRequestIntent struct {
	Base  string
	Head  string
	Title string
	Body  string
}

// IndexTarget is the payload the indexer adapter sends to start indexing.
type IndexTarget struct {
	Repo   Repo
	Branch string
	Reload bool
	Notify bool
}

// IndexQuery is the payload the indexer adapter sends to the query endpoint.
type IndexQuery struct {
	Repo      Repo
	Branch    string
	Content   string
	SessionID string
	Genius    bool
}

// Passthrough is an upstream response relayed to the caller unchanged.
type Passthrough struct {
	Status      int
	ContentType string
	Body        []byte
}
