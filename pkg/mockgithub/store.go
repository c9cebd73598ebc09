package mockgithub

import (
	"crypto/sha1" //nolint:gosec // object ids only, mirrors git
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
)

const (
	stateOpen = "open"

	msgRefExists   = "Reference already exists"
	msgRefNotFound = "Reference does not exist"
	msgNotFound    = "Not Found"
)

// PullRequest is the mock's view of a GitHub pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	Head    PRRef  `json:"head"`
	Base    PRRef  `json:"base"`
}

// PRRef is the head or base side of a pull request.
type PRRef struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type commit struct {
	SHA     string
	Message string
	Tree    string
	Parents []string
}

// repoState is one repository's object database. Trees are stored flattened
// as path → content.
type repoState struct {
	refs    map[string]string // "heads/main" → commit sha
	commits map[string]commit
	trees   map[string]map[string]string
	prs     []PullRequest
}

func newRepoState() *repoState {
	return &repoState{
		refs:    make(map[string]string),
		commits: make(map[string]commit),
		trees:   make(map[string]map[string]string),
	}
}

// apiError is a failure the HTTP layer renders as GitHub's error JSON.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s", e.Status, e.Message)
}

// store holds every repository keyed by "owner/repo".
type store struct {
	mu    sync.Mutex
	repos map[string]*repoState
}

func newStore() *store {
	return &store{repos: make(map[string]*repoState)}
}

// repo returns the state for owner/repo. Caller must hold s.mu.
func (s *store) repo(owner, name string, create bool) *repoState {
	key := owner + "/" + name
	r, ok := s.repos[key]
	if !ok && create {
		r = newRepoState()
		s.repos[key] = r
	}
	return r
}

func objectID(kind string, parts ...string) string {
	h := sha1.New() //nolint:gosec // see import
	h.Write([]byte(kind))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func treeID(files map[string]string) string {
	paths := slices.Sorted(maps.Keys(files))
	parts := make([]string, 0, 2*len(paths))
	for _, p := range paths {
		parts = append(parts, p, files[p])
	}
	return objectID("tree", parts...)
}

func (s *store) seed(owner, name, branch string, files map[string]string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, true)
	tree := maps.Clone(files)
	if tree == nil {
		tree = map[string]string{}
	}
	tsha := treeID(tree)
	r.trees[tsha] = tree

	c := commit{Message: "initial commit", Tree: tsha}
	if parent, ok := r.refs["heads/"+branch]; ok {
		c.Parents = []string{parent}
	}
	c.SHA = objectID("commit", append([]string{c.Message, c.Tree}, c.Parents...)...)
	r.commits[c.SHA] = c
	r.refs["heads/"+branch] = c.SHA
	return c.SHA
}

func (s *store) getRef(owner, name, ref string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return "", &apiError{Status: 404, Message: msgNotFound}
	}
	sha, ok := r.refs[ref]
	if !ok {
		return "", &apiError{Status: 404, Message: msgNotFound}
	}
	return sha, nil
}

// createRef is atomic: of two concurrent calls for the same name, exactly one
// succeeds and the other gets 422.
func (s *store) createRef(owner, name, ref, sha string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return &apiError{Status: 404, Message: msgNotFound}
	}
	if !strings.HasPrefix(ref, "heads/") || ref == "heads/" {
		return &apiError{Status: 422, Message: "Reference name must start with 'refs/' and have at least two slashes."}
	}
	if _, exists := r.refs[ref]; exists {
		return &apiError{Status: 422, Message: msgRefExists}
	}
	if _, ok := r.commits[sha]; !ok {
		return &apiError{Status: 422, Message: "Object does not exist"}
	}
	r.refs[ref] = sha
	return nil
}

// TreeEntry is one entry of a create-tree request.
type TreeEntry struct {
	Path    string  `json:"path"`
	Mode    string  `json:"mode"`
	Type    string  `json:"type"`
	Content *string `json:"content,omitempty"`
	SHA     *string `json:"sha,omitempty"`
}

func (s *store) createTree(owner, name, baseTree string, entries []TreeEntry) (string, map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return "", nil, &apiError{Status: 404, Message: msgNotFound}
	}

	files := map[string]string{}
	if baseTree != "" {
		base, ok := r.trees[baseTree]
		if !ok {
			// GitHub also accepts a commit sha as base_tree.
			if c, isCommit := r.commits[baseTree]; isCommit {
				base, ok = r.trees[c.Tree]
			}
		}
		if !ok {
			return "", nil, &apiError{Status: 422, Message: "base_tree is not a valid tree oid"}
		}
		files = maps.Clone(base)
	}

	for _, e := range entries {
		if e.Path == "" || strings.HasPrefix(e.Path, "/") || strings.HasSuffix(e.Path, "/") {
			return "", nil, &apiError{Status: 422, Message: fmt.Sprintf("tree.path %q contains a malformed path component", e.Path)}
		}
		if e.Type != "blob" || (e.Mode != "100644" && e.Mode != "100755") {
			return "", nil, &apiError{Status: 422, Message: fmt.Sprintf("tree entry %q must be a blob with a file mode", e.Path)}
		}
		switch {
		case e.Content != nil:
			files[e.Path] = *e.Content
		case e.SHA == nil:
			delete(files, e.Path)
		default:
			return "", nil, &apiError{Status: 422, Message: "blob sha entries are not supported by the mock"}
		}
	}

	sha := treeID(files)
	r.trees[sha] = files
	return sha, files, nil
}

func (s *store) createCommit(owner, name, message, tree string, parents []string) (commit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return commit{}, &apiError{Status: 404, Message: msgNotFound}
	}
	if _, ok := r.trees[tree]; !ok {
		return commit{}, &apiError{Status: 422, Message: "Tree SHA does not exist"}
	}
	for _, p := range parents {
		if _, ok := r.commits[p]; !ok {
			return commit{}, &apiError{Status: 422, Message: "Parent SHA does not exist or is not a commit object"}
		}
	}
	c := commit{Message: message, Tree: tree, Parents: parents}
	c.SHA = objectID("commit", append([]string{message, tree}, parents...)...)
	r.commits[c.SHA] = c
	return c, nil
}

// updateRef refuses non-fast-forward moves unless force is set.
func (s *store) updateRef(owner, name, ref, sha string, force bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return &apiError{Status: 404, Message: msgNotFound}
	}
	current, ok := r.refs[ref]
	if !ok {
		return &apiError{Status: 422, Message: msgRefNotFound}
	}
	c, ok := r.commits[sha]
	if !ok {
		return &apiError{Status: 422, Message: "Object does not exist"}
	}
	if !force && current != sha && !r.descends(c, current) {
		return &apiError{Status: 422, Message: "Update is not a fast forward"}
	}
	r.refs[ref] = sha
	return nil
}

// descends reports whether ancestor is reachable from c. Caller must hold the lock.
func (r *repoState) descends(c commit, ancestor string) bool {
	seen := map[string]bool{}
	queue := slices.Clone(c.Parents)
	for len(queue) > 0 {
		sha := queue[0]
		queue = queue[1:]
		if sha == ancestor {
			return true
		}
		if seen[sha] {
			continue
		}
		seen[sha] = true
		if p, ok := r.commits[sha]; ok {
			queue = append(queue, p.Parents...)
		}
	}
	return false
}

func (s *store) deleteRef(owner, name, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return &apiError{Status: 404, Message: msgNotFound}
	}
	if _, ok := r.refs[ref]; !ok {
		return &apiError{Status: 422, Message: msgRefNotFound}
	}
	delete(r.refs, ref)
	return nil
}

func (s *store) createPR(owner, name, baseURL, title, body, head, base string) (PullRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return PullRequest{}, &apiError{Status: 404, Message: msgNotFound}
	}
	headSHA, ok := r.refs["heads/"+head]
	if !ok {
		return PullRequest{}, &apiError{Status: 422, Message: "Validation Failed: head invalid"}
	}
	baseSHA, ok := r.refs["heads/"+base]
	if !ok {
		return PullRequest{}, &apiError{Status: 422, Message: "Validation Failed: base invalid"}
	}
	for _, pr := range r.prs {
		if pr.State == stateOpen && pr.Head.Ref == head && pr.Base.Ref == base {
			return PullRequest{}, &apiError{
				Status:  422,
				Message: fmt.Sprintf("Validation Failed: A pull request already exists for %s:%s.", owner, head),
			}
		}
	}

	num := len(r.prs) + 1
	pr := PullRequest{
		Number:  num,
		HTMLURL: fmt.Sprintf("%s/%s/%s/pull/%d", strings.TrimSuffix(baseURL, "/"), owner, name, num),
		Title:   title,
		Body:    body,
		State:   stateOpen,
		Head:    PRRef{Ref: head, SHA: headSHA},
		Base:    PRRef{Ref: base, SHA: baseSHA},
	}
	r.prs = append(r.prs, pr)
	return pr, nil
}

func (s *store) listPRs(owner, name string) []PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return []PullRequest{}
	}
	return slices.Clone(r.prs)
}

// allPRs returns every pull request keyed by "owner/repo".
func (s *store) allPRs() map[string][]PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string][]PullRequest, len(s.repos))
	for key, r := range s.repos {
		if len(r.prs) > 0 {
			out[key] = slices.Clone(r.prs)
		}
	}
	return out
}

// branchFiles returns the flattened tree at the tip of branch.
func (s *store) branchFiles(owner, name, branch string) (map[string]string, []string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return nil, nil, false
	}
	sha, ok := r.refs["heads/"+branch]
	if !ok {
		return nil, nil, false
	}
	c := r.commits[sha]
	files := maps.Clone(r.trees[c.Tree])
	paths := slices.Collect(maps.Keys(files))
	sort.Strings(paths)
	return files, paths, true
}

func (s *store) commitByBranch(owner, name, branch string) (commit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.repo(owner, name, false)
	if r == nil {
		return commit{}, false
	}
	sha, ok := r.refs["heads/"+branch]
	if !ok {
		return commit{}, false
	}
	c, ok := r.commits[sha]
	return c, ok
}
