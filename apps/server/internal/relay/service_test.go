package relay_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tilsley/coverbot/apps/server/internal/relay"
)

// Compile-time interface compliance checks.
var (
	_ relay.Indexer         = (*stubIndexer)(nil)
	_ relay.GitHost         = (*recordingHost)(nil)
	_ relay.GitHostProvider = (*stubProvider)(nil)
)

// ─── stubIndexer ──────────────────────────────────────────────────────────────

type stubIndexer struct {
	calls      int
	lastCreds  relay.Credentials
	lastTarget relay.IndexTarget
	lastQuery  relay.IndexQuery
	out        *relay.Passthrough
	err        error
}

func (i *stubIndexer) Index(_ context.Context, creds relay.Credentials, target relay.IndexTarget) (*relay.Passthrough, error) {
	i.calls++
	i.lastCreds = creds
	i.lastTarget = target
	return i.out, i.err
}

func (i *stubIndexer) Query(_ context.Context, creds relay.Credentials, q relay.IndexQuery) (*relay.Passthrough, error) {
	i.calls++
	i.lastCreds = creds
	i.lastQuery = q
	return i.out, i.err
}

// ─── recordingHost ────────────────────────────────────────────────────────────

type recordingHost struct {
	calls []string

	gotCreateRefSHA  string
	gotBaseTree      string
	gotFiles         []relay.FileChange
	gotCommitTree    string
	gotCommitParent  string
	gotCommitMessage string
	gotUpdateSHA     string
	gotPR            relay.PullRequestIntent

	failAt map[string]error
}

func (h *recordingHost) record(step string) error {
	h.calls = append(h.calls, step)
	return h.failAt[step]
}

func (h *recordingHost) GetBranchSHA(_ context.Context, _ relay.Repo, _ string) (string, error) {
	if err := h.record(relay.StepGetRef); err != nil {
		return "", err
	}
	return "abc123", nil
}

func (h *recordingHost) CreateBranch(_ context.Context, _ relay.Repo, _, sha string) error {
	h.gotCreateRefSHA = sha
	return h.record(relay.StepCreateRef)
}

func (h *recordingHost) CreateTree(_ context.Context, _ relay.Repo, baseTree string, files []relay.FileChange) (string, error) {
	h.gotBaseTree = baseTree
	h.gotFiles = files
	if err := h.record(relay.StepCreateTree); err != nil {
		return "", err
	}
	return "tree456", nil
}

func (h *recordingHost) CreateCommit(_ context.Context, _ relay.Repo, message, treeSHA, parentSHA string) (string, error) {
	h.gotCommitMessage = message
	h.gotCommitTree = treeSHA
	h.gotCommitParent = parentSHA
	if err := h.record(relay.StepCreateCommit); err != nil {
		return "", err
	}
	return "commit789", nil
}

func (h *recordingHost) UpdateBranch(_ context.Context, _ relay.Repo, _, sha string) error {
	h.gotUpdateSHA = sha
	return h.record(relay.StepUpdateRef)
}

func (h *recordingHost) CreatePullRequest(_ context.Context, _ relay.Repo, pr relay.PullRequestIntent) (*relay.Passthrough, error) {
	h.gotPR = pr
	if err := h.record("create-pr"); err != nil {
		return nil, err
	}
	return &relay.Passthrough{Status: http.StatusCreated, Body: []byte(`{"number":1}`)}, nil
}

func (h *recordingHost) DeleteBranch(_ context.Context, _ relay.Repo, _ string) error {
	return h.record("delete-ref")
}

type stubProvider struct {
	host      *recordingHost
	lastToken string
}

func (p *stubProvider) ForToken(token string) relay.GitHost {
	p.lastToken = token
	return p.host
}

func newService(opts relay.Options) (*relay.Service, *stubIndexer, *stubProvider) {
	idx := &stubIndexer{out: &relay.Passthrough{Status: http.StatusOK, Body: []byte(`{"ok":true}`)}}
	prov := &stubProvider{host: &recordingHost{}}
	return relay.NewService(idx, prov, opts), idx, prov
}

var intent = relay.CommitIntent{
	Message:    "add tests",
	BaseBranch: "main",
	NewBranch:  "feature-x",
	Files:      []relay.FileChange{{Path: "a.txt", Content: "hello"}},
}

// ─── ParseRepo ────────────────────────────────────────────────────────────────

func TestParseRepo(t *testing.T) {
	repo, err := relay.ParseRepo("octo/cat")
	require.NoError(t, err)
	assert.Equal(t, relay.Repo{Owner: "octo", Name: "cat"}, repo)
	assert.Equal(t, "octo/cat", repo.String())

	for _, bad := range []string{"", "octo", "/cat", "octo/", "octo/cat/extra", "/", "a//b"} {
		_, err := relay.ParseRepo(bad)
		var vErr relay.ValidationError
		assert.True(t, errors.As(err, &vErr), "expected ValidationError for %q", bad)
		assert.Equal(t, "githubRepo", vErr.Field)
	}
}

// ─── Validation short-circuit ─────────────────────────────────────────────────

func TestInvalidRepo_NoUpstreamCalls(t *testing.T) {
	svc, idx, prov := newService(relay.Options{})
	ctx := context.Background()
	creds := relay.Credentials{IndexerKey: "k", GitHubToken: "t"}

	_, err := svc.StartIndexing(ctx, creds, "not-a-repo", "main")
	assert.ErrorAs(t, err, &relay.ValidationError{})

	_, err = svc.QueryCode(ctx, creds, relay.QueryRequest{Repo: "a/b/c", Branch: "main", Query: "q"})
	assert.ErrorAs(t, err, &relay.ValidationError{})

	err = svc.ModifyRepository(ctx, "t", "/cat", intent)
	assert.ErrorAs(t, err, &relay.ValidationError{})

	_, err = svc.CreatePullRequest(ctx, "t", "octo/", relay.PullRequestIntent{Base: "main", Head: "x"})
	assert.ErrorAs(t, err, &relay.ValidationError{})

	err = svc.DeleteBranch(ctx, "t", "", "x")
	assert.ErrorAs(t, err, &relay.ValidationError{})

	assert.Zero(t, idx.calls)
	assert.Empty(t, prov.host.calls)
}

// ─── StartIndexing ────────────────────────────────────────────────────────────

func TestStartIndexing_ForcesReloadAndNotify(t *testing.T) {
	svc, idx, _ := newService(relay.Options{})
	creds := relay.Credentials{IndexerKey: "key", GitHubToken: "tok"}

	out, err := svc.StartIndexing(context.Background(), creds, "octo/cat", "main")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(out.Body))

	assert.Equal(t, creds, idx.lastCreds)
	assert.Equal(t, relay.IndexTarget{
		Repo:   relay.Repo{Owner: "octo", Name: "cat"},
		Branch: "main",
		Reload: true,
		Notify: true,
	}, idx.lastTarget)
}

func TestStartIndexing_PropagatesExternalError(t *testing.T) {
	svc, idx, _ := newService(relay.Options{})
	idx.err = relay.ExternalServiceError{Service: "indexer", Status: http.StatusUnauthorized, Body: []byte(`{"error":"bad key"}`)}

	_, err := svc.StartIndexing(context.Background(), relay.Credentials{}, "octo/cat", "main")
	var ext relay.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, http.StatusUnauthorized, ext.Status)
	assert.Equal(t, `{"error":"bad key"}`, string(ext.Body))
}

// ─── QueryCode ────────────────────────────────────────────────────────────────

func TestQueryCode_UsesCallerQuery(t *testing.T) {
	svc, idx, _ := newService(relay.Options{})

	_, err := svc.QueryCode(context.Background(), relay.Credentials{}, relay.QueryRequest{
		Repo: "octo/cat", Branch: "main", Query: "find bugs", SessionID: "s-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "find bugs", idx.lastQuery.Content)
	assert.Equal(t, "s-1", idx.lastQuery.SessionID)
	assert.False(t, idx.lastQuery.Genius)
	assert.Equal(t, relay.Repo{Owner: "octo", Name: "cat"}, idx.lastQuery.Repo)
	assert.Equal(t, "main", idx.lastQuery.Branch)
}

func TestQueryCode_FixedPromptOverridesQuery(t *testing.T) {
	svc, idx, _ := newService(relay.Options{FixedPrompt: true})

	_, err := svc.QueryCode(context.Background(), relay.Credentials{}, relay.QueryRequest{
		Repo: "octo/cat", Branch: "main", Query: "find bugs",
	})
	require.NoError(t, err)
	assert.Equal(t, relay.MissingTestsPrompt, idx.lastQuery.Content)
	assert.True(t, idx.lastQuery.Genius)
}

// ─── ModifyRepository ─────────────────────────────────────────────────────────

func TestModifyRepository_RunsFiveStepsInOrder(t *testing.T) {
	svc, _, prov := newService(relay.Options{})

	require.NoError(t, svc.ModifyRepository(context.Background(), "tok", "octo/cat", intent))

	h := prov.host
	assert.Equal(t, "tok", prov.lastToken)
	assert.Equal(t, []string{
		relay.StepGetRef, relay.StepCreateRef, relay.StepCreateTree, relay.StepCreateCommit, relay.StepUpdateRef,
	}, h.calls)
	assert.Equal(t, "abc123", h.gotCreateRefSHA)
	assert.Equal(t, "abc123", h.gotBaseTree)
	assert.Equal(t, intent.Files, h.gotFiles)
	assert.Equal(t, "tree456", h.gotCommitTree)
	assert.Equal(t, "abc123", h.gotCommitParent)
	assert.Equal(t, "add tests", h.gotCommitMessage)
	assert.Equal(t, "commit789", h.gotUpdateSHA)
}

func TestModifyRepository_ExplicitBaseSHASkipsRefLookup(t *testing.T) {
	svc, _, prov := newService(relay.Options{})
	in := intent
	in.BaseSHA = "def000"

	require.NoError(t, svc.ModifyRepository(context.Background(), "tok", "octo/cat", in))

	h := prov.host
	assert.Equal(t, []string{
		relay.StepCreateRef, relay.StepCreateTree, relay.StepCreateCommit, relay.StepUpdateRef,
	}, h.calls)
	assert.Equal(t, "def000", h.gotCreateRefSHA)
	assert.Equal(t, "def000", h.gotCommitParent)
}

func TestModifyRepository_TreeFailureStopsSequence(t *testing.T) {
	svc, _, prov := newService(relay.Options{})
	treeErr := relay.ExternalServiceError{Service: "github", Status: http.StatusUnprocessableEntity, Body: []byte(`{"message":"bad tree"}`)}
	prov.host.failAt = map[string]error{relay.StepCreateTree: treeErr}

	err := svc.ModifyRepository(context.Background(), "tok", "octo/cat", intent)
	require.Error(t, err)

	var partial relay.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, relay.StepCreateTree, partial.Step)
	assert.Equal(t, "feature-x", partial.Branch)

	var ext relay.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, http.StatusUnprocessableEntity, ext.Status)
	assert.Equal(t, `{"message":"bad tree"}`, string(ext.Body))

	assert.Equal(t, []string{relay.StepGetRef, relay.StepCreateRef, relay.StepCreateTree}, prov.host.calls)
}

func TestModifyRepository_BranchExistsIsNotPartial(t *testing.T) {
	svc, _, prov := newService(relay.Options{})
	prov.host.failAt = map[string]error{
		relay.StepCreateRef: relay.ExternalServiceError{Service: "github", Status: http.StatusUnprocessableEntity},
	}

	err := svc.ModifyRepository(context.Background(), "tok", "octo/cat", intent)
	require.Error(t, err)
	assert.False(t, errors.As(err, &relay.PartialFailureError{}))
	assert.ErrorAs(t, err, &relay.ExternalServiceError{})
	assert.Equal(t, []string{relay.StepGetRef, relay.StepCreateRef}, prov.host.calls)
}

func TestModifyRepository_MissingBaseBranch(t *testing.T) {
	svc, _, prov := newService(relay.Options{})
	prov.host.failAt = map[string]error{
		relay.StepGetRef: relay.ExternalServiceError{Service: "github", Status: http.StatusNotFound},
	}

	err := svc.ModifyRepository(context.Background(), "tok", "octo/cat", intent)
	var ext relay.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, http.StatusNotFound, ext.Status)
	assert.Equal(t, []string{relay.StepGetRef}, prov.host.calls)
}

func TestModifyRepository_CommitFailureIsPartial(t *testing.T) {
	svc, _, prov := newService(relay.Options{})
	commitErr := relay.ExternalServiceError{Service: "github", Status: http.StatusConflict, Body: []byte(`{"message":"conflict"}`)}
	prov.host.failAt = map[string]error{relay.StepCreateCommit: commitErr}

	err := svc.ModifyRepository(context.Background(), "tok", "octo/cat", intent)
	var partial relay.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, relay.StepCreateCommit, partial.Step)
	assert.Equal(t, "feature-x", partial.Branch)

	var ext relay.ExternalServiceError
	require.ErrorAs(t, err, &ext)
	assert.Equal(t, http.StatusConflict, ext.Status)

	assert.Equal(t, []string{relay.StepGetRef, relay.StepCreateRef, relay.StepCreateTree, relay.StepCreateCommit}, prov.host.calls)
	assert.NotContains(t, prov.host.calls, relay.StepUpdateRef)
}

func TestModifyRepository_UpdateRefFailureIsPartial(t *testing.T) {
	svc, _, prov := newService(relay.Options{})
	prov.host.failAt = map[string]error{relay.StepUpdateRef: errors.New("connection reset")}

	err := svc.ModifyRepository(context.Background(), "tok", "octo/cat", intent)
	var partial relay.PartialFailureError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, relay.StepUpdateRef, partial.Step)
	assert.Len(t, prov.host.calls, 5)
}

// ─── CreatePullRequest / DeleteBranch ─────────────────────────────────────────

func TestCreatePullRequest_PassesIntent(t *testing.T) {
	svc, _, prov := newService(relay.Options{})
	pr := relay.PullRequestIntent{Base: "main", Head: "feature-x", Title: "T", Body: "B"}

	out, err := svc.CreatePullRequest(context.Background(), "tok", "octo/cat", pr)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, out.Status)
	assert.Equal(t, pr, prov.host.gotPR)
	assert.Equal(t, []string{"create-pr"}, prov.host.calls)
}

func TestDeleteBranch(t *testing.T) {
	svc, _, prov := newService(relay.Options{})

	require.NoError(t, svc.DeleteBranch(context.Background(), "tok", "octo/cat", "feature-x"))
	assert.Equal(t, []string{"delete-ref"}, prov.host.calls)
}
