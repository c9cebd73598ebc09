package relay

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/tilsley/coverbot/relay"

// Options tune Service behaviour.
type Options struct {
	// FixedPrompt replaces every caller query with MissingTestsPrompt and
	// enables the indexer's enhanced reasoning mode.
	FixedPrompt bool
}

// Service is the application-level use-case orchestrator for the relay.
// Every method validates the repository identifier before any upstream call
// and runs its upstream calls strictly one after another.
type Service struct {
	indexer  Indexer
	hosts    GitHostProvider
	opts     Options
	tracer   trace.Tracer
	failures metric.Int64Counter
}

// NewService creates a new Service.
func NewService(indexer Indexer, hosts GitHostProvider, opts Options) *Service {
	failures, err := otel.Meter(instrumentationName).Int64Counter(
		"coverbot.upstream.failures",
		metric.WithDescription("Upstream calls that returned an unexpected status or failed in transport"),
	)
	if err != nil {
		failures = noop.Int64Counter{}
	}
	return &Service{
		indexer:  indexer,
		hosts:    hosts,
		opts:     opts,
		tracer:   otel.Tracer(instrumentationName),
		failures: failures,
	}
}

// StartIndexing asks the indexing service to (re)index repo at branch, forcing a
// reload and requesting a completion notification.
func (s *Service) StartIndexing(ctx context.Context, creds Credentials, repoID, branch string) (*Passthrough, error) {
	repo, err := ParseRepo(repoID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.start(ctx, "StartIndexing", repo, attribute.String("branch", branch))
	defer span.End()

	out, err := s.indexer.Index(ctx, creds, IndexTarget{
		Repo:   repo,
		Branch: branch,
		Reload: true,
		Notify: true,
	})
	if err != nil {
		s.fail(ctx, span, "index", err)
		return nil, fmt.Errorf("index %s@%s: %w", repo, branch, err)
	}
	return out, nil
}

// QueryCode sends a single user message to the indexing service, scoped to
// exactly one repository branch. The response is not parsed.
func (s *Service) QueryCode(ctx context.Context, creds Credentials, req QueryRequest) (*Passthrough, error) {
	repo, err := ParseRepo(req.Repo)
	if err != nil {
		return nil, err
	}

	q := IndexQuery{
		Repo:      repo,
		Branch:    req.Branch,
		Content:   req.Query,
		SessionID: req.SessionID,
		Genius:    req.Genius,
	}
	if s.opts.FixedPrompt {
		q.Content = MissingTestsPrompt
		q.Genius = true
	}

	ctx, span := s.start(ctx, "QueryCode", repo,
		attribute.String("branch", req.Branch),
		attribute.Bool("fixed_prompt", s.opts.FixedPrompt),
	)
	defer span.End()

	out, err := s.indexer.Query(ctx, creds, q)
	if err != nil {
		s.fail(ctx, span, "query", err)
		return nil, fmt.Errorf("query %s@%s: %w", repo, req.Branch, err)
	}
	return out, nil
}

// ModifyRepository pushes intent.Files as a single commit on a new branch
// forked from intent.BaseBranch (or intent.BaseSHA when set):
//
//  1. resolve the base branch head SHA
//  2. create the new branch at that SHA
//  3. create a tree of the file changes layered on the base tree
//  4. create a commit of that tree with the base SHA as sole parent
//  5. move the new branch to the commit
//
// The first failure stops the sequence. Nothing is rolled back; failures after
// step 2 are returned as PartialFailureError naming the orphaned branch.
func (s *Service) ModifyRepository(ctx context.Context, token, repoID string, intent CommitIntent) error {
	repo, err := ParseRepo(repoID)
	if err != nil {
		return err
	}

	ctx, span := s.start(ctx, "ModifyRepository", repo,
		attribute.String("base_branch", intent.BaseBranch),
		attribute.String("new_branch", intent.NewBranch),
		attribute.Int("files", len(intent.Files)),
	)
	defer span.End()

	host := s.hosts.ForToken(token)

	baseSHA := intent.BaseSHA
	if baseSHA == "" {
		baseSHA, err = host.GetBranchSHA(ctx, repo, intent.BaseBranch)
		if err != nil {
			s.fail(ctx, span, StepGetRef, err)
			return fmt.Errorf("get base ref %s: %w", intent.BaseBranch, err)
		}
	}
	span.AddEvent(StepGetRef, trace.WithAttributes(attribute.String("sha", baseSHA)))

	if err := host.CreateBranch(ctx, repo, intent.NewBranch, baseSHA); err != nil {
		s.fail(ctx, span, StepCreateRef, err)
		return fmt.Errorf("create branch %s: %w", intent.NewBranch, err)
	}
	span.AddEvent(StepCreateRef)

	partial := func(step string, err error) error {
		s.fail(ctx, span, step, err)
		return PartialFailureError{Step: step, Branch: intent.NewBranch, Err: err}
	}

	treeSHA, err := host.CreateTree(ctx, repo, baseSHA, intent.Files)
	if err != nil {
		return partial(StepCreateTree, err)
	}
	span.AddEvent(StepCreateTree, trace.WithAttributes(attribute.String("sha", treeSHA)))

	commitSHA, err := host.CreateCommit(ctx, repo, intent.Message, treeSHA, baseSHA)
	if err != nil {
		return partial(StepCreateCommit, err)
	}
	span.AddEvent(StepCreateCommit, trace.WithAttributes(attribute.String("sha", commitSHA)))

	if err := host.UpdateBranch(ctx, repo, intent.NewBranch, commitSHA); err != nil {
		return partial(StepUpdateRef, err)
	}
	span.AddEvent(StepUpdateRef)

	return nil
}

// CreatePullRequest opens a pull request from pr.Head into pr.Base.
func (s *Service) CreatePullRequest(ctx context.Context, token, repoID string, pr PullRequestIntent) (*Passthrough, error) {
	repo, err := ParseRepo(repoID)
	if err != nil {
		return nil, err
	}

	ctx, span := s.start(ctx, "CreatePullRequest", repo,
		attribute.String("base", pr.Base),
		attribute.String("head", pr.Head),
	)
	defer span.End()

	out, err := s.hosts.ForToken(token).CreatePullRequest(ctx, repo, pr)
	if err != nil {
		s.fail(ctx, span, "create-pr", err)
		return nil, fmt.Errorf("create pull request %s -> %s: %w", pr.Head, pr.Base, err)
	}
	return out, nil
}

// DeleteBranch removes a branch, typically one left behind by a failed
// ModifyRepository.
func (s *Service) DeleteBranch(ctx context.Context, token, repoID, branch string) error {
	repo, err := ParseRepo(repoID)
	if err != nil {
		return err
	}

	ctx, span := s.start(ctx, "DeleteBranch", repo, attribute.String("branch", branch))
	defer span.End()

	if err := s.hosts.ForToken(token).DeleteBranch(ctx, repo, branch); err != nil {
		s.fail(ctx, span, "delete-ref", err)
		return fmt.Errorf("delete branch %s: %w", branch, err)
	}
	return nil
}

func (s *Service) start(ctx context.Context, op string, repo Repo, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("repo", repo.String()))
	return s.tracer.Start(ctx, "relay."+op, trace.WithAttributes(attrs...))
}

func (s *Service) fail(ctx context.Context, span trace.Span, step string, err error) {
	status := 0
	var ext ExternalServiceError
	if errors.As(err, &ext) {
		status = ext.Status
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, step)
	s.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("step", step),
		attribute.Int("status", status),
	))
}
