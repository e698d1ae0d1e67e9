package loader

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/repository"
	"github.com/rpattn/revstore/internal/testdb"
)

type countingRepo struct {
	repository.RevisionRepository[*domain.PageContent]

	mu      sync.Mutex
	batches [][]uuid.UUID
}

func (c *countingRepo) ListForOwners(ctx context.Context, owners []uuid.UUID, ind domain.Indicator) ([]*domain.PageContent, error) {
	c.mu.Lock()
	c.batches = append(c.batches, append([]uuid.UUID(nil), owners...))
	c.mu.Unlock()
	return c.RevisionRepository.ListForOwners(ctx, owners, ind)
}

func newCountingRepo(t *testing.T) *countingRepo {
	t.Helper()
	conn := testdb.Open(t)
	repos, err := repository.NewPageRepositories(testdb.Units(t, conn), conn.Dialect)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}
	return &countingRepo{RevisionRepository: repos.Contents}
}

func insert(t *testing.T, repo *countingRepo, owner uuid.UUID, title string, first, removal int64) {
	t.Helper()
	row := domain.NewPageContentDraft(owner, title, nil)
	row.Marker = domain.Marker{FirstRevision: first, RemovalRevision: removal}
	if err := repo.Insert(context.Background(), row); err != nil {
		t.Fatalf("failed to insert %s: %v", title, err)
	}
}

func TestRevisionLoader_BatchesOwners(t *testing.T) {
	repo := newCountingRepo(t)
	a, b, empty := uuid.New(), uuid.New(), uuid.New()
	insert(t, repo, a, "a-old", 1, 2)
	insert(t, repo, a, "a", 2, 0)
	insert(t, repo, b, "b", 1, 0)

	l, err := NewRevisionLoader[*domain.PageContent](repo, domain.Latest(), WithWait(50*time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := l.LoadMany(context.Background(), []uuid.UUID{b, empty, a})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(repo.batches) != 1 || len(repo.batches[0]) != 3 {
		t.Fatalf("expected one batch of three owners, got %v", repo.batches)
	}
	if len(got) != 3 {
		t.Fatalf("expected results for three owners, got %d", len(got))
	}
	if len(got[0]) != 1 || got[0][0].Title != "b" {
		t.Fatalf("unexpected rows for b: %+v", got[0])
	}
	if got[1] == nil || len(got[1]) != 0 {
		t.Fatalf("expected an empty slice for an owner without rows, got %#v", got[1])
	}
	if len(got[2]) != 1 || got[2][0].Title != "a" {
		t.Fatalf("unexpected rows for a: %+v", got[2])
	}
}

func TestRevisionLoader_CachesUntilCleared(t *testing.T) {
	repo := newCountingRepo(t)
	owner := uuid.New()
	insert(t, repo, owner, "draft", domain.DraftRevision, 0)

	l, err := NewRevisionLoader[*domain.PageContent](repo, domain.Draft(), WithWait(time.Millisecond))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rows, err := l.Load(ctx, owner)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rows) != 1 || rows[0].Title != "draft" {
			t.Fatalf("unexpected rows: %+v", rows)
		}
	}
	if len(repo.batches) != 1 {
		t.Fatalf("expected the second load to be cached, got %d batches", len(repo.batches))
	}

	l.Clear(ctx, owner)
	if _, err := l.Load(ctx, owner); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(repo.batches) != 2 {
		t.Fatalf("expected a fresh batch after clear, got %d", len(repo.batches))
	}
}

func TestNewRevisionLoader_RejectsNegativeRevision(t *testing.T) {
	repo := newCountingRepo(t)
	_, err := NewRevisionLoader[*domain.PageContent](repo, domain.AtRevision(-1))
	if !errors.Is(err, domain.ErrInvalidRevision) {
		t.Fatalf("expected ErrInvalidRevision, got %v", err)
	}
	if l, err := NewRevisionLoader[*domain.PageContent](repo, domain.AtRevision(4)); err != nil || l.Indicator().String() != "4" {
		t.Fatalf("unexpected loader for revision 4: %v", err)
	}
}

func TestAttachAndFromContext(t *testing.T) {
	repo := newCountingRepo(t)
	l, err := NewRevisionLoader[*domain.PageContent](repo, domain.Latest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ctx := Attach(context.Background(), l)

	got, ok := FromContext[*domain.PageContent](ctx, "page_contents", domain.Latest())
	if !ok || got != l {
		t.Fatalf("expected the attached loader back")
	}
	if _, ok := FromContext[*domain.PageContent](ctx, "page_contents", domain.Draft()); ok {
		t.Fatalf("a loader is keyed by its indicator")
	}
	if _, ok := FromContext[*domain.PageLayout](ctx, "page_contents", domain.Latest()); ok {
		t.Fatalf("a loader is typed by its entity")
	}
}
