package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/rpattn/revstore/internal/domain"
	"github.com/rpattn/revstore/internal/repository"
	"github.com/rpattn/revstore/internal/testdb"
	"github.com/rpattn/revstore/internal/uow"
)

type fixture struct {
	units *uow.Manager
	repos *repository.PageRepositories
	pages *PagePublisher
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testdb.Open(t)
	units := testdb.Units(t, conn)
	log := zaptest.NewLogger(t)

	repos, err := repository.NewPageRepositories(units, conn.Dialect,
		repository.WithLogger(log),
		repository.WithOptimisticRevisionCheck(),
	)
	if err != nil {
		t.Fatalf("failed to create repositories: %v", err)
	}
	return fixture{units: units, repos: repos, pages: NewPagePublisher(repos, units, log)}
}

func mustNoErr(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPublisher_DraftPublishCycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()
	p := f.pages.Contents

	next, err := p.NextRevision(ctx, page)
	mustNoErr(t, err)
	if next != 1 {
		t.Fatalf("expected first revision 1, got %d", next)
	}

	mustNoErr(t, p.StartDraft(ctx, domain.NewPageContentDraft(page, "v1", nil)))
	published, err := p.Publish(ctx, page, 1)
	mustNoErr(t, err)
	if published.FirstRevision != 1 || !published.IsLive() {
		t.Fatalf("unexpected published row: %+v", published.Marker)
	}

	live, err := f.repos.Contents.ListLatest(ctx, page)
	mustNoErr(t, err)
	if len(live) != 1 || live[0].Title != "v1" {
		t.Fatalf("expected v1 live, got %+v", live)
	}

	mustNoErr(t, p.StartDraft(ctx, live[0].DraftCopy().WithProperty("edited", true)))
	next, err = p.NextRevision(ctx, page)
	mustNoErr(t, err)
	_, err = p.Publish(ctx, page, next)
	mustNoErr(t, err)

	rows, err := f.repos.Contents.ListAtRevision(ctx, page, 1)
	mustNoErr(t, err)
	if len(rows) != 1 || rows[0].Properties["edited"] != nil {
		t.Fatalf("revision 1 should still show the original row, got %+v", rows)
	}

	rows, err = f.repos.Contents.ListAtRevision(ctx, page, 2)
	mustNoErr(t, err)
	if len(rows) != 1 || rows[0].Properties["edited"] != true {
		t.Fatalf("revision 2 should show the edited row, got %+v", rows)
	}

	all, err := f.repos.Contents.ListAll(ctx, page)
	mustNoErr(t, err)
	retired := 0
	for _, row := range all {
		if row.IsRemoved() {
			retired++
			if row.RemovalRevision != 2 {
				t.Fatalf("expected removal at 2, got %d", row.RemovalRevision)
			}
		}
	}
	if len(all) != 2 || retired != 1 {
		t.Fatalf("expected one live and one retired row, got %d rows, %d retired", len(all), retired)
	}
}

func TestPublisher_StartDraftTwice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()

	mustNoErr(t, f.pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "grid", 2)))
	err := f.pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "list", 1))
	if !errors.Is(err, ErrDraftExists) {
		t.Fatalf("expected ErrDraftExists, got %v", err)
	}
}

func TestPublisher_PublishWithoutDraft(t *testing.T) {
	f := newFixture(t)
	_, err := f.pages.Contents.Publish(context.Background(), uuid.New(), 1)
	if !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}
}

func TestPublisher_RevisionMustIncrease(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()
	p := f.pages.Contents

	mustNoErr(t, p.StartDraft(ctx, domain.NewPageContentDraft(page, "v3", nil)))
	_, err := p.Publish(ctx, page, 3)
	mustNoErr(t, err)

	mustNoErr(t, p.StartDraft(ctx, domain.NewPageContentDraft(page, "v?", nil)))
	for _, rev := range []int64{-1, 0, 3} {
		if _, err := p.Publish(ctx, page, rev); !errors.Is(err, domain.ErrInvalidRevision) {
			t.Fatalf("expected ErrInvalidRevision publishing as %d, got %v", rev, err)
		}
	}

	// Failed attempts must not have retired the live row.
	live, err := f.repos.Contents.ListLatest(ctx, page)
	mustNoErr(t, err)
	if len(live) != 1 || live[0].Title != "v3" {
		t.Fatalf("expected v3 still live, got %+v", live)
	}
}

func TestPublisher_RetireLeavesGap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()
	p := f.pages.Contents

	mustNoErr(t, p.StartDraft(ctx, domain.NewPageContentDraft(page, "v1", nil)))
	_, err := p.Publish(ctx, page, 1)
	mustNoErr(t, err)

	if err := p.Retire(ctx, page, 1); !errors.Is(err, domain.ErrInvalidRevision) {
		t.Fatalf("expected ErrInvalidRevision retiring at the first revision, got %v", err)
	}
	mustNoErr(t, p.Retire(ctx, page, 2))
	if err := p.Retire(ctx, page, 3); !errors.Is(err, ErrNoLiveRevision) {
		t.Fatalf("expected ErrNoLiveRevision, got %v", err)
	}

	rows, err := f.repos.Contents.ListAtRevision(ctx, page, 2)
	mustNoErr(t, err)
	if len(rows) != 0 {
		t.Fatalf("expected a gap at revision 2, got %d rows", len(rows))
	}

	next, err := p.NextRevision(ctx, page)
	mustNoErr(t, err)
	if next != 3 {
		t.Fatalf("expected next revision 3 after retiring at 2, got %d", next)
	}
}

func TestPublisher_DiscardDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()

	mustNoErr(t, f.pages.Contents.StartDraft(ctx, domain.NewPageContentDraft(page, "wip", nil)))
	outcome, err := f.pages.Contents.DiscardDraft(ctx, page)
	mustNoErr(t, err)
	if outcome != repository.MarkedDeleted {
		t.Fatalf("expected content drafts to be soft deleted, got %s", outcome)
	}

	mustNoErr(t, f.pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "grid", 2)))
	outcome, err = f.pages.Layouts.DiscardDraft(ctx, page)
	mustNoErr(t, err)
	if outcome != repository.PhysicallyRemoved {
		t.Fatalf("expected layout drafts to be removed, got %s", outcome)
	}

	if _, err := f.pages.Contents.DiscardDraft(ctx, page); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft, got %v", err)
	}

	// The discarded draft no longer blocks a new one.
	mustNoErr(t, f.pages.Contents.StartDraft(ctx, domain.NewPageContentDraft(page, "wip-2", nil)))
}

func TestPagePublisher_SharedRevision(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()

	mustNoErr(t, f.pages.Contents.StartDraft(ctx, domain.NewPageContentDraft(page, "v1", nil)))
	mustNoErr(t, f.pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "grid", 2)))

	rev, err := f.pages.Publish(ctx, page, 0)
	mustNoErr(t, err)
	if rev != 1 {
		t.Fatalf("expected revision 1, got %d", rev)
	}

	// Only the layout changes in the next revision.
	mustNoErr(t, f.pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "list", 1)))
	rev, err = f.pages.Publish(ctx, page, 0)
	mustNoErr(t, err)
	if rev != 2 {
		t.Fatalf("expected revision 2, got %d", rev)
	}

	contents, err := f.repos.Contents.ListAtRevision(ctx, page, 2)
	mustNoErr(t, err)
	layouts, err := f.repos.Layouts.ListAtRevision(ctx, page, 2)
	mustNoErr(t, err)
	if len(contents) != 1 || contents[0].Title != "v1" {
		t.Fatalf("expected content v1 at revision 2, got %+v", contents)
	}
	if len(layouts) != 1 || layouts[0].Template != "list" {
		t.Fatalf("expected layout list at revision 2, got %+v", layouts)
	}

	if _, err := f.pages.Publish(ctx, page, 0); !errors.Is(err, ErrNoDraft) {
		t.Fatalf("expected ErrNoDraft with no drafts left, got %v", err)
	}
}

func TestPagePublisher_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()

	// Layout history already reaches revision 5.
	mustNoErr(t, f.pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "grid", 2)))
	_, err := f.pages.Layouts.Publish(ctx, page, 5)
	mustNoErr(t, err)

	mustNoErr(t, f.pages.Contents.StartDraft(ctx, domain.NewPageContentDraft(page, "v1", nil)))
	mustNoErr(t, f.pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "list", 1)))

	if _, err := f.pages.Publish(ctx, page, 3); !errors.Is(err, domain.ErrInvalidRevision) {
		t.Fatalf("expected ErrInvalidRevision, got %v", err)
	}

	drafts, err := f.repos.Contents.ListForRevision(ctx, page, domain.Draft())
	mustNoErr(t, err)
	if len(drafts) != 1 || !drafts[0].IsDraft() {
		t.Fatalf("content publish should have been rolled back, got %+v", drafts)
	}
}

func TestPagePublisher_LogsOnlyAfterCommit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	page := uuid.New()

	core, logs := observer.New(zapcore.InfoLevel)
	pages := NewPagePublisher(f.repos, f.units, zap.New(core))

	mustNoErr(t, pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "grid", 2)))
	_, err := pages.Layouts.Publish(ctx, page, 5)
	mustNoErr(t, err)
	mustNoErr(t, pages.Contents.StartDraft(ctx, domain.NewPageContentDraft(page, "v1", nil)))
	mustNoErr(t, pages.Layouts.StartDraft(ctx, domain.NewPageLayoutDraft(page, "list", 1)))

	if _, err := pages.Publish(ctx, page, 3); err == nil {
		t.Fatalf("expected publish at a stale revision to fail")
	}
	if n := logs.Len(); n != 0 {
		t.Fatalf("expected no info logs for a rolled back publish, got %+v", logs.All())
	}

	rev, err := pages.Publish(ctx, page, 0)
	mustNoErr(t, err)
	entries := logs.FilterMessage("page published").All()
	if len(entries) != 1 || logs.Len() != 1 {
		t.Fatalf("expected a single page published entry, got %+v", logs.All())
	}
	if got := entries[0].ContextMap()["revision"]; got != rev {
		t.Fatalf("expected logged revision %d, got %v", rev, got)
	}
}
