package runstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/branding"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/config"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
)

func exerciseStore(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	runA, runB := uuid.NewString(), uuid.NewString()

	briefs := []model.ResearchBrief{{BlogNumber: 1, BlogAngle: "Limits", PrimaryKeyword: "kids screen time"}}
	if err := s.PutBriefs(ctx, runA, briefs); err != nil {
		t.Fatalf("PutBriefs() error = %v", err)
	}
	got, err := s.GetBriefs(ctx, runA)
	if err != nil {
		t.Fatalf("GetBriefs() error = %v", err)
	}
	if diff := cmp.Diff(briefs, got); diff != "" {
		t.Errorf("GetBriefs() mismatch (-want +got):\n%s", diff)
	}

	// 不同运行之间互不可见
	if _, err := s.GetBriefs(ctx, runB); !errcode.IsPreconditionMissing(err) {
		t.Errorf("GetBriefs(other run) error = %v, want precondition missing", err)
	}

	if err := s.PutArticle(ctx, runA, 1, "# Draft"); err != nil {
		t.Fatalf("PutArticle() error = %v", err)
	}
	article, err := s.GetArticle(ctx, runA, 1)
	if err != nil || article != "# Draft" {
		t.Errorf("GetArticle() = %q, %v", article, err)
	}
	if _, err := s.GetArticle(ctx, runA, 2); !errcode.IsPreconditionMissing(err) {
		t.Errorf("GetArticle(2) error = %v", err)
	}

	out := &branding.Outcome{Article: "# Branded", InitialScore: 40, FinalScore: 62, Attempts: 1, Accepted: true,
		Report: model.BrandReport{OverallScore: 62, Breakdown: map[string]int{"tone": 60}, Issues: []string{}}}
	if err := s.PutBrand(ctx, runA, 1, out); err != nil {
		t.Fatalf("PutBrand() error = %v", err)
	}
	gotOut, err := s.GetBrand(ctx, runA, 1)
	if err != nil {
		t.Fatalf("GetBrand() error = %v", err)
	}
	if diff := cmp.Diff(out, gotOut); diff != "" {
		t.Errorf("GetBrand() mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_Memory(t *testing.T) {
	exerciseStore(t, New(NewMemory(), time.Hour))
}

func TestMemory_TTL(t *testing.T) {
	m := NewMemory()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	if err := m.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, "k"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Get(ctx, "k"); err != ErrNotFound {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
}

// 设置 CONTENT_PIPELINE_TEST_REDIS=host:port 时运行
func TestStore_Redis(t *testing.T) {
	addr := os.Getenv("CONTENT_PIPELINE_TEST_REDIS")
	if addr == "" {
		t.Skip("CONTENT_PIPELINE_TEST_REDIS not set")
	}
	r := NewRedis(config.RedisConfig{Addr: addr})
	defer r.Close()
	if err := r.Ping(context.Background()); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	exerciseStore(t, New(r, time.Minute))
}

type closingBackend struct {
	*Memory
	closed int
}

func (b *closingBackend) Close() error {
	b.closed++
	return nil
}

func TestStore_Close(t *testing.T) {
	b := &closingBackend{Memory: NewMemory()}
	if err := New(b, 0).Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if b.closed != 1 {
		t.Errorf("backend closed %d times, want 1", b.closed)
	}

	if err := New(NewMemory(), 0).Close(); err != nil {
		t.Errorf("Close() on memory store error = %v", err)
	}
}
