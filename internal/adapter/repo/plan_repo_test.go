package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"planforge/internal/domain"
	"planforge/internal/infra"
)

func samplePlan(title string) domain.FinalPlan {
	return domain.FinalPlan{
		Overview: "Reach 10 customers in 30 days.",
		WeeklyPlan: []domain.Week{{
			Title: title,
			Goal:  "Start",
			DailyTasks: []domain.DailyTask{{
				Day: "D1", Task: "Write offer", TimeEstimate: "1h", Tool: "Notion", KPI: "Done",
				SocialPost: &domain.PostDraft{Day: "D1", Channel: domain.ChannelThread, Segments: []string{"1/", "2/"}},
			}},
		}},
		RecommendedTools: []domain.ToolRecommendation{{Name: "Notion", Purpose: "Docs", Cost: "Free"}},
		KPIs:             []string{"Customers"},
	}
}

func newRecord(t *testing.T) *domain.PersistedPlan {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PersistedPlan{
		ID:            uuid.NewString(),
		BusinessInfo:  json.RawMessage(`{"businessIdea":"coffee subscription"}`),
		GeneratedPlan: samplePlan("Foundation"),
		CreatedAt:     now,
		UpdatedAt:     now,
		Editable:      true,
	}
}

func newSQLiteRepo(t *testing.T) *PlanRepositorySQLite {
	t.Helper()
	db, err := infra.OpenSQLite(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPlanRepositorySQLite(infra.NewSQLiteRunner(db, zerolog.Nop()))
}

func repositories(t *testing.T) map[string]func() domain.PlanRepository {
	return map[string]func() domain.PlanRepository{
		"memory": func() domain.PlanRepository { return NewPlanRepositoryMemory() },
		"sqlite": func() domain.PlanRepository { return newSQLiteRepo(t) },
	}
}

func TestPlanRepositoryCreateAndGet(t *testing.T) {
	for name, build := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := build()
			rec := newRecord(t)
			if err := r.Create(ctx, rec); err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			got, err := r.GetByID(ctx, rec.ID)
			if err != nil {
				t.Fatalf("GetByID returned error: %v", err)
			}
			if got.ID != rec.ID || !got.UpdatedAt.Equal(rec.UpdatedAt) || !got.Editable {
				t.Fatalf("got = %+v", got)
			}
			if got.GeneratedPlan.WeeklyPlan[0].DailyTasks[0].SocialPost == nil {
				t.Fatalf("social post lost in storage")
			}
			if string(got.BusinessInfo) != string(rec.BusinessInfo) {
				t.Fatalf("business info = %s", got.BusinessInfo)
			}
			if _, err := r.GetByID(ctx, uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("unknown id err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestPlanRepositoryReplaceAdvancesUpdatedAt(t *testing.T) {
	for name, build := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := build()
			rec := newRecord(t)
			if err := r.Create(ctx, rec); err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			prev := rec.UpdatedAt
			for i := 0; i < 20; i++ {
				updated, err := r.ReplacePlan(ctx, rec.ID, samplePlan(fmt.Sprintf("Edit %d", i)), nil)
				if err != nil {
					t.Fatalf("ReplacePlan #%d returned error: %v", i, err)
				}
				if !updated.UpdatedAt.After(prev) {
					t.Fatalf("edit %d: updatedAt %s not after %s", i, updated.UpdatedAt, prev)
				}
				if updated.GeneratedPlan.WeeklyPlan[0].Title != fmt.Sprintf("Edit %d", i) {
					t.Fatalf("edit %d not stored", i)
				}
				prev = updated.UpdatedAt
			}
		})
	}
}

func TestPlanRepositoryReplaceOptimisticConcurrency(t *testing.T) {
	for name, build := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := build()
			rec := newRecord(t)
			if err := r.Create(ctx, rec); err != nil {
				t.Fatalf("Create returned error: %v", err)
			}
			expected := rec.UpdatedAt
			if _, err := r.ReplacePlan(ctx, rec.ID, samplePlan("First"), &expected); err != nil {
				t.Fatalf("ReplacePlan with fresh timestamp returned error: %v", err)
			}
			if _, err := r.ReplacePlan(ctx, rec.ID, samplePlan("Stale"), &expected); !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("stale edit err = %v, want ErrConflict", err)
			}
			got, err := r.GetByID(ctx, rec.ID)
			if err != nil {
				t.Fatalf("GetByID returned error: %v", err)
			}
			if got.GeneratedPlan.WeeklyPlan[0].Title != "First" {
				t.Fatalf("stale edit overwrote the plan: %q", got.GeneratedPlan.WeeklyPlan[0].Title)
			}
			if _, err := r.ReplacePlan(ctx, uuid.NewString(), samplePlan("x"), nil); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("unknown id err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestPlanRepositoryShareTokens(t *testing.T) {
	for name, build := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			r := build()
			a, b := newRecord(t), newRecord(t)
			for _, rec := range []*domain.PersistedPlan{a, b} {
				if err := r.Create(ctx, rec); err != nil {
					t.Fatalf("Create returned error: %v", err)
				}
			}
			if err := r.SetShareToken(ctx, a.ID, "tok-1"); err != nil {
				t.Fatalf("SetShareToken returned error: %v", err)
			}
			if err := r.SetShareToken(ctx, a.ID, "tok-2"); err != nil {
				t.Fatalf("overwriting token returned error: %v", err)
			}
			if _, err := r.GetByShareToken(ctx, "tok-1"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("old token err = %v, want ErrNotFound", err)
			}
			got, err := r.GetByShareToken(ctx, "tok-2")
			if err != nil || got.ID != a.ID {
				t.Fatalf("GetByShareToken = %+v, %v", got, err)
			}
			if err := r.SetShareToken(ctx, b.ID, "tok-2"); !errors.Is(err, domain.ErrConflict) {
				t.Fatalf("duplicate token err = %v, want ErrConflict", err)
			}
			if err := r.SetShareToken(ctx, uuid.NewString(), "tok-3"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("unknown id err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestPlanRepositoryMemoryConcurrentWrites(t *testing.T) {
	r := NewPlanRepositoryMemory()
	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := newRecord(t)
			if err := r.Create(ctx, rec); err != nil {
				t.Errorf("Create returned error: %v", err)
				return
			}
			if _, err := r.ReplacePlan(ctx, rec.ID, samplePlan("Edited"), nil); err != nil {
				t.Errorf("ReplacePlan returned error: %v", err)
			}
		}()
	}
	wg.Wait()
	if r.Len() != 50 {
		t.Fatalf("Len() = %d, want 50", r.Len())
	}
}

func TestPlanRepositoryMemoryReturnsCopies(t *testing.T) {
	r := NewPlanRepositoryMemory()
	ctx := context.Background()
	rec := newRecord(t)
	if err := r.Create(ctx, rec); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	got, _ := r.GetByID(ctx, rec.ID)
	got.GeneratedPlan.WeeklyPlan[0].Title = "mutated"
	again, _ := r.GetByID(ctx, rec.ID)
	if again.GeneratedPlan.WeeklyPlan[0].Title != "Foundation" {
		t.Fatalf("stored plan mutated through returned value")
	}
}

func TestSQLiteReplacePlanReportsPersistenceOnClosedDB(t *testing.T) {
	db, err := infra.OpenSQLite(context.Background(), ":memory:", zerolog.Nop())
	if err != nil {
		t.Fatalf("OpenSQLite returned error: %v", err)
	}
	plans := NewPlanRepositorySQLite(infra.NewSQLiteRunner(db, zerolog.Nop()))
	rec := newRecord(t)
	if err := plans.Create(context.Background(), rec); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	_ = db.Close()

	_, err = plans.ReplacePlan(context.Background(), rec.ID, samplePlan("Validation"), nil)
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("err = %v, want ErrPersistence", err)
	}
	if kind := domain.KindOf(err); kind != domain.KindPersistence {
		t.Fatalf("KindOf = %q, want persistence", kind)
	}
}
