package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/provider"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
)

func newTestService(providers provider.Store) (*Service, *MemoryStore) {
	store := NewMemoryStore()
	if providers == nil {
		providers = provider.NewMemoryStore()
	}
	return NewService(store, providers, zap.NewNop()), store
}

func TestUpsert_RejectsUnknownTools(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()

	// Seed a valid policy first.
	prior, err := svc.Upsert(ctx, "tenant-1", UpsertInput{
		ToolsEnabled: true,
		AllowedTools: []string{"QUERY_INCIDENTS"},
	}, "admin-1")
	if err != nil {
		t.Fatal(err)
	}

	_, err = svc.Upsert(ctx, "tenant-1", UpsertInput{
		ToolsEnabled: true,
		AllowedTools: []string{"QUERY_INCIDENTS", "NOT_A_REAL_TOOL"},
	}, "admin-1")
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(ve.Fields) != 1 || ve.Fields[0] != "NOT_A_REAL_TOOL" {
		t.Fatalf("error must name the invalid entries, got %v", ve.Fields)
	}

	// The prior row is unchanged.
	got, err := store.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.UpdatedAt != prior.UpdatedAt || len(got.AllowedTools) != 1 {
		t.Fatalf("rejected upsert must leave prior policy unchanged: %+v", got)
	}
}

func TestUpsert_DefaultsAndBounds(t *testing.T) {
	svc, _ := newTestService(nil)
	ctx := context.Background()

	p, err := svc.Upsert(ctx, "tenant-1", UpsertInput{ToolsEnabled: true}, "admin-1")
	if err != nil {
		t.Fatal(err)
	}
	if p.RateLimitPerMinute != DefaultRateLimitPerMinute || p.MaxCallsPerRun != DefaultMaxCallsPerRun {
		t.Fatalf("defaults not applied: %+v", p)
	}

	neg := -1
	if _, err := svc.Upsert(ctx, "tenant-1", UpsertInput{RateLimitPerMinute: &neg}, "admin-1"); !apperr.IsValidation(err) {
		t.Fatalf("negative rate limit must be rejected, got %v", err)
	}
}

func TestUpsert_UpdatesInPlace(t *testing.T) {
	svc, store := newTestService(nil)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "tenant-1", UpsertInput{ToolsEnabled: false}, "admin-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Upsert(ctx, "tenant-1", UpsertInput{
		ToolsEnabled: true,
		AllowedTools: []string{"QUERY_CHANGES"},
	}, "admin-2"); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if !got.ToolsEnabled || got.UpdatedBy != "admin-2" {
		t.Fatalf("second upsert must modify in place: %+v", got)
	}
}

func TestStatus_NoPolicyFailsClosed(t *testing.T) {
	svc, _ := newTestService(nil)
	st, err := svc.Status(context.Background(), "tenant-without-policy")
	if err != nil {
		t.Fatal(err)
	}
	if st.ToolsEnabled || st.HasUsableProvider {
		t.Fatalf("missing policy must read as disabled: %+v", st)
	}
	if st.AvailableTools == nil || len(st.AvailableTools) != 0 {
		t.Fatalf("available tools must be an empty list: %+v", st.AvailableTools)
	}
}

func TestStatus_HasUsableProvider(t *testing.T) {
	providers := provider.NewMemoryStore()
	svc, _ := newTestService(providers)
	ctx := context.Background()

	if _, err := svc.Upsert(ctx, "tenant-1", UpsertInput{
		ToolsEnabled: true,
		AllowedTools: []string{"QUERY_INCIDENTS"},
	}, "admin-1"); err != nil {
		t.Fatal(err)
	}

	st, err := svc.Status(ctx, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.HasUsableProvider {
		t.Fatal("no provider configured yet")
	}

	now := time.Now()
	_ = providers.Insert(ctx, &provider.Config{
		ID: "p1", TenantID: "tenant-1", Family: tools.FamilyITSM,
		DisplayName: "Prod", Enabled: true,
		BaseURL: "https://itsm.example.com", AuthMode: provider.AuthNone,
		CreatedAt: now, UpdatedAt: now,
	})

	st, err = svc.Status(ctx, "tenant-1")
	if err != nil {
		t.Fatal(err)
	}
	if !st.ToolsEnabled || !st.HasUsableProvider {
		t.Fatalf("expected usable provider: %+v", st)
	}
	if len(st.AvailableTools) != 1 || st.AvailableTools[0] != tools.QueryIncidents {
		t.Fatalf("available tools must mirror the allowlist: %+v", st.AvailableTools)
	}

	// A provider for a family outside the allowlist does not count.
	_ = providers.Insert(ctx, &provider.Config{
		ID: "p2", TenantID: "tenant-2", Family: tools.FamilyMonitoring,
		DisplayName: "Mon", Enabled: true,
		BaseURL: "https://mon.example.com", AuthMode: provider.AuthNone,
		CreatedAt: now, UpdatedAt: now,
	})
	st, _ = svc.Status(ctx, "tenant-2")
	if st.HasUsableProvider {
		t.Fatal("tenant-2 has no policy; status must fail closed")
	}
}
