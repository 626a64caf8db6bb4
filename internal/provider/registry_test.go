package provider

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Gokhanagingil/grc-sub011/internal/apperr"
	"github.com/Gokhanagingil/grc-sub011/internal/ssrf"
	"github.com/Gokhanagingil/grc-sub011/internal/tools"
	"github.com/Gokhanagingil/grc-sub011/internal/vault"
)

func testVault(t *testing.T) *vault.Vault {
	t.Helper()
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		t.Fatal(err)
	}
	v, err := vault.New(key)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func publicGuard() *ssrf.Guard {
	lookup := func(_ context.Context, _ string) ([]netip.Addr, error) {
		return []netip.Addr{netip.MustParseAddr("93.184.216.34")}, nil
	}
	return ssrf.NewGuardWithLookup(lookup, time.Second, zap.NewNop())
}

func privateGuard() *ssrf.Guard {
	lookup := func(_ context.Context, _ string) ([]netip.Addr, error) {
		return []netip.Addr{netip.MustParseAddr("10.0.0.8")}, nil
	}
	return ssrf.NewGuardWithLookup(lookup, time.Second, zap.NewNop())
}

func str(s string) *string { return &s }

func TestRegistry_CreateRedacts(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, publicGuard(), testVault(t), zap.NewNop())

	view, err := reg.Create(context.Background(), "tenant-1", CreateInput{
		Family:      "itsm",
		DisplayName: "Prod ServiceNow",
		BaseURL:     "https://itsm.example.com",
		AuthMode:    "basic",
		Username:    str("svc-account"),
		Password:    str("hunter2"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !view.HasUsername || !view.HasPassword {
		t.Fatal("presence flags must reflect supplied secrets")
	}
	if view.HasToken || view.HasCustomHeaders {
		t.Fatal("absent secrets must report false")
	}

	// The redacted JSON carries no secret material in any field.
	raw, err := json.Marshal(view)
	if err != nil {
		t.Fatal(err)
	}
	for _, leak := range []string{"svc-account", "hunter2", "Ciphertext", "ciphertext"} {
		if strings.Contains(string(raw), leak) {
			t.Fatalf("redacted view leaks %q: %s", leak, raw)
		}
	}

	// Stored row holds ciphertext, not plaintext.
	cfg, err := store.Get(context.Background(), "tenant-1", view.ID)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Password.Ciphertext() == "hunter2" || cfg.Password.Ciphertext() == "" {
		t.Fatal("password must be stored encrypted")
	}
}

func TestRegistry_CreateUnsafeURLRejectedBeforePersist(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, privateGuard(), testVault(t), zap.NewNop())

	_, err := reg.Create(context.Background(), "tenant-1", CreateInput{
		Family:      "itsm",
		DisplayName: "Internal",
		BaseURL:     "https://internal.corp",
		AuthMode:    "none",
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	// The generic message never exposes the guard's classification.
	if strings.Contains(err.Error(), "private") || strings.Contains(err.Error(), "10.0.0.8") {
		t.Fatalf("validation error leaks guard internals: %v", err)
	}
	views, _ := reg.List(context.Background(), "tenant-1")
	if len(views) != 0 {
		t.Fatal("nothing may be persisted after an SSRF rejection")
	}
}

func TestRegistry_CreateInputValidation(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), publicGuard(), testVault(t), zap.NewNop())
	cases := []CreateInput{
		{Family: "mainframe", DisplayName: "x", BaseURL: "https://a.example.com", AuthMode: "none"},
		{Family: "itsm", DisplayName: "", BaseURL: "https://a.example.com", AuthMode: "none"},
		{Family: "itsm", DisplayName: "x", BaseURL: "https://a.example.com", AuthMode: "kerberos"},
	}
	for i, in := range cases {
		if _, err := reg.Create(context.Background(), "tenant-1", in); !apperr.IsValidation(err) {
			t.Fatalf("case %d: expected ValidationError, got %v", i, err)
		}
	}
}

func TestRegistry_UpdateSecretSemantics(t *testing.T) {
	store := NewMemoryStore()
	v := testVault(t)
	reg := NewRegistry(store, publicGuard(), v, zap.NewNop())
	ctx := context.Background()

	view, err := reg.Create(ctx, "tenant-1", CreateInput{
		Family:      "itsm",
		DisplayName: "Prod",
		BaseURL:     "https://itsm.example.com",
		AuthMode:    "basic",
		Username:    str("user"),
		Password:    str("old-password"),
	})
	if err != nil {
		t.Fatal(err)
	}
	before, _ := store.Get(ctx, "tenant-1", view.ID)

	// Omitted secret fields keep the prior ciphertext.
	updated, err := reg.Update(ctx, "tenant-1", view.ID, UpdateInput{DisplayName: str("Prod v2")})
	if err != nil {
		t.Fatal(err)
	}
	if !updated.HasPassword {
		t.Fatal("omitted password must be retained")
	}
	after, _ := store.Get(ctx, "tenant-1", view.ID)
	if after.Password.Ciphertext() != before.Password.Ciphertext() {
		t.Fatal("omitted password ciphertext must be untouched")
	}

	// Explicit empty string clears the slot.
	updated, err = reg.Update(ctx, "tenant-1", view.ID, UpdateInput{Password: str("")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.HasPassword {
		t.Fatal("explicit empty string must clear the secret")
	}

	// A new value re-encrypts and decrypts to the new plaintext.
	if _, err := reg.Update(ctx, "tenant-1", view.ID, UpdateInput{Password: str("new-password")}); err != nil {
		t.Fatal(err)
	}
	after, _ = store.Get(ctx, "tenant-1", view.ID)
	plain, err := v.Decrypt(after.Password.Ciphertext())
	if err != nil {
		t.Fatal(err)
	}
	if plain != "new-password" {
		t.Fatalf("expected new-password, got %q", plain)
	}
}

func TestRegistry_UpdateRevalidatesChangedURL(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	// Seed through a permissive guard, then swap in one that rejects.
	seedReg := NewRegistry(store, publicGuard(), testVault(t), zap.NewNop())
	view, err := seedReg.Create(ctx, "tenant-1", CreateInput{
		Family: "itsm", DisplayName: "Prod", BaseURL: "https://itsm.example.com", AuthMode: "none",
	})
	if err != nil {
		t.Fatal(err)
	}

	reg := NewRegistry(store, privateGuard(), testVault(t), zap.NewNop())
	if _, err := reg.Update(ctx, "tenant-1", view.ID, UpdateInput{BaseURL: str("https://other.example.com")}); !apperr.IsValidation(err) {
		t.Fatalf("changed url must be re-validated, got %v", err)
	}
	// Unchanged url is not re-validated on update.
	if _, err := reg.Update(ctx, "tenant-1", view.ID, UpdateInput{BaseURL: str("https://itsm.example.com")}); err != nil {
		t.Fatalf("same url should not be re-screened: %v", err)
	}
}

func TestRegistry_TenantScoping(t *testing.T) {
	reg := NewRegistry(NewMemoryStore(), publicGuard(), testVault(t), zap.NewNop())
	ctx := context.Background()

	view, err := reg.Create(ctx, "tenant-1", CreateInput{
		Family: "itsm", DisplayName: "Prod", BaseURL: "https://itsm.example.com", AuthMode: "none",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Get(ctx, "tenant-2", view.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cross-tenant get must be not-found, got %v", err)
	}
	if err := reg.Delete(ctx, "tenant-2", view.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("cross-tenant delete must be not-found, got %v", err)
	}
}

func TestRegistry_DeleteIdempotent(t *testing.T) {
	store := NewMemoryStore()
	reg := NewRegistry(store, publicGuard(), testVault(t), zap.NewNop())
	ctx := context.Background()

	view, err := reg.Create(ctx, "tenant-1", CreateInput{
		Family: "itsm", DisplayName: "Prod", BaseURL: "https://itsm.example.com", AuthMode: "none",
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete(ctx, "tenant-1", view.ID); err != nil {
		t.Fatal(err)
	}
	if err := reg.Delete(ctx, "tenant-1", view.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("second delete must be not-found, got %v", err)
	}
	// The row is retained with is_deleted set, never physically erased.
	raw := store.configs[view.ID]
	if raw == nil || !raw.Deleted || raw.Enabled {
		t.Fatalf("soft-deleted row must persist with deleted=true enabled=false: %+v", raw)
	}
	// And it is no longer selectable for dispatch.
	if _, err := store.FirstEnabledByFamily(ctx, "tenant-1", tools.FamilyITSM); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("deleted provider must not be dispatchable, got %v", err)
	}
}

func TestMemoryStore_FirstEnabledByFamily(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	mk := func(id string, enabled bool, created time.Time) *Config {
		return &Config{
			ID: id, TenantID: "tenant-1", Family: tools.FamilyITSM,
			DisplayName: id, Enabled: enabled,
			BaseURL: fmt.Sprintf("https://%s.example.com", id), AuthMode: AuthNone,
			CreatedAt: created, UpdatedAt: created,
		}
	}
	base := time.Now()
	_ = store.Insert(ctx, mk("older-disabled", false, base.Add(-2*time.Hour)))
	_ = store.Insert(ctx, mk("older-enabled", true, base.Add(-time.Hour)))
	_ = store.Insert(ctx, mk("newer-enabled", true, base))

	got, err := store.FirstEnabledByFamily(ctx, "tenant-1", tools.FamilyITSM)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "older-enabled" {
		t.Fatalf("expected oldest enabled provider, got %s", got.ID)
	}
}
