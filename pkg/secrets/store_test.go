package secrets

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewStoreByProvider(t *testing.T) {
	tests := []struct {
		name        string
		provider    string
		wantErr     bool
		errContains string
	}{
		{name: "memory", provider: "memory", wantErr: false},
		{name: "env", provider: "env", wantErr: false},
		{name: "empty defaults to env", provider: "", wantErr: false},
		{name: "unknown provider", provider: "unknown", wantErr: true, errContains: "unsupported secret provider"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(Config{Provider: tc.provider})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, want contains %q", err.Error(), tc.errContains)
				}
				if store != nil {
					t.Fatalf("store should be nil when error occurs")
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if store == nil {
				t.Fatalf("store should not be nil")
			}
		})
	}
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	seed := map[string]string{"OPENAI_API_KEY": "sk-seed"}
	store := NewMemoryStore(seed)
	seed["OPENAI_API_KEY"] = "mutated"

	got, err := store.Get(ctx, "OPENAI_API_KEY")
	if err != nil || got != "sk-seed" {
		t.Fatalf("seeded key: got %q, %v", got, err)
	}
	store.Set("OPENAI_API_KEY", "sk-new")
	if got, _ := store.Get(ctx, "OPENAI_API_KEY"); got != "sk-new" {
		t.Fatalf("after Set: got %q", got)
	}
	store.Set("EMPTY_API_KEY", "")
	if _, err := store.Get(ctx, "EMPTY_API_KEY"); err == nil {
		t.Fatal("expected error for empty secret")
	}
}

func TestEnvStorePrefix(t *testing.T) {
	ctx := context.Background()
	t.Setenv("OPENAI_API_KEY", "sk-bare")
	t.Setenv("SUPPORT_AGENT_EINO_API_KEY", "sk-prefixed")
	t.Setenv("EINO_API_KEY", "sk-ignored")

	store := NewEnvStore("SUPPORT_AGENT_")
	if got, err := store.Get(ctx, "EINO_API_KEY"); err != nil || got != "sk-prefixed" {
		t.Fatalf("prefixed key: got %q, %v", got, err)
	}
	if got, err := store.Get(ctx, "OPENAI_API_KEY"); err != nil || got != "sk-bare" {
		t.Fatalf("fallback key: got %q, %v", got, err)
	}
	_, err := store.Get(ctx, "MISSING_API_KEY")
	if err == nil || !strings.Contains(err.Error(), "SUPPORT_AGENT_MISSING_API_KEY") {
		t.Fatalf("missing key error = %v", err)
	}

	if got, _ := NewEnvStore("").Get(ctx, "EINO_API_KEY"); got != "sk-ignored" {
		t.Fatalf("unprefixed store: got %q", got)
	}
}

func TestResolveAPIKey(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(map[string]string{"OPENAI_API_KEY": "sk-from-store"})

	got, err := ResolveAPIKey(ctx, store, "openai", "sk-inline")
	if err != nil || got != "sk-inline" {
		t.Fatalf("inline key: got %q, %v", got, err)
	}
	got, err = ResolveAPIKey(ctx, store, "openai", "${OPENAI_API_KEY}")
	if err != nil || got != "sk-from-store" {
		t.Fatalf("placeholder key: got %q, %v", got, err)
	}
	got, err = ResolveAPIKey(ctx, store, "openai", "")
	if err != nil || got != "sk-from-store" {
		t.Fatalf("empty key: got %q, %v", got, err)
	}
	if _, err := ResolveAPIKey(ctx, store, "claude", ""); err == nil {
		t.Fatal("expected error for missing provider key")
	}
}

func TestVaultStoreReadsKVv2(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/sys/health":
			_, _ = w.Write([]byte(`{"initialized":true,"sealed":false,"standby":false}`))
		case "/v1/secret/data/support-agent/OPENAI_API_KEY":
			if r.Header.Get("X-Vault-Token") != "root" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			_, _ = w.Write([]byte(`{"data":{"data":{"value":"sk-vault"},"metadata":{"version":1}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"errors":[]}`))
		}
	}))
	defer srv.Close()

	store, err := NewStore(Config{Provider: "vault", Vault: VaultConfig{
		Address:    srv.URL,
		Token:      "root",
		PathPrefix: "secret/data/support-agent",
	}})
	if err != nil {
		t.Fatalf("NewStore(vault): %v", err)
	}
	got, err := ResolveAPIKey(context.Background(), store, "openai", "")
	if err != nil {
		t.Fatalf("ResolveAPIKey: %v", err)
	}
	if got != "sk-vault" {
		t.Fatalf("got %q, want sk-vault", got)
	}
	if _, err := store.Get(context.Background(), "MISSING"); err == nil {
		t.Fatal("expected error for missing secret")
	}
}
