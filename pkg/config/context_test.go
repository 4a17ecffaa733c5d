package config

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/madcore/madcore/pkg/stores"
)

const testIndex = `{"products": [
	{"id": "spark", "type": "plugin", "jobs": [{"name": "deploy"}, {"name": "delete"}, {"name": "status"}]},
	{"id": "docs", "type": "documentation"}
]}`

func newTestContext(t *testing.T) *Context {
	t.Helper()
	home := t.TempDir()
	settings := DefaultSettings(home)
	settings.Database.Path = ":memory:"

	c, err := NewContext(context.Background(), home, settings, nil)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestRegistrationState(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()

	ok, err := c.Registered(ctx)
	if err != nil || ok {
		t.Fatalf("Registered() = %v, %v; want false before any run", ok, err)
	}

	if err := c.SetRegistered(ctx, true); err != nil {
		t.Fatalf("SetRegistered() error = %v", err)
	}
	if ok, _ := c.Registered(ctx); !ok {
		t.Error("Registered() = false after success")
	}

	if err := c.SetRegistered(ctx, false); err != nil {
		t.Fatalf("SetRegistered() error = %v", err)
	}
	if ok, _ := c.Registered(ctx); ok {
		t.Error("Registered() = true after failure")
	}

	v, err := c.Store.Get(ctx, UserSection, RegistrationKey)
	if err != nil || v != "false" {
		t.Errorf("stored value = %q, %v", v, err)
	}
}

func TestRegistrationIgnoresGarbage(t *testing.T) {
	c := newTestContext(t)
	ctx := context.Background()
	if err := c.Store.SetMany(ctx, UserSection, map[string]string{RegistrationKey: "maybe"}); err != nil {
		t.Fatal(err)
	}
	if ok, err := c.Registered(ctx); ok || err != nil {
		t.Errorf("Registered() = %v, %v", ok, err)
	}
}

func TestCatalogDownloadsAndCaches(t *testing.T) {
	c := newTestContext(t)
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		fmt.Fprint(w, testIndex)
	}))
	t.Cleanup(srv.Close)

	c.Settings.Plugins.IndexURL = srv.URL
	c.Settings.Plugins.IndexPath = filepath.Join(c.Home, "plugins", "index.json")

	catalog, err := c.Catalog(context.Background(), false)
	if err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if ids := catalog.IDs(); len(ids) != 1 || ids[0] != "spark" {
		t.Errorf("IDs() = %v", ids)
	}
	if _, err := os.Stat(c.Settings.Plugins.IndexPath); err != nil {
		t.Errorf("index not cached: %v", err)
	}

	// The cached copy is used without a refresh.
	if _, err := c.Catalog(context.Background(), false); err != nil {
		t.Fatalf("Catalog() error = %v", err)
	}
	if hits != 1 {
		t.Errorf("index downloaded %d times, want 1", hits)
	}

	// A failed refresh falls back to the cached copy.
	srv.Close()
	catalog, err = c.Catalog(context.Background(), true)
	if err != nil {
		t.Fatalf("Catalog() after failed refresh error = %v", err)
	}
	if len(catalog.IDs()) != 1 {
		t.Errorf("IDs() = %v", catalog.IDs())
	}
}

func TestCatalogRejectsInvalidIndex(t *testing.T) {
	c := newTestContext(t)
	path := filepath.Join(c.Home, "index.json")
	if err := os.WriteFile(path, []byte(`{"products": [{"type": "plugin"}]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	c.Settings.Plugins.IndexPath = path

	if _, err := c.Catalog(context.Background(), false); err == nil {
		t.Error("expected schema error")
	}
}

func TestPolicyEngineLoadsOperatorPolicies(t *testing.T) {
	c := newTestContext(t)
	dir := t.TempDir()
	rego := "package madcore.ops\n\nimport rego.v1\n\ndeny contains \"frozen\" if input.plugin == \"spark\"\n"
	if err := os.WriteFile(filepath.Join(dir, "freeze.rego"), []byte(rego), 0o644); err != nil {
		t.Fatal(err)
	}
	c.Settings.Policy.Paths = []string{dir}

	eng, err := c.PolicyEngine(context.Background())
	if err != nil {
		t.Fatalf("PolicyEngine() error = %v", err)
	}
	if n := len(eng.ListPolicies()); n != 4 {
		t.Errorf("policies = %d, want built-ins plus freeze", n)
	}
}

func TestNewContextWithStore(t *testing.T) {
	store, err := stores.OpenSQLiteStore(context.Background(), stores.Config{Path: ":memory:"})
	if err != nil {
		t.Fatal(err)
	}
	c := NewContextWithStore("/tmp/home", DefaultSettings("/tmp/home"), nil, store)
	defer c.Close()

	if c.Telemetry == nil || c.Logger() == nil || c.Schemas == nil {
		t.Errorf("context not initialised: %+v", c)
	}
}
