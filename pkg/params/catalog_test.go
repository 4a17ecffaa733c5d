package params

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/madcore/madcore/pkg/engine"
)

const testIndex = `{
  "products": [
    {
      "id": "spark",
      "type": "plugin",
      "parameters": [
        {"name": "Region", "type": "string", "value": "us-east-1"},
        {"name": "Size", "type": "string", "value": "small", "allowed": ["small", "large"]}
      ],
      "jobs": [
        {"name": "deploy", "parameters": [{"name": "Region", "type": "string", "value": ""}]},
        {"name": "delete"},
        {"name": "status"},
        {"name": "scale", "parameters": [{"name": "Workers", "type": "int", "value": 2}]},
        {"name": "internal", "private": true}
      ],
      "cluster_jobs": [
        {"name": "deploy", "parameters": [{"name": "Nodes", "type": "int", "value": 3}]}
      ]
    },
    {"id": "kafka", "type": "cluster", "jobs": [{"name": "deploy"}]},
    {"id": "docs", "type": "documentation"}
  ]
}`

type failingValidator struct{}

func (failingValidator) ValidatePluginIndex([]byte) error { return errors.New("schema mismatch") }

func TestParseCatalog(t *testing.T) {
	c, err := ParseCatalog([]byte(testIndex), nil)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}

	if ids := c.IDs(); !reflect.DeepEqual(ids, []string{"spark", "kafka"}) {
		t.Errorf("IDs() = %v, want [spark kafka]", ids)
	}

	p, err := c.Plugin("spark")
	if err != nil {
		t.Fatalf("Plugin(spark): %v", err)
	}
	if len(p.Parameters) != 2 || p.Parameters[1].Allowed[1] != "large" {
		t.Errorf("plugin parameters decoded wrong: %+v", p.Parameters)
	}
	if len(p.Extra["cluster_jobs"]) != 1 {
		t.Errorf("extra job list not decoded: %+v", p.Extra)
	}
}

func TestParseCatalogRejectsInvalidIndex(t *testing.T) {
	if _, err := ParseCatalog([]byte(testIndex), failingValidator{}); err == nil {
		t.Error("expected validator error")
	}
	if _, err := ParseCatalog([]byte(`{"products": 3}`), nil); err == nil {
		t.Error("expected decode error")
	}
}

func TestCatalogLookups(t *testing.T) {
	c, err := ParseCatalog([]byte(testIndex), nil)
	if err != nil {
		t.Fatalf("ParseCatalog: %v", err)
	}

	if _, err := c.Plugin("docs"); !errors.Is(err, engine.ErrPluginNotFound) {
		t.Errorf("Plugin(docs) error = %v, want ErrPluginNotFound", err)
	}

	_, job, err := c.Job("spark", "deploy", "cluster_jobs")
	if err != nil {
		t.Fatalf("Job(cluster_jobs): %v", err)
	}
	if job.Parameters[0].Name != "Nodes" {
		t.Errorf("cluster deploy parameters = %+v", job.Parameters)
	}

	p, job, err := c.Job("spark", "missing", "")
	if !errors.Is(err, engine.ErrJobNotFound) || job != nil || p == nil {
		t.Errorf("Job(missing) = %v, %v, %v", p, job, err)
	}

	if extra := c.ExtraJobs("spark"); !reflect.DeepEqual(extra, []string{"scale"}) {
		t.Errorf("ExtraJobs() = %v, want [scale]", extra)
	}
	if types := c.JobTypes("spark"); !reflect.DeepEqual(types, []string{"jobs", "cluster_jobs"}) {
		t.Errorf("JobTypes() = %v", types)
	}
}

func TestLoadCatalogMissingFile(t *testing.T) {
	c, err := LoadCatalog(filepath.Join(t.TempDir(), "nope.json"), nil)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(c.Plugins()) != 0 {
		t.Errorf("expected empty catalog, got %d plugins", len(c.Plugins()))
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plugins-index.json")
	if err := os.WriteFile(path, []byte(testIndex), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadCatalog(path, nil)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if len(c.Plugins()) != 2 {
		t.Errorf("got %d plugins, want 2", len(c.Plugins()))
	}
}

func TestFetchCatalog(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/plugins-index.json" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(testIndex))
	}))
	defer server.Close()

	c, raw, err := FetchCatalog(context.Background(), server.Client(), server.URL+"/plugins-index.json", nil)
	if err != nil {
		t.Fatalf("FetchCatalog: %v", err)
	}
	if len(c.Plugins()) != 2 || string(raw) != testIndex {
		t.Errorf("unexpected catalog: %d plugins", len(c.Plugins()))
	}

	_, _, err = FetchCatalog(context.Background(), server.Client(), server.URL+"/missing", nil)
	if !engine.IsPermanent(err) {
		t.Errorf("404 error = %v, want permanent", err)
	}
}

func TestNames(t *testing.T) {
	if got := JenkinsJobName("spark", "deploy"); got != "madcore.plugin.spark.deploy" {
		t.Errorf("JenkinsJobName() = %q", got)
	}
	if got := SectionName("spark", "", "deploy"); got != "plugin:spark:jobs:deploy" {
		t.Errorf("SectionName() = %q", got)
	}
}
