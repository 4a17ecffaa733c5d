package commands

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"

	"github.com/madcore/madcore/pkg/telemetry"
)

func writeSettings(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "madcore.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func useSettings(t *testing.T, path string) {
	t.Helper()
	prev := configPath
	configPath = path
	t.Cleanup(func() { configPath = prev })
}

func TestSetupAppFlushesTelemetryWhenStoreFails(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MADCORE_HOME", dir)
	blocker := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(blocker, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	metricsPath := filepath.Join(dir, "madcore.prom")
	useSettings(t, writeSettings(t, dir, `
database:
  path: `+filepath.Join(blocker, "madcore.db")+`
telemetry:
  metrics:
    enabled: true
    textfile_path: `+metricsPath+`
`))

	if err := setupApp(context.Background(), "test"); err == nil {
		t.Fatal("setupApp() succeeded with an unusable database path")
	}
	if app != nil {
		t.Error("app set after a failed setup")
	}
	if _, err := os.Stat(metricsPath); err != nil {
		t.Errorf("metrics textfile not written on failed setup: %v", err)
	}
}

func TestRootCommandCarriesTelemetryInContext(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MADCORE_HOME", dir)
	useSettings(t, writeSettings(t, dir, `
database:
  path: `+filepath.Join(dir, "madcore.db")+`
`))

	var got *telemetry.Telemetry
	root := newRootCommand("test", "none", "today")
	root.AddCommand(&cobra.Command{
		Use: "check",
		RunE: func(cmd *cobra.Command, args []string) error {
			got = telemetry.FromTelemetryContext(cmd.Context())
			return nil
		},
	})
	root.SetArgs([]string{"check"})
	root.SetOut(&bytes.Buffer{})

	err := root.ExecuteContext(context.Background())
	t.Cleanup(func() {
		if app != nil {
			_ = app.Close()
			app = nil
		}
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got == nil || app == nil || got != app.Telemetry {
		t.Error("subcommand context does not carry the application telemetry")
	}
}
