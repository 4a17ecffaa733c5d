package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/params"
	"github.com/madcore/madcore/pkg/policy"
	"github.com/madcore/madcore/pkg/stores"
	"github.com/madcore/madcore/pkg/telemetry"
)

// Registration state lives in the parameter store under this section and key.
const (
	UserSection     = "user"
	RegistrationKey = "registration"
)

// Context is built once per command and handed to every component that
// needs settings, persisted state or telemetry.
type Context struct {
	Home      string
	Settings  *Settings
	Store     stores.Store
	Telemetry *telemetry.Telemetry
	Schemas   *SchemaRegistry

	logger     *telemetry.Logger
	httpClient *http.Client
}

// NewContext opens the parameter store named by the settings.
func NewContext(ctx context.Context, home string, settings *Settings, tel *telemetry.Telemetry) (*Context, error) {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	store, err := stores.OpenSQLiteStore(ctx, stores.Config{Path: settings.Database.Path})
	if err != nil {
		return nil, fmt.Errorf("failed to open parameter store: %w", err)
	}
	return NewContextWithStore(home, settings, tel, store), nil
}

// NewContextWithStore builds a context around an already open store.
func NewContextWithStore(home string, settings *Settings, tel *telemetry.Telemetry, store stores.Store) *Context {
	if tel == nil {
		tel = telemetry.NewNop()
	}
	return &Context{
		Home:       home,
		Settings:   settings,
		Store:      store,
		Telemetry:  tel,
		Schemas:    NewSchemaRegistry(),
		logger:     tel.Logger.NewComponentLogger("config"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Logger returns the root logger.
func (c *Context) Logger() *telemetry.Logger {
	return c.Telemetry.Logger
}

// Close releases the store.
func (c *Context) Close() error {
	if c.Store == nil {
		return nil
	}
	return c.Store.Close()
}

// Catalog loads the plugin index from the local copy. When the copy is
// missing or refresh is set and an index URL is configured, the index is
// downloaded first and written to the local path.
func (c *Context) Catalog(ctx context.Context, refresh bool) (*params.Catalog, error) {
	path := c.Settings.Plugins.IndexPath
	url := c.Settings.Plugins.IndexURL

	if url != "" && (refresh || !fileExists(path)) {
		catalog, data, err := params.FetchCatalog(ctx, c.httpClient, url, c.Schemas)
		if err != nil {
			if !fileExists(path) {
				return nil, err
			}
			c.logger.WithError(err).Warn("plugin index download failed, using local copy")
		} else {
			if err := writeFile(path, data); err != nil {
				c.logger.WithError(err).Warn("failed to cache plugin index")
			}
			return catalog, nil
		}
	}

	return params.LoadCatalog(path, c.Schemas)
}

// PolicyEngine returns an engine with the built-in policies and the
// operator policies named in the settings.
func (c *Context) PolicyEngine(ctx context.Context) (*policy.Engine, error) {
	eng, err := policy.NewEngine(c.Telemetry.Logger.Zerolog())
	if err != nil {
		return nil, err
	}
	if len(c.Settings.Policy.Paths) > 0 {
		if err := eng.LoadPolicies(ctx, c.Settings.Policy.Paths); err != nil {
			return nil, err
		}
	}
	return eng, nil
}

// Registered reports whether the domain registration job has succeeded.
func (c *Context) Registered(ctx context.Context) (bool, error) {
	v, err := c.Store.Get(ctx, UserSection, RegistrationKey)
	if err != nil {
		if errors.Is(err, engine.ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	ok, err := strconv.ParseBool(v)
	if err != nil {
		return false, nil
	}
	return ok, nil
}

// SetRegistered persists the outcome of the registration job.
func (c *Context) SetRegistered(ctx context.Context, ok bool) error {
	return c.Store.SetMany(ctx, UserSection, map[string]string{RegistrationKey: strconv.FormatBool(ok)})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
