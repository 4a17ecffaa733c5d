package params

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"

	"github.com/madcore/madcore/pkg/engine"
)

// Default jobs every plugin provides.
const (
	JobDeploy = "deploy"
	JobDelete = "delete"
	JobStatus = "status"
)

// DefaultJobs are the jobs exposed for every plugin.
var DefaultJobs = []string{JobDeploy, JobDelete, JobStatus}

// JobPrefix prefixes every plugin job name on the automation server.
const JobPrefix = "madcore.plugin"

// IndexValidator checks a raw plugin index before it is decoded.
type IndexValidator interface {
	ValidatePluginIndex(data []byte) error
}

// Catalog is the read-only set of plugins loaded from the plugin index.
type Catalog struct {
	plugins []engine.PluginManifest
}

// LoadCatalog reads the plugin index at path. A missing file yields an empty catalog.
func LoadCatalog(path string, v IndexValidator) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Catalog{}, nil
		}
		return nil, fmt.Errorf("failed to read plugin index: %w", err)
	}
	return ParseCatalog(data, v)
}

// FetchCatalog downloads the plugin index from url.
func FetchCatalog(ctx context.Context, client *http.Client, url string, v IndexValidator) (*Catalog, []byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build plugin index request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, engine.NewTransientError("failed to fetch plugin index", err).WithTarget(url)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, engine.NewPermanentError(fmt.Sprintf("plugin index returned status %d", resp.StatusCode), nil).WithTarget(url)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, engine.NewTransientError("failed to read plugin index", err).WithTarget(url)
	}
	c, err := ParseCatalog(data, v)
	if err != nil {
		return nil, nil, err
	}
	return c, data, nil
}

// ParseCatalog decodes a plugin index document. Only products of type plugin
// or cluster are kept.
func ParseCatalog(data []byte, v IndexValidator) (*Catalog, error) {
	if v != nil {
		if err := v.ValidatePluginIndex(data); err != nil {
			return nil, fmt.Errorf("invalid plugin index: %w", err)
		}
	}

	var index struct {
		Products []json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to decode plugin index: %w", err)
	}

	c := &Catalog{}
	for i, raw := range index.Products {
		m, err := decodeManifest(raw)
		if err != nil {
			return nil, fmt.Errorf("product %d: %w", i, err)
		}
		if m.Type != engine.PluginTypePlugin && m.Type != engine.PluginTypeCluster {
			continue
		}
		c.plugins = append(c.plugins, *m)
	}
	return c, nil
}

// decodeManifest decodes one product. Keys other than the fixed ones whose
// value is a list of named jobs become extra job lists.
func decodeManifest(raw json.RawMessage) (*engine.PluginManifest, error) {
	var m engine.PluginManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for key, value := range fields {
		switch key {
		case "id", "type", "parameters", engine.DefaultJobType:
			continue
		}
		var jobs []engine.JobDefinition
		if err := json.Unmarshal(value, &jobs); err != nil || len(jobs) == 0 || jobs[0].Name == "" {
			continue
		}
		if m.Extra == nil {
			m.Extra = make(map[string][]engine.JobDefinition)
		}
		m.Extra[key] = jobs
	}
	return &m, nil
}

// Plugins returns every plugin in index order.
func (c *Catalog) Plugins() []engine.PluginManifest {
	return c.plugins
}

// IDs returns the plugin ids in index order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.plugins))
	for i, p := range c.plugins {
		ids[i] = p.ID
	}
	return ids
}

// Plugin returns the plugin with the given id.
func (c *Catalog) Plugin(id string) (*engine.PluginManifest, error) {
	for i := range c.plugins {
		if c.plugins[i].ID == id {
			return &c.plugins[i], nil
		}
	}
	return nil, engine.NewPermanentError("plugin not in index", engine.ErrPluginNotFound).
		WithCode(engine.ErrCodeNotFound).WithTarget(id)
}

// Job returns the job definition of a plugin for a job type ("jobs" when empty).
func (c *Catalog) Job(pluginID, jobName, jobType string) (*engine.PluginManifest, *engine.JobDefinition, error) {
	p, err := c.Plugin(pluginID)
	if err != nil {
		return nil, nil, err
	}
	jobs := p.JobsOfType(jobType)
	for i := range jobs {
		if jobs[i].Name == jobName {
			return p, &jobs[i], nil
		}
	}
	return p, nil, engine.NewPermanentError("job not declared by plugin", engine.ErrJobNotFound).
		WithCode(engine.ErrCodeNotFound).WithTarget(pluginID + "/" + jobName)
}

// ExtraJobs returns the public jobs of a plugin that are not default jobs.
func (c *Catalog) ExtraJobs(pluginID string) []string {
	p, err := c.Plugin(pluginID)
	if err != nil {
		return nil
	}
	var names []string
	for _, j := range p.Jobs {
		if j.Private || isDefaultJob(j.Name) {
			continue
		}
		names = append(names, j.Name)
	}
	return names
}

// JobTypes returns the job list keys a plugin declares, "jobs" first.
func (c *Catalog) JobTypes(pluginID string) []string {
	p, err := c.Plugin(pluginID)
	if err != nil {
		return nil
	}
	types := []string{engine.DefaultJobType}
	extra := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		extra = append(extra, k)
	}
	sort.Strings(extra)
	return append(types, extra...)
}

func isDefaultJob(name string) bool {
	for _, d := range DefaultJobs {
		if d == name {
			return true
		}
	}
	return false
}

// JenkinsJobName returns the automation server job name of a plugin job.
func JenkinsJobName(pluginID, job string) string {
	return strings.Join([]string{JobPrefix, pluginID, job}, ".")
}

// SectionName returns the parameter store section holding a job's last parameters.
func SectionName(pluginID, jobType, job string) string {
	if jobType == "" {
		jobType = engine.DefaultJobType
	}
	return fmt.Sprintf("plugin:%s:%s:%s", pluginID, jobType, job)
}
