package params

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/telemetry"
)

// CoreParamSource provides the MADCORE_* infrastructure values used as
// template context.
type CoreParamSource interface {
	CoreParams(ctx context.Context) map[string]string
}

// Request selects the job to resolve and carries the operator's choices.
type Request struct {
	PluginID string
	Job      string

	// JobType is the manifest key holding the job; empty means "jobs".
	JobType string

	// CLIValues are NAME=VALUE pairs from the command line. They win over
	// every other layer and are never re-prompted.
	CLIValues map[string]string

	// ResetParams skips the persisted values of the previous run.
	ResetParams bool

	// SkipConfirmDefaults does not prompt for parameters that already have a value.
	SkipConfirmDefaults bool

	// Interactive enables prompting.
	Interactive bool
}

// Resolver produces the final ordered parameter list of a plugin job.
type Resolver struct {
	catalog  *Catalog
	store    engine.ParameterStore
	core     CoreParamSource
	prompter engine.Prompter
	expander *TemplateExpander
	logger   *telemetry.Logger
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithCoreParams sets the source of MADCORE_* template values.
func WithCoreParams(src CoreParamSource) ResolverOption {
	return func(r *Resolver) { r.core = src }
}

// WithPrompter enables interactive prompting.
func WithPrompter(p engine.Prompter) ResolverOption {
	return func(r *Resolver) { r.prompter = p }
}

// WithLogger sets the resolver logger.
func WithLogger(l *telemetry.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a resolver over a catalog and a parameter store.
func NewResolver(catalog *Catalog, store engine.ParameterStore, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		catalog: catalog,
		store:   store,
		logger:  telemetry.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.NewComponentLogger("params")
	r.expander = NewTemplateExpander(r.logger)
	return r
}

// Resolve runs every layer in precedence order:
//
//  1. job parameters
//  2. plugin parameters the job does not declare, prepended
//  3. template expansion against core and plugin values
//  4. values persisted by the previous run, unless ResetParams
//  5. validators by declared type
//  6. command line values, then prompts
//
// Only an unknown plugin is an error. Every other failure keeps the previous value.
func (r *Resolver) Resolve(ctx context.Context, req Request) ([]engine.JobParameter, error) {
	logger := r.logger.WithPlugin(req.PluginID, req.Job)

	plugin, job, err := r.catalog.Job(req.PluginID, req.Job, req.JobType)
	if err != nil && !errors.Is(err, engine.ErrJobNotFound) {
		return nil, err
	}

	var jobParams []engine.JobParameter
	if job != nil {
		jobParams = job.Parameters
	} else {
		logger.Debug("job not declared in index, using plugin parameters only")
	}

	list := Override(plugin.Parameters, jobParams)
	list = r.expandTemplates(ctx, list, req.PluginID)

	if !req.ResetParams {
		list = r.overlayPersisted(ctx, list, req, logger)
	}

	list = AttachValidators(list, logger)
	list = r.overlayOperator(ctx, list, req, logger)
	return list, nil
}

// Save persists the resolved values for the next run of the same job.
func (r *Resolver) Save(ctx context.Context, req Request, list []engine.JobParameter) error {
	return r.store.SetMany(ctx, SectionName(req.PluginID, req.JobType, req.Job), ToMap(list))
}

// sectionLister is a store that can enumerate its sections.
type sectionLister interface {
	Sections(ctx context.Context, prefix string) ([]string, error)
}

// Forget removes every persisted job parameter set of a plugin. Stores that
// list their sections also lose sets of jobs the index no longer declares.
func (r *Resolver) Forget(ctx context.Context, pluginID string) error {
	jobs := append(append([]string(nil), DefaultJobs...), r.catalog.ExtraJobs(pluginID)...)
	var sections []string
	for _, jobType := range r.catalog.JobTypes(pluginID) {
		for _, job := range jobs {
			sections = append(sections, SectionName(pluginID, jobType, job))
		}
	}
	if lister, ok := r.store.(sectionLister); ok {
		stored, err := lister.Sections(ctx, "plugin:"+pluginID+":")
		if err != nil {
			return fmt.Errorf("failed to list %s parameters: %w", pluginID, err)
		}
		sections = append(sections, stored...)
	}

	for _, section := range sections {
		if err := r.store.DeleteSection(ctx, section); err != nil {
			return fmt.Errorf("failed to forget %s: %w", section, err)
		}
	}
	return nil
}

// TemplateContext returns the values placeholders can reference: core
// infrastructure values plus the persisted deploy parameters of every other
// plugin, as MADCORE_<PLUGIN>_<NAME>.
func (r *Resolver) TemplateContext(ctx context.Context, pluginID string) map[string]string {
	vars := make(map[string]string)
	if r.core != nil {
		for k, v := range r.core.CoreParams(ctx) {
			vars[k] = v
		}
	}

	for _, id := range r.catalog.IDs() {
		if id == pluginID {
			continue
		}
		stored, err := r.store.GetSection(ctx, SectionName(id, engine.DefaultJobType, JobDeploy))
		if err != nil {
			r.logger.WithError(err).Debugf("no persisted deploy parameters for %s", id)
			continue
		}
		for k, v := range PrefixParams(id, stored) {
			vars[k] = v
		}
	}
	return vars
}

// PrefixParams renames values to MADCORE_<PREFIX>_<NAME>, upper-cased.
// Characters that cannot appear in a template identifier become underscores.
func PrefixParams(prefix string, values map[string]string) map[string]string {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[identifier("MADCORE_"+prefix+"_"+k)] = v
	}
	return out
}

func identifier(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}

func (r *Resolver) expandTemplates(ctx context.Context, list []engine.JobParameter, pluginID string) []engine.JobParameter {
	var vars map[string]string
	for i := range list {
		s, ok := list[i].Value.(string)
		if !ok || s == "" || !isTemplate(s) {
			continue
		}
		if vars == nil {
			vars = r.TemplateContext(ctx, pluginID)
		}
		list[i].Value = r.expander.Expand(s, vars)
	}
	return list
}

func (r *Resolver) overlayPersisted(ctx context.Context, list []engine.JobParameter, req Request, logger *telemetry.Logger) []engine.JobParameter {
	stored, err := r.store.GetSection(ctx, SectionName(req.PluginID, req.JobType, req.Job))
	if err != nil {
		logger.WithError(err).Warn("failed to load persisted parameters")
		return list
	}
	return OverrideFromMap(list, stored)
}

// AttachValidators sets each parameter's validator from its declared type.
// Unknown types get a permissive string validator and a warning.
func AttachValidators(list []engine.JobParameter, logger *telemetry.Logger) []engine.JobParameter {
	if logger == nil {
		logger = telemetry.NewNopLogger()
	}
	for i := range list {
		v, err := ValidatorFor(list[i].Type)
		if err != nil {
			logger.WithError(err).Warnf("parameter %s accepts any value", list[i].Name)
			v = acceptString
		}
		if len(list[i].Allowed) > 0 {
			v = AllowedValidator(v, list[i].Allowed)
		}
		list[i].Validator = v
	}
	return list
}

func (r *Resolver) overlayOperator(ctx context.Context, list []engine.JobParameter, req Request, logger *telemetry.Logger) []engine.JobParameter {
	fromCLI := make(map[string]bool)
	for i := range list {
		raw, ok := lookupFold(req.CLIValues, list[i].Name)
		if !ok {
			continue
		}
		v, err := list[i].Validator(raw)
		if err != nil {
			logger.WithError(err).Warnf("ignoring command line value for %s", list[i].Name)
			continue
		}
		list[i].Value = v
		fromCLI[list[i].Name] = true
	}

	if !req.Interactive || r.prompter == nil {
		return list
	}

	var questions []engine.Question
	for _, p := range list {
		if fromCLI[p.Name] || (req.SkipConfirmDefaults && IsSet(p.Value)) {
			continue
		}
		questions = append(questions, engine.Question{
			Name:    p.Name,
			Prompt:  fmt.Sprintf("%s\nInput %s field %s= ", p.Description, p.Type, p.Name),
			Options: p.Allowed,
			Default: FormatValue(p.Value),
			Parse:   p.Validator,
		})
	}
	if len(questions) == 0 {
		return list
	}

	answers, err := r.prompter.Ask(ctx, questions)
	if err != nil {
		logger.WithError(err).Warn("prompt aborted, keeping current values")
		return list
	}

	for i := range list {
		a, ok := answers[list[i].Name]
		if !ok {
			continue
		}
		if _, isBool := a.(bool); isBool || IsSet(a) {
			list[i].Value = a
		}
	}
	return list
}

func lookupFold(values map[string]string, name string) (string, bool) {
	if v, ok := values[name]; ok {
		return v, true
	}
	for k, v := range values {
		if strings.EqualFold(k, name) {
			return v, true
		}
	}
	return "", false
}
