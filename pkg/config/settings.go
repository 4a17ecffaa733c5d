package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/madcore/madcore/pkg/engine"
	"github.com/madcore/madcore/pkg/policy"
	"github.com/madcore/madcore/pkg/stacks"
	"github.com/madcore/madcore/pkg/telemetry"
)

// Environment variables that override settings.
const (
	EnvHome       = "MADCORE_HOME"
	EnvAWSRegion  = "MADCORE_AWS_REGION"
	EnvJenkinsURL = "MADCORE_JENKINS_URL"
	EnvDBPath     = "MADCORE_DB_PATH"
	EnvLogLevel   = "MADCORE_LOG_LEVEL"
)

// SettingsFile is the settings file name inside the home directory.
const SettingsFile = "madcore.yaml"

// Settings is the operator configuration of the controller.
type Settings struct {
	AWS       AWSSettings        `yaml:"aws"`
	User      UserSettings       `yaml:"user"`
	Plugins   PluginSettings     `yaml:"plugins"`
	Jenkins   JenkinsSettings    `yaml:"jenkins"`
	Poll      PollSettings       `yaml:"poll"`
	Database  DatabaseSettings   `yaml:"database"`
	Policy    PolicySettings     `yaml:"policy"`
	Telemetry telemetry.Config   `yaml:"telemetry"`
	Stacks    []stacks.StackSpec `yaml:"stacks,omitempty" validate:"dive"`
}

// AWSSettings selects the account region and the deployment key pair.
type AWSSettings struct {
	Region      string `yaml:"region" validate:"required"`
	KeyName     string `yaml:"key_name"`
	TemplateDir string `yaml:"template_dir" validate:"required"`
}

// UserSettings holds the domain the deployment is published under.
type UserSettings struct {
	Domain    string `yaml:"domain" validate:"omitempty,fqdn"`
	SubDomain string `yaml:"sub_domain" validate:"omitempty,hostname_rfc1123"`
	Email     string `yaml:"email" validate:"omitempty,email"`
}

// PluginSettings locates the plugin index. IndexURL is fetched into
// IndexPath when the local copy is missing or a refresh is requested.
type PluginSettings struct {
	IndexPath string `yaml:"index_path" validate:"required"`
	IndexURL  string `yaml:"index_url" validate:"omitempty,url"`
}

// JenkinsSettings configures the automation server client.
type JenkinsSettings struct {
	// Endpoint overrides the https://jenkins.<full domain> default.
	Endpoint           string `yaml:"endpoint" validate:"omitempty,url"`
	Username           string `yaml:"username"`
	Token              string `yaml:"token"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	MaxRetries         int    `yaml:"max_retries" validate:"gte=0"`
}

// PollSettings holds the intervals and bounds of every polling loop.
type PollSettings struct {
	StackInterval      time.Duration `yaml:"stack_interval" validate:"gt=0"`
	StackTimeout       time.Duration `yaml:"stack_timeout" validate:"gte=0"`
	JobInterval        time.Duration `yaml:"job_interval" validate:"gt=0"`
	JobStartTimeout    time.Duration `yaml:"job_start_timeout" validate:"gt=0"`
	JenkinsTimeout     time.Duration `yaml:"jenkins_timeout" validate:"gt=0"`
	JenkinsInterval    time.Duration `yaml:"jenkins_interval" validate:"gt=0"`
	DomainTimeout      time.Duration `yaml:"domain_timeout" validate:"gt=0"`
	DomainInterval     time.Duration `yaml:"domain_interval" validate:"gt=0"`
	InstanceTerminated time.Duration `yaml:"instance_terminated" validate:"gt=0"`
}

// DatabaseSettings locates the SQLite database.
type DatabaseSettings struct {
	Path string `yaml:"path" validate:"required"`
}

// PolicySettings configures job admission.
type PolicySettings struct {
	// Paths are .rego or .json policy files or directories loaded on top of
	// the built-in policies.
	Paths []string `yaml:"paths,omitempty"`

	policy.InputConfig `yaml:",inline"`
}

// DefaultHome returns $MADCORE_HOME or ~/.madcore.
func DefaultHome() string {
	if home := os.Getenv(EnvHome); home != "" {
		return home
	}
	userHome, err := os.UserHomeDir()
	if err != nil {
		return ".madcore"
	}
	return filepath.Join(userHome, ".madcore")
}

// DefaultSettings returns the settings used when no file overrides them.
func DefaultSettings(home string) *Settings {
	tel := telemetry.DefaultConfig()
	tel.Metrics.TextfilePath = ""
	return &Settings{
		AWS: AWSSettings{
			Region:      "us-east-1",
			TemplateDir: filepath.Join(home, "cloudformation"),
		},
		Plugins: PluginSettings{
			IndexPath: filepath.Join(home, "plugins", "plugins-index.json"),
		},
		Jenkins: JenkinsSettings{
			InsecureSkipVerify: true,
			MaxRetries:         3,
		},
		Poll: PollSettings{
			StackInterval:      stacks.DefaultPollInterval,
			StackTimeout:       time.Hour,
			JobInterval:        time.Second,
			JobStartTimeout:    10 * time.Minute,
			JenkinsTimeout:     time.Hour,
			JenkinsInterval:    10 * time.Second,
			DomainTimeout:      30 * time.Second,
			DomainInterval:     5 * time.Second,
			InstanceTerminated: stacks.DefaultTerminateWait,
		},
		Database: DatabaseSettings{
			Path: filepath.Join(home, "madcore.db"),
		},
		Telemetry: *tel,
	}
}

// LoadSettings reads the settings file at path over the defaults for home,
// applies environment overrides and validates the result. A missing file
// yields the defaults.
func LoadSettings(path, home string) (*Settings, error) {
	s := DefaultSettings(home)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := s.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}

	s.applyEnv()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(s); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func (s *Settings) applyEnv() {
	if v := os.Getenv(EnvAWSRegion); v != "" {
		s.AWS.Region = v
	}
	if v := os.Getenv(EnvJenkinsURL); v != "" {
		s.Jenkins.Endpoint = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		s.Database.Path = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		s.Telemetry.Logging.Level = strings.ToLower(v)
	}
}

// Save writes the settings to path as YAML.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks field constraints and the telemetry configuration.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", strings.TrimPrefix(fe.Namespace(), "Settings."), fe.Tag()))
			}
			return engine.NewPermanentError("invalid settings: "+strings.Join(msgs, ", "), err).
				WithCode(engine.ErrCodeValidation)
		}
		return err
	}
	if err := s.Telemetry.Validate(); err != nil {
		return engine.NewPermanentError("invalid telemetry settings", err).WithCode(engine.ErrCodeValidation)
	}
	return nil
}

// ValidateForDeploy checks the settings a full deployment needs beyond Validate.
func (s *Settings) ValidateForDeploy() error {
	var missing []string
	if s.AWS.KeyName == "" {
		missing = append(missing, "aws.key_name")
	}
	if s.User.Domain == "" {
		missing = append(missing, "user.domain")
	}
	if s.User.SubDomain == "" {
		missing = append(missing, "user.sub_domain")
	}
	if s.User.Email == "" {
		missing = append(missing, "user.email")
	}
	if len(missing) > 0 {
		return engine.NewPermanentError("missing settings: "+strings.Join(missing, ", "), nil).
			WithCode(engine.ErrCodeValidation)
	}
	return nil
}

// FullDomain is sub_domain.domain, or the domain alone without a sub domain.
func (s *Settings) FullDomain() string {
	if s.User.SubDomain == "" {
		return s.User.Domain
	}
	return s.User.SubDomain + "." + s.User.Domain
}

// EndpointURL returns https://<name>.<full domain>.
func (s *Settings) EndpointURL(name string) string {
	return fmt.Sprintf("https://%s.%s", name, s.FullDomain())
}

// JenkinsURL returns the configured endpoint or the default under the full domain.
func (s *Settings) JenkinsURL() string {
	if s.Jenkins.Endpoint != "" {
		return s.Jenkins.Endpoint
	}
	return s.EndpointURL("jenkins")
}

// StackSpecs returns the configured stacks or the standard deployment.
func (s *Settings) StackSpecs() []stacks.StackSpec {
	if len(s.Stacks) > 0 {
		return s.Stacks
	}
	return stacks.DefaultStackSpecs(s.AWS.KeyName)
}
