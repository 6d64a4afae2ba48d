// config is the package containing configuration for shepherd, shared
// so it can be used by the daemon as well as its command line driver.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	ConfigType = "yaml"

	DefaultPasswordFile = "/var/run/secrets/shepherd_registry_password"

	ProbeCLI      = "cli"
	ProbeRegistry = "registry"

	LogFormatFmt  = "fmt"
	LogFormatJSON = "json"
)

// ScheduleParser accepts standard five-field cron expressions, an
// optional leading seconds field, and descriptors like @hourly.
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config is built once at startup and handed to everything that needs
// it. Nothing reads the environment after that.
type Config struct {
	LogFormat     string `mapstructure:"logFormat"`
	Verbose       bool   `mapstructure:"verbose"`
	Listen        string `mapstructure:"listen"`
	ListenMetrics string `mapstructure:"listenMetrics"`
	Hostname      string `mapstructure:"hostname"`

	Filter   string        `mapstructure:"filter"`
	Ignore   string        `mapstructure:"ignore"`
	Interval time.Duration `mapstructure:"interval"`
	Schedule string        `mapstructure:"schedule"`
	RunOnce  bool          `mapstructure:"runOnce"`

	Timeout         time.Duration `mapstructure:"timeout"`
	AutocleanLimit  int           `mapstructure:"autocleanLimit"`
	Rollback        bool          `mapstructure:"rollback"`
	UpdateOptions   string        `mapstructure:"updateOptions"`
	RollbackOptions string        `mapstructure:"rollbackOptions"`

	WithRegistryAuth bool `mapstructure:"withRegistryAuth"`
	Insecure         bool `mapstructure:"insecure"`
	NoResolveImage   bool `mapstructure:"noResolveImage"`

	RegistryUser         string  `mapstructure:"registryUser"`
	RegistryPassword     string  `mapstructure:"registryPassword"`
	RegistryPasswordFile string  `mapstructure:"registryPasswordFile"`
	RegistryHost         string  `mapstructure:"registryHost"`
	RegistriesFile       string  `mapstructure:"registriesFile"`
	RegistryRPS          float64 `mapstructure:"registryRps"`
	RegistryBurst        int     `mapstructure:"registryBurst"`
	RegistryTrace        bool    `mapstructure:"registryTrace"`

	Probe            string `mapstructure:"probe"`
	DockerBinary     string `mapstructure:"dockerBinary"`
	DockerConfigRoot string `mapstructure:"dockerConfigRoot"`

	NotifyURL      string `mapstructure:"notifyUrl"`
	NotifyFormat   string `mapstructure:"notifyFormat"`
	NotifyUsername string `mapstructure:"notifyUsername"`
}

// Validate checks the values that cannot be checked by type alone.
// notifyFormats lists the formats the notifier understands.
func (c Config) Validate(notifyFormats []string) error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.AutocleanLimit < 0 {
		return fmt.Errorf("autoclean limit must not be negative, got %d", c.AutocleanLimit)
	}
	if c.Schedule != "" {
		if _, err := ScheduleParser.Parse(c.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %s", c.Schedule, err)
		}
	} else if !c.RunOnce && c.Interval <= 0 {
		return fmt.Errorf("interval must be positive unless running once, got %s", c.Interval)
	}
	switch c.Probe {
	case ProbeCLI, ProbeRegistry:
	default:
		return fmt.Errorf("unknown probe %q (one of {%s,%s})", c.Probe, ProbeCLI, ProbeRegistry)
	}
	switch c.LogFormat {
	case LogFormatFmt, LogFormatJSON:
	default:
		return fmt.Errorf("unknown log format %q (one of {%s,%s})", c.LogFormat, LogFormatFmt, LogFormatJSON)
	}
	if c.NotifyURL != "" && !contains(notifyFormats, c.NotifyFormat) {
		return fmt.Errorf("unknown notification format %q (one of {%s})", c.NotifyFormat, strings.Join(notifyFormats, ","))
	}
	if c.RegistryRPS <= 0 && c.Probe == ProbeRegistry {
		return fmt.Errorf("registry rps must be positive, got %v", c.RegistryRPS)
	}
	return nil
}

// IgnoreSet returns the names of the services that are never touched.
func (c Config) IgnoreSet() IgnoreSet {
	return ParseIgnoreSet(c.Ignore)
}

// UpdateExtra returns the extra modifiers for `service update`.
func (c Config) UpdateExtra() []string {
	return strings.Fields(c.UpdateOptions)
}

// RollbackExtra returns the extra modifiers for rollbacks.
func (c Config) RollbackExtra() []string {
	return strings.Fields(c.RollbackOptions)
}

func contains(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}

// IgnoreSet is a set of service names, matched exactly.
type IgnoreSet map[string]struct{}

// ParseIgnoreSet splits s on whitespace.
func ParseIgnoreSet(s string) IgnoreSet {
	set := IgnoreSet{}
	for _, name := range strings.Fields(s) {
		set[name] = struct{}{}
	}
	return set
}

func (s IgnoreSet) Contains(name string) bool {
	_, ok := s[name]
	return ok
}

// Names returns the members in sorted order, for logging.
func (s IgnoreSet) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
