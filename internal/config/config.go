// Package config holds the settings shared by the qetools commands. Values
// come from an optional YAML file and QETOOLS_* environment variables, both
// read through viper.
package config

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "QETOOLS"

	KeyLogLevel           = "log-level"
	KeySubteams           = "subteams"
	KeyOwners             = "owners"
	KeyRPEndpoint         = "reportportal.endpoint"
	KeyRPProject          = "reportportal.project"
	KeyRPToken            = "reportportal.token"
	KeyRPAttrToken        = "reportportal.attr-token"
	KeySlackWebhookURL    = "slack.webhook-url"
	KeyBugzillaEndpoint   = "bugzilla.endpoint"
	KeyBugzillaAPIKey     = "bugzilla.api-key"
	DefaultRPEndpoint     = "https://reportportal-openshift.apps.ocp-c1.prod.psi.redhat.com/api"
	DefaultRPProject      = "ocp"
	DefaultLogLevel       = "info"
	DefaultBugzillaURL    = "https://bugzilla.redhat.com/rest"
	UnknownSubteam        = "Unknown"
	ISVOperatorsScenario  = "isv]"
	ISVOperatorsSubteamID = "ISV_Operators"
)

// DefaultSubteams is the set of subteam names used in test titles.
var DefaultSubteams = []string{
	"SDN", "Storage", "STORAGE", "Developer_Experience", "User_Interface", "PerfScale",
	"Service_Development_B", "Node", "NODE", "Logging", "Apiserver_and_Auth", "Workloads",
	"Metering", "Cluster_Observability", "Quay/Quay.io", "Cluster_Infrastructure",
	"Multi-Cluster", "Cluster_Operator", "Azure", "Network_Edge", "Etcd", "ETCD", "Installer",
	"Portfolio_Integration", "Service_Development_A", "OLM", "Operator_SDK", "App_Migration",
	"Windows_Containers", "Security_and_Compliance", "KNI", "Edge", "Openshift_Jenkins", "RHV",
	"ISV_Operators", "PSAP", "Multi-Cluster-Networking", "OTA", "Kata", "Build_API",
	"Image_Registry", "Container_Engine_Tools", "MCO", "API_Server", "Authentication",
	"Hypershift", "Network_Observability",
}

// SubteamSet is an immutable set of recognized subteam names.
type SubteamSet struct {
	names map[string]struct{}
}

func NewSubteamSet(names ...string) SubteamSet {
	s := SubteamSet{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n != "" {
			s.names[n] = struct{}{}
		}
	}
	return s
}

func (s SubteamSet) Has(name string) bool {
	_, ok := s.names[name]
	return ok
}

// Names returns the sorted members of the set.
func (s SubteamSet) Names() []string {
	out := make([]string, 0, len(s.names))
	for n := range s.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (s SubteamSet) Len() int { return len(s.names) }

// Resolve returns name when it is a member of the set, UnknownSubteam otherwise.
func (s SubteamSet) Resolve(name string) string {
	if s.Has(name) {
		return name
	}
	return UnknownSubteam
}

type ReportPortal struct {
	Endpoint  string `mapstructure:"endpoint"`
	Project   string `mapstructure:"project"`
	Token     string `mapstructure:"token"`
	AttrToken string `mapstructure:"attr-token"`
}

type Bugzilla struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api-key"`
}

type Slack struct {
	WebhookURL string `mapstructure:"webhook-url"`
}

type Config struct {
	LogLevel     string            `mapstructure:"log-level"`
	Subteams     []string          `mapstructure:"subteams"`
	Owners       map[string]string `mapstructure:"owners"`
	ReportPortal ReportPortal      `mapstructure:"reportportal"`
	Slack        Slack             `mapstructure:"slack"`
	Bugzilla     Bugzilla          `mapstructure:"bugzilla"`
}

// SetDefaults registers the default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyLogLevel, DefaultLogLevel)
	v.SetDefault(KeySubteams, DefaultSubteams)
	v.SetDefault(KeyOwners, map[string]string{})
	v.SetDefault(KeyRPEndpoint, DefaultRPEndpoint)
	v.SetDefault(KeyRPProject, DefaultRPProject)
	v.SetDefault(KeyRPToken, "")
	v.SetDefault(KeyRPAttrToken, "")
	v.SetDefault(KeySlackWebhookURL, "")
	v.SetDefault(KeyBugzillaEndpoint, DefaultBugzillaURL)
	v.SetDefault(KeyBugzillaAPIKey, "")
}

// Init prepares v to read QETOOLS_* variables and, when file is set, the
// given YAML file.
func Init(v *viper.Viper, file string) error {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	if file == "" {
		return nil
	}
	v.SetConfigFile(file)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "unable to read config file %s", file)
	}
	return nil
}

// Load decodes the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "unable to decode configuration")
	}
	// AutomaticEnv is not consulted by Unmarshal for nested keys.
	cfg.ReportPortal.Endpoint = v.GetString(KeyRPEndpoint)
	cfg.ReportPortal.Project = v.GetString(KeyRPProject)
	cfg.ReportPortal.Token = v.GetString(KeyRPToken)
	cfg.ReportPortal.AttrToken = v.GetString(KeyRPAttrToken)
	cfg.Slack.WebhookURL = v.GetString(KeySlackWebhookURL)
	cfg.Bugzilla.Endpoint = v.GetString(KeyBugzillaEndpoint)
	cfg.Bugzilla.APIKey = v.GetString(KeyBugzillaAPIKey)
	if len(cfg.Subteams) == 0 {
		cfg.Subteams = DefaultSubteams
	}
	return cfg, nil
}

func (c *Config) SubteamSet() SubteamSet {
	return NewSubteamSet(c.Subteams...)
}

// Owner returns the Slack mention configured for a subteam. viper folds
// map keys to lower case, so the lookup ignores case.
func (c *Config) Owner(subteam string) string {
	if owner, ok := c.Owners[subteam]; ok {
		return owner
	}
	for k, owner := range c.Owners {
		if strings.EqualFold(k, subteam) {
			return owner
		}
	}
	return ""
}
