package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type SimulatorConfig struct {
	URL          string   `yaml:"url"`
	StatePath    string   `yaml:"state_path"`
	ControlPath  string   `yaml:"control_path"`
	Timeout      Duration `yaml:"timeout"`
	RateLimitRPS float64  `yaml:"rate_limit_rps"`
}

type ControlConfig struct {
	PollInterval       Duration `yaml:"poll_interval"`
	MinIlluminationLux float64  `yaml:"min_illumination_lux"`
	MaxLuxPerLight     float64  `yaml:"max_lux_per_light"`
	LeadBeforeMeeting  Duration `yaml:"lead_before_meeting"`
	TurnOffDelay       Duration `yaml:"turn_off_delay"`
	MinBrightness      *int     `yaml:"min_brightness"`
	MaxBrightness      *int     `yaml:"max_brightness"`
	BrightnessDeadband *int     `yaml:"brightness_deadband"`
}

type DatabaseConfig struct {
	Path            string   `yaml:"path"`
	Retention       Duration `yaml:"retention"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
	File  string `yaml:"file"`
}

type DatadogConfig struct {
	Enabled   bool     `yaml:"enabled"`
	AgentAddr string   `yaml:"agent_addr"`
	Namespace string   `yaml:"namespace"`
	Tags      []string `yaml:"tags"`
}

type NtfyConfig struct {
	Topic string `yaml:"topic"`
}

type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ServiceConfig drives the systemd unit written by the debug CLI.
type ServiceConfig struct {
	UnitPath   string `yaml:"unit_path"`
	User       string `yaml:"user"`
	WorkingDir string `yaml:"working_dir"`
	ExecStart  string `yaml:"exec_start"`
}

type Config struct {
	ConfigFile  string        `yaml:"-"`
	LogLevel    zerolog.Level `yaml:"-"`
	ResetLedger bool          `yaml:"-"`

	Simulator SimulatorConfig `yaml:"simulator"`
	Control   ControlConfig   `yaml:"control"`
	Database  DatabaseConfig  `yaml:"database"`
	Log       LogConfig       `yaml:"log"`
	Datadog   DatadogConfig   `yaml:"datadog"`
	Ntfy      NtfyConfig      `yaml:"ntfy"`
	API       APIConfig       `yaml:"api"`
	Service   ServiceConfig   `yaml:"service"`
}

// Duration is a time.Duration that unmarshals from strings like "2s" or "5m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Error lists every invalid setting found during validation.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

// Load parses command-line flags and then the config file they point at. Flags
// win over the file for the log level.
func Load() (*Config, error) {
	var configFile, logLevel string
	var resetLedger bool

	flag.StringVar(&configFile, "config-file", "config.yaml", "Path to controller config file")
	flag.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the config file")
	flag.BoolVar(&resetLedger, "reset-ledger", false, "Delete the event ledger before starting")
	flag.Parse()

	cfg, err := LoadFile(configFile)
	if err != nil {
		return nil, err
	}
	cfg.ResetLedger = resetLedger
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	cfg.LogLevel = ParseLogLevel(cfg.Log.Level)

	return cfg, nil
}

// LoadFile reads a YAML config file, expands ${VAR} and ${VAR:default}
// references, fills defaults and validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.ConfigFile = path
	return cfg, nil
}

// Parse decodes data over Default, so a setting written as 0 in the file stays
// 0 and is rejected by Validate instead of silently becoming the default.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.LogLevel = ParseLogLevel(cfg.Log.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func intPtr(v int) *int { return &v }

// Default returns the configuration used for every setting the file leaves out.
func Default() Config {
	return Config{
		Simulator: SimulatorConfig{
			URL:          "http://localhost:8080",
			StatePath:    "/api/environment/state",
			ControlPath:  "/api/environment/devices/light/%s/control",
			Timeout:      Duration(10 * time.Second),
			RateLimitRPS: 20,
		},
		Control: ControlConfig{
			PollInterval:       Duration(2 * time.Second),
			MinIlluminationLux: 500,
			MaxLuxPerLight:     500,
			LeadBeforeMeeting:  Duration(time.Minute),
			TurnOffDelay:       Duration(5 * time.Minute),
			MinBrightness:      intPtr(1),
			MaxBrightness:      intPtr(100),
			BrightnessDeadband: intPtr(5),
		},
		Database: DatabaseConfig{
			Path:            "data/light-controller.db",
			Retention:       Duration(720 * time.Hour),
			CleanupInterval: Duration(24 * time.Hour),
		},
		Log: LogConfig{
			Level: "info",
		},
		Datadog: DatadogConfig{
			AgentAddr: "127.0.0.1:8125",
			Namespace: "lighting.",
		},
		API: APIConfig{
			Port: 8090,
		},
		Service: ServiceConfig{
			UnitPath:   "/etc/systemd/system/light-controller.service",
			WorkingDir: "/opt/light-controller",
			ExecStart:  "/opt/light-controller/light-controller -config-file /opt/light-controller/config.yaml",
		},
	}
}

// Validate reports every out-of-range setting at once.
func (cfg *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if strings.TrimSpace(cfg.Simulator.URL) == "" {
		add("simulator.url must not be empty")
	}
	if cfg.Simulator.RateLimitRPS <= 0 {
		add("simulator.rate_limit_rps must be > 0, got %v", cfg.Simulator.RateLimitRPS)
	}
	if cfg.Simulator.Timeout <= 0 {
		add("simulator.timeout must be > 0, got %s", cfg.Simulator.Timeout.Duration())
	}

	c := cfg.Control
	if c.PollInterval <= 0 {
		add("control.poll_interval must be > 0, got %s", c.PollInterval.Duration())
	}
	if c.MinIlluminationLux <= 0 {
		add("control.min_illumination_lux must be > 0, got %v", c.MinIlluminationLux)
	}
	if c.MaxLuxPerLight <= 0 {
		add("control.max_lux_per_light must be > 0, got %v", c.MaxLuxPerLight)
	}
	if c.LeadBeforeMeeting < 0 {
		add("control.lead_before_meeting must be >= 0, got %s", c.LeadBeforeMeeting.Duration())
	}
	if c.TurnOffDelay < 0 {
		add("control.turn_off_delay must be >= 0, got %s", c.TurnOffDelay.Duration())
	}

	minB, maxB, deadband := c.Brightness()
	if minB < 0 || minB > 100 {
		add("control.min_brightness must be within [0,100], got %d", minB)
	}
	if maxB < 0 || maxB > 100 {
		add("control.max_brightness must be within [0,100], got %d", maxB)
	}
	if minB > maxB {
		add("control.min_brightness %d exceeds control.max_brightness %d", minB, maxB)
	}
	if deadband < 0 {
		add("control.brightness_deadband must be >= 0, got %d", deadband)
	}

	d := cfg.Database
	if strings.TrimSpace(d.Path) == "" {
		add("database.path must not be empty")
	}
	if d.Retention <= 0 {
		add("database.retention must be > 0, got %s", d.Retention.Duration())
	}
	if d.CleanupInterval <= 0 {
		add("database.cleanup_interval must be > 0, got %s", d.CleanupInterval.Duration())
	}

	if len(problems) > 0 {
		return &Error{Problems: problems}
	}
	return nil
}

// Brightness returns min, max and deadband with unset values as zero.
func (c ControlConfig) Brightness() (int, int, int) {
	deref := func(p *int) int {
		if p == nil {
			return 0
		}
		return *p
	}
	return deref(c.MinBrightness), deref(c.MaxBrightness), deref(c.BrightnessDeadband)
}

func ParseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default}. An unset or empty variable
// falls back to the default, or to "".
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envVarPattern.FindStringSubmatch(match)
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return parts[2]
	})
}
