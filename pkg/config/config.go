package config

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigPath = "/etc/clinicguard"
	ConfigFileName    = "clinicguard.yml"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds all clinicguard settings.
type Config struct {
	ListenAddress string `yaml:"listen_address" json:"listen_address"`
	DatabaseURL   string `yaml:"database_url" json:"database_url"`
	// Store is postgres or memory.
	Store    string `yaml:"store" json:"store"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// CatalogPath is an optional YAML catalog replacing the built-in one.
	CatalogPath string `yaml:"catalog_path" json:"catalog_path"`
	// CatalogWatch reloads CatalogPath when it changes.
	CatalogWatch bool `yaml:"catalog_watch" json:"catalog_watch"`

	AuditFallbackPath    string `yaml:"audit_fallback_path" json:"audit_fallback_path"`
	AuditFallbackMaxMB   int    `yaml:"audit_fallback_max_mb" json:"audit_fallback_max_mb"`
	AuditFlushInterval   int    `yaml:"audit_flush_interval" json:"audit_flush_interval"`
	AuditMaxPending      int    `yaml:"audit_max_pending" json:"audit_max_pending"`
	BusinessHoursStart   int    `yaml:"business_hours_start" json:"business_hours_start"`
	BusinessHoursEnd     int    `yaml:"business_hours_end" json:"business_hours_end"`
	Timezone             string `yaml:"timezone" json:"timezone"`
	BurstThreshold       int    `yaml:"burst_threshold" json:"burst_threshold"`
	BurstWindow          int    `yaml:"burst_window" json:"burst_window"`
	RiskWeightNormal     int    `yaml:"risk_weight_normal" json:"risk_weight_normal"`
	RiskWeightSensitive  int    `yaml:"risk_weight_sensitive" json:"risk_weight_sensitive"`
	RiskWeightCritical   int    `yaml:"risk_weight_critical" json:"risk_weight_critical"`
	RiskWeightRead       int    `yaml:"risk_weight_read" json:"risk_weight_read"`
	RiskWeightWrite      int    `yaml:"risk_weight_write" json:"risk_weight_write"`
	RiskWeightDelete     int    `yaml:"risk_weight_delete" json:"risk_weight_delete"`
	RiskWeightAdmin      int    `yaml:"risk_weight_admin" json:"risk_weight_admin"`
	RiskWeightError      int    `yaml:"risk_weight_error" json:"risk_weight_error"`
	RiskWeightBurst      int    `yaml:"risk_weight_burst" json:"risk_weight_burst"`
	RiskWeightOffHours   int    `yaml:"risk_weight_off_hours" json:"risk_weight_off_hours"`
	AlertCooldown        int    `yaml:"alert_cooldown" json:"alert_cooldown"`
	ScanWindow           int    `yaml:"scan_window" json:"scan_window"`
	ScanInterval         int    `yaml:"scan_interval" json:"scan_interval"`
	SweepInterval        int    `yaml:"sweep_interval" json:"sweep_interval"`
	SensitiveErrorAlerts int    `yaml:"sensitive_error_alerts" json:"sensitive_error_alerts"`
	HighRiskScore        int    `yaml:"high_risk_score" json:"high_risk_score"`
	BurstAlertEvents     int    `yaml:"burst_alert_events" json:"burst_alert_events"`
	RapidBurstEvents     int    `yaml:"rapid_burst_events" json:"rapid_burst_events"`

	// TrustedProxies is a list of CIDR ranges whose X-Forwarded-For is believed.
	TrustedProxies []string `yaml:"trusted_proxies" json:"trusted_proxies"`
	// JWTSecret signs the identity tokens the HTTP surface accepts.
	JWTSecret string `yaml:"jwt_secret" json:"-"`

	NotifyWebhookURL string  `yaml:"notify_webhook_url" json:"notify_webhook_url"`
	NotifyRate       float64 `yaml:"notify_rate" json:"notify_rate"`
	NotifyBurst      int     `yaml:"notify_burst" json:"notify_burst"`

	// sources tracks where each value came from
	sources map[string]string

	configFilePath string
}

// Attribute represents a configuration attribute with its value and source
type Attribute struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Source string `json:"source"`
}

// Global singleton config
var (
	globalConfig *Config
	configMu     sync.RWMutex
)

// Get returns the global configuration, loading it if necessary
func Get() *Config {
	configMu.RLock()
	if globalConfig != nil {
		configMu.RUnlock()
		return globalConfig
	}
	configMu.RUnlock()

	configMu.Lock()
	defer configMu.Unlock()

	if globalConfig == nil {
		cfg, err := Load()
		if err != nil {
			globalConfig = newDefault()
		} else {
			globalConfig = cfg
		}
	}
	return globalConfig
}

// Reload reloads the configuration from file and environment
func Reload() error {
	cfg, err := Load()
	if err != nil {
		return err
	}

	configMu.Lock()
	globalConfig = cfg
	configMu.Unlock()
	return nil
}

// Default returns the built-in configuration without reading the file or
// environment.
func Default() *Config {
	return newDefault()
}

func newDefault() *Config {
	return &Config{
		ListenAddress:        ":8080",
		Store:                StorePostgres,
		LogLevel:             "info",
		AuditFallbackPath:    "/var/log/clinicguard/audit.log",
		AuditFallbackMaxMB:   100,
		AuditFlushInterval:   30,
		AuditMaxPending:      10000,
		BusinessHoursStart:   8,
		BusinessHoursEnd:     18,
		Timezone:             "Local",
		BurstThreshold:       5,
		BurstWindow:          60,
		RiskWeightNormal:     5,
		RiskWeightSensitive:  25,
		RiskWeightCritical:   45,
		RiskWeightRead:       0,
		RiskWeightWrite:      10,
		RiskWeightDelete:     20,
		RiskWeightAdmin:      25,
		RiskWeightError:      15,
		RiskWeightBurst:      20,
		RiskWeightOffHours:   10,
		AlertCooldown:        3600,
		ScanWindow:           900,
		ScanInterval:         60,
		SweepInterval:        60,
		SensitiveErrorAlerts: 3,
		HighRiskScore:        80,
		BurstAlertEvents:     10,
		RapidBurstEvents:     6,
		TrustedProxies:       []string{},
		NotifyRate:           1,
		NotifyBurst:          5,
		sources:              make(map[string]string),
	}
}

// attribute binds a YAML key to its field for environment overrides and
// display.
type attribute struct {
	name   string
	secret bool
	get    func(c *Config) string
	set    func(c *Config, v string) error
}

func stringAttr(name string, field func(c *Config) *string) attribute {
	return attribute{
		name: name,
		get:  func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			*field(c) = v
			return nil
		},
	}
}

func intAttr(name string, field func(c *Config) *int) attribute {
	return attribute{
		name: name,
		get:  func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			i, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*field(c) = i
			return nil
		},
	}
}

func boolAttr(name string, field func(c *Config) *bool) attribute {
	return attribute{
		name: name,
		get:  func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			*field(c) = v == "true" || v == "1"
			return nil
		},
	}
}

var attributes = []attribute{
	stringAttr("listen_address", func(c *Config) *string { return &c.ListenAddress }),
	{
		name:   "database_url",
		secret: true,
		get:    func(c *Config) string { return c.DatabaseURL },
		set:    func(c *Config, v string) error { c.DatabaseURL = v; return nil },
	},
	stringAttr("store", func(c *Config) *string { return &c.Store }),
	stringAttr("log_level", func(c *Config) *string { return &c.LogLevel }),
	stringAttr("catalog_path", func(c *Config) *string { return &c.CatalogPath }),
	boolAttr("catalog_watch", func(c *Config) *bool { return &c.CatalogWatch }),
	stringAttr("audit_fallback_path", func(c *Config) *string { return &c.AuditFallbackPath }),
	intAttr("audit_fallback_max_mb", func(c *Config) *int { return &c.AuditFallbackMaxMB }),
	intAttr("audit_flush_interval", func(c *Config) *int { return &c.AuditFlushInterval }),
	intAttr("audit_max_pending", func(c *Config) *int { return &c.AuditMaxPending }),
	intAttr("business_hours_start", func(c *Config) *int { return &c.BusinessHoursStart }),
	intAttr("business_hours_end", func(c *Config) *int { return &c.BusinessHoursEnd }),
	stringAttr("timezone", func(c *Config) *string { return &c.Timezone }),
	intAttr("burst_threshold", func(c *Config) *int { return &c.BurstThreshold }),
	intAttr("burst_window", func(c *Config) *int { return &c.BurstWindow }),
	intAttr("risk_weight_normal", func(c *Config) *int { return &c.RiskWeightNormal }),
	intAttr("risk_weight_sensitive", func(c *Config) *int { return &c.RiskWeightSensitive }),
	intAttr("risk_weight_critical", func(c *Config) *int { return &c.RiskWeightCritical }),
	intAttr("risk_weight_read", func(c *Config) *int { return &c.RiskWeightRead }),
	intAttr("risk_weight_write", func(c *Config) *int { return &c.RiskWeightWrite }),
	intAttr("risk_weight_delete", func(c *Config) *int { return &c.RiskWeightDelete }),
	intAttr("risk_weight_admin", func(c *Config) *int { return &c.RiskWeightAdmin }),
	intAttr("risk_weight_error", func(c *Config) *int { return &c.RiskWeightError }),
	intAttr("risk_weight_burst", func(c *Config) *int { return &c.RiskWeightBurst }),
	intAttr("risk_weight_off_hours", func(c *Config) *int { return &c.RiskWeightOffHours }),
	intAttr("alert_cooldown", func(c *Config) *int { return &c.AlertCooldown }),
	intAttr("scan_window", func(c *Config) *int { return &c.ScanWindow }),
	intAttr("scan_interval", func(c *Config) *int { return &c.ScanInterval }),
	intAttr("sweep_interval", func(c *Config) *int { return &c.SweepInterval }),
	intAttr("sensitive_error_alerts", func(c *Config) *int { return &c.SensitiveErrorAlerts }),
	intAttr("high_risk_score", func(c *Config) *int { return &c.HighRiskScore }),
	intAttr("burst_alert_events", func(c *Config) *int { return &c.BurstAlertEvents }),
	intAttr("rapid_burst_events", func(c *Config) *int { return &c.RapidBurstEvents }),
	{
		name: "trusted_proxies",
		get:  func(c *Config) string { return strings.Join(c.TrustedProxies, ",") },
		set:  func(c *Config, v string) error { c.TrustedProxies = splitAndTrim(v); return nil },
	},
	{
		name:   "jwt_secret",
		secret: true,
		get:    func(c *Config) string { return c.JWTSecret },
		set:    func(c *Config, v string) error { c.JWTSecret = v; return nil },
	},
	stringAttr("notify_webhook_url", func(c *Config) *string { return &c.NotifyWebhookURL }),
	{
		name: "notify_rate",
		get:  func(c *Config) string { return strconv.FormatFloat(c.NotifyRate, 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			c.NotifyRate = f
			return nil
		},
	},
	intAttr("notify_burst", func(c *Config) *int { return &c.NotifyBurst }),
}

func envName(attr string) string {
	return "CLINICGUARD_" + strings.ToUpper(attr)
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over file values.
func Load() (*Config, error) {
	config := newDefault()

	for _, attr := range attributes {
		config.sources[attr.name] = "default"
	}

	configPath := os.Getenv("CLINICGUARD_CONFIG_PATH")
	if configPath == "" {
		configPath = DefaultConfigPath
	}
	config.configFilePath = filepath.Join(configPath, ConfigFileName)

	if data, err := os.ReadFile(config.configFilePath); err == nil {
		if err := config.applyFileConfig(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", config.configFilePath, err)
		}
	}

	if err := config.applyEnvConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyFileConfig decodes data over the defaults. Keys present in the file
// are marked as coming from it.
func (c *Config) applyFileConfig(data []byte) error {
	var present map[string]yaml.Node
	if err := yaml.Unmarshal(data, &present); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return err
	}
	for _, attr := range attributes {
		if _, ok := present[attr.name]; ok {
			c.sources[attr.name] = "file"
		}
	}
	return nil
}

func (c *Config) applyEnvConfig() error {
	// DATABASE_URL is honored for compatibility with the usual tooling.
	if val := os.Getenv("DATABASE_URL"); val != "" {
		c.DatabaseURL = val
		c.sources["database_url"] = "environment"
	}
	for _, attr := range attributes {
		val := os.Getenv(envName(attr.name))
		if val == "" {
			continue
		}
		if err := attr.set(c, val); err != nil {
			return fmt.Errorf("invalid %s: %w", envName(attr.name), err)
		}
		c.sources[attr.name] = "environment"
	}
	return nil
}

// ConfigFilePath returns the path to the config file
func (c *Config) ConfigFilePath() string {
	return c.configFilePath
}

// Source returns the source of a configuration attribute
func (c *Config) Source(name string) string {
	if c.sources == nil {
		return "default"
	}
	if s, ok := c.sources[name]; ok {
		return s
	}
	return "default"
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// BurstWindowDuration returns the burst window as a duration.
func (c *Config) BurstWindowDuration() time.Duration { return seconds(c.BurstWindow) }

// AlertCooldownDuration returns the alert cooldown as a duration.
func (c *Config) AlertCooldownDuration() time.Duration { return seconds(c.AlertCooldown) }

// ScanWindowDuration returns the detection window as a duration.
func (c *Config) ScanWindowDuration() time.Duration { return seconds(c.ScanWindow) }

// ScanIntervalDuration returns how often the detector runs.
func (c *Config) ScanIntervalDuration() time.Duration { return seconds(c.ScanInterval) }

// SweepIntervalDuration returns how often expired grants are swept.
func (c *Config) SweepIntervalDuration() time.Duration { return seconds(c.SweepInterval) }

// AuditFlushIntervalDuration returns how often buffered audit events are retried.
func (c *Config) AuditFlushIntervalDuration() time.Duration { return seconds(c.AuditFlushInterval) }

// Location returns the clinic's time zone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// IsTrustedProxy checks if an IP is from a trusted proxy
func (c *Config) IsTrustedProxy(ip string) bool {
	if len(c.TrustedProxies) == 0 {
		return false
	}

	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}

	for _, cidr := range c.TrustedProxies {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			if net.ParseIP(cidr) != nil && cidr == ip {
				return true
			}
			continue
		}
		if network.Contains(parsedIP) {
			return true
		}
	}
	return false
}

// Validate validates the configuration
func (c *Config) Validate() error {
	for _, cidr := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			if net.ParseIP(cidr) == nil {
				return fmt.Errorf("invalid trusted_proxies value: %s", cidr)
			}
		}
	}

	if c.Store != StorePostgres && c.Store != StoreMemory {
		return fmt.Errorf("invalid store: %s", c.Store)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone: %s", c.Timezone)
	}
	for name, hour := range map[string]int{
		"business_hours_start": c.BusinessHoursStart,
		"business_hours_end":   c.BusinessHoursEnd,
	} {
		if hour < 0 || hour > 23 {
			return fmt.Errorf("invalid %s: %d is not an hour of the day", name, hour)
		}
	}

	positive := map[string]int{
		"burst_window":         c.BurstWindow,
		"alert_cooldown":       c.AlertCooldown,
		"scan_window":          c.ScanWindow,
		"scan_interval":        c.ScanInterval,
		"sweep_interval":       c.SweepInterval,
		"audit_flush_interval": c.AuditFlushInterval,
		"audit_max_pending":    c.AuditMaxPending,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] <= 0 {
			return fmt.Errorf("invalid %s: must be positive", name)
		}
	}

	for _, attr := range attributes {
		if !strings.HasPrefix(attr.name, "risk_weight_") {
			continue
		}
		if v, _ := strconv.Atoi(attr.get(c)); v < 0 {
			return fmt.Errorf("invalid %s: must not be negative", attr.name)
		}
	}

	if c.NotifyWebhookURL != "" && c.NotifyRate <= 0 {
		return fmt.Errorf("invalid notify_rate: must be positive when notify_webhook_url is set")
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Attributes returns all configuration attributes with their values and
// sources. Secrets are masked.
func (c *Config) Attributes() []Attribute {
	out := make([]Attribute, 0, len(attributes))
	for _, attr := range attributes {
		value := attr.get(c)
		if attr.secret && value != "" {
			value = "********"
		}
		out = append(out, Attribute{Name: attr.name, Value: value, Source: c.Source(attr.name)})
	}
	return out
}

// FormatText returns a text representation of the configuration
func (c *Config) FormatText() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Config file: %s\n\n", c.configFilePath))
	sb.WriteString(fmt.Sprintf("%-40s %-30s %s\n", "NAME", "VALUE", "SOURCE"))
	sb.WriteString(fmt.Sprintf("%-40s %-30s %s\n", "----", "-----", "------"))

	for _, attr := range c.Attributes() {
		value := attr.Value
		if value == "" {
			value = "(not set)"
		}
		sb.WriteString(fmt.Sprintf("%-40s %-30s %s\n", attr.Name, value, attr.Source))
	}
	return sb.String()
}

// FormatJSON returns a JSON representation of the configuration
func (c *Config) FormatJSON() (string, error) {
	result := map[string]interface{}{
		"config_file": c.configFilePath,
		"attributes":  c.Attributes(),
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
