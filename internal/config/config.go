package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/triage-ai/backend/internal/models"
)

const defaultConfigFile = "config/sample_config.json"

type Config struct {
	EnterpriseMode bool `mapstructure:"enterprise_mode"`

	Server     Server     `mapstructure:"server"`
	OpenAI     OpenAI     `mapstructure:"openai"`
	ServiceNow ServiceNow `mapstructure:"servicenow"`
	Jira       Jira       `mapstructure:"jira"`
	Mock       Mock       `mapstructure:"mock"`
	Assignment Assignment `mapstructure:"assignment"`
	Storage    Storage    `mapstructure:"data_storage"`

	Engineers []models.Engineer `mapstructure:"engineers"`

	DatabaseURL string `mapstructure:"database_url"`
	RedisAddr   string `mapstructure:"redis_addr"`

	// Warnings collects every setting that was silently downgraded during
	// normalization, so main can log them once the logger exists.
	Warnings []string `mapstructure:"-"`
}

type Server struct {
	Port               string `mapstructure:"port" validate:"required"`
	AdminKey           string `mapstructure:"admin_key"`
	CORSAllowedOrigins string `mapstructure:"cors_allowed_origins"`
	LogLevel           string `mapstructure:"log_level"`
}

type OpenAI struct {
	Enabled   bool   `mapstructure:"enabled"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	MaxTokens int    `mapstructure:"max_tokens" validate:"gte=0"`
}

type ServiceNow struct {
	Enabled     bool   `mapstructure:"enabled"`
	InstanceURL string `mapstructure:"instance_url"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	Table       string `mapstructure:"table"`
	Query       string `mapstructure:"query"`
	Limit       int    `mapstructure:"limit" validate:"gte=0"`
}

type Jira struct {
	Enabled    bool   `mapstructure:"enabled"`
	ServerURL  string `mapstructure:"server_url"`
	Email      string `mapstructure:"email"`
	APIToken   string `mapstructure:"api_token"`
	JQLQuery   string `mapstructure:"jql_query"`
	MaxResults int    `mapstructure:"max_results" validate:"gte=0"`
}

type Mock struct {
	ServiceNowCount int `mapstructure:"servicenow_count" validate:"gte=0"`
	JiraCount       int `mapstructure:"jira_count" validate:"gte=0"`
}

type Assignment struct {
	SkillWeight    float64 `mapstructure:"skill_weight" validate:"gte=0,lte=1"`
	WorkloadWeight float64 `mapstructure:"workload_weight" validate:"gte=0,lte=1"`
	AllowOverflow  bool    `mapstructure:"allow_overflow"`
}

type Storage struct {
	LocalMode        bool   `mapstructure:"local_mode"`
	Format           string `mapstructure:"format" validate:"required,oneof=parquet csv"`
	DeltaLakeEnabled bool   `mapstructure:"delta_lake_enabled"`
	DeltaTablePath   string `mapstructure:"delta_table_path"`
	DataDir          string `mapstructure:"data_dir"`
	LogDir           string `mapstructure:"log_dir"`
}

// Load reads the JSON config file (CONFIG_FILE overrides the default path),
// layers environment overrides on top and normalizes the result. A missing
// default file is fine and leaves the demo-mode defaults in place; a missing
// CONFIG_FILE is an error.
func Load() (Config, error) {
	path := os.Getenv("CONFIG_FILE")
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")
	v.AutomaticEnv()
	bindEnv(v)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func bindEnv(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.admin_key", "ADMIN_KEY")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("servicenow.instance_url", "SERVICENOW_INSTANCE_URL")
	_ = v.BindEnv("servicenow.username", "SERVICENOW_USERNAME")
	_ = v.BindEnv("servicenow.password", "SERVICENOW_PASSWORD")
	_ = v.BindEnv("jira.server_url", "JIRA_SERVER_URL")
	_ = v.BindEnv("jira.email", "JIRA_EMAIL")
	_ = v.BindEnv("jira.api_token", "JIRA_API_TOKEN")
	_ = v.BindEnv("database_url", "DATABASE_URL")
	_ = v.BindEnv("redis_addr", "REDIS_ADDR")
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("enterprise_mode", false)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.cors_allowed_origins", "*")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("openai.enabled", true)
	v.SetDefault("openai.model", "gpt-5")
	v.SetDefault("servicenow.enabled", false)
	v.SetDefault("servicenow.table", "incident")
	v.SetDefault("servicenow.limit", 100)
	v.SetDefault("jira.enabled", false)
	v.SetDefault("jira.max_results", 100)
	v.SetDefault("mock.servicenow_count", 20)
	v.SetDefault("mock.jira_count", 15)
	v.SetDefault("assignment.skill_weight", 0.6)
	v.SetDefault("assignment.workload_weight", 0.4)
	v.SetDefault("data_storage.local_mode", true)
	v.SetDefault("data_storage.format", "parquet")
	v.SetDefault("data_storage.delta_lake_enabled", false)
	v.SetDefault("data_storage.delta_table_path", "data/delta_tables/tickets")
	v.SetDefault("data_storage.data_dir", "data")
	v.SetDefault("data_storage.log_dir", "logs")
}

// normalize applies the demo-mode gate and downgrades integrations whose
// credentials are incomplete instead of failing at startup.
func (c *Config) normalize() {
	if !c.EnterpriseMode {
		if c.OpenAI.Enabled || c.ServiceNow.Enabled || c.Jira.Enabled {
			c.warn("enterprise_mode is off, forcing the OpenAI, ServiceNow and Jira integrations off")
		}
		c.OpenAI.Enabled = false
		c.ServiceNow.Enabled = false
		c.Jira.Enabled = false
	}
	if c.OpenAI.Enabled && c.OpenAI.APIKey == "" {
		c.OpenAI.Enabled = false
		c.warn("openai enabled without OPENAI_API_KEY, using rule-based classification")
	}
	if c.ServiceNow.Enabled && (c.ServiceNow.InstanceURL == "" || c.ServiceNow.Username == "" || c.ServiceNow.Password == "") {
		c.ServiceNow.Enabled = false
		c.warn("servicenow enabled without complete credentials, disabling it")
	}
	if c.Jira.Enabled && (c.Jira.ServerURL == "" || c.Jira.Email == "" || c.Jira.APIToken == "") {
		c.Jira.Enabled = false
		c.warn("jira enabled without complete credentials, disabling it")
	}
	if c.Storage.DeltaLakeEnabled && c.DatabaseURL == "" {
		c.Storage.DeltaLakeEnabled = false
		c.warn("delta_lake_enabled without DATABASE_URL, keeping batches in local files only")
	}

	c.Storage.Format = strings.ToLower(strings.TrimSpace(c.Storage.Format))
	c.Server.LogLevel = strings.ToLower(strings.TrimSpace(c.Server.LogLevel))

	for i := range c.Engineers {
		if c.Engineers[i].MaxWorkload <= 0 {
			c.Engineers[i].MaxWorkload = 5
		}
		if c.Engineers[i].Availability == "" {
			c.Engineers[i].Availability = "available"
		}
	}
}

func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	for i, eng := range c.Engineers {
		if strings.TrimSpace(eng.Name) == "" {
			return fmt.Errorf("engineers[%d]: name is required", i)
		}
	}
	return nil
}

func (c *Config) warn(msg string) {
	c.Warnings = append(c.Warnings, msg)
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Server.Port
}
