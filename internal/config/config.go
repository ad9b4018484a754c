package config

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`

	// HTTP client
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`

	// Resilience
	MaxRetries     int           `mapstructure:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`

	// Observability
	OTLPEndpoint string `mapstructure:"otel_exporter_otlp_endpoint"`

	// Persistence: "supabase" (PostgREST) or "postgres" (direct)
	StoreBackend string `mapstructure:"store_backend"`
	DatabaseURL  string `mapstructure:"database_url"`

	// Supabase
	SupabaseURL        string `mapstructure:"supabase_url"`
	SupabaseAnonKey    string `mapstructure:"supabase_anon_key"`
	SupabaseServiceKey string `mapstructure:"supabase_service_role_key"`
	SupabaseJWTSecret  string `mapstructure:"supabase_jwt_secret"`

	// Capture agent intake: bcrypt hash of the shared intake token
	IntakeTokenHash string `mapstructure:"intake_token_hash"`

	// LLM
	LLMProvider     string `mapstructure:"llm_provider"` // openai | lovable | anthropic
	LLMModel        string `mapstructure:"llm_model"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIBaseURL   string `mapstructure:"openai_base_url"`
	LovableAPIKey   string `mapstructure:"lovable_api_key"`
	LovableBaseURL  string `mapstructure:"lovable_base_url"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicURL    string `mapstructure:"anthropic_base_url"`

	// Aviation data
	AeroDataBoxAPIKey string `mapstructure:"aerodatabox_api_key"`
	AeroDataBoxHost   string `mapstructure:"aerodatabox_host"`
	AviapagesURL      string `mapstructure:"aviapages_url"`
	AviapagesToken    string `mapstructure:"aviapages_api_token"`
	AirNavURL         string `mapstructure:"airnav_url"`
	AirNavAPIKey      string `mapstructure:"airnav_api_key"`
	FlightTimeFanOut  int    `mapstructure:"flight_time_fan_out"`

	// Browserless (remote headless Chrome)
	BrowserlessWSURL string `mapstructure:"browserless_ws_url"`

	// Search
	MeiliURL    string `mapstructure:"meili_url"`
	MeiliAPIKey string `mapstructure:"meili_api_key"`

	// Object storage for captured pages
	MinioEndpoint  string `mapstructure:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket"`
	MinioUseSSL    bool   `mapstructure:"minio_use_ssl"`

	// Webhooks
	ZapierWebhookURL string `mapstructure:"zapier_webhook_url"`
	MakeWebhookURL   string `mapstructure:"make_webhook_url"`

	// Jobs
	FleetRefreshCron string `mapstructure:"fleet_refresh_cron"`
	SeedAircraft     bool   `mapstructure:"seed_aircraft"`
}

var defaults = map[string]any{
	"port":      8080,
	"log_level": "info",

	"http_timeout": "15s",

	"max_retries":     3,
	"initial_backoff": "100ms",
	"max_concurrency": 50,

	"otel_exporter_otlp_endpoint": "localhost:4317",

	"store_backend": "supabase",
	"database_url":  "",

	"supabase_url":              "",
	"supabase_anon_key":         "",
	"supabase_service_role_key": "",
	"supabase_jwt_secret":       "",

	"intake_token_hash": "",

	"llm_provider":       "lovable",
	"llm_model":          "google/gemini-2.5-flash",
	"openai_api_key":     "",
	"openai_base_url":    "https://api.openai.com/v1",
	"lovable_api_key":    "",
	"lovable_base_url":   "https://ai.gateway.lovable.dev/v1",
	"anthropic_api_key":  "",
	"anthropic_base_url": "https://api.anthropic.com",

	"aerodatabox_api_key": "",
	"aerodatabox_host":    "aerodatabox.p.rapidapi.com",
	"aviapages_url":       "https://dir.aviapages.com/api",
	"aviapages_api_token": "",
	"airnav_url":          "https://api.radarbox.com/v2",
	"airnav_api_key":      "",
	"flight_time_fan_out": 10,

	"browserless_ws_url": "",

	"meili_url":     "",
	"meili_api_key": "",

	"minio_endpoint":   "",
	"minio_access_key": "",
	"minio_secret_key": "",
	"minio_bucket":     "captured-pages",
	"minio_use_ssl":    true,

	"zapier_webhook_url": "",
	"make_webhook_url":   "",

	"fleet_refresh_cron": "0 4 * * *",
	"seed_aircraft":      false,
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)))
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// UsePostgres reports whether the direct Postgres backend is selected.
func (c *Config) UsePostgres() bool {
	return c.StoreBackend == "postgres" && c.DatabaseURL != ""
}
