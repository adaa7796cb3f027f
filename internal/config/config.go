package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Comfy     ComfyConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	LogLevel  string
	ApiDomain string
}

type ComfyConfig struct {
	URL          string
	OutputDir    string
	WorkflowPath string

	// Per-operation timeouts, in seconds.
	SubmitTimeout   int
	HistoryTimeout  int
	DownloadTimeout int
	HealthTimeout   int

	// Completion watch: overall deadline and idle receive window, in seconds.
	WatchTimeout   int
	ReceiveTimeout int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	GeneratePerMin int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("comfy.url", "COMFY_URL")
	_ = viper.BindEnv("comfy.output_dir", "COMFY_OUTPUT_DIR")
	_ = viper.BindEnv("comfy.workflow_path", "WORKFLOW_PATH")
	_ = viper.BindEnv("comfy.submit_timeout", "COMFY_SUBMIT_TIMEOUT_SECONDS")
	_ = viper.BindEnv("comfy.history_timeout", "COMFY_HISTORY_TIMEOUT_SECONDS")
	_ = viper.BindEnv("comfy.download_timeout", "COMFY_DOWNLOAD_TIMEOUT_SECONDS")
	_ = viper.BindEnv("comfy.health_timeout", "COMFY_HEALTH_TIMEOUT_SECONDS")
	_ = viper.BindEnv("comfy.watch_timeout", "COMFY_WATCH_TIMEOUT_SECONDS")
	_ = viper.BindEnv("comfy.receive_timeout", "COMFY_RECEIVE_TIMEOUT_SECONDS")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.generate_per_min", "GENERATE_RATE_PER_MIN")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("comfy.url", "http://127.0.0.1:8188")
	viper.SetDefault("comfy.output_dir", "./output")
	viper.SetDefault("comfy.workflow_path", "./workflow_api.json")
	viper.SetDefault("comfy.submit_timeout", 30)
	viper.SetDefault("comfy.history_timeout", 30)
	viper.SetDefault("comfy.download_timeout", 60)
	viper.SetDefault("comfy.health_timeout", 5)
	viper.SetDefault("comfy.watch_timeout", 300)
	viper.SetDefault("comfy.receive_timeout", 5)
	viper.SetDefault("redis.addr", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.generate_per_min", 6)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			LogLevel:  viper.GetString("server.log_level"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Comfy: ComfyConfig{
			URL:             strings.TrimRight(viper.GetString("comfy.url"), "/"),
			OutputDir:       viper.GetString("comfy.output_dir"),
			WorkflowPath:    viper.GetString("comfy.workflow_path"),
			SubmitTimeout:   viper.GetInt("comfy.submit_timeout"),
			HistoryTimeout:  viper.GetInt("comfy.history_timeout"),
			DownloadTimeout: viper.GetInt("comfy.download_timeout"),
			HealthTimeout:   viper.GetInt("comfy.health_timeout"),
			WatchTimeout:    viper.GetInt("comfy.watch_timeout"),
			ReceiveTimeout:  viper.GetInt("comfy.receive_timeout"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerMin: viper.GetInt("ratelimit.generate_per_min"),
		},
	}

	return cfg, nil
}
