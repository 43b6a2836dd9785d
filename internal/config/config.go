package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"ideaforge/internal/prediction"
	"ideaforge/internal/replicate"
)

const (
	configName = "config"
	configType = "yaml"
	appName    = "ideaforge"
	envPrefix  = "IDEAFORGE"
)

// Config keys.
const (
	KeyToken         = "replicate_api_token"
	KeyBaseURL       = "replicate.base_url"
	KeyModel         = "replicate.model"
	KeyPort          = "server.port"
	KeyOrigins       = "server.allowed_origins"
	KeyTheme         = "theme"
	KeyHistoryDSN    = "history.dsn"
	KeyCacheSize     = "cache.size"
	KeyCacheTTL      = "cache.ttl"
	KeyPollInterval  = "poll.interval"
	KeyMaxAttempts   = "poll.max_attempts"
	KeyCreateTimeout = "poll.create_timeout"
	KeyStatusTimeout = "poll.status_timeout"
)

// Environment variables read outside the IDEAFORGE_ prefix.
const (
	EnvToken           = "REPLICATE_API_TOKEN"
	EnvDeprecatedToken = "REPLICATE_API_KEY"
	EnvLegacyClient    = "NEXT_PUBLIC_REPLICATE_API_TOKEN"
)

var deprecationOnce sync.Once

// Settings is the resolved configuration.
type Settings struct {
	Replicate struct {
		BaseURL string
		Model   string
	}
	Server struct {
		Port int
		// AllowedOrigins are extra browser origins allowed to call the API.
		// The server's own origin is always allowed.
		AllowedOrigins []string
	}
	Theme   string
	History struct {
		DSN string
	}
	Cache struct {
		Size int
		TTL  time.Duration
	}
	Poll struct {
		Interval      time.Duration
		MaxAttempts   int
		CreateTimeout time.Duration
		StatusTimeout time.Duration
	}
}

// SetDefaults registers defaults and environment bindings. InitConfig calls
// it; tests call it directly after viper.Reset.
func SetDefaults() {
	viper.SetDefault(KeyBaseURL, replicate.DefaultBaseURL)
	viper.SetDefault(KeyModel, replicate.DefaultModel)
	viper.SetDefault(KeyPort, 3000)
	viper.SetDefault(KeyOrigins, []string{})
	viper.SetDefault(KeyTheme, "midnight")
	viper.SetDefault(KeyHistoryDSN, "")
	viper.SetDefault(KeyCacheSize, 128)
	viper.SetDefault(KeyCacheTTL, time.Hour)
	viper.SetDefault(KeyPollInterval, prediction.DefaultPollInterval)
	viper.SetDefault(KeyMaxAttempts, prediction.DefaultMaxAttempts)
	viper.SetDefault(KeyCreateTimeout, prediction.DefaultCreateTimeout)
	viper.SetDefault(KeyStatusTimeout, prediction.DefaultStatusTimeout)

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	// The canonical variable wins over the prefixed one.
	_ = viper.BindEnv(KeyToken, EnvToken, envPrefix+"_"+strings.ToUpper(KeyToken))
}

// InitConfig loads .env, then reads cfgFile or ~/.config/ideaforge/config.yaml,
// creating the latter when it does not exist.
func InitConfig(cfgFile string) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("could not load .env: %w", err)
	}
	SetDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("could not get user home directory: %w", err)
	}
	configPath := filepath.Join(home, ".config", appName)
	viper.AddConfigPath(configPath)
	viper.SetConfigName(configName)
	viper.SetConfigType(configType)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
		if err := os.MkdirAll(configPath, os.ModePerm); err != nil {
			return fmt.Errorf("could not create config directory: %w", err)
		}
		if err := viper.SafeWriteConfig(); err != nil {
			return fmt.Errorf("could not create config file: %w", err)
		}
	}
	return nil
}

// Load returns the current settings.
func Load() Settings {
	var s Settings
	s.Replicate.BaseURL = viper.GetString(KeyBaseURL)
	s.Replicate.Model = viper.GetString(KeyModel)
	s.Server.Port = viper.GetInt(KeyPort)
	s.Server.AllowedOrigins = splitList(viper.GetStringSlice(KeyOrigins))
	s.Theme = viper.GetString(KeyTheme)
	s.History.DSN = viper.GetString(KeyHistoryDSN)
	s.Cache.Size = viper.GetInt(KeyCacheSize)
	s.Cache.TTL = viper.GetDuration(KeyCacheTTL)
	s.Poll.Interval = viper.GetDuration(KeyPollInterval)
	s.Poll.MaxAttempts = viper.GetInt(KeyMaxAttempts)
	s.Poll.CreateTimeout = viper.GetDuration(KeyCreateTimeout)
	s.Poll.StatusTimeout = viper.GetDuration(KeyStatusTimeout)
	return s
}

// splitList accepts both YAML lists and comma or space separated env values.
func splitList(in []string) []string {
	var out []string
	for _, v := range in {
		out = append(out, strings.FieldsFunc(v, func(r rune) bool { return r == ',' || r == ' ' })...)
	}
	return out
}

// Apply copies the poll settings onto c, keeping c's values for zero fields.
func (s Settings) Apply(c *prediction.Client) {
	if s.Poll.Interval > 0 {
		c.PollInterval = s.Poll.Interval
	}
	if s.Poll.MaxAttempts > 0 {
		c.MaxAttempts = s.Poll.MaxAttempts
	}
	if s.Poll.CreateTimeout > 0 {
		c.CreateTimeout = s.Poll.CreateTimeout
	}
	if s.Poll.StatusTimeout > 0 {
		c.StatusTimeout = s.Poll.StatusTimeout
	}
}

// Token returns the Replicate API token. REPLICATE_API_KEY is still honoured
// when nothing else is set, with a one-time warning.
func Token() string {
	if tok := strings.TrimSpace(viper.GetString(KeyToken)); tok != "" {
		return tok
	}
	if tok := strings.TrimSpace(os.Getenv(EnvDeprecatedToken)); tok != "" {
		deprecationOnce.Do(func() {
			log.Printf("config: %s is deprecated, set %s instead", EnvDeprecatedToken, EnvToken)
		})
		return tok
	}
	return ""
}

// LegacyClientToken reports whether the browser-visible token variable is
// set. It is never used.
func LegacyClientToken() bool {
	return os.Getenv(EnvLegacyClient) != ""
}

// SaveToken saves the Replicate token to the config file.
func SaveToken(token string) error {
	viper.Set(KeyToken, token)
	return viper.WriteConfig()
}

// ConfigFile is the path of the config file in use.
func ConfigFile() string {
	return viper.ConfigFileUsed()
}
