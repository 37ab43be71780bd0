package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the orchestrator and API processes.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	ARI      ARIConfig
	Dispatch DispatchConfig
	Speech   SpeechConfig
	Audio    AudioConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit. Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	AccessTokenTTL time.Duration
}

// ARIConfig points at the Asterisk REST Interface used for call control.
type ARIConfig struct {
	URL      string
	Username string
	Password string
	AppName  string

	// Endpoint is the PJSIP endpoint template used to reach the trunk,
	// e.g. "PJSIP/%s@trunk". %s receives the destination number.
	Endpoint string
}

// DispatchConfig controls the queue scheduler.
type DispatchConfig struct {
	// MaxConcurrentCalls is the global concurrency ceiling.
	MaxConcurrentCalls int
	// LaunchSpacing is the minimum delay between successive call launches.
	LaunchSpacing time.Duration
	// PollInterval is the control-loop sleep between iterations.
	PollInterval time.Duration
	// StuckCallTimeout is how long an item may sit in "calling" with no live
	// session before it is reclaimed.
	StuckCallTimeout time.Duration
}

// SpeechConfig points at the transcription and classification collaborators.
type SpeechConfig struct {
	TranscriberURL  string
	ClassifierURL   string
	ClassifierModel string
	Language        string
	// RequestTimeout bounds each collaborator call; on expiry the session
	// degrades to an empty transcript / unsure classification.
	RequestTimeout time.Duration
}

// AudioConfig holds the paths used for prompt playback and artifact assembly.
type AudioConfig struct {
	PromptDir    string
	RecordingDir string
	ArtifactDir  string
	ScenarioDir  string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.ARI.URL = strings.TrimSpace(os.Getenv("ARI_URL"))
	c.ARI.Username = strings.TrimSpace(os.Getenv("ARI_USERNAME"))
	c.ARI.Password = os.Getenv("ARI_PASSWORD")
	c.ARI.AppName = strings.TrimSpace(os.Getenv("ARI_APP"))
	c.ARI.Endpoint = strings.TrimSpace(os.Getenv("ARI_ENDPOINT"))

	c.Dispatch.MaxConcurrentCalls = optInt("MAX_CONCURRENT_CALLS", 0)
	c.Dispatch.LaunchSpacing = optDuration("LAUNCH_SPACING")
	c.Dispatch.PollInterval = optDuration("QUEUE_POLL_INTERVAL")
	c.Dispatch.StuckCallTimeout = optDuration("STUCK_CALL_TIMEOUT")

	c.Speech.TranscriberURL = strings.TrimSpace(os.Getenv("TRANSCRIBER_URL"))
	c.Speech.ClassifierURL = strings.TrimSpace(os.Getenv("CLASSIFIER_URL"))
	c.Speech.ClassifierModel = strings.TrimSpace(os.Getenv("CLASSIFIER_MODEL"))
	c.Speech.Language = strings.TrimSpace(os.Getenv("SPEECH_LANGUAGE"))
	c.Speech.RequestTimeout = optDuration("SPEECH_REQUEST_TIMEOUT")

	c.Audio.PromptDir = strings.TrimSpace(os.Getenv("PROMPT_DIR"))
	c.Audio.RecordingDir = strings.TrimSpace(os.Getenv("RECORDING_DIR"))
	c.Audio.ArtifactDir = strings.TrimSpace(os.Getenv("ARTIFACT_DIR"))
	c.Audio.ScenarioDir = strings.TrimSpace(os.Getenv("SCENARIO_DIR"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	c.applyDefaults()
	return c, nil
}

func (c Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.SSLMode == "" && c.IsProduction() {
		errs = append(errs, errors.New("DB_SSLMODE is required in production"))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}

	if c.ARI.URL == "" {
		errs = append(errs, errors.New("ARI_URL is required"))
	}
	if c.ARI.Username == "" {
		errs = append(errs, errors.New("ARI_USERNAME is required"))
	}

	if c.Dispatch.MaxConcurrentCalls < 0 {
		errs = append(errs, fmt.Errorf("MAX_CONCURRENT_CALLS must be >= 0, got %d", c.Dispatch.MaxConcurrentCalls))
	}

	return joinErrors(errs)
}

// applyDefaults fills optional values after validation so that zero means
// "use default", never "misconfigured".
func (c *Config) applyDefaults() {
	if c.DB.SSLMode == "" {
		c.DB.SSLMode = "disable"
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 12 * time.Hour
	}
	if c.ARI.AppName == "" {
		c.ARI.AppName = "callwave"
	}
	if c.ARI.Endpoint == "" {
		c.ARI.Endpoint = "PJSIP/%s@trunk"
	}
	if c.Dispatch.MaxConcurrentCalls == 0 {
		c.Dispatch.MaxConcurrentCalls = 8
	}
	if c.Dispatch.LaunchSpacing <= 0 {
		c.Dispatch.LaunchSpacing = 2 * time.Second
	}
	if c.Dispatch.PollInterval <= 0 {
		c.Dispatch.PollInterval = 5 * time.Second
	}
	if c.Dispatch.StuckCallTimeout <= 0 {
		c.Dispatch.StuckCallTimeout = 120 * time.Second
	}
	if c.Speech.RequestTimeout <= 0 {
		c.Speech.RequestTimeout = 10 * time.Second
	}
	if c.Speech.Language == "" {
		c.Speech.Language = "fr"
	}
	if c.Audio.PromptDir == "" {
		c.Audio.PromptDir = "/var/lib/asterisk/sounds/callwave"
	}
	if c.Audio.RecordingDir == "" {
		c.Audio.RecordingDir = "/var/spool/asterisk/recording"
	}
	if c.Audio.ArtifactDir == "" {
		c.Audio.ArtifactDir = "artifacts"
	}
	if c.Audio.ScenarioDir == "" {
		c.Audio.ScenarioDir = "scenarios"
	}
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func optDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
