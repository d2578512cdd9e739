package config

import (
	"fmt"
	"net/url"
	"time"
)

const (
	DefaultIntervalS        = 600
	DefaultFailureThreshold = 15
	DefaultResultsBuffer    = 16
)

type Config struct {
	Source              SourceConfig        `yaml:"source"`
	Rod                 RodConfig           `yaml:"rod"`
	Backoff             BackoffConfig       `yaml:"backoff"`
	RobotsCacheTTLHours int                 `yaml:"robots_cache_ttl_hours"`
	HTTP                HttpConfig          `yaml:"http"`
	RateLimit           RateLimitConfig     `yaml:"rate_limit"`
	Normalize           NormalizeConfig     `yaml:"normalize"`
	Storage             StorageConfig       `yaml:"storage"`
	Scheduler           SchedulerConfig     `yaml:"scheduler"`
	Notify              NotifyConfig        `yaml:"notify"`
	Status              StatusConfig        `yaml:"status"`
	Observability       ObservabilityConfig `yaml:"observability"`
}

type SourceConfig struct {
	URL         string `yaml:"url"`
	Query       string `yaml:"query"`
	Layout      string `yaml:"layout"`
	LayoutsFile string `yaml:"layouts_file"`
	AllowEmpty  bool   `yaml:"allow_empty"`
}

type RodConfig struct {
	Enabled          bool   `yaml:"enabled"`
	ChromePath       string `yaml:"chrome_path"`
	PageTimeoutS     int    `yaml:"page_timeout_s"`
	WaitLoadTimeoutS int    `yaml:"wait_load_timeout_s"`
}

type BackoffConfig struct {
	MinMS     int `yaml:"min_ms"`
	MaxMS     int `yaml:"max_ms"`
	JitterPct int `yaml:"jitter_pct"`
}

type HttpConfig struct {
	UserAgent                 string `yaml:"user_agent"`
	ConnectTimeoutMS          int    `yaml:"connect_timeout_ms"`
	TotalTimeoutMS            int    `yaml:"total_timeout_ms"`
	MaxRetries                int    `yaml:"max_retries"`
	MaxIdleConnections        int    `yaml:"max_idle_connections"`
	MaxIdleConnectionsPerHost int    `yaml:"max_idle_connections_per_host"`
	IdleConnectionTimeoutS    int    `yaml:"idle_connection_timeout_s"`
	AcceptLanguage            string `yaml:"accept_language"`
	RespectRobots             bool   `yaml:"respect_robots"`
}

type RateLimitConfig struct {
	RPM   int `yaml:"rpm"`
	Burst int `yaml:"burst"`
}

// NormalizeConfig — флаги нормализации текста. Не заданный в YAML флаг
// (nil) считается включённым.
type NormalizeConfig struct {
	TrimNBSP        *bool `yaml:"trim_nbsp"`
	CollapseSpaces  *bool `yaml:"collapse_spaces"`
	MaxPreviewChars int   `yaml:"max_preview_chars"`
}

func (n NormalizeConfig) TrimNBSPEnabled() bool {
	return n.TrimNBSP == nil || *n.TrimNBSP
}

func (n NormalizeConfig) CollapseSpacesEnabled() bool {
	return n.CollapseSpaces == nil || *n.CollapseSpaces
}

type StorageConfig struct {
	Driver           string `yaml:"driver"`
	Path             string `yaml:"path"`
	DSN              string `yaml:"dsn"`
	Table            string `yaml:"table"`
	CommandTimeoutMS int    `yaml:"command_timeout_ms"`
}

type SchedulerConfig struct {
	IntervalS        int `yaml:"interval_s"`
	FailureThreshold int `yaml:"failure_threshold"`
	ResultsBuffer    int `yaml:"results_buffer"`
}

type NotifyConfig struct {
	Subject      string         `yaml:"subject"`
	ErrorSubject string         `yaml:"error_subject"`
	TemplateFile string         `yaml:"template_file"`
	DryRun       bool           `yaml:"dry_run"`
	SMTP         SMTPConfig     `yaml:"smtp"`
	Telegram     TelegramConfig `yaml:"telegram"`
}

type SMTPConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	User     string   `yaml:"user"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	// TimeoutS ограничивает соединение и весь диалог с сервером.
	TimeoutS int `yaml:"timeout_s"`
}

func (s SMTPConfig) GetTimeout() time.Duration {
	return time.Duration(s.TimeoutS) * time.Second
}

type TelegramConfig struct {
	Token  string   `yaml:"token"`
	Chats  []string `yaml:"chats"`
	APIURL string   `yaml:"api_url"`
}

type StatusConfig struct {
	Addr string `yaml:"addr"`
}

type ObservabilityConfig struct {
	LogPath  string `yaml:"log_path"`
	LogLevel string `yaml:"log_level"`
	Console  bool   `yaml:"console"`
}

// ApplyDefaults заполняет незаданные поля значениями по умолчанию
func (c *Config) ApplyDefaults() {
	if c.Source.Layout == "" {
		c.Source.Layout = "card"
	}
	if c.HTTP.UserAgent == "" {
		c.HTTP.UserAgent = "flatwatch/1.0 (+https://github.com/flatwatch)"
	}
	if c.HTTP.ConnectTimeoutMS == 0 {
		c.HTTP.ConnectTimeoutMS = 10000
	}
	if c.HTTP.TotalTimeoutMS == 0 {
		c.HTTP.TotalTimeoutMS = 30000
	}
	if c.HTTP.MaxIdleConnections == 0 {
		c.HTTP.MaxIdleConnections = 10
	}
	if c.HTTP.MaxIdleConnectionsPerHost == 0 {
		c.HTTP.MaxIdleConnectionsPerHost = 2
	}
	if c.HTTP.IdleConnectionTimeoutS == 0 {
		c.HTTP.IdleConnectionTimeoutS = 90
	}
	if c.HTTP.AcceptLanguage == "" {
		c.HTTP.AcceptLanguage = "de-DE,de;q=0.9,en;q=0.5"
	}
	if c.RateLimit.RPM == 0 {
		c.RateLimit.RPM = 30
	}
	if c.RateLimit.Burst == 0 {
		c.RateLimit.Burst = 1
	}
	if c.Backoff.MinMS == 0 {
		c.Backoff.MinMS = 500
	}
	if c.Backoff.MaxMS == 0 {
		c.Backoff.MaxMS = 8000
	}
	if c.RobotsCacheTTLHours == 0 {
		c.RobotsCacheTTLHours = 12
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Table == "" {
		c.Storage.Table = "known_listings"
	}
	if c.Storage.CommandTimeoutMS == 0 {
		c.Storage.CommandTimeoutMS = 5000
	}
	if c.Scheduler.IntervalS == 0 {
		c.Scheduler.IntervalS = DefaultIntervalS
	}
	if c.Scheduler.FailureThreshold == 0 {
		c.Scheduler.FailureThreshold = DefaultFailureThreshold
	}
	if c.Scheduler.ResultsBuffer == 0 {
		c.Scheduler.ResultsBuffer = DefaultResultsBuffer
	}
	if c.Notify.Subject == "" {
		c.Notify.Subject = "Neue Wohnung gefunden"
	}
	if c.Notify.ErrorSubject == "" {
		c.Notify.ErrorSubject = "Anwendungsfehler"
	}
	if c.Notify.SMTP.Port == 0 {
		c.Notify.SMTP.Port = 587
	}
	if c.Notify.SMTP.TimeoutS == 0 {
		c.Notify.SMTP.TimeoutS = 30
	}
	if c.Notify.Telegram.APIURL == "" {
		c.Notify.Telegram.APIURL = "https://api.telegram.org"
	}
	if c.Observability.LogLevel == "" {
		c.Observability.LogLevel = "info"
	}
}

// Validation
func (c *Config) Validate() error {
	if c.Source.URL == "" {
		return fmt.Errorf("source.url is required")
	}
	if u, err := url.Parse(c.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.url must be an absolute URL")
	}
	if c.Source.Layout == "" {
		return fmt.Errorf("source.layout is required")
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.ConnectTimeoutMS <= 0 {
		return fmt.Errorf("http.connect_timeout_ms must be > 0")
	}
	if c.HTTP.TotalTimeoutMS <= 0 {
		return fmt.Errorf("http.total_timeout_ms must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.RateLimit.RPM <= 0 {
		return fmt.Errorf("rate_limit.rpm must be > 0")
	}
	if c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit.burst must be > 0")
	}
	switch c.Storage.Driver {
	case "file":
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required when storage.driver is 'file'")
		}
	case "memory":
	case "mssql", "postgres", "mysql":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required")
		}
		if c.Storage.CommandTimeoutMS <= 0 {
			return fmt.Errorf("storage.command_timeout_ms must be > 0")
		}
	default:
		return fmt.Errorf("storage.driver must be 'file', 'memory', 'mssql', 'postgres' or 'mysql'")
	}
	if c.Scheduler.IntervalS <= 0 {
		return fmt.Errorf("scheduler.interval_s must be > 0")
	}
	if c.Scheduler.FailureThreshold <= 0 {
		return fmt.Errorf("scheduler.failure_threshold must be > 0")
	}
	if c.Scheduler.ResultsBuffer < 0 {
		return fmt.Errorf("scheduler.results_buffer must be >= 0")
	}
	if !c.Notify.DryRun && c.Notify.SMTP.Host == "" && c.Notify.Telegram.Token == "" {
		return fmt.Errorf("notify: configure smtp or telegram, or enable notify.dry_run")
	}
	if c.Notify.SMTP.Host != "" {
		if c.Notify.SMTP.From == "" {
			return fmt.Errorf("notify.smtp.from is required")
		}
		if len(c.Notify.SMTP.To) == 0 {
			return fmt.Errorf("notify.smtp.to is required")
		}
	}
	if c.Notify.Telegram.Token != "" && len(c.Notify.Telegram.Chats) == 0 {
		return fmt.Errorf("notify.telegram.chats is required when a token is set")
	}
	if c.RobotsCacheTTLHours <= 0 {
		return fmt.Errorf("robots_cache_ttl_hours must be > 0")
	}
	if c.Backoff.MinMS <= 0 {
		return fmt.Errorf("backoff.min_ms must be > 0")
	}
	if c.Backoff.MaxMS <= 0 {
		return fmt.Errorf("backoff.max_ms must be > 0")
	}
	if c.Backoff.MinMS > c.Backoff.MaxMS {
		return fmt.Errorf("backoff.min_ms must be <= backoff.max_ms")
	}
	if c.Backoff.JitterPct < 0 || c.Backoff.JitterPct > 100 {
		return fmt.Errorf("backoff.jitter_pct must be between 0 and 100")
	}
	if c.Rod.Enabled {
		if c.Rod.PageTimeoutS <= 0 {
			return fmt.Errorf("rod.page_timeout_s must be > 0")
		}
		if c.Rod.WaitLoadTimeoutS <= 0 {
			return fmt.Errorf("rod.wait_load_timeout_s must be > 0")
		}
	}
	return nil
}

// Getters
func (c *Config) GetConnectTimeout() time.Duration {
	return time.Duration(c.HTTP.ConnectTimeoutMS) * time.Millisecond
}

func (c *Config) GetTotalTimeout() time.Duration {
	return time.Duration(c.HTTP.TotalTimeoutMS) * time.Millisecond
}

func (c *Config) GetIdleConnectionTimeout() time.Duration {
	return time.Duration(c.HTTP.IdleConnectionTimeoutS) * time.Second
}

func (c *Config) GetBackoffMin() time.Duration {
	return time.Duration(c.Backoff.MinMS) * time.Millisecond
}

func (c *Config) GetBackoffMax() time.Duration {
	return time.Duration(c.Backoff.MaxMS) * time.Millisecond
}

func (c *Config) GetCommandTimeout() time.Duration {
	return time.Duration(c.Storage.CommandTimeoutMS) * time.Millisecond
}

func (c *Config) GetSchedulerInterval() time.Duration {
	return time.Duration(c.Scheduler.IntervalS) * time.Second
}

func (c *Config) GetRobotsCacheTTL() time.Duration {
	return time.Duration(c.RobotsCacheTTLHours) * time.Hour
}

func (c *Config) GetRodPageTimeout() time.Duration {
	return time.Duration(c.Rod.PageTimeoutS) * time.Second
}

func (c *Config) GetRodWaitLoadTimeout() time.Duration {
	return time.Duration(c.Rod.WaitLoadTimeoutS) * time.Second
}
