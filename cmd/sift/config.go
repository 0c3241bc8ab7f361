package main

import "time"

const (
	defaultBindHost     = "127.0.0.1"
	defaultAPIPort      = 3000
	defaultQueryTimeout = 30 * time.Second
	defaultRawDir       = "data/raw_logs"
	defaultSMTPPort     = 587
	defaultLogRetention = 0 // days, 0 = disabled
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DBPath        string        `mapstructure:"db-path"`
	AlertDBPath   string        `mapstructure:"alert-db-path"`
	HistoryDBPath string        `mapstructure:"history-db-path"`
	RawDir        string        `mapstructure:"raw-dir"`
	QueryTimeout  time.Duration `mapstructure:"query-timeout"`
	LogRetention  int           `mapstructure:"log-retention"`

	APIEnabled bool   `mapstructure:"api-enabled"`
	APIPort    int    `mapstructure:"api-port"`
	APIAddr    string `mapstructure:"api-addr"`

	ErrorRateThreshold    float64       `mapstructure:"error-rate-threshold"`
	CriticalRateThreshold float64       `mapstructure:"critical-rate-threshold"`
	FrequentCount         int           `mapstructure:"frequent-count"`
	BurstCount            int           `mapstructure:"burst-count"`
	BurstWindow           time.Duration `mapstructure:"burst-window"`
	AlertCooldown         time.Duration `mapstructure:"alert-cooldown"`
	TopErrorsLimit        int           `mapstructure:"top-errors-limit"`

	SMTPEnabled    bool     `mapstructure:"smtp-enabled"`
	SMTPHost       string   `mapstructure:"smtp-host"`
	SMTPPort       int      `mapstructure:"smtp-port"`
	SMTPUsername   string   `mapstructure:"smtp-username"`
	SMTPPassword   string   `mapstructure:"smtp-password"`
	SMTPFrom       string   `mapstructure:"smtp-from"`
	SMTPRecipients []string `mapstructure:"smtp-recipients"`

	NATSEnabled bool   `mapstructure:"nats-enabled"`
	NATSURL     string `mapstructure:"nats-url"`

	ConfigPath string `mapstructure:"-"` // not from config file
}
