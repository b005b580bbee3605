package config

import (
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"

	"github.com/azariacindy/MyStudyMate/internal/errs"
	"github.com/azariacindy/MyStudyMate/internal/reminder"
)

// Config keeps runtime settings for the reminder service.
type Config struct {
	Env         string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	TimeZone    string `envconfig:"TIMEZONE" default:"Asia/Jakarta"`
	DatabaseURL string `envconfig:"DATABASE_URL" default:"studymate.db"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	Reminder ReminderConfig
	Redis    RedisConfig
	FCM      FCMConfig
	SNS      SNSConfig
	Telegram TelegramConfig
	Breaker  BreakerConfig
}

type ReminderConfig struct {
	StagePlan          string        `envconfig:"REMINDER_STAGE_PLAN" default:"full"`
	FireTime           string        `envconfig:"REMINDER_FIRE_TIME" default:"07:00"`
	OverdueFireTime    string        `envconfig:"REMINDER_OVERDUE_FIRE_TIME"`
	TickInterval       time.Duration `envconfig:"REMINDER_TICK_INTERVAL" default:"1m"`
	Workers            int           `envconfig:"REMINDER_WORKERS" default:"8"`
	SendTimeout        time.Duration `envconfig:"REMINDER_SEND_TIMEOUT" default:"10s"`
	LockTTL            time.Duration `envconfig:"REMINDER_LOCK_TTL" default:"2m"`
	CycleTimeout       time.Duration `envconfig:"REMINDER_CYCLE_TIMEOUT"` // defaults to the tick interval
	DigestTime         string        `envconfig:"REMINDER_DIGEST_TIME"`   // empty disables the daily bot digest
	DefaultLeadMinutes int           `envconfig:"REMINDER_DEFAULT_LEAD_MINUTES" default:"30"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type FCMConfig struct {
	ProjectID       string `envconfig:"FCM_PROJECT_ID"`
	CredentialsFile string `envconfig:"FCM_CREDENTIALS_FILE"`
}

type SNSConfig struct {
	Enabled bool   `envconfig:"SNS_ENABLED" default:"false"`
	Region  string `envconfig:"SNS_REGION" default:"ap-southeast-1"`
}

type TelegramConfig struct {
	Token string `envconfig:"TELEGRAM_TOKEN"`
}

type BreakerConfig struct {
	MaxFailures     int           `envconfig:"BREAKER_MAX_FAILURES" default:"5"`
	RecoveryTimeout time.Duration `envconfig:"BREAKER_RECOVERY_TIMEOUT" default:"30s"`
}

// Load reads configuration from environment variables and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, errs.Wrap(err, "process env config")
	}
	if cfg.Reminder.OverdueFireTime == "" {
		cfg.Reminder.OverdueFireTime = cfg.Reminder.FireTime
	}
	if cfg.Reminder.CycleTimeout == 0 {
		cfg.Reminder.CycleTimeout = cfg.Reminder.TickInterval
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.StagePlan(); err != nil {
		return err
	}
	if c.Reminder.TickInterval <= 0 {
		return errs.New("REMINDER_TICK_INTERVAL must be positive")
	}
	if c.Reminder.Workers <= 0 {
		return errs.New("REMINDER_WORKERS must be positive")
	}
	if c.Reminder.SendTimeout <= 0 {
		return errs.New("REMINDER_SEND_TIMEOUT must be positive")
	}
	if c.Reminder.CycleTimeout < 0 {
		return errs.New("REMINDER_CYCLE_TIMEOUT must not be negative")
	}
	if c.Reminder.DigestTime != "" {
		if _, err := reminder.ParseTimeOfDay(c.Reminder.DigestTime); err != nil {
			return errs.Wrap(err, "REMINDER_DIGEST_TIME")
		}
	}
	if c.Reminder.DefaultLeadMinutes < reminder.MinLeadMinutes || c.Reminder.DefaultLeadMinutes > reminder.MaxLeadMinutes {
		return errs.Newf("REMINDER_DEFAULT_LEAD_MINUTES must be within %d..%d", reminder.MinLeadMinutes, reminder.MaxLeadMinutes)
	}
	return nil
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, errs.Wrapf(err, "invalid TIMEZONE %q", c.TimeZone)
	}
	return loc, nil
}

// StagePlan builds the assignment stage plan from the reminder settings.
func (c Config) StagePlan() (reminder.Plan, error) {
	fire, err := reminder.ParseTimeOfDay(c.Reminder.FireTime)
	if err != nil {
		return reminder.Plan{}, errs.Wrap(err, "REMINDER_FIRE_TIME")
	}
	overdueRaw := c.Reminder.OverdueFireTime
	if overdueRaw == "" {
		overdueRaw = c.Reminder.FireTime
	}
	overdue, err := reminder.ParseTimeOfDay(overdueRaw)
	if err != nil {
		return reminder.Plan{}, errs.Wrap(err, "REMINDER_OVERDUE_FIRE_TIME")
	}
	plan, err := reminder.PlanByName(c.Reminder.StagePlan, fire, overdue)
	if err != nil {
		return reminder.Plan{}, errs.Wrap(err, "REMINDER_STAGE_PLAN")
	}
	return plan, nil
}
