package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMongo  = "mongo"
	StorageMemory = "memory"

	MailBackendConsole  = "console"
	MailBackendSMTP     = "smtp"
	MailBackendSendgrid = "sendgrid"
)

type (
	ServerConfig struct {
		Host                      string
		Address                   string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	MongoConfig struct {
		URI      string
		Database string
	}

	ContentHostConfig struct {
		Token         string
		Owner         string
		Repo          string
		Branch        string
		PathPrefix    string
		PublicBaseURL string
		APIURL        string
	}

	SyncConfig struct {
		QueueSize int
		Timeout   time.Duration
	}

	MailConfig struct {
		Backend        string
		SMTPHost       string
		SMTPPort       int
		SMTPUsername   string
		SMTPPassword   string
		SendgridAPIKey string
	}

	ReminderConfig struct {
		Enabled bool
		Hour    int
	}

	LogConfig struct {
		Level  string
		Format string
		File   string
	}

	Config struct {
		Env      string
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string

		AppName                   string
		SecretKey                 string
		DefaultFromEmail          mail.Address
		FrontendBaseURL           string
		PasswordResetTimeoutDelta time.Duration
		RollbarToken              string
		Storage                   string

		Server      ServerConfig
		Database    DatabaseConfig
		Mongo       MongoConfig
		ContentHost ContentHostConfig
		Sync        SyncConfig
		Mail        MailConfig
		Reminder    ReminderConfig
		Log         LogConfig
	}
)

// Address returns the "host:port" the database listens on.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// BaseURL is where published pages are served from.
func (c ContentHostConfig) BaseURL() string {
	if c.PublicBaseURL != "" {
		return strings.TrimSuffix(c.PublicBaseURL, "/")
	}
	return fmt.Sprintf("https://%s.github.io/%s", c.Owner, c.Repo)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("BUILD", "dev")
	v.SetDefault("DEBUG", true)
	v.SetDefault("APP_NAME", "Opsboard")
	v.SetDefault("SECRET_KEY", "x4k!t9v@2q#mz8&wp%r7c0j$fh6^ld3*bn1+gs5=ye)ua(")
	v.SetDefault("DEFAULT_FROM_EMAIL", "Opsboard <noreply@localhost>")
	v.SetDefault("FRONTEND_BASE_URL", "http://localhost:3000")
	v.SetDefault("JWT_EXPIRATION_DELTA", 7*24*time.Hour)
	v.SetDefault("JWT_REFRESH_EXPIRATION_DELTA", 4*time.Hour)
	v.SetDefault("PASSWORD_RESET_TIMEOUT_DELTA", 3*24*time.Hour)
	v.SetDefault("STORAGE", StorageMongo)

	v.SetDefault("SERVER_HOST", "localhost")
	v.SetDefault("SERVER_ADDRESS", ":8000")
	v.SetDefault("SERVER_DEBUG_HOST", ":4000")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 5*time.Second)

	v.SetDefault("DATABASE_ENGINE", "postgres")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", "5432")
	v.SetDefault("DATABASE_NAME", "opsboard")
	v.SetDefault("DATABASE_USER", "opsboard")
	v.SetDefault("DATABASE_PASSWORD", "opsboard")
	v.SetDefault("DATABASE_ADMIN_USER", "postgres")
	v.SetDefault("DATABASE_ADMIN_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DISABLE_TLS", true)

	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "opsboard")

	v.SetDefault("CONTENT_HOST_BRANCH", "main")
	v.SetDefault("CONTENT_HOST_API_URL", "")

	v.SetDefault("SYNC_QUEUE_SIZE", 256)
	v.SetDefault("SYNC_TIMEOUT", 30*time.Second)

	v.SetDefault("MAIL_BACKEND", "")
	v.SetDefault("SMTP_PORT", 587)

	v.SetDefault("REMINDER_ENABLED", false)
	v.SetDefault("REMINDER_HOUR", 8)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// NewConfig loads the configuration for the current ENV (DEV by default).
// config/.env.<env> is loaded first when present; variables prefixed with "<ENV>_" override it.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)
	setDefaults(v)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("TEST_MODE", true)
	}
	v.SetEnvPrefix(env)

	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:                       env,
		Build:                     v.GetString("BUILD"),
		Debug:                     v.GetBool("DEBUG"),
		TestMode:                  v.GetBool("TEST_MODE"),
		WorkDir:                   wd,
		AppName:                   v.GetString("APP_NAME"),
		SecretKey:                 v.GetString("SECRET_KEY"),
		FrontendBaseURL:           strings.TrimSuffix(v.GetString("FRONTEND_BASE_URL"), "/"),
		PasswordResetTimeoutDelta: v.GetDuration("PASSWORD_RESET_TIMEOUT_DELTA"),
		RollbarToken:              v.GetString("ROLLBAR_TOKEN"),
		Storage:                   strings.ToLower(v.GetString("STORAGE")),
		Server: ServerConfig{
			Host:                      v.GetString("SERVER_HOST"),
			Address:                   v.GetString("SERVER_ADDRESS"),
			DebugHost:                 v.GetString("SERVER_DEBUG_HOST"),
			ShutdownTimeout:           v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
			JWTExpirationDelta:        v.GetDuration("JWT_EXPIRATION_DELTA"),
			JWTRefreshExpirationDelta: v.GetDuration("JWT_REFRESH_EXPIRATION_DELTA"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("DATABASE_ENGINE"),
			Host:          v.GetString("DATABASE_HOST"),
			Port:          v.GetString("DATABASE_PORT"),
			Name:          v.GetString("DATABASE_NAME"),
			User:          v.GetString("DATABASE_USER"),
			Password:      v.GetString("DATABASE_PASSWORD"),
			AdminUser:     v.GetString("DATABASE_ADMIN_USER"),
			AdminPassword: v.GetString("DATABASE_ADMIN_PASSWORD"),
			DisableTLS:    v.GetBool("DATABASE_DISABLE_TLS"),
		},
		Mongo: MongoConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
		},
		ContentHost: ContentHostConfig{
			Token:         v.GetString("CONTENT_HOST_TOKEN"),
			Owner:         v.GetString("CONTENT_HOST_OWNER"),
			Repo:          v.GetString("CONTENT_HOST_REPO"),
			Branch:        v.GetString("CONTENT_HOST_BRANCH"),
			PathPrefix:    strings.Trim(v.GetString("CONTENT_HOST_PATH_PREFIX"), "/"),
			PublicBaseURL: v.GetString("CONTENT_HOST_PUBLIC_BASE_URL"),
			APIURL:        v.GetString("CONTENT_HOST_API_URL"),
		},
		Sync: SyncConfig{
			QueueSize: v.GetInt("SYNC_QUEUE_SIZE"),
			Timeout:   v.GetDuration("SYNC_TIMEOUT"),
		},
		Mail: MailConfig{
			Backend:        strings.ToLower(v.GetString("MAIL_BACKEND")),
			SMTPHost:       v.GetString("SMTP_HOST"),
			SMTPPort:       v.GetInt("SMTP_PORT"),
			SMTPUsername:   v.GetString("SMTP_USERNAME"),
			SMTPPassword:   v.GetString("SMTP_PASSWORD"),
			SendgridAPIKey: v.GetString("SENDGRID_API_KEY"),
		},
		Reminder: ReminderConfig{
			Enabled: v.GetBool("REMINDER_ENABLED"),
			Hour:    v.GetInt("REMINDER_HOUR"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
			File:   v.GetString("LOG_FILE"),
		},
	}

	from, err := mail.ParseAddress(v.GetString("DEFAULT_FROM_EMAIL"))
	if err != nil {
		log.Fatalf("config.mail.ParseAddress(DEFAULT_FROM_EMAIL): %v", err)
	}
	conf.DefaultFromEmail = *from

	if conf.Mail.Backend == "" {
		if conf.Debug {
			conf.Mail.Backend = MailBackendConsole
		} else {
			conf.Mail.Backend = MailBackendSMTP
		}
	}
	if conf.Sync.QueueSize <= 0 {
		conf.Sync.QueueSize = 256
	}
	if conf.Reminder.Hour < 0 || conf.Reminder.Hour > 23 {
		conf.Reminder.Hour = 8
	}
	return conf
}

// NewTestConfig returns a Config suitable for tests: no .env, in-memory storage, console emails.
func NewTestConfig() *Config {
	wd := Getwd()
	from := mail.Address{Name: "Opsboard", Address: "noreply@localhost"}
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		Debug:                     false,
		TestMode:                  true,
		WorkDir:                   wd,
		AppName:                   "Opsboard",
		SecretKey:                 "test-secret-key",
		DefaultFromEmail:          from,
		FrontendBaseURL:           "http://localhost:3000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		Storage:                   StorageMemory,
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		ContentHost: ContentHostConfig{Branch: "main"},
		Sync:        SyncConfig{QueueSize: 16, Timeout: 5 * time.Second},
		Mail:        MailConfig{Backend: MailBackendConsole},
		Reminder:    ReminderConfig{Hour: 8},
		Log:         LogConfig{Level: "error", Format: "text"},
	}
}
