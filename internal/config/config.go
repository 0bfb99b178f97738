package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	PublicURL   string
	StoreDriver string // postgres | memory
	GinMode     string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	JWTSecret        string
	RefreshJWTSecret string
	// Token settings
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	ResetTokenTTL   time.Duration

	CodeMaxAttempts int

	AdminEmail    string
	AdminPassword string

	MailAPIURL string
	MailAPIKey string
	MailFrom   string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"PORT":                     "8080",
	"PUBLIC_URL":               "http://localhost:8080/",
	"STORE_DRIVER":             "postgres",
	"GIN_MODE":                 "release",
	"DB_HOST":                  "localhost",
	"DB_PORT":                  "5432",
	"DB_USER":                  "postgres",
	"DB_PASSWORD":              "postgres",
	"DB_NAME":                  "fiche_db",
	"DB_SSLMODE":               "disable",
	"JWT_SECRET":               "supersecret_change_me",
	"REFRESH_JWT_SECRET":       "",
	"ACCESS_TOKEN_TTL_MINUTES": 15,
	"REFRESH_TOKEN_TTL_DAYS":   30,
	"RESET_TOKEN_TTL_MINUTES":  60,
	"CODE_MAX_ATTEMPTS":        5,
	"ADMIN_EMAIL":              "",
	"ADMIN_PASSWORD":           "",
	"MAIL_API_URL":             "",
	"MAIL_API_KEY":             "",
	"MAIL_FROM":                "Maison des Enfants - ESF <no-reply@localhost>",
	"LOG_LEVEL":                "info",
	"LOG_FORMAT":               "text",
}

// Load reads the environment, optionally overlaid by the file named in
// CONFIG_FILE. Environment variables always win over the file.
func Load() (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Port:        v.GetString("PORT"),
		PublicURL:   v.GetString("PUBLIC_URL"),
		StoreDriver: strings.ToLower(v.GetString("STORE_DRIVER")),
		GinMode:     v.GetString("GIN_MODE"),

		DBHost:     v.GetString("DB_HOST"),
		DBPort:     v.GetString("DB_PORT"),
		DBUser:     v.GetString("DB_USER"),
		DBPassword: v.GetString("DB_PASSWORD"),
		DBName:     v.GetString("DB_NAME"),
		DBSSLMode:  v.GetString("DB_SSLMODE"),

		JWTSecret:        v.GetString("JWT_SECRET"),
		RefreshJWTSecret: v.GetString("REFRESH_JWT_SECRET"),
		AccessTokenTTL:   time.Duration(positive(v.GetInt("ACCESS_TOKEN_TTL_MINUTES"), 15)) * time.Minute,
		RefreshTokenTTL:  time.Duration(positive(v.GetInt("REFRESH_TOKEN_TTL_DAYS"), 30)) * 24 * time.Hour,
		ResetTokenTTL:    time.Duration(positive(v.GetInt("RESET_TOKEN_TTL_MINUTES"), 60)) * time.Minute,

		CodeMaxAttempts: positive(v.GetInt("CODE_MAX_ATTEMPTS"), 5),

		AdminEmail:    strings.ToLower(strings.TrimSpace(v.GetString("ADMIN_EMAIL"))),
		AdminPassword: v.GetString("ADMIN_PASSWORD"),

		MailAPIURL: v.GetString("MAIL_API_URL"),
		MailAPIKey: v.GetString("MAIL_API_KEY"),
		MailFrom:   v.GetString("MAIL_FROM"),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
	if cfg.RefreshJWTSecret == "" {
		cfg.RefreshJWTSecret = cfg.JWTSecret
	}
	return cfg, nil
}

func positive(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
