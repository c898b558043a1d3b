package server

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"taskmanager/internal/domain/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Addr        string
	Port        int
	DBStr       string
	MigratePath string
	JWTSecret   string
	TokenTTL    time.Duration
	LogLevel    string
	LogFormat   string
	// LoginRate is the number of login attempts allowed per minute per IP.
	LoginRate int
}

const (
	defaultAddr        = "0.0.0.0"
	defaultPort        = 8080
	defaultDBStr       = "postgresql://taskmanager:taskmanager@db:5432/tasks?sslmode=disable"
	defaultMigratePath = "migrations"
	defaultTokenTTL    = 24 * time.Hour
	defaultLogLevel    = "info"
	defaultLogFormat   = "text"
	defaultLoginRate   = 10
)

func DefaultConfig() *Config {
	return &Config{
		Addr:        defaultAddr,
		Port:        defaultPort,
		DBStr:       defaultDBStr,
		MigratePath: defaultMigratePath,
		TokenTTL:    defaultTokenTTL,
		LogLevel:    defaultLogLevel,
		LogFormat:   defaultLogFormat,
		LoginRate:   defaultLoginRate,
	}
}

// fileConfig is the JSON layout; TokenTTL is a Go duration string.
type fileConfig struct {
	Addr        *string `json:"addr"`
	Port        *int    `json:"port"`
	DBStr       *string `json:"db_str"`
	MigratePath *string `json:"migrate_path"`
	JWTSecret   *string `json:"jwt_secret"`
	TokenTTL    *string `json:"token_ttl"`
	LogLevel    *string `json:"log_level"`
	LogFormat   *string `json:"log_format"`
	LoginRate   *int    `json:"login_rate"`
}

// ReadConfig resolves the configuration from defaults, a JSON file, the
// environment (after loading .env) and finally the flags present in args.
// Invalid values are reported and skipped.
func ReadConfig(args []string) (*Config, error) {
	fs := flag.NewFlagSet("tasks", flag.ContinueOnError)
	var (
		addr        = fs.String("addr", defaultAddr, "server listen address")
		port        = fs.Int("port", defaultPort, "server port")
		dbStr       = fs.String("dbstr", defaultDBStr, "database connection string")
		migratePath = fs.String("migratepath", defaultMigratePath, "migrations directory")
		jwtSecret   = fs.String("jwtsecret", "", "token signing secret")
		tokenTTL    = fs.Duration("tokenttl", defaultTokenTTL, "token lifetime")
		logLevel    = fs.String("loglevel", defaultLogLevel, "log level: debug, info, warn, error")
		logFormat   = fs.String("logformat", defaultLogFormat, "log format: text or json")
		loginRate   = fs.Int("loginrate", defaultLoginRate, "login attempts per minute per client")
		configFile  = fs.String("c", "", "path to JSON config file")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("failed to load .env file")
	}

	cfg := DefaultConfig()

	path := *configFile
	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if path != "" {
		if err := applyJSONConfig(cfg, path); err != nil {
			logrus.WithError(err).WithField("path", path).Warn("ignoring config file")
		}
	}

	applyEnvOverrides(cfg)

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "port":
			if validPort(*port) {
				cfg.Port = *port
			} else {
				warnInvalid("port", strconv.Itoa(*port))
			}
		case "dbstr":
			cfg.DBStr = *dbStr
		case "migratepath":
			cfg.MigratePath = *migratePath
		case "jwtsecret":
			cfg.JWTSecret = *jwtSecret
		case "tokenttl":
			if *tokenTTL > 0 {
				cfg.TokenTTL = *tokenTTL
			} else {
				warnInvalid("tokenttl", tokenTTL.String())
			}
		case "loglevel":
			cfg.LogLevel = *logLevel
		case "logformat":
			cfg.LogFormat = *logFormat
		case "loginrate":
			if *loginRate > 0 {
				cfg.LoginRate = *loginRate
			} else {
				warnInvalid("loginrate", strconv.Itoa(*loginRate))
			}
		}
	})

	return cfg, nil
}

func applyJSONConfig(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigFileReadFailed, err)
	}
	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrConfigParseFailed, err)
	}

	if fc.Addr != nil {
		cfg.Addr = *fc.Addr
	}
	if fc.Port != nil {
		if validPort(*fc.Port) {
			cfg.Port = *fc.Port
		} else {
			warnInvalid("port", strconv.Itoa(*fc.Port))
		}
	}
	if fc.DBStr != nil {
		cfg.DBStr = *fc.DBStr
	}
	if fc.MigratePath != nil {
		cfg.MigratePath = *fc.MigratePath
	}
	if fc.JWTSecret != nil {
		cfg.JWTSecret = *fc.JWTSecret
	}
	if fc.TokenTTL != nil {
		setDuration(&cfg.TokenTTL, "token_ttl", *fc.TokenTTL)
	}
	if fc.LogLevel != nil {
		cfg.LogLevel = *fc.LogLevel
	}
	if fc.LogFormat != nil {
		cfg.LogFormat = *fc.LogFormat
	}
	if fc.LoginRate != nil {
		if *fc.LoginRate > 0 {
			cfg.LoginRate = *fc.LoginRate
		} else {
			warnInvalid("login_rate", strconv.Itoa(*fc.LoginRate))
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ADDR"); v != "" {
		cfg.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && validPort(p) {
			cfg.Port = p
		} else {
			warnInvalid("PORT", v)
		}
	}
	if v := os.Getenv("DB_STR"); v != "" {
		cfg.DBStr = v
	} else {
		user, password := os.Getenv("DB_USER"), os.Getenv("DB_PASSWORD")
		host, port, name := os.Getenv("DB_HOST"), os.Getenv("DB_PORT"), os.Getenv("DB_NAME")
		if user != "" && password != "" && host != "" && port != "" && name != "" {
			cfg.DBStr = fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", user, password, host, port, name)
		}
	}
	if v := os.Getenv("MIGRATE_PATH"); v != "" {
		cfg.MigratePath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		setDuration(&cfg.TokenTTL, "TOKEN_TTL", v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = v
	}
	if v := os.Getenv("LOGIN_RATE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LoginRate = n
		} else {
			warnInvalid("LOGIN_RATE", v)
		}
	}
}

func setDuration(dst *time.Duration, key, value string) {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		warnInvalid(key, value)
		return
	}
	*dst = d
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func warnInvalid(key, value string) {
	logrus.WithFields(logrus.Fields{"key": key, "value": value}).Warn(errors.ErrConfigInvalidFormat.Error())
}
