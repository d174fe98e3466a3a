package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/poldata/tsimport/internal/db"
	"github.com/poldata/tsimport/internal/importer"
)

// Config is the full application configuration.
type Config struct {
	Database   db.Config
	Import     importer.Config
	LogFolder  string
	LogLevel   string
	ListenAddr string
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() Config {
	return Config{
		Database: db.DefaultConfig(),
		Import: importer.Config{
			ArchiveFolder: "./archive",
			ErrorFolder:   "./errors",
			WeekEndingDay: time.Wednesday,
		},
		LogFolder:  "./logs",
		LogLevel:   "info",
		ListenAddr: ":8080",
	}
}

// Load reads config.yaml from configPath and applies environment overrides
// (TSIMPORT_DATABASE_HOST and friends) on top of the defaults.
func Load(configPath string) (Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AutomaticEnv()
	v.SetEnvPrefix("TSIMPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.BindEnv("database.host")
	v.BindEnv("database.port")
	v.BindEnv("database.user")
	v.BindEnv("database.password")
	v.BindEnv("database.dbname")
	v.BindEnv("database.sslmode")
	v.BindEnv("import.archive_folder")
	v.BindEnv("import.error_folder")
	v.BindEnv("import.week_ending_day")
	v.BindEnv("log.folder")
	v.BindEnv("log.level")
	v.BindEnv("server.addr")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return cfg, fmt.Errorf("failed to read config: %w", err)
		}
		// No config.yaml; defaults plus env overrides apply.
	}

	if v.IsSet("database.host") {
		cfg.Database.Host = v.GetString("database.host")
	}
	if v.IsSet("database.port") {
		cfg.Database.Port = v.GetInt("database.port")
	}
	if v.IsSet("database.user") {
		cfg.Database.User = v.GetString("database.user")
	}
	if v.IsSet("database.password") {
		cfg.Database.Password = v.GetString("database.password")
	}
	if v.IsSet("database.dbname") {
		cfg.Database.DBName = v.GetString("database.dbname")
	}
	if v.IsSet("database.sslmode") {
		cfg.Database.SSLMode = v.GetString("database.sslmode")
	}
	if v.IsSet("import.archive_folder") {
		cfg.Import.ArchiveFolder = v.GetString("import.archive_folder")
	}
	if v.IsSet("import.error_folder") {
		cfg.Import.ErrorFolder = v.GetString("import.error_folder")
	}
	if v.IsSet("import.week_ending_day") {
		day, err := parseWeekday(v.GetString("import.week_ending_day"))
		if err != nil {
			return cfg, err
		}
		cfg.Import.WeekEndingDay = day
	}
	if v.IsSet("log.folder") {
		cfg.LogFolder = v.GetString("log.folder")
	}
	if v.IsSet("log.level") {
		cfg.LogLevel = v.GetString("log.level")
	}
	if v.IsSet("server.addr") {
		cfg.ListenAddr = v.GetString("server.addr")
	}

	return cfg, nil
}

func parseWeekday(name string) (time.Weekday, error) {
	for day := time.Sunday; day <= time.Saturday; day++ {
		if strings.EqualFold(day.String(), name) {
			return day, nil
		}
	}
	return 0, fmt.Errorf("unknown week ending day %q", name)
}
