package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// FileName is the config file looked up in the config directory.
const FileName = "simcore.cfg.json"

// TickConfig holds the world tick timings.
type TickConfig struct {
	Interval         time.Duration `json:"interval" mapstructure:"interval"`
	Debounce         time.Duration `json:"debounce" mapstructure:"debounce"`
	ProtectionWindow time.Duration `json:"protectionWindow" mapstructure:"protectionWindow"`
	Workers          int           `json:"workers" mapstructure:"workers"`
	PlayerQueue      int           `json:"playerQueue" mapstructure:"playerQueue"`
}

// DatabaseConfig holds connection settings.
type DatabaseConfig struct {
	Driver       string `json:"driver" mapstructure:"driver"`
	Host         string `json:"host" mapstructure:"host"`
	Port         string `json:"port" mapstructure:"port"`
	Username     string `json:"username" mapstructure:"username"`
	Password     string `json:"password" mapstructure:"password"`
	Database     string `json:"database" mapstructure:"database"`
	MaxOpenConns int    `json:"maxOpenConns" mapstructure:"maxOpenConns"`
	SqlitePath   string `json:"sqlitePath" mapstructure:"sqlitePath"`
}

// InfluxConfig holds InfluxDB metrics settings.
type InfluxConfig struct {
	Enabled  bool   `json:"enabled" mapstructure:"enabled"`
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Protocol string `json:"protocol" mapstructure:"protocol"`
	Token    string `json:"token" mapstructure:"token"`
	Org      string `json:"org" mapstructure:"org"`
	Bucket   string `json:"bucket" mapstructure:"bucket"`
}

// ServerURL returns the InfluxDB base URL.
func (c InfluxConfig) ServerURL() string {
	return fmt.Sprintf("%s://%s:%s", c.Protocol, c.Host, c.Port)
}

// ArchiveConfig holds battle report archive settings.
type ArchiveConfig struct {
	Enabled bool          `json:"enabled" mapstructure:"enabled"`
	Dir     string        `json:"dir" mapstructure:"dir"`
	Rotate  time.Duration `json:"rotate" mapstructure:"rotate"`
}

// Load reads configuration from JSON file and sets default values.
// configDir is the directory containing the config file. Every key can be
// overridden from the environment with the SIMCORE_ prefix, e.g.
// SIMCORE_DB_HOST or SIMCORE_TICK_WORKERS.
func Load(configDir string) error {
	setDefaults()

	viper.SetEnvPrefix("SIMCORE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// OnChange starts watching the loaded config file and calls fn after every
// write to it. It must be called after a successful Load.
func OnChange(fn func()) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			fn()
		}
	})
	viper.WatchConfig()
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./simlogs")

	viper.SetDefault("db.driver", "postgres")
	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.username", "postgres")
	viper.SetDefault("db.password", "postgres")
	viper.SetDefault("db.database", "simcore")
	viper.SetDefault("db.maxOpenConns", 10)
	viper.SetDefault("db.sqlitePath", "./simcore.db")

	viper.SetDefault("tick.interval", "60s")
	viper.SetDefault("tick.debounce", "5s")
	viper.SetDefault("tick.protectionWindow", "8h")
	viper.SetDefault("tick.workers", 1)
	viper.SetDefault("tick.playerQueue", 64)

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "warhost")
	viper.SetDefault("influx.bucket", "simcore")

	viper.SetDefault("archive.enabled", true)
	viper.SetDefault("archive.dir", "./reports")
	viper.SetDefault("archive.rotate", "1h")
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetTickConfig returns the tick engine settings.
func GetTickConfig() TickConfig {
	return TickConfig{
		Interval:         viper.GetDuration("tick.interval"),
		Debounce:         viper.GetDuration("tick.debounce"),
		ProtectionWindow: viper.GetDuration("tick.protectionWindow"),
		Workers:          viper.GetInt("tick.workers"),
		PlayerQueue:      viper.GetInt("tick.playerQueue"),
	}
}

// GetDatabaseConfig returns the database settings.
func GetDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:       viper.GetString("db.driver"),
		Host:         viper.GetString("db.host"),
		Port:         viper.GetString("db.port"),
		Username:     viper.GetString("db.username"),
		Password:     viper.GetString("db.password"),
		Database:     viper.GetString("db.database"),
		MaxOpenConns: viper.GetInt("db.maxOpenConns"),
		SqlitePath:   viper.GetString("db.sqlitePath"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:  viper.GetBool("influx.enabled"),
		Host:     viper.GetString("influx.host"),
		Port:     viper.GetString("influx.port"),
		Protocol: viper.GetString("influx.protocol"),
		Token:    viper.GetString("influx.token"),
		Org:      viper.GetString("influx.org"),
		Bucket:   viper.GetString("influx.bucket"),
	}
}

// GetArchiveConfig returns the battle report archive settings.
func GetArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled: viper.GetBool("archive.enabled"),
		Dir:     viper.GetString("archive.dir"),
		Rotate:  viper.GetDuration("archive.rotate"),
	}
}
