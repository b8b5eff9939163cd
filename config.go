package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ocupoint/salogger/pkg/acquire"
	"github.com/ocupoint/salogger/pkg/archive"
	"github.com/ocupoint/salogger/pkg/scpi"
)

const envPrefix = "SALOG"

// Config is the resolved process configuration: flags override environment
// (SALOG_*), which overrides the optional config file, which overrides defaults.
type Config struct {
	Server         bool
	Port           int
	Sim            bool
	SimAddr        string
	LogLevel       string
	Address        string
	DataDir        string
	Timeout        time.Duration
	Parquet        bool
	Plot           string
	AllowedOrigins []string
	Run            acquire.Request
	S3             archive.S3Config
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 8080)
	v.SetDefault("sim-addr", "127.0.0.1:0")
	v.SetDefault("log-level", "info")
	v.SetDefault("address", "192.168.0.124")
	v.SetDefault("data-dir", acquire.DefaultDataDir)
	v.SetDefault("timeout", scpi.DefaultTimeout)
	v.SetDefault("allowed-origins", []string{"http://localhost:8080"})

	v.SetDefault("start-freq", "9.9995e9")
	v.SetDefault("stop-freq", "10.0005e9")
	v.SetDefault("n-points", "401")
	v.SetDefault("n-samples", "50")
	v.SetDefault("interval", "0.2")

	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.endpoint", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.access-key", "")
	v.SetDefault("s3.secret-key", "")
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Config file (yaml, json or toml)")
	flags.Bool("server", false, "Run the web UI server")
	flags.IntP("port", "p", 8080, "Port to listen on (server mode only)")
	flags.Bool("sim", false, "Start a built-in FieldFox simulator and connect to it")
	flags.String("log-level", "info", "Console log level")

	flags.String("address", "192.168.0.124", "Instrument IP, host:port or VISA resource string")
	flags.String("data-dir", acquire.DefaultDataDir, "Directory for measurement CSV files")
	flags.Duration("timeout", scpi.DefaultTimeout, "Instrument I/O timeout")
	flags.Bool("parquet", false, "Also write <site>.parquet next to each CSV")
	flags.String("plot", "", "CLI mode: write the last trace as a PNG to this file")

	flags.String("site", "", "Site name, used as the CSV file name")
	flags.String("start-freq", "9.9995e9", "Start frequency [Hz]")
	flags.String("stop-freq", "10.0005e9", "Stop frequency [Hz]")
	flags.String("n-points", "401", "Number of sweep points")
	flags.String("n-samples", "50", "Number of traces to record")
	flags.String("interval", "0.2", "Seconds between traces")
}

func loadConfig(v *viper.Viper) (Config, error) {
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := Config{
		Server:         v.GetBool("server"),
		Port:           v.GetInt("port"),
		Sim:            v.GetBool("sim"),
		SimAddr:        v.GetString("sim-addr"),
		LogLevel:       v.GetString("log-level"),
		Address:        v.GetString("address"),
		DataDir:        v.GetString("data-dir"),
		Timeout:        v.GetDuration("timeout"),
		Parquet:        v.GetBool("parquet"),
		Plot:           v.GetString("plot"),
		AllowedOrigins: v.GetStringSlice("allowed-origins"),
		Run: acquire.Request{
			Site:      v.GetString("site"),
			StartFreq: v.GetString("start-freq"),
			StopFreq:  v.GetString("stop-freq"),
			Points:    v.GetString("n-points"),
			Samples:   v.GetString("n-samples"),
			Interval:  v.GetString("interval"),
		},
		S3: archive.S3Config{
			Bucket:    v.GetString("s3.bucket"),
			Prefix:    v.GetString("s3.prefix"),
			Endpoint:  v.GetString("s3.endpoint"),
			Region:    v.GetString("s3.region"),
			AccessKey: v.GetString("s3.access-key"),
			SecretKey: v.GetString("s3.secret-key"),
		},
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Timeout <= 0 {
		return cfg, fmt.Errorf("timeout must be positive, got %s", cfg.Timeout)
	}
	return cfg, nil
}
