package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Build variables - set by ldflags during build.
var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	var configPath string
	var showVersion bool
	var printConfig bool

	flag.StringVar(&configPath, "config", "", "config file (default is $HOME/.config/clickup-exporter/config.yml)")
	flag.BoolVar(&showVersion, "version", false, "print version information")
	flag.BoolVar(&printConfig, "print-config", false, "print the effective configuration as YAML and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("exporterd - ClickUp Data Exporter\n")
		fmt.Printf("  Version: %s\n", version)
		fmt.Printf("  Commit:  %s\n", commit)
		fmt.Printf("  Built:   %s\n", buildTime)
		return
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if printConfig {
		redacted := cfg
		redacted.ClickupToken = redact(cfg.ClickupToken)
		redacted.APIAuthToken = redact(cfg.APIAuthToken)
		redacted.S3SecretKey = redact(cfg.S3SecretKey)
		out, err := yaml.Marshal(redacted)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
		return
	}

	if err := runServer(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}
	return "<redacted>"
}

func loadConfig(configPath string) (appConfig, error) {
	var cfg appConfig

	v := viper.New()
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("clickup-token", "")
	v.SetDefault("clickup-team-id", "")
	v.SetDefault("api-auth-token", "")
	v.SetDefault("concurrency", defaultConcurrency)
	v.SetDefault("max-retries", defaultMaxRetries)
	v.SetDefault("initial-backoff", defaultInitialBackoff)
	v.SetDefault("request-timeout", defaultRequestTimeout)
	v.SetDefault("time-entries-start", defaultTimeEntriesStart)
	v.SetDefault("redis-url", defaultRedisURL)
	v.SetDefault("redis-lock-ttl", defaultLockTTL)
	v.SetDefault("keep-last-n-exports", defaultKeepLastNExports)
	v.SetDefault("export-interval", defaultExportInterval)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("api-addr", "")
	v.SetDefault("snapshot-enabled", false)
	v.SetDefault("snapshot-interval", defaultSnapshotInterval)
	v.SetDefault("snapshot-dir", "")
	v.SetDefault("snapshot-keep-last", defaultKeepLastNExports)
	v.SetDefault("snapshot-bucket-url", "")
	v.SetDefault("s3-endpoint", "")
	v.SetDefault("s3-region", "")
	v.SetDefault("s3-access-key", "")
	v.SetDefault("s3-secret-key", "")
	v.SetDefault("s3-session-token", "")
	v.SetDefault("s3-use-ssl", true)
	v.SetDefault("log-level", defaultLogLevel)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if home, err := os.UserHomeDir(); err == nil {
		v.SetConfigFile(filepath.Join(home, ".config", "clickup-exporter", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	cfg.ConfigPath = v.ConfigFileUsed()

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.Concurrency <= 0 {
		return cfg, fmt.Errorf("invalid concurrency: %d", cfg.Concurrency)
	}
	if cfg.KeepLastNExports <= 0 {
		return cfg, fmt.Errorf("invalid keep-last-n-exports: %d", cfg.KeepLastNExports)
	}
	if cfg.ClickupToken == "" || strings.HasPrefix(cfg.ClickupToken, "pk_YOUR") {
		return cfg, fmt.Errorf("clickup-token is not set (CLICKUP_TOKEN)")
	}
	if cfg.ClickupTeamID == "" || strings.HasPrefix(cfg.ClickupTeamID, "YOUR") {
		return cfg, fmt.Errorf("clickup-team-id is not set (CLICKUP_TEAM_ID)")
	}

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}
