package main

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the command configuration.
//
// Sources are applied in order, later ones winning:
// defaults, the YAML file, the environment (including the dotenv file), and flags.
type Config struct {
	APIToken     string        `yaml:"api_token"`
	KeyFile      string        `yaml:"key_file"`
	ZoneID       string        `yaml:"zone_id"`
	ZoneName     string        `yaml:"zone_name"`
	Record       string        `yaml:"record"`
	IP           string        `yaml:"ip"`
	Interfaces   []string      `yaml:"interfaces"`
	LookupURLs   []string      `yaml:"lookup_urls"`
	APIURL       string        `yaml:"api_url"`
	FreshAddress bool          `yaml:"fresh_address"`
	LockFile     string        `yaml:"lock_file"`
	Interval     time.Duration `yaml:"interval"`
	Log          LogConfig     `yaml:"log"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Syslog bool   `yaml:"syslog"`
}

func defaultConfig() Config {
	return Config{
		KeyFile:      filepath.Join(os.Getenv("HOME"), ".cloudflare"),
		LookupURLs:   []string{ddns.DefaultLookupURL},
		APIURL:       ddns.DefaultAPIURL,
		FreshAddress: true,
		Interval:     5 * time.Minute,
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// loadConfig builds the configuration.
// flags holds the parsed flag values; changed reports whether a flag was set on the command line.
func loadConfig(configFile, envFile string, flags Config, changed func(string) bool) (Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return cfg, &ddns.ConfigError{Setting: configFile, Reason: fmt.Sprintf("cannot be read: %s", err)}
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, &ddns.ConfigError{Setting: configFile, Reason: fmt.Sprintf("is not valid YAML: %s", err)}
		}
	}

	// existing environment variables take precedence over the file
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, &ddns.ConfigError{Setting: envFile, Reason: fmt.Sprintf("cannot be loaded: %s", err)}
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	cfg.applyFlags(flags, changed)
	return cfg, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = splitList(v)
		}
	}
	boolean := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &ddns.ConfigError{Setting: key, Reason: fmt.Sprintf("must be a boolean; got %q", v)}
		}
		*dst = b
		return nil
	}

	str("API_TOKEN", &cfg.APIToken)
	str("ZONE_ID", &cfg.ZoneID)
	str("ZONE_NAME", &cfg.ZoneName)
	str("DNS_RECORD_NAME", &cfg.Record)
	str("DDNS_KEY_FILE", &cfg.KeyFile)
	str("DDNS_IP", &cfg.IP)
	list("DDNS_INTERFACES", &cfg.Interfaces)
	list("LOOKUP_URL", &cfg.LookupURLs)
	str("CLOUDFLARE_API_URL", &cfg.APIURL)
	str("DDNS_LOCK_FILE", &cfg.LockFile)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)

	if v, ok := lookup("DDNS_INTERVAL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return &ddns.ConfigError{Setting: "DDNS_INTERVAL", Reason: fmt.Sprintf("must be a duration; got %q", v)}
		}
		cfg.Interval = d
	}
	return errors.Join(
		boolean("DDNS_FRESH_ADDRESS", &cfg.FreshAddress),
		boolean("LOG_SYSLOG", &cfg.Log.Syslog),
	)
}

func (cfg *Config) applyFlags(f Config, changed func(string) bool) {
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}
	set("key-file", func() { cfg.KeyFile = f.KeyFile })
	set("zone-id", func() { cfg.ZoneID = f.ZoneID })
	set("zone-name", func() { cfg.ZoneName = f.ZoneName })
	set("record", func() { cfg.Record = f.Record })
	set("ip", func() { cfg.IP = f.IP })
	set("interface", func() { cfg.Interfaces = f.Interfaces })
	set("lookup-url", func() { cfg.LookupURLs = f.LookupURLs })
	set("api-url", func() { cfg.APIURL = f.APIURL })
	set("fresh-address", func() { cfg.FreshAddress = f.FreshAddress })
	set("lock-file", func() { cfg.LockFile = f.LockFile })
	set("interval", func() { cfg.Interval = f.Interval })
	set("log-level", func() { cfg.Log.Level = f.Log.Level })
	set("log-format", func() { cfg.Log.Format = f.Log.Format })
	set("syslog", func() { cfg.Log.Syslog = f.Log.Syslog })
}

// validate checks everything that can be checked without the network.
// It reads the API token from the key file when no token was given directly.
func (cfg *Config) validate() error {
	cfg.Record = strings.TrimSpace(cfg.Record)
	if cfg.Record == "" {
		return &ddns.ConfigError{Setting: "record name", Reason: "cannot be empty (set DNS_RECORD_NAME or --record)"}
	}
	if !strings.Contains(cfg.Record, ".") {
		return &ddns.ConfigError{Setting: "record name", Reason: "must have at least one dot"}
	}
	if cfg.ZoneID == "" && cfg.ZoneName == "" {
		return &ddns.ConfigError{Setting: "zone", Reason: "cannot be empty (set ZONE_ID or ZONE_NAME)"}
	}
	if cfg.IP != "" && len(cfg.Interfaces) > 0 {
		return &ddns.ConfigError{Setting: "ip", Reason: "cannot be combined with interfaces"}
	}

	if cfg.APIToken == "" {
		key, err := readKey(cfg.KeyFile)
		if err != nil {
			return &ddns.ConfigError{Setting: "API token", Reason: fmt.Sprintf("is not set (use API_TOKEN, --key-file, or ddnscf setup): %s", err)}
		}
		cfg.APIToken = key
	}
	if cfg.APIToken == "" {
		return &ddns.ConfigError{Setting: "API token", Reason: "cannot be empty"}
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func readKey(path string) (key string, err error) {
	if path == "" {
		return "", errors.New("no key file configured")
	}
	if err := verifyPermissions(path); err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	return strings.TrimSpace(string(keyb)), nil
}

func verifyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}
