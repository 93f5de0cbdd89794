// Command ddnscf keeps a Cloudflare A record pointed at this host's public IPv4 address.
//
// Without a subcommand it runs a single pass and exits with a status describing the outcome:
//
//	0  no change needed, or the record was updated
//	1  unexpected failure
//	2  invalid configuration
//	3  the public address could not be resolved
//	4  the record does not exist
//	5  the record could not be read
//	6  the record could not be updated
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	ddns "github.com/Travis-Britz/cfddns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

// exitError carries the process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return ddns.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	var ce *ddns.ConfigError
	if errors.As(err, &ce) {
		return ddns.ExitConfig
	}
	return ddns.ExitUnknown
}

type globalFlags struct {
	configFile string
	envFile    string
	verbose    bool
	values     Config
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string, stderr io.Writer) int {
	root := newRootCommand(stderr)
	root.SetArgs(args)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) {
			fmt.Fprintf(stderr, "ddnscf: %s\n", err)
		}
	}
	return exitCode(err)
}

func newRootCommand(stderr io.Writer) *cobra.Command {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:           "ddnscf",
		Short:         "Point a Cloudflare A record at this host's public IPv4 address",
		Long:          "Resolve the public IPv4 address and update the configured Cloudflare A record when it differs.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := prepare(cmd, &g, stderr)
			if err != nil {
				return err
			}
			return runOnce(cmd.Context(), cfg, logger)
		},
	}

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Reconcile the record on an interval",
		Long:  "Run a pass immediately and then once per interval until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := prepare(cmd, &g, stderr)
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg, logger)
		},
	}
	daemonCmd.Flags().DurationVar(&g.values.Interval, "interval", 5*time.Minute, "time between passes (minimum 1m)")

	setupCmd := &cobra.Command{
		Use:   "setup",
		Short: "Store an API token in the key file",
		Long:  "Prompt for a Cloudflare API token, verify it, and write it to the key file with 0600 permissions.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(g.configFile, g.envFile, g.values, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			logger, err := newLogger(logConfig(cfg, g.verbose), stderr)
			if err != nil {
				return &ddns.ConfigError{Setting: "log", Reason: err.Error()}
			}
			return runSetup(cmd.Context(), cfg.KeyFile, cfg.APIURL, logger)
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.configFile, "config", "", "path to a YAML config file")
	pf.StringVar(&g.envFile, "env-file", ".env", "path to a dotenv file; a missing file is ignored")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "enable debug logging")
	pf.StringVarP(&g.values.KeyFile, "key-file", "k", "", "path to the Cloudflare API token file")
	pf.StringVar(&g.values.ZoneID, "zone-id", "", "Cloudflare zone id")
	pf.StringVar(&g.values.ZoneName, "zone-name", "", "Cloudflare zone name, used to look up the zone id")
	pf.StringVarP(&g.values.Record, "record", "d", "", "fully qualified name of the A record to update")
	pf.StringVar(&g.values.IP, "ip", "", "use this IPv4 address instead of resolving one")
	pf.StringSliceVar(&g.values.Interfaces, "interface", nil, "read the address from these network interfaces")
	pf.StringSliceVar(&g.values.LookupURLs, "lookup-url", nil, "public address lookup service (repeatable)")
	pf.StringVar(&g.values.APIURL, "api-url", "", "Cloudflare API base URL")
	pf.BoolVar(&g.values.FreshAddress, "fresh-address", true, "resolve the address again right before writing")
	pf.StringVar(&g.values.LockFile, "lock-file", "", "skip the run when another process holds this lock file")
	pf.StringVar(&g.values.Log.Level, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&g.values.Log.Format, "log-format", "", "log format (text or json)")
	pf.BoolVar(&g.values.Log.Syslog, "syslog", false, "also send logs to the local syslog daemon")

	rootCmd.AddCommand(daemonCmd, setupCmd)
	return rootCmd
}

func logConfig(cfg Config, verbose bool) LogConfig {
	lc := cfg.Log
	if verbose {
		lc.Level = "debug"
	}
	return lc
}

// prepare loads and validates the configuration and builds the logger.
func prepare(cmd *cobra.Command, g *globalFlags, stderr io.Writer) (Config, *logrus.Logger, error) {
	cfg, err := loadConfig(g.configFile, g.envFile, g.values, cmd.Flags().Changed)
	if err != nil {
		return cfg, nil, err
	}
	logger, err := newLogger(logConfig(cfg, g.verbose), stderr)
	if err != nil {
		return cfg, nil, &ddns.ConfigError{Setting: "log", Reason: err.Error()}
	}
	if err := cfg.validate(); err != nil {
		logger.Error(err)
		return cfg, logger, &exitError{code: ddns.ExitConfig, err: err}
	}
	logger.WithFields(logrus.Fields{
		"record":    cfg.Record,
		"zone_id":   cfg.ZoneID,
		"zone_name": cfg.ZoneName,
	}).Debug("configuration loaded")
	return cfg, logger, nil
}

func runOnce(ctx context.Context, cfg Config, logger logrus.FieldLogger) error {
	release, err := acquireLock(cfg.LockFile)
	if errors.Is(err, errLocked) {
		logger.Warnf("skipping run: %s", err)
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		logger.Error(err)
		return &exitError{code: exitCode(err), err: err}
	}
	outcome, err := client.Reconcile(ctx)
	if err != nil {
		return &exitError{code: outcome.ExitCode(), err: err}
	}
	logger.Infof("done: %s", outcome)
	return nil
}

func runDaemon(ctx context.Context, cfg Config, logger logrus.FieldLogger) error {
	release, err := acquireLock(cfg.LockFile)
	if errors.Is(err, errLocked) {
		logger.Warnf("not starting: %s", err)
		return nil
	}
	if err != nil {
		return err
	}
	defer release()

	client, err := newClient(ctx, cfg, logger)
	if err != nil {
		logger.Error(err)
		return &exitError{code: exitCode(err), err: err}
	}
	if err := ddns.RunDaemon(ctx, client, cfg.Interval, logger); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("stopped")
	return nil
}

// newClient finds the zone id when only a zone name is configured and builds the reconciler.
func newClient(ctx context.Context, cfg Config, logger logrus.FieldLogger) (*ddns.Client, error) {
	zoneID := cfg.ZoneID
	if zoneID == "" {
		zid, err := ddns.LookupZoneID(ctx, cfg.APIToken, cfg.ZoneName, ddns.APIURL(cfg.APIURL))
		if errors.Is(err, ddns.ErrNotFound) {
			return nil, &ddns.ConfigError{Setting: "zone name", Reason: fmt.Sprintf("could not be resolved to a zone id: %s", err)}
		}
		if err != nil {
			return nil, &exitError{code: ddns.ExitLookup, err: fmt.Errorf("error looking up zone %s: %w", cfg.ZoneName, err)}
		}
		logger.Infof("found zone id %s for %s", zid, cfg.ZoneName)
		zoneID = zid
	}

	resolver, err := newResolver(cfg)
	if err != nil {
		return nil, err
	}
	return ddns.New(cfg.Record, zoneID,
		ddns.UsingCloudflare(cfg.APIToken),
		ddns.UsingAPIURL(cfg.APIURL),
		ddns.UsingResolver(resolver),
		ddns.WithLogger(logger),
		ddns.WithFreshAddress(cfg.FreshAddress),
	)
}

func newResolver(cfg Config) (ddns.Resolver, error) {
	switch {
	case cfg.IP != "":
		r, err := ddns.FromString(cfg.IP)
		if err != nil {
			return nil, &ddns.ConfigError{Setting: "ip", Reason: err.Error()}
		}
		return r, nil
	case len(cfg.Interfaces) > 0:
		return ddns.InterfaceResolver(cfg.Interfaces...), nil
	default:
		r, err := ddns.WebResolver(cfg.LookupURLs...)
		if err != nil {
			return nil, &ddns.ConfigError{Setting: "lookup url", Reason: err.Error()}
		}
		return r, nil
	}
}
