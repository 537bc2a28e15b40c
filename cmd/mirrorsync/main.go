package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Ning0612/mirrorsync/internal/config"
	"github.com/Ning0612/mirrorsync/internal/logger"
	"github.com/Ning0612/mirrorsync/internal/service"
	"github.com/Ning0612/mirrorsync/internal/state"
)

var (
	// Set by the release build
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Global flags
	cfgFile string

	// History command flags
	historyLimit   int
	historyReplica string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mirrorsync SOURCE REPLICA LOGFILE INTERVAL",
	Short: "Keep a replica directory an exact copy of a source directory",
	Long: `mirrorsync periodically makes REPLICA an exact copy of SOURCE.

Every INTERVAL seconds it creates missing directories, copies new and changed
files (compared by content fingerprint) and removes replica entries that no
longer exist in the source. Every action is logged to the console and to
LOGFILE. The process runs until interrupted.`,
	Args:         cobra.ExactArgs(4),
	SilenceUsage: true,
	RunE:         runMirror,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync cycles recorded in the history database",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "mirrorsync %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is mirrorsync.yaml in ., $XDG_CONFIG_HOME/mirrorsync or ~/.mirrorsync)")
	rootCmd.PersistentFlags().String("history-db", "", "sqlite file recording each cycle (empty disables history)")

	flags := rootCmd.Flags()
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")
	flags.Int("log-max-size", 100, "rotate LOGFILE after this many megabytes")
	flags.Int("log-max-backups", 5, "rotated log files to keep")
	flags.Int("log-max-age", 30, "days to keep rotated log files")
	flags.Bool("log-compress", false, "gzip rotated log files")
	flags.String("algorithm", "md5", "content fingerprint (md5, sha256, xxh64)")
	flags.Int("workers", 1, "files copied concurrently")
	flags.Bool("watch", false, "also start a cycle when the source changes")
	flags.Duration("debounce", 500*time.Millisecond, "quiet period after a source change before waking")
	flags.String("lock-dir", "", "directory for replica lock files (default is the user config dir)")

	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of cycles to show")
	historyCmd.Flags().StringVar(&historyReplica, "replica", "", "only show cycles for this replica")

	// Add commands
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// flagKeys maps command line flags to configuration keys
var flagKeys = map[string]string{
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-max-size":    "log.max_size",
	"log-max-backups": "log.max_backups",
	"log-max-age":     "log.max_age",
	"log-compress":    "log.compress",
	"algorithm":       "algorithm",
	"workers":         "workers",
	"watch":           "watch",
	"debounce":        "debounce",
	"lock-dir":        "lock_dir",
	"history-db":      "history_db",
}

func runMirror(cmd *cobra.Command, args []string) error {
	ctx, cancel := setupSignalHandler()
	defer cancel()

	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	opts := cfg.LoggerOptions()
	opts.Console = cmd.OutOrStdout()
	log, err := logger.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Shutdown()

	if err := cfg.CheckRoots(); err != nil {
		log.Error("cannot start mirroring", "error", err)
		return err
	}

	daemon, err := service.NewDaemonService(cfg, log)
	if err != nil {
		log.Error("cannot start mirroring", "error", err)
		return err
	}
	defer daemon.Close()

	if err := daemon.Run(ctx); err != nil {
		log.Error("mirroring stopped", "error", err)
		return err
	}
	return nil
}

// loadConfig merges positional arguments, flags, environment and the
// config file, in that order of precedence
func loadConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	v := config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	interval, err := parseInterval(args[3])
	if err != nil {
		return nil, err
	}

	v.Set("source", args[0])
	v.Set("replica", args[1])
	v.Set("log_file", args[2])
	v.Set("interval", interval)

	return config.Load(v, cfgFile)
}

func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// parseInterval parses a positive whole number of seconds
func parseInterval(s string) (time.Duration, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("interval must be a whole number of seconds: %q", s)
	}
	if n <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %d", n)
	}
	return time.Duration(n) * time.Second, nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	v := config.NewViper()
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	// Only the history location matters here; the rest may be absent
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	dbPath := v.GetString("history_db")
	if dbPath == "" {
		return errors.New("no history database configured (use --history-db)")
	}
	dbPath = config.ExpandPath(dbPath)
	if _, err := os.Stat(dbPath); err != nil {
		return fmt.Errorf("history database not found: %w", err)
	}

	mgr, err := state.NewManager(dbPath)
	if err != nil {
		return err
	}
	defer mgr.Close()

	var records []state.CycleRecord
	if historyReplica != "" {
		records, err = mgr.GetHistory(config.ExpandPath(historyReplica), historyLimit)
	} else {
		records, err = mgr.GetAllHistory(historyLimit)
	}
	if err != nil {
		return err
	}

	return printHistory(cmd.OutOrStdout(), records)
}

func printHistory(out io.Writer, records []state.CycleRecord) error {
	if len(records) == 0 {
		_, err := fmt.Fprintln(out, "no cycles recorded")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tDURATION\tSTATUS\tCREATED\tCOPIED\tREPLACED\tDELETED\tERRORS\tBYTES\tREPLICA")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.StartTime.Local().Format(time.DateTime),
			r.EndTime.Sub(r.StartTime).Round(time.Millisecond),
			r.Status,
			r.Created,
			r.Copied,
			r.Replaced,
			r.Deleted,
			r.Errors,
			r.BytesCopied,
			r.Replica,
		)
	}
	return w.Flush()
}

func setupSignalHandler() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}
