package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fenilsonani/mailclient/internal/autoconfig"
	"github.com/fenilsonani/mailclient/internal/config"
	"github.com/fenilsonani/mailclient/internal/housekeeping"
	"github.com/fenilsonani/mailclient/internal/logging"
	"github.com/fenilsonani/mailclient/internal/ongoing"
	"github.com/fenilsonani/mailclient/internal/pipeline"
	"github.com/fenilsonani/mailclient/internal/store"
)

var (
	cfgFile string
	cfg     *config.Config
	logger  *logging.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mailclient",
	Short: "Mail account auto-configuration client",
	Long: `A mail client account bootstrapper:
- Discovers IMAP and SMTP settings from the provider database,
  Mozilla autoconfig, and Microsoft Autodiscover
- Verifies them by live connection
- Persists the verified configuration and prepares the mailbox`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger, err = logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
}

var (
	configureAddr    string
	passwordStdin    bool
	skipHousekeeping bool
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Discover, verify, and persist account settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.EnsureDirectories(); err != nil {
			return fmt.Errorf("failed to create required directories: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		db, err := store.Open(ctx, cfg.Storage.StoreDB)
		if err != nil {
			return err
		}
		defer db.Close()

		password, err := readPassword()
		if err != nil {
			return err
		}
		if configureAddr != "" {
			if err := db.SetRawConfig(ctx, "addr", &configureAddr); err != nil {
				return err
			}
		}
		if password != "" {
			if err := db.SetRawConfig(ctx, "mail_pw", &password); err != nil {
				return err
			}
		}

		opts := []pipeline.Option{
			pipeline.WithProbeTimeout(cfg.ProbeTimeoutDuration()),
			pipeline.WithConnectTimeout(cfg.ConnectTimeoutDuration()),
		}
		if cfg.Autoconfig.RedisURL != "" {
			cache, err := autoconfig.NewRedisCache(cfg.Autoconfig.RedisURL, cfg.Autoconfig.Prefix)
			if err != nil {
				logger.WarnContext(ctx, "autoconfig cache disabled", "error", err)
			} else {
				defer cache.Close()
				opts = append(opts, pipeline.WithCache(cache))
			}
		}
		pipe := pipeline.New(db, logger, opts...)

		runner := ongoing.NewRunner()
		succeeded := false
		runner.Configure(ctx, func(jobCtx context.Context, progress func(n int)) error {
			return pipe.Run(jobCtx, progress)
		}, func(n int) {
			fmt.Printf("progress %d\n", n)
			if n == 1000 {
				succeeded = true
			}
		})
		runner.Wait()

		if !succeeded {
			return fmt.Errorf("configuration failed, see logs for details")
		}

		if !skipHousekeeping {
			if deleted, err := housekeeping.Run(ctx, db, cfg.Storage.BlobDir, logger); err != nil {
				logger.WarnContext(ctx, "housekeeping after configure failed", "error", err)
			} else if deleted > 0 {
				fmt.Printf("housekeeping removed %d orphaned file(s)\n", deleted)
			}
		}

		fmt.Println("account configured")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current configuration state",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, err := store.Open(ctx, cfg.Storage.StoreDB)
		if err != nil {
			return err
		}
		defer db.Close()

		configured, err := db.GetConfigBool(ctx, "configured")
		if err != nil {
			return err
		}
		fmt.Printf("configured: %v\n", configured)
		if !configured {
			return nil
		}

		params, err := db.LoadConfigured(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("address:     %s\n", params.Addr)
		fmt.Printf("imap:        %s:%d (user %s)\n", params.MailServer, params.MailPort, params.MailUser)
		fmt.Printf("smtp:        %s:%d (user %s)\n", params.SendServer, params.SendPort, params.SendUser)

		for _, key := range []string{"configured_sentbox_folder", "configured_mvbox_folder", "folders_configured"} {
			if v, ok, err := db.GetRawConfig(ctx, key); err == nil && ok {
				fmt.Printf("%s: %s\n", strings.TrimPrefix(key, "configured_"), v)
			}
		}
		return nil
	},
}

var housekeepingCmd = &cobra.Command{
	Use:   "housekeeping",
	Short: "Delete orphaned files from the blob directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		db, err := store.Open(ctx, cfg.Storage.StoreDB)
		if err != nil {
			return err
		}
		defer db.Close()

		deleted, err := housekeeping.Run(ctx, db, cfg.Storage.BlobDir, logger)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d orphaned file(s)\n", deleted)
		return nil
	},
}

// readPassword reads the account password from stdin when --password-stdin
// is set; otherwise the value already stored under mail_pw is reused.
func readPassword() (string, error) {
	if !passwordStdin {
		return "", nil
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read password from stdin: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "/etc/mailclient/config.yaml", "config file path")

	configureCmd.Flags().StringVar(&configureAddr, "addr", "", "email address to configure")
	configureCmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the account password from stdin")
	configureCmd.Flags().BoolVar(&skipHousekeeping, "skip-housekeeping", false, "do not run blob housekeeping after a successful configure")

	rootCmd.AddCommand(configureCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(housekeepingCmd)
}
