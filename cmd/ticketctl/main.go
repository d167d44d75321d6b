// Command ticketctl fetches and classifies tickets from the configured
// providers without running the HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/bootstrap"
	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/config"
	"github.com/ticketlens/ticket-aggregator/internal/events"
	"github.com/ticketlens/ticket-aggregator/internal/observability"
	"github.com/ticketlens/ticket-aggregator/internal/service"
)

var (
	cfg        *config.Config
	logger     *zap.Logger
	classifier *classify.Classifier
	tickets    *service.TicketService

	verbose bool
	asJSON  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "ticketctl",
	Short: "Fetch and classify tickets from Jira, GitHub and Slack",
	Long: `ticketctl normalizes Jira issues, GitHub issues and Slack messages into
one ticket shape, inferring priority and status from labels, text and reactions.

Providers are configured from the environment (JIRA_TOKEN, GITHUB_TOKEN,
SLACK_TOKEN and friends), optionally loaded from a .env file.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log provider calls to stdout")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(getCmd, mapCmd, scanCmd, validateCmd, cacheCmd, tokenCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger = zap.NewNop()
	if verbose {
		logCfg := cfg.Logger
		logCfg.Level = "debug"
		logCfg.SentryDSN = ""
		if logger, err = observability.NewLogger(logCfg); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
	}

	classifier, err = bootstrap.Classifier(cfg.Patterns)
	if err != nil {
		return err
	}

	dispatcher := events.NewInMemoryDispatcher()
	service.NewAuditService(dispatcher, logger, 0).RegisterHandlers()

	tickets = service.NewTicketService(service.TicketDependencies{
		Providers:    bootstrap.Providers(cfg, bootstrap.Deps{Classifier: classifier, Logger: logger}),
		Dispatcher:   dispatcher,
		Logger:       logger,
		ScanDefaults: bootstrap.ScanDefaults(cfg.Scan),
	})
	return nil
}

// cliContext marks events published by the command as coming from the CLI.
func cliContext(cmd *cobra.Command) context.Context {
	return service.WithActor(cmd.Context(), events.Actor{Type: "cli", Subject: os.Getenv("USER")})
}
