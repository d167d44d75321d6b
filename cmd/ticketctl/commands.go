package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/ticketlens/ticket-aggregator/internal/auth"
	"github.com/ticketlens/ticket-aggregator/internal/presenter"
	"github.com/ticketlens/ticket-aggregator/internal/provider"
)

var getCmd = &cobra.Command{
	Use:   "get <provider> <id>",
	Short: "Fetch one ticket",
	Example: `  ticketctl get jira TEST-123
  ticketctl get github octocat/hello-world#42
  ticketctl get slack C024BE91L/1700000000.000100`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ticket, err := tickets.GetTicket(cliContext(cmd), args[0], args[1])
		if err != nil {
			return userError(err, presenter.ContextTicketFetch)
		}
		return writeTickets(cmd.OutOrStdout(), ticketViews(classifier, ticket), asJSON)
	},
}

var mapCmd = &cobra.Command{
	Use:   "map <provider> [file]",
	Short: "Normalize a raw provider payload read from a file or stdin",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "-"
		if len(args) == 2 {
			path = args[1]
		}
		raw, err := readPayload(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		ticket, err := tickets.MapRaw(args[0], raw)
		if err != nil {
			return userError(err, presenter.ContextBuild)
		}
		return writeTickets(cmd.OutOrStdout(), ticketViews(classifier, ticket), asJSON)
	},
}

var scanOpts struct {
	channels    []string
	maxChannels int
	concurrency int
	batchSize   int
	replies     int
	since       time.Duration
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Collect task-related Slack messages across channels",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := provider.ScanOptions{
			Channels:              scanOpts.channels,
			MaxChannels:           scanOpts.maxChannels,
			MaxConcurrentChannels: scanOpts.concurrency,
			BatchSize:             scanOpts.batchSize,
		}
		if cmd.Flags().Changed("replies") {
			opts.ThreadReplies = provider.Replies(scanOpts.replies)
		}
		if scanOpts.since > 0 {
			opts.Oldest = time.Now().Add(-scanOpts.since)
		}
		result, err := tickets.ScanSlack(cliContext(cmd), opts)
		if err != nil {
			return userError(err, presenter.ContextBuild)
		}
		if err := writeTickets(cmd.OutOrStdout(), ticketViews(classifier, result.Tickets...), asJSON); err != nil {
			return err
		}
		if !asJSON {
			fmt.Fprintf(cmd.ErrOrStderr(), "%d channels, %d messages scanned\n", result.ChannelsScanned, result.MessagesScanned)
			channels := make([]string, 0, len(result.ChannelErrors))
			for ch := range result.ChannelErrors {
				channels = append(channels, ch)
			}
			sort.Strings(channels)
			for _, ch := range channels {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: skipped %s: %s\n", ch, result.ChannelErrors[ch])
			}
		}
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check every enabled provider's configuration against its API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		results := tickets.ValidateProviders(cmd.Context())
		if len(results) == 0 {
			return fmt.Errorf("no providers enabled")
		}
		names := tickets.ProviderNames()
		failed := 0
		for _, name := range names {
			status := "ok"
			if !results[name] {
				status = presenter.Message(presenter.KindInvalidConfig, presenter.ContextProviderConnection)
				failed++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s %s\n", name, status)
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d providers failed validation", failed, len(names))
		}
		return nil
	},
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear provider caches of this process",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats [provider]",
	Short: "Show cache sizes",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		names := tickets.ProviderNames()
		if len(args) == 1 {
			names = args
		}
		for _, name := range names {
			stats, err := tickets.CacheStats(name)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%-8s size=%d hits=%d misses=%d\n", name, stats.Size, stats.Hits, stats.Misses)
		}
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [provider]",
	Short: "Clear one or all provider caches",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			dropped, err := tickets.ClearCache(cliContext(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s (%d entries)\n", args[0], dropped)
			return nil
		}
		for name, dropped := range tickets.ClearAllCaches(cliContext(cmd)) {
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s (%d entries)\n", name, dropped)
		}
		return nil
	},
}

var tokenOpts struct {
	subject string
	role    string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a bearer token for the admin HTTP routes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		tm := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
		token, expires, err := tm.GenerateToken(tokenOpts.subject, auth.Role(tokenOpts.role))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Format(time.RFC3339))
		return nil
	},
}

func init() {
	scanCmd.Flags().StringSliceVarP(&scanOpts.channels, "channel", "c", nil, "channel id to scan (repeatable); default lists member channels")
	scanCmd.Flags().IntVar(&scanOpts.maxChannels, "max-channels", 0, "channels considered (0 uses SLACK_SCAN_MAX_CHANNELS)")
	scanCmd.Flags().IntVar(&scanOpts.concurrency, "concurrency", 0, "channels scanned in parallel")
	scanCmd.Flags().IntVar(&scanOpts.batchSize, "batch-size", 0, "history page and thread batch size")
	scanCmd.Flags().IntVar(&scanOpts.replies, "replies", 0, "thread replies fetched per message (0 skips threads)")
	scanCmd.Flags().DurationVar(&scanOpts.since, "since", 0, "only messages newer than this, e.g. 24h")

	tokenCmd.Flags().StringVar(&tokenOpts.subject, "subject", "admin", "token subject")
	tokenCmd.Flags().StringVar(&tokenOpts.role, "role", string(auth.RoleAdmin), "admin or reader")

	cacheCmd.AddCommand(cacheStatsCmd, cacheClearCmd)
}

func readPayload(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
