// Package bootstrap builds the provider stack from configuration. It is
// shared by the HTTP server and the CLI.
package bootstrap

import (
	"go.uber.org/zap"

	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/config"
	"github.com/ticketlens/ticket-aggregator/internal/domain"
	"github.com/ticketlens/ticket-aggregator/internal/patterns"
	"github.com/ticketlens/ticket-aggregator/internal/provider"
)

// Classifier compiles the default tables, overlaid with cfg.File when set.
func Classifier(cfg config.PatternsConfig) (*classify.Classifier, error) {
	if cfg.File == "" {
		return classify.Default(), nil
	}
	tables, err := patterns.LoadFile(cfg.File)
	if err != nil {
		return nil, err
	}
	return classify.New(tables)
}

// Deps are the collaborators shared by every provider.
type Deps struct {
	Classifier *classify.Classifier
	Logger     *zap.Logger
	Observer   provider.Observer
	// Quota is consulted by every transport when set.
	Quota provider.Quota
}

// Providers builds the enabled providers, each with its own rate limited
// transport.
func Providers(cfg *config.Config, deps Deps) []provider.Provider {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var out []provider.Provider
	if pc := cfg.Providers.Jira; pc.Enabled {
		out = append(out, provider.NewJiraProvider(providerConfig(pc), options(domain.ProviderJira, pc, deps, logger)))
	}
	if pc := cfg.Providers.GitHub; pc.Enabled {
		out = append(out, provider.NewGitHubProvider(providerConfig(pc), options(domain.ProviderGitHub, pc, deps, logger)))
	}
	if pc := cfg.Providers.Slack; pc.Enabled {
		slack := provider.NewSlackProvider(providerConfig(pc), options(domain.ProviderSlack, pc, deps, logger))
		slack.SetThreadReplies(cfg.Scan.ThreadReplies)
		out = append(out, slack)
	}
	if len(out) == 0 {
		logger.Warn("no providers enabled; set JIRA_TOKEN, GITHUB_TOKEN or SLACK_TOKEN")
	}
	return out
}

// ScanDefaults converts the configured scan bounds.
func ScanDefaults(cfg config.ScanConfig) provider.ScanOptions {
	return provider.ScanOptions{
		MaxChannels:           cfg.MaxChannels,
		MaxConcurrentChannels: cfg.MaxConcurrentChannels,
		BatchSize:             cfg.BatchSize,
		ThreadReplies:         provider.Replies(cfg.ThreadReplies),
		MessagesPerChannel:    cfg.MessagesPerChannel,
	}
}

func providerConfig(pc config.ProviderConfig) provider.Config {
	return provider.Config{
		BaseURL:    pc.BaseURL,
		APIBaseURL: pc.APIBaseURL,
		Token:      pc.Token,
		Email:      pc.Email,
		CacheTTL:   pc.CacheTTL,
	}
}

func options(kind domain.ProviderKind, pc config.ProviderConfig, deps Deps, logger *zap.Logger) provider.Options {
	name := string(kind)
	return provider.Options{
		Transport: provider.NewHTTPTransport(provider.TransportConfig{
			Provider:          name,
			Timeout:           pc.Timeout,
			RequestsPerSecond: pc.RequestsPerSecond,
			Burst:             pc.Burst,
			Quota:             deps.Quota,
			Logger:            logger.With(zap.String("provider", name)),
		}),
		Classifier: deps.Classifier,
		Logger:     logger,
		Observer:   deps.Observer,
	}
}
