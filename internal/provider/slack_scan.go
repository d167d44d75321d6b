package provider

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ticketlens/ticket-aggregator/internal/domain"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

// Scan defaults.
const (
	DefaultMaxChannels           = 20
	DefaultMaxConcurrentChannels = 3
	DefaultBatchSize             = 20
	DefaultMessagesPerChannel    = 100
)

// ScanOptions bounds a batch scan. Zero values and a nil ThreadReplies take
// the defaults.
type ScanOptions struct {
	// Channels restricts the scan to these channel ids; empty lists the
	// channels the token can read.
	Channels              []string
	MaxChannels           int
	MaxConcurrentChannels int
	// BatchSize is the page size for history and the number of threads
	// fetched concurrently per channel.
	BatchSize int
	// ThreadReplies caps the replies folded into each ticket; 0 skips threads.
	ThreadReplies      *int
	MessagesPerChannel int
	// Oldest skips messages posted before this time.
	Oldest time.Time
}

func (o ScanOptions) withDefaults() ScanOptions {
	if o.MaxChannels <= 0 {
		o.MaxChannels = DefaultMaxChannels
	}
	if o.MaxConcurrentChannels <= 0 {
		o.MaxConcurrentChannels = DefaultMaxConcurrentChannels
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.ThreadReplies == nil || *o.ThreadReplies < 0 {
		o.ThreadReplies = Replies(defaultThreadReplies)
	}
	if o.MessagesPerChannel <= 0 {
		o.MessagesPerChannel = DefaultMessagesPerChannel
	}
	return o
}

// Replies returns n as a ScanOptions.ThreadReplies value.
func Replies(n int) *int { return &n }

// ScanResult is the outcome of ScanChannels.
type ScanResult struct {
	Tickets         []*domain.RecentTicket `json:"tickets"`
	ChannelsScanned int                    `json:"channels_scanned"`
	MessagesScanned int                    `json:"messages_scanned"`
	// ChannelErrors holds channels that vanished or became unreadable mid-scan.
	ChannelErrors map[string]string `json:"channel_errors,omitempty"`
}

type channelRef struct {
	id   string
	name string
}

// ScanChannels collects task-related messages across channels with bounded
// concurrency. Rate limit, credential and network failures abort the scan;
// a channel that is missing or not readable is recorded and skipped.
func (p *SlackProvider) ScanChannels(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	opts = opts.withDefaults()

	channels, err := p.scanTargets(ctx, opts)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		result = &ScanResult{ChannelErrors: map[string]string{}}
	)
	sem := semaphore.NewWeighted(int64(opts.MaxConcurrentChannels))
	g, gctx := errgroup.WithContext(ctx)

	for _, ch := range channels {
		ch := ch
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)

			tickets, scanned, err := p.scanChannel(gctx, ch, opts)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if apperrors.IsNotFound(err) || isChannelAccessError(err) {
					result.ChannelErrors[ch.id] = err.Error()
					return nil
				}
				return err
			}
			result.ChannelsScanned++
			result.MessagesScanned += scanned
			result.Tickets = append(result.Tickets, tickets...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewTimeoutError("slack scan cancelled", err)
	}

	sort.SliceStable(result.Tickets, func(i, j int) bool {
		a, b := result.Tickets[i], result.Tickets[j]
		if !a.Updated.Equal(b.Updated) {
			return a.Updated.After(b.Updated)
		}
		return a.Key < b.Key
	})
	p.logger.Info("slack scan completed",
		zap.Int("channels", result.ChannelsScanned),
		zap.Int("messages", result.MessagesScanned),
		zap.Int("tickets", len(result.Tickets)),
		zap.Int("channel_errors", len(result.ChannelErrors)))
	return result, nil
}

// isChannelAccessError matches per-channel permission problems such as
// not_in_channel, as opposed to a rejected token.
func isChannelAccessError(err error) bool {
	var de *apperrors.DomainError
	if !apperrors.IsPermission(err) || !errors.As(err, &de) {
		return false
	}
	code, _ := de.Details["slack_error"].(string)
	return code == "not_in_channel" || code == "access_denied"
}

func (p *SlackProvider) scanTargets(ctx context.Context, opts ScanOptions) ([]channelRef, error) {
	if len(opts.Channels) > 0 {
		refs := make([]channelRef, 0, len(opts.Channels))
		for _, id := range opts.Channels {
			refs = append(refs, channelRef{id: id})
			if len(refs) == opts.MaxChannels {
				break
			}
		}
		return refs, nil
	}
	return p.listChannels(ctx, opts)
}

func (p *SlackProvider) listChannels(ctx context.Context, opts ScanOptions) ([]channelRef, error) {
	var (
		refs   []channelRef
		cursor string
	)
	for len(refs) < opts.MaxChannels {
		query := urlValues(map[string]string{
			"types":            "public_channel,private_channel",
			"exclude_archived": "true",
			"limit":            strconv.Itoa(opts.BatchSize),
			"cursor":           cursor,
		})
		var out struct {
			Channels []struct {
				ID       string `json:"id"`
				Name     string `json:"name"`
				IsMember *bool  `json:"is_member"`
			} `json:"channels"`
			ResponseMetadata struct {
				NextCursor string `json:"next_cursor"`
			} `json:"response_metadata"`
		}
		if err := p.call(ctx, "conversations.list", query, "slack channels", &out); err != nil {
			return nil, err
		}
		for _, ch := range out.Channels {
			if ch.IsMember != nil && !*ch.IsMember {
				continue
			}
			refs = append(refs, channelRef{id: ch.ID, name: ch.Name})
			if len(refs) == opts.MaxChannels {
				break
			}
		}
		cursor = out.ResponseMetadata.NextCursor
		if cursor == "" {
			break
		}
	}
	return refs, nil
}

// scanChannel pages through history, keeps task-related messages and folds
// their threads in. Threads are fetched BatchSize at a time.
func (p *SlackProvider) scanChannel(ctx context.Context, ch channelRef, opts ScanOptions) ([]*domain.RecentTicket, int, error) {
	if ch.name == "" {
		ch.name = p.channelName(ctx, ch.id)
	}

	var (
		candidates []slackMessage
		scanned    int
		cursor     string
	)
	for scanned < opts.MessagesPerChannel {
		params := map[string]string{
			"channel": ch.id,
			"limit":   strconv.Itoa(min(opts.BatchSize, opts.MessagesPerChannel-scanned)),
			"cursor":  cursor,
		}
		if !opts.Oldest.IsZero() {
			params["oldest"] = strconv.FormatInt(opts.Oldest.Unix(), 10)
		}
		var out slackHistory
		if err := p.call(ctx, "conversations.history", urlValues(params), "slack channel "+ch.id, &out); err != nil {
			return nil, scanned, err
		}
		for _, msg := range out.Messages {
			scanned++
			if skipSubtype(msg.Subtype) {
				continue
			}
			if p.classifier.IsTaskRelated(msg.Text, ch.name) {
				candidates = append(candidates, msg)
			}
		}
		cursor = out.ResponseMetadata.NextCursor
		if !out.HasMore || cursor == "" {
			break
		}
	}

	if err := p.fetchThreads(ctx, ch.id, candidates, opts); err != nil {
		return nil, scanned, err
	}

	tickets := make([]*domain.RecentTicket, 0, len(candidates))
	for i := range candidates {
		msg := &candidates[i]
		msg.Channel = slackChannel{ID: ch.id, Name: ch.name}
		ticket := p.mapMessage(msg)
		p.store(ticket.Key, ticket)
		tickets = append(tickets, ticket.Clone())
	}
	return tickets, scanned, nil
}

// fetchThreads loads the replies of every threaded message, running one
// chunk of BatchSize fetches concurrently before starting the next.
func (p *SlackProvider) fetchThreads(ctx context.Context, channel string, msgs []slackMessage, opts ScanOptions) error {
	limit := *opts.ThreadReplies
	if limit == 0 {
		return nil
	}
	for start := 0; start < len(msgs); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(msgs))
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			msg := &msgs[i]
			if msg.ReplyCount == 0 {
				continue
			}
			g.Go(func() error {
				replies, err := p.fetchReplies(gctx, channel, msg.TS, limit)
				if err != nil {
					return err
				}
				msg.Replies = replies
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		p.logger.Debug("slack threads fetched", zap.String("channel", channel), zap.Int("batch_end", end))
	}
	return nil
}

// channelName looks up a channel's name for the task-channel heuristic. A
// failed lookup only disables that heuristic.
func (p *SlackProvider) channelName(ctx context.Context, id string) string {
	var out struct {
		Channel slackChannel `json:"channel"`
	}
	if err := p.call(ctx, "conversations.info", urlValues(map[string]string{"channel": id}), "slack channel "+id, &out); err != nil {
		p.logger.Debug("channel name lookup failed", zap.String("channel", id), zap.Error(err))
		return ""
	}
	return out.Channel.Name
}

// skipSubtype drops join/leave and other housekeeping messages.
func skipSubtype(subtype string) bool {
	switch subtype {
	case "", "bot_message", "thread_broadcast", "file_share", "me_message":
		return false
	default:
		return true
	}
}
