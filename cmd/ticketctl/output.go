package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ticketlens/ticket-aggregator/internal/api/dto"
	"github.com/ticketlens/ticket-aggregator/internal/classify"
	"github.com/ticketlens/ticket-aggregator/internal/domain"
	"github.com/ticketlens/ticket-aggregator/internal/presenter"
	apperrors "github.com/ticketlens/ticket-aggregator/pkg/util/errorutil"
)

const maxSummaryWidth = 60

func ticketViews(c *classify.Classifier, ts ...*domain.RecentTicket) []dto.TicketResponse {
	out := make([]dto.TicketResponse, 0, len(ts))
	for _, t := range ts {
		out = append(out, dto.NewTicketResponse(t, c))
	}
	return out
}

func writeTickets(w io.Writer, views []dto.TicketResponse, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if len(views) == 1 {
			return enc.Encode(views[0])
		}
		return enc.Encode(views)
	}

	if len(views) == 0 {
		fmt.Fprintln(w, "No tickets found.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tKEY\tPRIORITY\tSTATUS\tFLAGS\tASSIGNEE\tSUMMARY")
	for _, v := range views {
		assignee := "-"
		if v.Assignee != nil {
			assignee = *v.Assignee
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.Provider, v.Key, v.Priority, v.Status, flagString(v.Flags), assignee, truncate(v.Summary, maxSummaryWidth))
	}
	return tw.Flush()
}

func flagString(f classify.StatusFlags) string {
	var flags []string
	if f.InProgress {
		flags = append(flags, "in-progress")
	}
	if f.ReadyToStart {
		flags = append(flags, "ready")
	}
	if f.Blocked {
		flags = append(flags, "blocked")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// userError keeps the technical error and prefixes the user-facing sentence.
func userError(err error, errCtx string) error {
	de := apperrors.ToDomainError(err)
	return fmt.Errorf("%s\n  (%s: %w)", presenter.ForError(err, errCtx), de.Code, err)
}
