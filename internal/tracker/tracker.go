// Package tracker reports generated badge batches to the counter service
// and remembers which registrants already received a badge.
package tracker

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/samber/lo"

	"badge-print-service/internal/models"
)

// Action names the kind of batch that was produced.
type Action string

const (
	ActionDownload Action = "batch-download"
	ActionPrint    Action = "batch-print"
)

// CounterUpdate is sent once per ticket group after a successful run.
type CounterUpdate struct {
	EventID         string   `json:"eventId"`
	TicketID        string   `json:"ticketId"`
	DownloadCount   int      `json:"downloadCount,omitempty"`
	PrintCount      int      `json:"printCount,omitempty"`
	RegistrationIDs []string `json:"registrationIds"`
	Action          Action   `json:"action"`
	IsNewOnly       bool     `json:"isNewOnly"`
}

// Batch describes one finished generation run.
type Batch struct {
	EventID     string
	TicketID    string
	Action      Action
	IsNewOnly   bool
	Registrants []models.Registrant
}

// Notifier delivers counter updates to one transport.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, updates []CounterUpdate) error
}

// Downloads answers which registrants already have a badge for an
// event/ticket pair.
type Downloads interface {
	Downloaded(ctx context.Context, eventID, ticketID string) (map[string]bool, error)
}

// GroupByTicket builds one update per ticket. The batch-level ids win, so
// updates land under the same keys the new-only filter reads; a
// registrant's own event and ticket ids are used only where the batch has
// none. Registrants without an id are not counted.
func GroupByTicket(b Batch) []CounterUpdate {
	type key struct{ event, ticket string }
	withID := lo.Filter(b.Registrants, func(r models.Registrant, _ int) bool { return r.ID() != "" })
	groups := lo.GroupBy(withID, func(r models.Registrant) key {
		return key{
			event:  lo.Ternary(b.EventID != "", b.EventID, r.EventID()),
			ticket: lo.Ternary(b.TicketID != "", b.TicketID, r.TicketID()),
		}
	})

	updates := make([]CounterUpdate, 0, len(groups))
	for k, regs := range groups {
		ids := lo.Uniq(lo.Map(regs, func(r models.Registrant, _ int) string { return r.ID() }))
		u := CounterUpdate{
			EventID:         k.event,
			TicketID:        k.ticket,
			RegistrationIDs: ids,
			Action:          b.Action,
			IsNewOnly:       b.IsNewOnly,
		}
		if b.Action == ActionPrint {
			u.PrintCount = len(ids)
		} else {
			u.DownloadCount = len(ids)
		}
		updates = append(updates, u)
	}
	sort.Slice(updates, func(i, j int) bool {
		if updates[i].EventID != updates[j].EventID {
			return updates[i].EventID < updates[j].EventID
		}
		return updates[i].TicketID < updates[j].TicketID
	})
	return updates
}

// FilterNew keeps the registrants that are not yet recorded as downloaded.
func FilterNew(ctx context.Context, d Downloads, eventID, ticketID string, regs []models.Registrant) ([]models.Registrant, error) {
	done, err := d.Downloaded(ctx, eventID, ticketID)
	if err != nil {
		return nil, err
	}
	return lo.Reject(regs, func(r models.Registrant, _ int) bool { return done[r.ID()] }), nil
}

// Tracker fans a batch out to every configured notifier. Delivery failures
// are logged; the generated document is already with the caller.
type Tracker struct {
	notifiers []Notifier
	downloads Downloads
	log       *slog.Logger
}

// New creates a tracker. Nil notifiers are ignored.
func New(log *slog.Logger, notifiers ...Notifier) *Tracker {
	if log == nil {
		log = slog.Default()
	}
	t := &Tracker{log: log.With("component", "tracker")}
	for _, n := range notifiers {
		if n == nil {
			continue
		}
		t.notifiers = append(t.notifiers, n)
		if d, ok := n.(Downloads); ok && t.downloads == nil {
			t.downloads = d
		}
	}
	return t
}

// Notifiers returns the configured transports.
func (t *Tracker) Notifiers() []Notifier { return t.notifiers }

// Record groups the batch and notifies every transport. It returns the
// joined delivery errors for callers that care; they are already logged.
func (t *Tracker) Record(ctx context.Context, b Batch) error {
	updates := GroupByTicket(b)
	if len(updates) == 0 || len(t.notifiers) == 0 {
		return nil
	}
	var errs []error
	for _, n := range t.notifiers {
		if err := n.Notify(ctx, updates); err != nil {
			t.log.Warn("counter update failed", "notifier", n.Name(), "action", b.Action, "groups", len(updates), "error", err)
			errs = append(errs, err)
			continue
		}
		t.log.Debug("counter update sent", "notifier", n.Name(), "action", b.Action, "groups", len(updates))
	}
	return errors.Join(errs...)
}

// FilterNew drops registrants that already have a badge. Without a
// download store every registrant is new.
func (t *Tracker) FilterNew(ctx context.Context, eventID, ticketID string, regs []models.Registrant) ([]models.Registrant, error) {
	if t == nil || t.downloads == nil {
		return regs, nil
	}
	return FilterNew(ctx, t.downloads, eventID, ticketID, regs)
}
