// Package watch runs one full watch cycle: fetch, classify, decide which
// notifications are due, send them, persist the new state.
package watch

import (
	"context"
	"fmt"
	"time"

	"github.com/klmry/stockwatch/pkg/classify"
	"github.com/klmry/stockwatch/pkg/civil"
	"github.com/klmry/stockwatch/pkg/fetch"
	"github.com/klmry/stockwatch/pkg/notify"
	"github.com/klmry/stockwatch/pkg/page"
	"github.com/klmry/stockwatch/pkg/state"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

// nopLogger silently discards all messages.
type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// Fetcher retrieves the raw page for a URL.
type Fetcher interface {
	Page(ctx context.Context, pageURL string) (*fetch.Result, error)
}

// Store persists the watch state across runs.
type Store interface {
	Load(ctx context.Context) (state.WatchState, bool)
	Save(ctx context.Context, st state.WatchState) error
}

// Config holds everything Run needs for a single watch cycle.
type Config struct {
	PageURL            string
	SiteLabel          string // short label for subject lines
	PrimaryRecipient   string
	SecondaryRecipient string // optional, restock alerts only
	Location           *time.Location

	Fetcher  Fetcher
	Notifier notify.Notifier
	Store    Store
	Log      Logger           // optional; nil = no logging
	Now      func() time.Time // optional; defaults to time.Now
}

// Result holds the outcome of a single watch cycle.
type Result struct {
	Verdict     bool
	Fingerprint string
	Moment      civil.Moment

	RestockFired bool // restock alert was due and attempted
	DailyFired   bool // daily report was due and attempted

	Errors []error // non-fatal delivery failures
}

// Run executes one watch cycle.
//
// Two independent triggers are evaluated, restock alert first:
//
//   - restock alert: fires on the rising edge of the in-stock verdict,
//     regardless of time of day, to the full recipient set.
//   - daily report: fires inside the morning window when no report has gone
//     out for the current civil date yet, to the primary recipient only.
//
// A failed notification is logged and collected but never stops the cycle:
// state must still advance, otherwise every later run would re-detect the
// same stale transition. The flip side is that a lost alert is not retried;
// it is simply missed until the trigger condition naturally recurs.
//
// Overlapping invocations are not safe — the store has no locking — so the
// external scheduler must guarantee non-overlapping runs.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	log := cfg.Log
	if log == nil {
		log = nopLogger{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	fetched, err := cfg.Fetcher.Page(ctx, cfg.PageURL)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}

	verdict := classify.InStock(fetched.Body)
	fp := classify.Fingerprint(fetched.Body)

	prior, found := cfg.Store.Load(ctx)
	if !found {
		log.Debugf("No prior state found, starting from defaults")
	}

	moment := civil.At(now(), cfg.Location)
	log.Debugf("Verdict=%v fingerprint=%s civil=%s %02d:%02d", verdict, fp, moment.Date, moment.Hour, moment.Minute)

	result := &Result{
		Verdict:     verdict,
		Fingerprint: fp,
		Moment:      moment,
	}

	summary := page.Summarize(fetched.Body)

	if verdict && !prior.LastInStock {
		result.RestockFired = true
		msg := restockMessage(cfg, summary, fp)
		if err := cfg.Notifier.Send(ctx, msg); err != nil {
			log.Errorf("Restock alert delivery failed: %v", err)
			result.Errors = append(result.Errors, fmt.Errorf("restock alert: %w", err))
		} else {
			log.Infof("Restock alert sent to %d recipient(s)", len(msg.Recipients))
		}
	}

	if civil.InWindow(moment) && prior.LastDailyReportDate != moment.Date {
		result.DailyFired = true
		msg := dailyMessage(cfg, verdict, fp)
		if err := cfg.Notifier.Send(ctx, msg); err != nil {
			log.Errorf("Daily report delivery failed: %v", err)
			result.Errors = append(result.Errors, fmt.Errorf("daily report: %w", err))
		} else {
			log.Infof("Daily report sent")
		}
		// Advance the watermark even when delivery failed: a failed report
		// is missed until the next day, not re-attempted every tick inside
		// the window.
		prior.LastDailyReportDate = moment.Date
	}

	prior.LastInStock = verdict
	prior.LastFingerprint = fp
	if err := cfg.Store.Save(ctx, prior); err != nil {
		return result, fmt.Errorf("persisting watch state: %w", err)
	}

	return result, nil
}

func restockMessage(cfg Config, sum page.Summary, fp string) notify.Message {
	item := sum.Title
	if item == "" {
		item = cfg.SiteLabel
	}

	body := fmt.Sprintf("The watched item appears to be back in stock.\n\n%s\n", cfg.PageURL)
	if sum.Title != "" {
		body += fmt.Sprintf("\nTitle: %s\n", sum.Title)
	}
	if sum.Description != "" {
		body += fmt.Sprintf("Description: %s\n", sum.Description)
	}
	body += fmt.Sprintf("\nPage snapshot: %s\n", fp)

	recipients := []string{cfg.PrimaryRecipient}
	if cfg.SecondaryRecipient != "" {
		recipients = append(recipients, cfg.SecondaryRecipient)
	}

	return notify.Message{
		Subject:    fmt.Sprintf("Back in stock: %s", item),
		Body:       body,
		Recipients: recipients,
	}
}

func dailyMessage(cfg Config, verdict bool, fp string) notify.Message {
	status := "OUT OF STOCK"
	if verdict {
		status = "IN STOCK"
	}

	body := fmt.Sprintf("Daily status for %s\n\n%s\n\nCurrent verdict: %s\nPage snapshot: %s\n",
		cfg.SiteLabel, cfg.PageURL, status, fp)

	// Primary recipient only: the secondary channel is reserved for the
	// restock alert so it stays quiet day to day.
	return notify.Message{
		Subject:    fmt.Sprintf("Daily stock report (%s): %s", cfg.SiteLabel, status),
		Body:       body,
		Recipients: []string{cfg.PrimaryRecipient},
	}
}
