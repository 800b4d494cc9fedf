package watch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/klmry/stockwatch/pkg/classify"
	"github.com/klmry/stockwatch/pkg/fetch"
	"github.com/klmry/stockwatch/pkg/notify"
	"github.com/klmry/stockwatch/pkg/state"
)

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Page(ctx context.Context, pageURL string) (*fetch.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &fetch.Result{StatusCode: 200, Body: f.body}, nil
}

type fakeNotifier struct {
	sent []notify.Message
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, msg notify.Message) error {
	n.sent = append(n.sent, msg)
	return n.err
}

type fakeStore struct {
	st      state.WatchState
	found   bool
	saved   *state.WatchState
	saveErr error
}

func (s *fakeStore) Load(ctx context.Context) (state.WatchState, bool) {
	return s.st, s.found
}

func (s *fakeStore) Save(ctx context.Context, st state.WatchState) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saved = &st
	return nil
}

func eastern(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("loading timezone: %v", err)
	}
	return loc
}

func fixedNow(t *testing.T, loc *time.Location, value string) func() time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", value, loc)
	if err != nil {
		t.Fatalf("parsing fixture time: %v", err)
	}
	return func() time.Time { return ts }
}

func testConfig(t *testing.T, loc *time.Location) (Config, *fakeNotifier, *fakeStore) {
	notifier := &fakeNotifier{}
	store := &fakeStore{}
	return Config{
		PageURL:            "https://shop.example.com/widget",
		SiteLabel:          "example.com",
		PrimaryRecipient:   "me@example.com",
		SecondaryRecipient: "5551234@sms.example.net",
		Location:           loc,
		Fetcher:            &fakeFetcher{body: "nothing interesting"},
		Notifier:           notifier,
		Store:              store,
	}, notifier, store
}

const inStockPage = `<html><head><title>Widget Deluxe</title></head>
<body><button>Buy Now</button></body></html>`

func TestRun_RestockRisingEdge(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: inStockPage}
	cfg.Now = fixedNow(t, loc, "2024-01-02 14:00")
	store.st = state.WatchState{LastInStock: false}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !result.RestockFired {
		t.Fatalf("expected restock alert on rising edge")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if len(msg.Recipients) != 2 {
		t.Fatalf("restock alert should go to primary and secondary, got %v", msg.Recipients)
	}
	if !strings.Contains(msg.Subject, "Back in stock") {
		t.Fatalf("unexpected subject: %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "https://shop.example.com/widget") {
		t.Fatalf("expected page URL in body: %q", msg.Body)
	}
}

func TestRun_NoRestockAlertWhenAlreadyInStock(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: inStockPage}
	cfg.Now = fixedNow(t, loc, "2024-01-02 14:00")
	store.st = state.WatchState{LastInStock: true}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.RestockFired || len(notifier.sent) != 0 {
		t.Fatalf("level-triggered alert fired; should only fire on the rising edge")
	}
}

func TestRun_NoRestockAlertWhenOutOfStock(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: "Sorry, sold out. Add to cart disabled."}
	cfg.Now = fixedNow(t, loc, "2024-01-02 14:00")
	store.st = state.WatchState{LastInStock: true}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Verdict {
		t.Fatalf("expected out-of-stock verdict")
	}
	if result.RestockFired || len(notifier.sent) != 0 {
		t.Fatalf("no alert should fire on a falling edge or while out of stock")
	}
	if store.saved == nil || store.saved.LastInStock {
		t.Fatalf("expected persisted verdict to become false, got %+v", store.saved)
	}
}

func TestRun_DailyReportInsideWindow(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:14")
	store.st = state.WatchState{LastDailyReportDate: "2024-01-01"}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !result.DailyFired {
		t.Fatalf("expected daily report at 08:14 with a stale watermark")
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected exactly one notification, got %d", len(notifier.sent))
	}
	msg := notifier.sent[0]
	if len(msg.Recipients) != 1 || msg.Recipients[0] != "me@example.com" {
		t.Fatalf("daily report must go to the primary recipient only, got %v", msg.Recipients)
	}
	if !strings.Contains(msg.Subject, "OUT OF STOCK") {
		t.Fatalf("expected verdict in subject, got %q", msg.Subject)
	}
	if store.saved.LastDailyReportDate != "2024-01-02" {
		t.Fatalf("expected watermark updated to today, got %q", store.saved.LastDailyReportDate)
	}
}

func TestRun_DailyReportOutsideWindow(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:16")
	store.st = state.WatchState{LastDailyReportDate: "2024-01-01"}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.DailyFired || len(notifier.sent) != 0 {
		t.Fatalf("daily report fired outside the 08:00-08:14 window")
	}
	if store.saved.LastDailyReportDate != "2024-01-01" {
		t.Fatalf("watermark must not move outside the window, got %q", store.saved.LastDailyReportDate)
	}
}

func TestRun_DailyReportAlreadySentToday(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:05")
	store.st = state.WatchState{LastDailyReportDate: "2024-01-02"}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.DailyFired || len(notifier.sent) != 0 {
		t.Fatalf("daily report re-fired inside the same day")
	}
}

// End-to-end scenario: restock and daily report due in the same run.
func TestRun_BothTriggersSameRun(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: inStockPage}
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:10")
	store.st = state.WatchState{LastInStock: false, LastFingerprint: "abc", LastDailyReportDate: "2024-01-01"}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !result.RestockFired || !result.DailyFired {
		t.Fatalf("expected both triggers to fire, got %+v", result)
	}
	if len(notifier.sent) != 2 {
		t.Fatalf("expected two notifications, got %d", len(notifier.sent))
	}
	// Restock alert first, to the full recipient set; then the daily
	// report to the primary only.
	if len(notifier.sent[0].Recipients) != 2 {
		t.Fatalf("first notification should be the restock alert: %+v", notifier.sent[0])
	}
	if len(notifier.sent[1].Recipients) != 1 {
		t.Fatalf("second notification should be the daily report: %+v", notifier.sent[1])
	}
	if !strings.Contains(notifier.sent[1].Subject, "IN STOCK") {
		t.Fatalf("daily report should carry the current verdict: %q", notifier.sent[1].Subject)
	}

	wantFP := classify.Fingerprint(inStockPage)
	want := state.WatchState{LastInStock: true, LastFingerprint: wantFP, LastDailyReportDate: "2024-01-02"}
	if store.saved == nil || *store.saved != want {
		t.Fatalf("persisted state mismatch: got %+v, want %+v", store.saved, want)
	}
}

// End-to-end scenario: nothing due, state still advances.
func TestRun_QuietRunStillPersists(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: inStockPage}
	cfg.Now = fixedNow(t, loc, "2024-01-02 14:00")
	store.st = state.WatchState{LastInStock: true, LastFingerprint: "old", LastDailyReportDate: "2024-01-02"}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("expected a quiet run, got %d notifications", len(notifier.sent))
	}
	if store.saved == nil {
		t.Fatalf("state must persist on every successful run")
	}
	if store.saved.LastFingerprint == "old" {
		t.Fatalf("fingerprint should update every run")
	}
	if !result.Verdict || !store.saved.LastInStock {
		t.Fatalf("verdict should persist unchanged")
	}
}

// Two runs in the same morning window: the second sees the first run's
// watermark and stays quiet.
func TestRun_DailyReportIdempotentWithinWindow(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:03")
	store.found = true

	if _, err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected first run to send the daily report")
	}

	store.st = *store.saved
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:09")

	if _, err := Run(context.Background(), cfg); err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("second run inside the window re-sent the daily report")
	}
}

func TestRun_NotificationFailureStillPersists(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: inStockPage}
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:10")
	notifier.err = errors.New("mail API returned 500")
	store.st = state.WatchState{LastInStock: false, LastDailyReportDate: "2024-01-01"}
	store.found = true

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("delivery failure must not fail the run: %v", err)
	}
	if len(result.Errors) != 2 {
		t.Fatalf("expected both delivery failures collected, got %v", result.Errors)
	}
	// State still advances: the stale transition must not be re-detected
	// forever, and a failed report waits for the next day.
	if store.saved == nil || !store.saved.LastInStock || store.saved.LastDailyReportDate != "2024-01-02" {
		t.Fatalf("state did not advance past failed deliveries: %+v", store.saved)
	}
}

func TestRun_FetchFailureIsFatal(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{err: errors.New("unexpected status 503")}
	cfg.Now = fixedNow(t, loc, "2024-01-02 08:10")

	result, err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected a fatal error when the fetch fails")
	}
	if result != nil {
		t.Fatalf("expected no result on fetch failure")
	}
	if len(notifier.sent) != 0 || store.saved != nil {
		t.Fatalf("no side effects may happen after a failed fetch")
	}
}

func TestRun_PersistFailureSurfaced(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: inStockPage}
	cfg.Now = fixedNow(t, loc, "2024-01-02 14:00")
	store.saveErr = errors.New("disk full")

	result, err := Run(context.Background(), cfg)
	if err == nil {
		t.Fatalf("expected persist failure to be surfaced")
	}
	if result == nil {
		t.Fatalf("notifications already happened; result must be returned alongside the error")
	}
	if !result.RestockFired || len(notifier.sent) != 1 {
		t.Fatalf("alert should have been sent before the failed persist")
	}
}

func TestRun_FirstRunDefaults(t *testing.T) {
	loc := eastern(t)
	cfg, notifier, store := testConfig(t, loc)
	cfg.Fetcher = &fakeFetcher{body: inStockPage}
	cfg.Now = fixedNow(t, loc, "2024-01-02 14:00")
	store.found = false

	result, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	// Defaults mean lastInStock=false, so an in-stock page on the very
	// first run counts as a rising edge.
	if !result.RestockFired || len(notifier.sent) != 1 {
		t.Fatalf("expected restock alert on first run with in-stock page")
	}
}
