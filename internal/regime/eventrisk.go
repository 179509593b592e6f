package regime

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/zerotrading/zero/internal/contracts"
	"github.com/zerotrading/zero/pkg/config"
	"github.com/zerotrading/zero/pkg/httputil"
	"github.com/zerotrading/zero/pkg/logger"
)

// recentGrace keeps the flag up briefly after a release hits: a print that
// just landed still moves the tape.
const recentGrace = 5 * time.Minute

// EventCalendar scrapes a configured economic-calendar page and reports
// whether a high-impact event lands inside the lookahead window.
// ⭐ SSOT: the event-risk flag is derived only here
type EventCalendar struct {
	httpClient *httputil.Client
	cfg        config.EventCalendarConfig
	loc        *time.Location
	logger     *logger.Logger
	now        func() time.Time
}

var _ contracts.EventRiskSource = (*EventCalendar)(nil)

// NewEventCalendar builds the scraper. A disabled config yields a source
// that always answers false without touching the network.
func NewEventCalendar(httpClient *httputil.Client, cfg config.EventCalendarConfig, loc *time.Location, log *logger.Logger) *EventCalendar {
	return &EventCalendar{
		httpClient: httpClient,
		cfg:        cfg,
		loc:        loc,
		logger:     log,
		now:        time.Now,
	}
}

// Active fetches the calendar page and scans today's rows. Errors mean
// "unknown"; the regime service treats unknown as no event and logs it.
func (e *EventCalendar) Active(ctx context.Context) (bool, error) {
	if !e.cfg.Enabled {
		return false, nil
	}

	resp, err := e.httpClient.Get(ctx, e.cfg.URL)
	if err != nil {
		return false, fmt.Errorf("event calendar fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("event calendar fetch: status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return false, fmt.Errorf("event calendar parse: %w", err)
	}

	now := e.now().In(e.loc)
	active := e.scan(doc, now)
	if active {
		e.logger.WithField("window", e.cfg.Window.String()).Info("High-impact event inside window")
	}
	return active, nil
}

// scan walks the page's table rows. A row counts when it is marked high
// impact and its clock time falls inside [now-grace, now+window]. The page
// is assumed to show the current day; calendar pages that mix days would
// need a dated fetch URL instead.
func (e *EventCalendar) scan(doc *goquery.Document, now time.Time) bool {
	deadline := now.Add(e.cfg.Window)
	earliest := now.Add(-recentGrace)

	active := false
	doc.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		if !rowHighImpact(row) {
			return true
		}
		eventTime, ok := rowEventTime(row, now)
		if !ok {
			return true
		}
		if !eventTime.Before(earliest) && !eventTime.After(deadline) {
			active = true
			return false
		}
		return true
	})
	return active
}

// rowHighImpact matches the impact markers calendar sites commonly use:
// a data-impact attribute, or an impact-classed element flagged high/red.
func rowHighImpact(row *goquery.Selection) bool {
	if v := strings.ToLower(row.AttrOr("data-impact", "")); strings.Contains(v, "high") {
		return true
	}
	marker := row.Find("[class*=impact]").First()
	if marker.Length() == 0 {
		return false
	}
	cls := strings.ToLower(marker.AttrOr("class", ""))
	if strings.Contains(cls, "high") || strings.Contains(cls, "red") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(marker.Text()), "high")
}

var clockRe = regexp.MustCompile(`^\d{1,2}:\d{2}(?:\s?(?i:am|pm))?$`)

// rowEventTime extracts the first cell that reads as a clock time and pins
// it to today's date in the exchange timezone.
func rowEventTime(row *goquery.Selection, now time.Time) (time.Time, bool) {
	var parsed time.Time
	found := false

	row.Find("td").EachWithBreak(func(_ int, cell *goquery.Selection) bool {
		text := strings.TrimSpace(cell.Text())
		if !clockRe.MatchString(text) {
			return true
		}
		for _, layout := range []string{"15:04", "3:04pm", "3:04PM", "3:04 pm", "3:04 PM"} {
			t, err := time.Parse(layout, text)
			if err != nil {
				continue
			}
			parsed = time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, now.Location())
			found = true
			return false
		}
		return true
	})

	return parsed, found
}
