package timescar

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/provider/resilience"
)

// Page selectors.
const (
	cardNo1Selector      = "#d_contents > #login_area #cardNo1"
	cardNo2Selector      = "#d_contents > #login_area #cardNo2"
	passwordSelector     = "#d_contents > #login_area #tpPassword"
	loginButtonSelector  = "#doLoginForTp"
	stationNameSelector  = "#d_search > #isNotMannesStationOrOption #stationNm"
	dateSelectSelector   = "#isCanReserve > #d_infoarea #dateSpace"
	hourSelectSelector   = "#isCanReserve > #d_infoarea #hourSpace"
	searchButtonSelector = "#isCanReserve > #d_infoarea #doSearchTargetTimetable"
	vehicleSelector      = "#timetableHtmlTag > div"
	carNameSelector      = "p.carname"
	statusCellSelector   = "tbody > tr:nth-child(2) > td:nth-child(4)"
	slotCellSelector     = "table.time tr:last-child > td"
	vacantClass          = "vacant"

	dateOptionLayout = "2006-01-02"
	dateOptionSuffix = " 00:00:00.0"
)

// Session is one logged-in browsing session. It keeps the last loaded
// page and the select choices made on it. Not safe for concurrent use.
type Session struct {
	client *Client
	http   *resilience.Client
	logger zerolog.Logger

	page     *goquery.Document
	pageURL  *url.URL
	selected url.Values
	closed   bool
}

var _ availability.Session = (*Session)(nil)

func (s *Session) login(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.client.loginURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	if err := s.load(req); err != nil {
		return fmt.Errorf("load login page: %w", err)
	}

	card1, err := s.find(cardNo1Selector)
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	card2, err := s.find(cardNo2Selector)
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}
	password, err := s.find(passwordSelector)
	if err != nil {
		return fmt.Errorf("login form: %w", err)
	}

	form := card1.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("login form: %w: form around %s", ErrElementNotFound, cardNo1Selector)
	}

	values := formFields(form)
	values.Set(fieldName(card1), s.client.credentials.CardNumber1)
	values.Set(fieldName(card2), s.client.credentials.CardNumber2)
	values.Set(fieldName(password), s.client.credentials.Password)

	submit, err := formRequest(ctx, form, s.pageURL, values, form.Find(loginButtonSelector))
	if err != nil {
		return fmt.Errorf("build login request: %w", err)
	}
	if err := s.load(submit); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	// The site answers bad credentials with a redirect to its error page,
	// or by showing the login form again.
	if strings.Contains(s.pageURL.Path, errorPagePath) || s.page.Find(cardNo1Selector).Length() > 0 {
		return ErrLoginFailed
	}
	return nil
}

// load performs req and makes the response the current page.
func (s *Session) load(req *http.Request) error {
	resp, err := s.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: unexpected status %d", req.Method, req.URL.Redacted(), resp.StatusCode)
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return fmt.Errorf("decode page: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	s.page = doc
	s.pageURL = resp.Request.URL
	s.selected = url.Values{}

	s.logger.Debug().
		Str("method", req.Method).
		Str("url", s.pageURL.Redacted()).
		Int("status", resp.StatusCode).
		Msg("provider page loaded")
	return nil
}

func (s *Session) ready(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	return ctx.Err()
}

func (s *Session) loaded(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if s.page == nil {
		return fmt.Errorf("%w: no page loaded", ErrElementNotFound)
	}
	return nil
}

func (s *Session) find(selector string) (*goquery.Selection, error) {
	sel := s.page.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return sel, nil
}

// GotoStation loads the reservation page of a station.
func (s *Session) GotoStation(ctx context.Context, endpoint availability.StationEndpoint) error {
	if err := s.ready(ctx); err != nil {
		return err
	}

	target, err := s.client.StationURL(endpoint)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create station request: %w", err)
	}
	return s.load(req)
}

// ReadStationName reads the station display name.
func (s *Session) ReadStationName(ctx context.Context) (string, error) {
	if err := s.loaded(ctx); err != nil {
		return "", err
	}
	sel, err := s.find(stationNameSelector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

// SelectDate chooses the timetable date. The site lists dates as
// "YYYY-MM-DD 00:00:00.0".
func (s *Session) SelectDate(ctx context.Context, date time.Time) error {
	return s.choose(ctx, dateSelectSelector, date.Format(dateOptionLayout)+dateOptionSuffix)
}

// SelectHour chooses the first hour the timetable shows.
func (s *Session) SelectHour(ctx context.Context, hour int) error {
	return s.choose(ctx, hourSelectSelector, strconv.Itoa(hour))
}

func (s *Session) choose(ctx context.Context, selector, value string) error {
	if err := s.loaded(ctx); err != nil {
		return err
	}
	sel, err := s.find(selector)
	if err != nil {
		return err
	}
	if findOption(sel, value).Length() == 0 {
		return fmt.Errorf("%w: %s has no option %q", ErrOptionNotFound, selector, value)
	}
	s.selected.Set(fieldName(sel), value)
	return nil
}

// SubmitSearch submits the form holding the search button with the
// chosen date and hour, and loads the resulting timetable.
func (s *Session) SubmitSearch(ctx context.Context) error {
	if err := s.loaded(ctx); err != nil {
		return err
	}
	button, err := s.find(searchButtonSelector)
	if err != nil {
		return err
	}
	form := button.Closest("form")
	if form.Length() == 0 {
		return fmt.Errorf("%w: form around %s", ErrElementNotFound, searchButtonSelector)
	}

	values := formFields(form)
	for name, v := range s.selected {
		values[name] = v
	}

	req, err := formRequest(ctx, form, s.pageURL, values, button)
	if err != nil {
		return fmt.Errorf("build search request: %w", err)
	}
	return s.load(req)
}

// ListVehicleEntries returns the vehicle blocks of the loaded timetable in
// page order. A page without any is not an error here.
func (s *Session) ListVehicleEntries(ctx context.Context) ([]availability.VehicleEntry, error) {
	if err := s.loaded(ctx); err != nil {
		return nil, err
	}

	var entries []availability.VehicleEntry
	s.page.Find(vehicleSelector).Each(func(_ int, sel *goquery.Selection) {
		entries = append(entries, &vehicleEntry{sel: sel})
	})
	return entries, nil
}

// Close ends the session. Page calls made afterwards fail with ErrSessionClosed.
func (s *Session) Close() error {
	s.closed = true
	s.page = nil
	s.selected = nil
	return nil
}

type vehicleEntry struct {
	sel *goquery.Selection
}

func (e *vehicleEntry) find(selector string) (*goquery.Selection, error) {
	sel := e.sel.Find(selector).First()
	if sel.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	return sel, nil
}

func (e *vehicleEntry) ReadName() (string, error) {
	sel, err := e.find(carNameSelector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

func (e *vehicleEntry) ReadStatusMarker() (string, error) {
	sel, err := e.find(statusCellSelector)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(sel.Text()), nil
}

func (e *vehicleEntry) ReadSlotVacancySequence() ([]bool, error) {
	cells := e.sel.Find(slotCellSelector)
	if cells.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrElementNotFound, slotCellSelector)
	}
	slots := make([]bool, 0, cells.Length())
	cells.Each(func(_ int, cell *goquery.Selection) {
		slots = append(slots, cell.HasClass(vacantClass))
	})
	return slots, nil
}
