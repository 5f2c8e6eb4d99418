package timescar_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slotwatch/slotwatch/internal/availability"
	"github.com/slotwatch/slotwatch/internal/provider/resilience"
	"github.com/slotwatch/slotwatch/internal/timescar"
)

func testStations() map[string]siteStation {
	return map[string]siteStation{
		"U882": {
			name: "新宿三丁目",
			vehicles: []siteVehicle{
				{name: "ホンダ フィット", marker: "○"},
				{name: "トヨタ プリウス", marker: "△", occupied: []int{5}},
				{name: "マツダ 3", marker: "×", occupied: []int{1, 9}},
			},
		},
		"V558": {
			name:     "池袋西口",
			vehicles: []siteVehicle{{name: "Note", marker: "○", occupied: []int{2}}},
		},
		"CU30": {name: "Empty lot"},
	}
}

func newTestClient(t *testing.T, site *fakeSite, creds timescar.Credentials, registry *resilience.Registry) *timescar.Client {
	t.Helper()

	rc := resilience.ClientConfig{
		Name:            timescar.ProviderName,
		Timeout:         5 * time.Second,
		MaxRetries:      2,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Registry:        registry,
	}

	client, err := timescar.NewClient(timescar.ClientConfig{
		BaseURL:     site.server.URL,
		LoginURL:    site.loginURL(),
		Credentials: creds,
		HTTPClient:  resilience.NewClient(rc),
		Logger:      zerolog.New(io.Discard),
	})
	require.NoError(t, err)
	return client
}

func goodCredentials() timescar.Credentials {
	return timescar.Credentials{CardNumber1: testCard1, CardNumber2: testCard2, Password: testPassword}
}

func request(t *testing.T) availability.ReservationRequest {
	t.Helper()
	jst := time.FixedZone("JST", 9*60*60)
	req, err := availability.NewReservationRequest(time.Date(2021, 1, 2, 14, 30, 0, 0, jst), 90, 0)
	require.NoError(t, err)
	return req
}

func TestCredentials_Validate(t *testing.T) {
	assert.NoError(t, goodCredentials().Validate())

	err := timescar.Credentials{CardNumber1: "1"}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, timescar.ErrMissingCredentials)
	assert.Contains(t, err.Error(), "card number 2")
	assert.Contains(t, err.Error(), "password")
}

func TestNewClient_Defaults(t *testing.T) {
	client, err := timescar.NewClient(timescar.ClientConfig{Credentials: goodCredentials()})
	require.NoError(t, err)

	u, err := client.StationURL("U882")
	require.NoError(t, err)
	assert.Equal(t, "https://share.timescar.jp/view/reserve/input.jsp?scd=U882", u)

	_, err = timescar.NewClient(timescar.ClientConfig{BaseURL: "share.timescar.jp"})
	assert.Error(t, err)
}

func TestClient_StationURL(t *testing.T) {
	client, err := timescar.NewClient(timescar.ClientConfig{BaseURL: "https://example.test/"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		endpoint availability.StationEndpoint
		expected string
		wantErr  bool
	}{
		{name: "bare code", endpoint: "CN94", expected: "https://example.test/view/reserve/input.jsp?scd=CN94"},
		{name: "code with spaces", endpoint: " Q186 ", expected: "https://example.test/view/reserve/input.jsp?scd=Q186"},
		{
			name:     "full url",
			endpoint: "https://share.timescar.jp/view/reserve/input.jsp?scd=U882",
			expected: "https://share.timescar.jp/view/reserve/input.jsp?scd=U882",
		},
		{name: "empty", endpoint: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := client.StationURL(tt.endpoint)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestClient_OpenLogsIn(t *testing.T) {
	site := newFakeSite(t, testStations())
	registry := resilience.NewRegistry()
	client := newTestClient(t, site, goodCredentials(), registry)

	session, err := client.OpenSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	assert.Equal(t, 1, site.loginCount())

	health := registry.GetHealth(timescar.ProviderName)
	require.NotNil(t, health)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Equal(t, gobreaker.StateClosed, health.CircuitState)
}

func TestClient_OpenRejectsBadCredentials(t *testing.T) {
	site := newFakeSite(t, testStations())
	creds := goodCredentials()
	creds.Password = "wrong"
	client := newTestClient(t, site, creds, nil)

	session, err := client.Open(context.Background())
	assert.Nil(t, session)
	assert.ErrorIs(t, err, timescar.ErrLoginFailed)
}

func TestClient_OpenRequiresCredentials(t *testing.T) {
	site := newFakeSite(t, testStations())
	client := newTestClient(t, site, timescar.Credentials{}, nil)

	_, err := client.Open(context.Background())
	assert.ErrorIs(t, err, timescar.ErrMissingCredentials)
	assert.Zero(t, site.loginCount(), "no login attempt without credentials")
}

func TestSession_ReadsTimetable(t *testing.T) {
	site := newFakeSite(t, testStations())
	session, err := newTestClient(t, site, goodCredentials(), nil).OpenSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	ctx := context.Background()
	req := request(t)

	require.NoError(t, session.GotoStation(ctx, "U882"))

	name, err := session.ReadStationName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "新宿三丁目", name)

	require.NoError(t, session.SelectDate(ctx, req.Start))
	require.NoError(t, session.SelectHour(ctx, req.Start.Hour()))
	require.NoError(t, session.SubmitSearch(ctx))

	searches := site.searchLog()
	require.Len(t, searches, 1)
	assert.Equal(t, map[string]string{
		"scd":       "U882",
		"dateSpace": "2021-01-02 00:00:00.0",
		"hourSpace": "14",
		"search":    "search",
	}, searches[0])

	entries, err := session.ListVehicleEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	carName, err := entries[1].ReadName()
	require.NoError(t, err)
	assert.Equal(t, "トヨタ プリウス", carName)

	marker, err := entries[1].ReadStatusMarker()
	require.NoError(t, err)
	assert.Equal(t, "△", marker)

	slots, err := entries[1].ReadSlotVacancySequence()
	require.NoError(t, err)
	require.Len(t, slots, 48)
	assert.False(t, slots[5])
	assert.True(t, slots[4])
}

func TestSession_ShiftJISPages(t *testing.T) {
	site := newFakeSite(t, testStations(), withShiftJIS)

	session, err := newTestClient(t, site, goodCredentials(), nil).OpenSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	ctx := context.Background()
	require.NoError(t, session.GotoStation(ctx, "V558"))

	name, err := session.ReadStationName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "池袋西口", name)

	require.NoError(t, session.SelectDate(ctx, request(t).Start))
	require.NoError(t, session.SelectHour(ctx, 14))
	require.NoError(t, session.SubmitSearch(ctx))

	entries, err := session.ListVehicleEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	marker, err := entries[0].ReadStatusMarker()
	require.NoError(t, err)
	assert.Equal(t, "○", marker)
}

func TestSession_MissingOptions(t *testing.T) {
	site := newFakeSite(t, testStations())
	session, err := newTestClient(t, site, goodCredentials(), nil).OpenSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	ctx := context.Background()
	require.NoError(t, session.GotoStation(ctx, "U882"))

	err = session.SelectDate(ctx, time.Date(2021, 2, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, timescar.ErrOptionNotFound)

	err = session.SelectHour(ctx, 25)
	assert.ErrorIs(t, err, timescar.ErrOptionNotFound)
}

func TestSession_UnknownStation(t *testing.T) {
	site := newFakeSite(t, testStations())
	session, err := newTestClient(t, site, goodCredentials(), nil).OpenSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	err = session.GotoStation(context.Background(), "ZZ99")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestSession_RetriesServerErrors(t *testing.T) {
	site := newFakeSite(t, testStations())
	session, err := newTestClient(t, site, goodCredentials(), nil).OpenSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	site.failNext(1)

	ctx := context.Background()
	require.NoError(t, session.GotoStation(ctx, "U882"))
	name, err := session.ReadStationName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "新宿三丁目", name)
}

func TestSession_ClosedRejectsCalls(t *testing.T) {
	site := newFakeSite(t, testStations())
	session, err := newTestClient(t, site, goodCredentials(), nil).OpenSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, session.Close())

	err = session.GotoStation(context.Background(), "U882")
	assert.ErrorIs(t, err, timescar.ErrSessionClosed)
	_, err = session.ReadStationName(context.Background())
	assert.ErrorIs(t, err, timescar.ErrSessionClosed)
}

func TestSession_ElementMissingBeforeSearch(t *testing.T) {
	site := newFakeSite(t, testStations())
	session, err := newTestClient(t, site, goodCredentials(), nil).OpenSession(context.Background())
	require.NoError(t, err)
	defer session.Close()

	// The member top page has no station header.
	_, err = session.ReadStationName(context.Background())
	assert.ErrorIs(t, err, timescar.ErrElementNotFound)
}

func TestScanner_AgainstSite(t *testing.T) {
	site := newFakeSite(t, testStations())
	client := newTestClient(t, site, goodCredentials(), nil)

	scanner := availability.NewScanner(availability.ScannerConfig{
		Sessions: client,
		Logger:   zerolog.New(io.Discard),
	})

	stations := []availability.StationEndpoint{"U882", "CU30", "ZZ99", "V558"}
	result, err := scanner.Scan(context.Background(), stations, request(t))
	require.NoError(t, err)

	require.Len(t, result.Reports, 2)
	assert.Equal(t, "新宿三丁目", result.Reports[0].StationName)
	assert.Equal(t, []availability.VehicleAvailability{
		{CarName: "ホンダ フィット", Status: availability.StatusAvailable, IsAvailable: true},
		{CarName: "トヨタ プリウス", Status: availability.StatusPartial, IsAvailable: false},
		{CarName: "マツダ 3", Status: availability.StatusUnavailable, IsAvailable: true},
	}, result.Reports[0].Vehicles)

	assert.Equal(t, "池袋西口", result.Reports[1].StationName)
	assert.False(t, result.Reports[1].Vehicles[0].IsAvailable)

	require.Len(t, result.Failures, 2)
	assert.Equal(t, availability.StationEndpoint("CU30"), result.Failures[0].Endpoint)
	assert.Equal(t, availability.StationEndpoint("ZZ99"), result.Failures[1].Endpoint)
	assert.Equal(t, 1, site.loginCount(), "one login per scan")
}

func TestScanner_FailingStationDoesNotBlockOthers(t *testing.T) {
	stations := testStations()
	stations["Q186"] = siteStation{
		name:     "渋谷公園通り",
		vehicles: []siteVehicle{{name: "Yaris", marker: "○"}},
	}
	site := newFakeSite(t, stations)
	site.breakStation("U882")

	rc := resilience.ClientConfig{
		Name:            timescar.ProviderName,
		Timeout:         5 * time.Second,
		MaxRetries:      5,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
	httpClient := resilience.NewClient(rc)
	client, err := timescar.NewClient(timescar.ClientConfig{
		BaseURL:     site.server.URL,
		LoginURL:    site.loginURL(),
		Credentials: goodCredentials(),
		HTTPClient:  httpClient,
		Logger:      zerolog.New(io.Discard),
	})
	require.NoError(t, err)

	scanner := availability.NewScanner(availability.ScannerConfig{
		Sessions: client,
		Logger:   zerolog.New(io.Discard),
	})

	endpoints := []availability.StationEndpoint{"U882", "V558", "Q186"}
	result, err := scanner.Scan(context.Background(), endpoints, request(t))
	require.NoError(t, err)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, availability.StationEndpoint("U882"), result.Failures[0].Endpoint)
	require.Len(t, result.Reports, 2)
	assert.Equal(t, "池袋西口", result.Reports[0].StationName)
	assert.Equal(t, "渋谷公園通り", result.Reports[1].StationName)
	assert.Equal(t, gobreaker.StateClosed, httpClient.CircuitBreakerState())
}
