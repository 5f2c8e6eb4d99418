package timescar_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"golang.org/x/text/encoding/japanese"
)

const (
	testCard1    = "1234"
	testCard2    = "567890"
	testPassword = "secret"
	testCookie   = "TPSESSION"
)

type siteVehicle struct {
	name     string
	marker   string
	occupied []int
	slots    int
}

type siteStation struct {
	name     string
	vehicles []siteVehicle
}

// fakeSite serves a small copy of the member site: a login form, station
// reservation pages, and a timetable search.
type fakeSite struct {
	t        *testing.T
	server   *httptest.Server
	stations map[string]siteStation
	shiftJIS bool

	mu        sync.Mutex
	searches  []map[string]string
	logins    int
	status500 int
	broken    map[string]bool
}

func newFakeSite(t *testing.T, stations map[string]siteStation, opts ...func(*fakeSite)) *fakeSite {
	t.Helper()
	site := &fakeSite{t: t, stations: stations}
	for _, opt := range opts {
		opt(site)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/view/pc/tpLogin.jsp", site.login)
	mux.HandleFunc("/view/member/mypage.jsp", func(w http.ResponseWriter, _ *http.Request) {
		site.write(w, `<html><body><div id="d_page">mypage</div></body></html>`)
	})
	mux.HandleFunc("/view/error/error.jsp", func(w http.ResponseWriter, _ *http.Request) {
		site.write(w, `<html><body><p>error</p></body></html>`)
	})
	mux.HandleFunc("/view/reserve/input.jsp", site.reserve)

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func withShiftJIS(s *fakeSite) { s.shiftJIS = true }

func (s *fakeSite) loginURL() string {
	return s.server.URL + "/view/pc/tpLogin.jsp?siteKbn=TP&doa=ON"
}

func (s *fakeSite) write(w http.ResponseWriter, body string) {
	if s.shiftJIS {
		encoded, err := japanese.ShiftJIS.NewEncoder().String(body)
		if err != nil {
			s.t.Errorf("encode page: %v", err)
		}
		w.Header().Set("Content-Type", "text/html; charset=Shift_JIS")
		_, _ = w.Write([]byte(encoded))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=UTF-8")
	_, _ = w.Write([]byte(body))
}

const loginPage = `<html><body>
<form id="tpLoginForm" action="/view/pc/tpLogin.jsp" method="post">
<input type="hidden" name="siteKbn" value="TP">
<div id="d_contents"><div id="login_area">
<input type="text" id="cardNo1" name="cardNo1" value="">
<input type="text" id="cardNo2" name="cardNo2" value="">
<input type="password" id="tpPassword" name="tpPassword" value="">
<input type="checkbox" name="remember">
<button type="submit" id="doLoginForTp" name="doLoginForTp" value="login">Login</button>
</div></div>
</form>
</body></html>`

func (s *fakeSite) login(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		s.write(w, loginPage)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.logins++
	s.mu.Unlock()

	if r.PostForm.Get("siteKbn") != "TP" || r.PostForm.Get("doLoginForTp") != "login" || r.PostForm.Has("remember") {
		http.Error(w, "unexpected login form", http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("cardNo1") != testCard1 || r.PostForm.Get("cardNo2") != testCard2 ||
		r.PostForm.Get("tpPassword") != testPassword {
		http.Redirect(w, r, "/view/error/error.jsp", http.StatusFound)
		return
	}

	http.SetCookie(w, &http.Cookie{Name: testCookie, Value: "ok", Path: "/"})
	http.Redirect(w, r, "/view/member/mypage.jsp", http.StatusFound)
}

func (s *fakeSite) reserve(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(testCookie); err != nil || c.Value != "ok" {
		http.Redirect(w, r, "/view/pc/tpLogin.jsp", http.StatusFound)
		return
	}

	s.mu.Lock()
	fail := s.status500 > 0
	if fail {
		s.status500--
	}
	s.mu.Unlock()
	if fail {
		http.Error(w, "busy", http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	code := r.Form.Get("scd")

	s.mu.Lock()
	down := s.broken[code]
	s.mu.Unlock()
	if down {
		http.Error(w, "busy", http.StatusInternalServerError)
		return
	}

	station, ok := s.stations[code]
	if !ok {
		http.NotFound(w, r)
		return
	}

	if r.Method == http.MethodGet {
		s.write(w, stationPage(code, station, ""))
		return
	}

	s.mu.Lock()
	s.searches = append(s.searches, map[string]string{
		"scd":       r.PostForm.Get("scd"),
		"dateSpace": r.PostForm.Get("dateSpace"),
		"hourSpace": r.PostForm.Get("hourSpace"),
		"search":    r.PostForm.Get("doSearchTargetTimetable"),
	})
	s.mu.Unlock()

	s.write(w, stationPage(code, station, timetable(station.vehicles)))
}

func stationPage(code string, station siteStation, table string) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	b.WriteString(`<div id="d_search"><div id="isNotMannesStationOrOption">`)
	fmt.Fprintf(&b, `<h2 id="stationNm"> %s </h2>`, station.name)
	b.WriteString(`</div></div>`)
	b.WriteString(`<form id="timetableForm" action="/view/reserve/input.jsp" method="post">`)
	fmt.Fprintf(&b, `<input type="hidden" name="scd" value="%s">`, code)
	b.WriteString(`<div id="isCanReserve"><div id="d_infoarea">`)
	b.WriteString(`<select id="dateSpace" name="dateSpace">`)
	for _, day := range []string{"2021-01-01", "2021-01-02", "2021-01-03"} {
		fmt.Fprintf(&b, `<option value="%s 00:00:00.0">%s</option>`, day, day)
	}
	b.WriteString(`</select><select id="hourSpace" name="hourSpace">`)
	for h := 0; h < 24; h++ {
		fmt.Fprintf(&b, `<option value="%d">%d:00</option>`, h, h)
	}
	b.WriteString(`</select>`)
	b.WriteString(`<input type="submit" id="doSearchTargetTimetable" name="doSearchTargetTimetable" value="search">`)
	b.WriteString(`</div></div></form>`)
	b.WriteString(`<div id="timetableHtmlTag">`)
	b.WriteString(table)
	b.WriteString(`</div></body></html>`)
	return b.String()
}

func timetable(vehicles []siteVehicle) string {
	var b strings.Builder
	for _, v := range vehicles {
		slots := v.slots
		if slots == 0 {
			slots = 48
		}
		occupied := make(map[int]bool, len(v.occupied))
		for _, i := range v.occupied {
			occupied[i] = true
		}

		b.WriteString(`<div class="car">`)
		fmt.Fprintf(&b, `<p class="carname">%s</p>`, v.name)
		b.WriteString(`<table class="info"><tr><th>class</th><th>seats</th><th>fuel</th><th>status</th></tr>`)
		fmt.Fprintf(&b, `<tr><td>Basic</td><td>5</td><td>Hybrid</td><td> %s </td></tr></table>`, v.marker)
		b.WriteString(`<table class="time"><tr>`)
		for i := 0; i < slots; i++ {
			fmt.Fprintf(&b, `<th>%d</th>`, i)
		}
		b.WriteString(`</tr><tr>`)
		for i := 0; i < slots; i++ {
			if occupied[i] {
				b.WriteString(`<td class="reserved"></td>`)
			} else {
				b.WriteString(`<td class="vacant"></td>`)
			}
		}
		b.WriteString(`</tr></table></div>`)
	}
	return b.String()
}

func (s *fakeSite) loginCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

func (s *fakeSite) searchLog() []map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]string(nil), s.searches...)
}

func (s *fakeSite) failNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status500 = n
}

// breakStation makes every request for code answer 500.
func (s *fakeSite) breakStation(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.broken == nil {
		s.broken = make(map[string]bool)
	}
	s.broken[code] = true
}
