package main

import (
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"veinlocate.ai/internal/persistence/indexdb"
	"veinlocate.ai/internal/protocol"
	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/command"
	"veinlocate.ai/internal/sim/terrain/gen"
)

type memQueries struct {
	mu   sync.Mutex
	recs []command.QueryRecord
}

func (m *memQueries) WriteQuery(r command.QueryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, r)
	return nil
}

func (m *memQueries) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.recs)
}

func newTestAPI(t *testing.T, prob int) (*api, *http.ServeMux, *memQueries) {
	t.Helper()
	veins, err := catalogs.New([]catalogs.VeinDef{
		{ID: "mod:iron", Name: "Iron Vein", Weight: 1, MinY: 0, MaxY: 32},
		{ID: "mod:gold", Name: "Gold Vein", Weight: 1, MinY: -16, MaxY: 0},
	})
	if err != nil {
		t.Fatalf("veins: %v", err)
	}
	env := &command.Env{
		Veins:         veins,
		Placer:        &gen.Generator{Seed: 7, Size: 16, VeinProbPermille: prob, Veins: veins},
		Seed:          7,
		DefaultRadius: 2,
		MaxRadius:     8,
	}
	q := &memQueries{}
	a := &api{env: env, queries: q, log: log.New(io.Discard, "", 0)}
	mux := http.NewServeMux()
	a.register(mux)
	return a, mux, q
}

func get(t *testing.T, mux http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestLocate_Found(t *testing.T) {
	_, mux, q := newTestAPI(t, 1000)

	rr := get(t, mux, "/v1/locate?x=3.5&y=64&z=-2&request_id=req-1")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp protocol.LocateResp
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Type != protocol.TypeLocateResult || resp.RequestID != "req-1" {
		t.Fatalf("unexpected envelope: %+v", resp)
	}
	if !resp.Found || resp.Nearest == nil {
		t.Fatalf("expected a vein with every cell populated: %+v", resp)
	}
	if resp.Radius != 2 || resp.CellSize != 16 || resp.Seed != 7 {
		t.Fatalf("defaults not applied: radius=%d cell=%d seed=%d", resp.Radius, resp.CellSize, resp.Seed)
	}
	if len(resp.All) == 0 {
		t.Fatalf("expected in-range veins")
	}
	for _, h := range resp.All {
		if h.Distance > float64(resp.Radius*resp.CellSize) {
			t.Fatalf("hit beyond radius: %+v", h)
		}
	}
	if len(resp.Report) == 0 || !strings.Contains(strings.Join(resp.Report, "\n"), "Vein Locate") {
		t.Fatalf("missing report: %v", resp.Report)
	}
	if q.len() != 1 {
		t.Fatalf("expected one recorded query, got %d", q.len())
	}
}

func TestLocate_NotFound(t *testing.T) {
	_, mux, _ := newTestAPI(t, 0)

	rr := get(t, mux, "/v1/locate?x=0&z=0&vein=mod:gold&radius=4")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rr.Code, rr.Body.String())
	}
	var resp protocol.LocateResp
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Found || resp.Nearest != nil || len(resp.All) != 0 {
		t.Fatalf("expected not found: %+v", resp)
	}
}

func TestLocate_Rejected(t *testing.T) {
	_, mux, q := newTestAPI(t, 1000)

	cases := []struct {
		target string
		status int
		code   string
	}{
		{"/v1/locate?z=0", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/locate?x=a&z=0", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/locate?x=0&z=0&radius=two", http.StatusBadRequest, protocol.ErrBadRequest},
		{"/v1/locate?x=0&z=0&vein=mod:nope", http.StatusUnprocessableEntity, protocol.ErrInvalidTarget},
		{"/v1/locate?x=0&z=0&radius=9", http.StatusUnprocessableEntity, protocol.ErrOutOfRange},
		{"/v1/locate?x=0&z=0&radius=-1", http.StatusUnprocessableEntity, protocol.ErrOutOfRange},
	}
	for _, tc := range cases {
		rr := get(t, mux, tc.target)
		if rr.Code != tc.status {
			t.Fatalf("%s: status got %d want %d", tc.target, rr.Code, tc.status)
		}
		var e protocol.ErrorMsg
		if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
			t.Fatalf("%s: decode: %v", tc.target, err)
		}
		if e.Type != protocol.TypeError || e.Code != tc.code {
			t.Fatalf("%s: got %+v want code %s", tc.target, e, tc.code)
		}
	}
	// Only queries that reached the command layer are recorded.
	if q.len() != 3 {
		t.Fatalf("recorded queries: got %d want 3", q.len())
	}
}

func TestLocate_NonFiniteOrHugeOrigin(t *testing.T) {
	_, mux, q := newTestAPI(t, 1000)

	for _, target := range []string{
		"/v1/locate?x=NaN&z=0&radius=1",
		"/v1/locate?x=Inf&z=0&radius=1",
		"/v1/locate?x=-Inf&z=0",
		"/v1/locate?x=1e300&z=0&radius=1",
		"/v1/locate?x=0&y=NaN&z=0",
		"/v1/locate?x=0&z=-30000001",
	} {
		rr := get(t, mux, target)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: status got %d body=%q", target, rr.Code, rr.Body.String())
		}
		var e protocol.ErrorMsg
		if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
			t.Fatalf("%s: decode %q: %v", target, rr.Body.String(), err)
		}
		if e.Code != protocol.ErrBadRequest {
			t.Fatalf("%s: code got %s", target, e.Code)
		}
	}
	if q.len() != 0 {
		t.Fatalf("rejected origins must not be recorded, got %d", q.len())
	}

	// The world border itself is still searchable.
	if rr := get(t, mux, "/v1/locate?x=30000000&z=-30000000&radius=1"); rr.Code != http.StatusOK {
		t.Fatalf("border origin: status got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestWriteJSON_UnencodableIs500(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSON(rr, http.StatusOK, map[string]float64{"d": math.NaN()})
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", rr.Code)
	}
	var e protocol.ErrorMsg
	if err := json.Unmarshal(rr.Body.Bytes(), &e); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if e.Code != protocol.ErrInternal {
		t.Fatalf("code: got %s", e.Code)
	}
}

func TestLocate_MethodNotAllowed(t *testing.T) {
	_, mux, _ := newTestAPI(t, 1000)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/locate?x=0&z=0", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: got %d", rr.Code)
	}
}

func TestVeins(t *testing.T) {
	a, mux, _ := newTestAPI(t, 1000)
	rr := get(t, mux, "/v1/veins")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	var resp protocol.VeinsResp
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Digest != a.env.Veins.Digest || len(resp.Veins) != 2 {
		t.Fatalf("unexpected listing: %+v", resp)
	}
	if resp.Veins[0].ID != "mod:gold" || resp.Veins[1].ID != "mod:iron" {
		t.Fatalf("expected sorted ids, got %s %s", resp.Veins[0].ID, resp.Veins[1].ID)
	}
}

func TestMetrics(t *testing.T) {
	_, mux, _ := newTestAPI(t, 1000)
	_ = get(t, mux, "/v1/locate?x=0&z=0")
	_ = get(t, mux, "/v1/locate?x=0&z=0&vein=mod:nope")

	body := get(t, mux, "/metrics").Body.String()
	for _, want := range []string{
		`veinlocate_queries_total{result="found"} 1`,
		`veinlocate_queries_total{result="rejected"} 1`,
		`veinlocate_catalog_veins 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestAdminQueries(t *testing.T) {
	t.Setenv("VL_ENABLE_ADMIN_HTTP", "true")

	a, _, _ := newTestAPI(t, 1000)
	idx, err := indexdb.OpenSQLite(indexPath(t.TempDir()))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	defer idx.Close()
	a.index = idx
	a.queries = idx
	mux := http.NewServeMux()
	a.register(mux)

	_ = get(t, mux, "/v1/locate?x=0&z=0&request_id=q-1")

	// Remote callers are refused.
	if rr := get(t, mux, "/admin/v1/queries"); rr.Code != http.StatusForbidden {
		t.Fatalf("non-loopback: got %d", rr.Code)
	}

	var found bool
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && !found {
		req := httptest.NewRequest(http.MethodGet, "/admin/v1/queries?limit=5", nil)
		req.RemoteAddr = "127.0.0.1:5555"
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("loopback: got %d body=%s", rr.Code, rr.Body.String())
		}
		var resp struct {
			OK      bool                  `json:"ok"`
			Queries []command.QueryRecord `json:"queries"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		for _, r := range resp.Queries {
			if r.ID == "q-1" && r.Source == "http" && r.Found {
				found = true
			}
		}
		if !found {
			time.Sleep(20 * time.Millisecond)
		}
	}
	if !found {
		t.Fatalf("query q-1 never reached the index")
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:80": true,
		"[::1]:443":    true,
		"10.0.0.4:80":  false,
		"garbage":      false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", addr, got, want)
		}
	}
}
