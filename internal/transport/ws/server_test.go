package ws

import (
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

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

func newTestServer(t *testing.T) (*httptest.Server, *memQueries) {
	t.Helper()
	veins, err := catalogs.New([]catalogs.VeinDef{
		{ID: "mod:iron", Name: "Iron Vein", Weight: 1, MinY: 0, MaxY: 32},
	})
	if err != nil {
		t.Fatalf("veins: %v", err)
	}
	env := &command.Env{
		Veins:         veins,
		Placer:        &gen.Generator{Seed: 1, Size: 16, VeinProbPermille: 1000, Veins: veins},
		Seed:          1,
		DefaultRadius: 2,
		MaxRadius:     8,
	}
	q := &memQueries{}
	s := NewServer(env, q, log.New(io.Discard, "", 0))
	return httptest.NewServer(s.Handler()), q
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) []byte {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}

func TestServer_LocateRoundTrip(t *testing.T) {
	srv, q := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	b := roundTrip(t, conn, `{"type":"LOCATE","protocol_version":"1.0","request_id":"r1","pos":[8,64,8]}`)
	var resp protocol.LocateResp
	if err := json.Unmarshal(b, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Type != protocol.TypeLocateResult || resp.RequestID != "r1" {
		t.Fatalf("unexpected reply: %s", b)
	}
	if !resp.Found || resp.Nearest == nil || resp.Nearest.Vein != "mod:iron" {
		t.Fatalf("expected iron vein, got %s", b)
	}
	if resp.Radius != 2 {
		t.Fatalf("default radius: got %d", resp.Radius)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.recs) != 1 || q.recs[0].ID != "r1" || q.recs[0].Source != "ws" {
		t.Fatalf("query not recorded: %+v", q.recs)
	}
}

func TestServer_ErrorsStayOnConnection(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	cases := map[string]string{
		`not json`:                                                                   protocol.ErrProtoBadRequest,
		`{"type":"LOCATE","protocol_version":"0.1","pos":[0,0,0]}`:                   protocol.ErrProtoBadRequest,
		`{"type":"LOCATE","protocol_version":"1.0","pos":[0,0,0],"vein":"mod:gold"}`: protocol.ErrInvalidTarget,
		`{"type":"LOCATE","protocol_version":"1.0","pos":[0,0,0],"radius":99}`:       protocol.ErrOutOfRange,
		`{"type":"LOCATE","protocol_version":"1.0","pos":[1e300,0,0]}`:               protocol.ErrBadRequest,
		`{"type":"LOCATE","protocol_version":"1.0","pos":[0,0,-30000001]}`:           protocol.ErrBadRequest,
	}
	for msg, code := range cases {
		var e protocol.ErrorMsg
		if err := json.Unmarshal(roundTrip(t, conn, msg), &e); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if e.Type != protocol.TypeError || e.Code != code {
			t.Fatalf("%s: got %+v want code %s", msg, e, code)
		}
	}
}

func TestServer_VeinsListing(t *testing.T) {
	srv, _ := newTestServer(t)
	defer srv.Close()
	conn := dial(t, srv)
	defer conn.Close()

	var resp protocol.VeinsResp
	if err := json.Unmarshal(roundTrip(t, conn, `{"type":"VEINS","protocol_version":"1.0"}`), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Type != protocol.TypeVeins || len(resp.Veins) != 1 || resp.Veins[0].ID != "mod:iron" {
		t.Fatalf("unexpected listing: %+v", resp)
	}
}
