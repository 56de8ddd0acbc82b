package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"veinlocate.ai/internal/persistence/indexdb"
	"veinlocate.ai/internal/protocol"
	"veinlocate.ai/internal/sim/command"
	"veinlocate.ai/internal/sim/grid"
)

type api struct {
	env     *command.Env
	queries command.QueryLogger
	index   runtimeIndex
	log     *log.Logger

	found    atomic.Uint64
	notFound atomic.Uint64
	rejected atomic.Uint64
}

func (a *api) register(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", a.handleMetrics)
	mux.HandleFunc("/v1/locate", a.handleLocate)
	mux.HandleFunc("/v1/veins", a.handleVeins)

	if envBool("VL_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only; reads the query index.
		mux.HandleFunc("/admin/v1/queries", a.handleRecentQueries)
	} else if a.log != nil {
		a.log.Printf("admin endpoints disabled (VL_ENABLE_ADMIN_HTTP=false)")
	}
}

func (a *api) handleLocate(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	requestID := strings.TrimSpace(q.Get("request_id"))

	origin, err := parseOrigin(q.Get("x"), q.Get("y"), q.Get("z"))
	if err != nil {
		writeJSON(rw, http.StatusBadRequest, protocol.NewError(requestID, protocol.ErrBadRequest, err.Error()))
		return
	}
	req := command.Request{VeinID: strings.TrimSpace(q.Get("vein"))}
	if s := strings.TrimSpace(q.Get("radius")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			writeJSON(rw, http.StatusBadRequest, protocol.NewError(requestID, protocol.ErrBadRequest, "bad radius"))
			return
		}
		req.Radius = n
		req.RadiusSet = true
	}

	res := a.env.Exec(origin, req)
	rec := command.NewRecord(requestID, "http", res, time.Now())
	a.count(res)
	if a.queries != nil {
		if err := a.queries.WriteQuery(rec); err != nil && a.log != nil {
			a.log.Printf("http: record query %s: %v", rec.ID, err)
		}
	}

	resp, errMsg := res.Wire(rec.ID)
	if errMsg != nil {
		status := http.StatusUnprocessableEntity
		if errMsg.Code == protocol.ErrBadRequest {
			status = http.StatusBadRequest
		}
		writeJSON(rw, status, errMsg)
		return
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (a *api) handleVeins(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(rw, http.StatusOK, command.VeinsList(a.env.Veins))
}

func (a *api) handleRecentQueries(rw http.ResponseWriter, r *http.Request) {
	if !isLoopbackRemote(r.RemoteAddr) {
		http.Error(rw, "forbidden", http.StatusForbidden)
		return
	}
	if a.index == nil {
		writeJSON(rw, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": "index disabled"})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := a.index.Recent(r.Context(), limit)
	if errors.Is(err, indexdb.ErrRecentUnsupported) {
		writeJSON(rw, http.StatusNotImplemented, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(rw, http.StatusInternalServerError, map[string]any{"ok": false, "error": err.Error()})
		return
	}
	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "queries": recs})
}

func (a *api) handleMetrics(rw http.ResponseWriter, r *http.Request) {
	rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(rw, "# HELP veinlocate_queries_total Locate queries served over HTTP.\n")
	fmt.Fprintf(rw, "# TYPE veinlocate_queries_total counter\n")
	fmt.Fprintf(rw, "veinlocate_queries_total{result=%q} %d\n", "found", a.found.Load())
	fmt.Fprintf(rw, "veinlocate_queries_total{result=%q} %d\n", "not_found", a.notFound.Load())
	fmt.Fprintf(rw, "veinlocate_queries_total{result=%q} %d\n", "rejected", a.rejected.Load())

	fmt.Fprintf(rw, "# HELP veinlocate_catalog_veins Registered vein descriptors.\n")
	fmt.Fprintf(rw, "# TYPE veinlocate_catalog_veins gauge\n")
	fmt.Fprintf(rw, "veinlocate_catalog_veins %d\n", len(a.env.Veins.Defs))

	if d, ok := a.index.(interface{ Dropped() uint64 }); ok {
		fmt.Fprintf(rw, "# HELP veinlocate_index_dropped_total Query records dropped by the index writer.\n")
		fmt.Fprintf(rw, "# TYPE veinlocate_index_dropped_total counter\n")
		fmt.Fprintf(rw, "veinlocate_index_dropped_total %d\n", d.Dropped())
	}
}

func (a *api) count(res command.Result) {
	switch {
	case res.Code != "":
		a.rejected.Add(1)
	case res.Found:
		a.found.Add(1)
	default:
		a.notFound.Add(1)
	}
}

func parseOrigin(xs, ys, zs string) (grid.Vec3, error) {
	var v grid.Vec3
	for _, f := range []struct {
		name string
		raw  string
		dst  *float64
	}{
		{"x", xs, &v.X},
		{"y", ys, &v.Y},
		{"z", zs, &v.Z},
	} {
		s := strings.TrimSpace(f.raw)
		if s == "" {
			if f.name == "y" {
				continue
			}
			return v, fmt.Errorf("missing %s", f.name)
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return v, fmt.Errorf("bad %s: %q", f.name, f.raw)
		}
		if err := grid.CheckAxis(f.name, n); err != nil {
			return v, err
		}
		*f.dst = n
	}
	return v, nil
}

// writeJSON encodes before writing the header so an unencodable value becomes
// a 500 instead of an empty 200.
func writeJSON(rw http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		b, _ = json.Marshal(protocol.NewError("", protocol.ErrInternal, "encode response"))
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_, _ = rw.Write(append(b, '\n'))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
