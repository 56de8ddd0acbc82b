package indexdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/command"
	"veinlocate.ai/internal/sim/tuning"
)

// ErrRecentUnsupported is returned by backends that only ingest.
var ErrRecentUnsupported = errors.New("index backend does not serve reads")

type D1Config struct {
	Endpoint string
	Token    string
	// Instance tags every event so one ingest worker can serve many servers.
	Instance      string
	BatchSize     int
	FlushInterval time.Duration
	HTTPTimeout   time.Duration
	Queue         int
	Logger        *log.Logger
}

// D1Index ships query records and catalog rows in batches to an HTTP ingest
// worker that owns the remote database.
type D1Index struct {
	cfg        D1Config
	httpClient *http.Client

	mu     sync.RWMutex
	ch     chan d1Event
	closed bool
	wg     sync.WaitGroup
	once   sync.Once

	dropped atomic.Uint64
	failed  atomic.Uint64
}

type d1Event struct {
	Kind     string `json:"kind"`
	Instance string `json:"instance"`
	Payload  any    `json:"payload"`
}

type d1CatalogPayload struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	JSON      string `json:"json"`
	UpdatedAt string `json:"updated_at"`
}

type d1Batch struct {
	Events []d1Event `json:"events"`
}

func OpenD1(cfg D1Config) (*D1Index, error) {
	cfg.Endpoint = strings.TrimSpace(cfg.Endpoint)
	cfg.Instance = strings.TrimSpace(cfg.Instance)
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("empty d1 ingest endpoint")
	}
	if cfg.Instance == "" {
		cfg.Instance, _ = os.Hostname()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 128
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 500 * time.Millisecond
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 10 * time.Second
	}
	if cfg.Queue <= 0 {
		cfg.Queue = 32768
	}

	d := &D1Index{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		ch:         make(chan d1Event, cfg.Queue),
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.loop()
	}()
	return d, nil
}

// Close flushes whatever is queued and stops the sender.
func (d *D1Index) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.ch)
		d.mu.Unlock()
		d.wg.Wait()
	})
	return nil
}

func (d *D1Index) Dropped() uint64 { return d.dropped.Load() }

// Failed counts events in batches the ingest worker never accepted.
func (d *D1Index) Failed() uint64 { return d.failed.Load() }

func (d *D1Index) WriteQuery(r command.QueryRecord) error {
	d.enqueue(d1Event{Kind: "query", Payload: r})
	return nil
}

func (d *D1Index) UpsertCatalogs(configDir string, veins *catalogs.Veins, tune tuning.Tuning) error {
	if d == nil || veins == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows, err := catalogRows(configDir, veins, tune)
	if err != nil {
		return err
	}
	for _, r := range rows {
		d.enqueue(d1Event{Kind: "catalog", Payload: d1CatalogPayload{
			Name:      r.name,
			Digest:    r.digest,
			JSON:      string(r.json),
			UpdatedAt: now,
		}})
	}
	return nil
}

func (d *D1Index) Recent(ctx context.Context, limit int) ([]command.QueryRecord, error) {
	return nil, ErrRecentUnsupported
}

func (d *D1Index) enqueue(ev d1Event) {
	if d == nil {
		return
	}
	ev.Instance = d.cfg.Instance
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	select {
	case d.ch <- ev:
	default:
		d.dropped.Add(1)
		d.printf("d1 index queue full; drop kind=%s", ev.Kind)
	}
}

func (d *D1Index) loop() {
	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]d1Event, 0, d.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := d.sendBatch(batch); err != nil {
			d.failed.Add(uint64(len(batch)))
			d.printf("d1 index flush failed batch=%d err=%v", len(batch), err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-d.ch:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= d.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (d *D1Index) sendBatch(events []d1Event) error {
	buf, err := json.Marshal(d1Batch{Events: events})
	if err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(100*(1<<(attempt-1))) * time.Millisecond)
		}
		req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(buf))
		if err != nil {
			return err
		}
		req.Header.Set("content-type", "application/json")
		if d.cfg.Token != "" {
			req.Header.Set("x-vl-index-token", d.cfg.Token)
		}
		resp, err := d.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 16*1024))
		_ = resp.Body.Close()
		if resp.StatusCode/100 == 2 {
			return nil
		}
		lastErr = fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		// Client errors will not succeed on retry.
		if resp.StatusCode/100 == 4 {
			return lastErr
		}
	}
	return lastErr
}

func (d *D1Index) printf(format string, args ...any) {
	if d != nil && d.cfg.Logger != nil {
		d.cfg.Logger.Printf(format, args...)
	}
}

type catalogRow struct {
	name   string
	digest string
	json   []byte
}

// catalogRows is shared by both backends: the canonical registry (keyed by
// the registry digest), the raw veins.json when present, the id list and the
// applied tuning.
func catalogRows(configDir string, veins *catalogs.Veins, tune tuning.Tuning) ([]catalogRow, error) {
	b, err := catalogs.Canonical(veins.Defs)
	if err != nil {
		return nil, err
	}
	rows := []catalogRow{{name: "veins", digest: veins.Digest, json: b}}
	if configDir != "" {
		if raw, err := os.ReadFile(filepath.Join(configDir, "veins.json")); err == nil && len(raw) > 0 {
			rows = append(rows, catalogRow{name: "veins_file", digest: sha256Hex(raw), json: raw})
		}
	}
	b, err = json.Marshal(veins.IDs())
	if err != nil {
		return nil, err
	}
	rows = append(rows, catalogRow{name: "vein_ids", digest: sha256Hex(b), json: b})
	b, err = json.Marshal(tune)
	if err != nil {
		return nil, err
	}
	rows = append(rows, catalogRow{name: "tuning", digest: sha256Hex(b), json: b})
	return rows, nil
}
