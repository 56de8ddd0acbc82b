package command

import (
	"time"

	"github.com/google/uuid"
)

// QueryRecord is the audit form of one executed query.
type QueryRecord struct {
	ID       string     `json:"id"`
	At       string     `json:"at"`
	Source   string     `json:"source"`
	Origin   [3]float64 `json:"origin"`
	Vein     string     `json:"vein,omitempty"`
	Radius   int        `json:"radius"`
	Status   int        `json:"status"`
	Code     string     `json:"code,omitempty"`
	Found    bool       `json:"found"`
	Nearest  string     `json:"nearest,omitempty"`
	Pos      [3]int     `json:"pos,omitempty"`
	Distance float64    `json:"distance,omitempty"`
	InRange  int        `json:"in_range"`
}

// QueryLogger receives one record per executed query.
type QueryLogger interface {
	WriteQuery(QueryRecord) error
}

func NewQueryID() string { return uuid.New().String() }

func NewRecord(id, source string, res Result, at time.Time) QueryRecord {
	if id == "" {
		id = NewQueryID()
	}
	r := QueryRecord{
		ID:      id,
		At:      at.UTC().Format(time.RFC3339Nano),
		Source:  source,
		Origin:  [3]float64{res.Origin.X, res.Origin.Y, res.Origin.Z},
		Vein:    res.Target,
		Radius:  res.Radius,
		Status:  res.Status,
		Code:    res.Code,
		Found:   res.Found,
		InRange: len(res.All),
	}
	if res.Found {
		r.Nearest = res.Nearest.Vein.ID
		r.Pos = [3]int{res.Nearest.Pos.X, res.Nearest.Pos.Y, res.Nearest.Pos.Z}
		r.Distance = res.Nearest.Distance
	}
	return r
}

// MultiLogger fans a record out to every logger; the first error wins but
// every logger still sees the record.
type MultiLogger []QueryLogger

func (m MultiLogger) WriteQuery(r QueryRecord) error {
	var first error
	for _, l := range m {
		if l == nil {
			continue
		}
		if err := l.WriteQuery(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
