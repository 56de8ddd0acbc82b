// Package command implements the /veinlocate console command:
//
//	/veinlocate                      nearest vein of any kind, default radius
//	/veinlocate mod:iron             nearest iron vein
//	/veinlocate mod:iron 32          nearest iron vein within 32 chunks
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"veinlocate.ai/internal/protocol"
	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/grid"
	"veinlocate.ai/internal/sim/locate"
	"veinlocate.ai/internal/sim/terrain/gen"
	"veinlocate.ai/internal/sim/tuning"
)

const (
	Name          = "veinlocate"
	DefaultRadius = 16
)

var errUsage = errors.New("usage: /veinlocate [vein] [radius]")

type Request struct {
	VeinID    string
	Radius    int
	RadiusSet bool
}

func Parse(args []string) (Request, error) {
	var req Request
	if len(args) > 2 {
		return req, errUsage
	}
	if len(args) >= 1 {
		req.VeinID = strings.TrimSpace(args[0])
	}
	if len(args) == 2 {
		r, err := strconv.Atoi(strings.TrimSpace(args[1]))
		if err != nil {
			return req, fmt.Errorf("bad radius %q: %w", args[1], errUsage)
		}
		req.Radius = r
		req.RadiusSet = true
	}
	return req, nil
}

// Env carries everything a query reads. It is shared by concurrent callers
// and never modified after construction.
type Env struct {
	Veins         *catalogs.Veins
	Placer        locate.Placer
	Seed          int64
	DefaultRadius int
	MaxRadius     int
}

type Result struct {
	// Status is 1 when a vein was found, 0 otherwise.
	Status int

	Origin   grid.Vec3
	Radius   int
	CellSize int
	Seed     int64
	Target   string

	Found   bool
	Nearest locate.Match
	All     []locate.Match

	// Code and Message are set when the query was rejected before searching.
	Code    string
	Message string
}

func (e *Env) Exec(origin grid.Vec3, req Request) Result {
	res := Result{
		Origin:   origin,
		CellSize: e.Placer.CellSize(),
		Seed:     e.Seed,
		Target:   req.VeinID,
		Radius:   req.Radius,
	}
	if !req.RadiusSet {
		res.Radius = e.DefaultRadius
		if res.Radius <= 0 {
			res.Radius = DefaultRadius
		}
	}

	if err := origin.Check(); err != nil {
		res.Origin = grid.Vec3{}
		res.Code = protocol.ErrBadRequest
		res.Message = fmt.Sprintf("Position out of range: %v", err)
		return res
	}
	if req.VeinID != "" {
		if _, err := e.Veins.Resolve(req.VeinID); err != nil {
			res.Code = protocol.ErrInvalidTarget
			res.Message = fmt.Sprintf("Unknown vein: %s", req.VeinID)
			return res
		}
	}
	if err := locate.ValidateRadius(res.Radius, e.MaxRadius); err != nil {
		res.Code = protocol.ErrOutOfRange
		res.Message = fmt.Sprintf("Radius must be between 0 and %d chunks", e.MaxRadius)
		return res
	}

	pred := locate.MatchID(req.VeinID)
	res.Nearest, res.Found = locate.Locate(origin, e.Placer, res.Radius, pred)
	if !res.Found {
		return res
	}
	res.Status = 1
	res.All = locate.All(origin, e.Placer, res.Radius, pred)
	return res
}

// Run parses args and executes them. Parse failures come back as a rejected
// Result, so callers always get something to print.
func (e *Env) Run(origin grid.Vec3, args []string) Result {
	req, err := Parse(args)
	if err != nil {
		return Result{
			Origin:   origin,
			CellSize: e.Placer.CellSize(),
			Seed:     e.Seed,
			Code:     protocol.ErrBadRequest,
			Message:  err.Error(),
		}
	}
	return e.Exec(origin, req)
}

// NewEnv builds the query environment from a loaded registry and tuning.
func NewEnv(veins *catalogs.Veins, tune tuning.Tuning) *Env {
	return &Env{
		Veins: veins,
		Placer: &gen.Generator{
			Seed:             tune.Seed,
			Size:             tune.CellSize,
			VeinProbPermille: tune.VeinProbPermille,
			BiomeRegionSize:  tune.BiomeRegionSize,
			Veins:            veins,
		},
		Seed:          tune.Seed,
		DefaultRadius: tune.DefaultRadius,
		MaxRadius:     tune.MaxRadius,
	}
}
