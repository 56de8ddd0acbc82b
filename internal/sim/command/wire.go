package command

import (
	"bytes"
	"strings"

	"veinlocate.ai/internal/protocol"
	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/grid"
	"veinlocate.ai/internal/sim/locate"
)

// Wire converts res into its protocol form. Rejected queries come back as an
// ErrorMsg instead.
func (res Result) Wire(requestID string) (protocol.LocateResp, *protocol.ErrorMsg) {
	if res.Code != "" {
		e := protocol.NewError(requestID, res.Code, res.Message)
		return protocol.LocateResp{}, &e
	}
	out := protocol.LocateResp{
		Type:            protocol.TypeLocateResult,
		ProtocolVersion: protocol.Version,
		RequestID:       requestID,
		Seed:            res.Seed,
		CellSize:        res.CellSize,
		Radius:          res.Radius,
		Found:           res.Found,
		All:             make([]protocol.VeinHit, 0, len(res.All)),
	}
	if res.Found {
		h := hit(res.Nearest)
		out.Nearest = &h
	}
	for _, m := range res.All {
		out.All = append(out.All, hit(m))
	}
	var buf bytes.Buffer
	if err := Render(&buf, res); err == nil {
		out.Report = strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	}
	return out, nil
}

func hit(m locate.Match) protocol.VeinHit {
	return protocol.VeinHit{
		Vein:     m.Vein.ID,
		Name:     catalogs.Label(m.Vein),
		Pos:      [3]int{m.Pos.X, m.Pos.Y, m.Pos.Z},
		Cell:     [2]int{m.Cell.X, m.Cell.Z},
		Distance: m.Distance,
	}
}

// VeinsList is the protocol listing of the registry.
func VeinsList(v *catalogs.Veins) protocol.VeinsResp {
	out := protocol.VeinsResp{
		Type:            protocol.TypeVeins,
		ProtocolVersion: protocol.Version,
		Digest:          v.Digest,
		Veins:           make([]protocol.VeinRef, 0, len(v.Defs)),
	}
	for _, d := range v.Defs {
		out.Veins = append(out.Veins, protocol.VeinRef{
			ID:     d.ID,
			Name:   catalogs.Label(d),
			Weight: d.Weight,
			MinY:   d.MinY,
			MaxY:   d.MaxY,
			Biomes: d.Biomes,
		})
	}
	return out
}

// FromWire maps a LOCATE message onto an origin and a command request. An
// origin outside the world bounds is an error.
func FromWire(m protocol.LocateReq) (grid.Vec3, Request, error) {
	req := Request{VeinID: strings.TrimSpace(m.Vein)}
	if m.Radius != nil {
		req.Radius = *m.Radius
		req.RadiusSet = true
	}
	origin := grid.Vec3{X: m.Pos[0], Y: m.Pos[1], Z: m.Pos[2]}
	if err := origin.Check(); err != nil {
		return grid.Vec3{}, req, err
	}
	return origin, req, nil
}
