package command

import (
	"bufio"
	"fmt"
	"io"

	"veinlocate.ai/internal/protocol"
	"veinlocate.ai/internal/sim/catalogs"
)

const (
	reportHeader = "========== Vein Locate =========="
	reportFooter = "================================="
	reportRule   = "---"
)

// Render writes the multi-line chat report for res.
func Render(w io.Writer, res Result) error {
	bw := bufio.NewWriter(w)
	line := func(format string, args ...any) {
		fmt.Fprintf(bw, format, args...)
		bw.WriteByte('\n')
	}

	if res.Code == protocol.ErrBadRequest {
		line("%s", res.Message)
		return bw.Flush()
	}

	origin := res.Origin.Block()
	line("%s", reportHeader)
	line("Your position: %d %d %d", origin.X, origin.Y, origin.Z)
	line("Search radius: %d chunks (~%d blocks)", res.Radius, res.Radius*res.CellSize)
	line("World seed: %d", res.Seed)
	if res.Target != "" {
		line("Target vein: %s", res.Target)
	}
	line("%s", reportRule)

	if res.Code != "" {
		line("%s", res.Message)
		return bw.Flush()
	}
	if !res.Found {
		line("No vein found")
		return bw.Flush()
	}

	n := res.Nearest
	line("Nearest vein found:")
	line("  Type: %s", catalogs.Label(n.Vein))
	line("  Position: %d / %d / %d", n.Pos.X, n.Pos.Y, n.Pos.Z)
	line("  Distance: %.1f blocks", n.Distance)
	line("  Teleport: /tp @s %d %d %d", n.Pos.X, n.Pos.Y, n.Pos.Z)
	line("%s", reportRule)

	line("All veins in range:")
	for _, m := range res.All {
		line("  -> %s at %d / %d (%.0f blocks)", catalogs.Label(m.Vein), m.Pos.X, m.Pos.Z, m.Distance)
	}
	line("Found %d veins", len(res.All))
	line("%s", reportFooter)
	return bw.Flush()
}
