package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"veinlocate.ai/internal/sim/catalogs"
	"veinlocate.ai/internal/sim/command"
	"veinlocate.ai/internal/sim/grid"
	"veinlocate.ai/internal/sim/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "veins":
			os.Exit(veinsCmd(os.Args[2:], os.Stdout, os.Stderr))
		case "db":
			dbCmd(os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		case "queries":
			queriesCmd(os.Args[2:])
			return
		}
	}
	os.Exit(locateCmd(os.Args[1:], os.Stdout, os.Stderr))
}

type envFlags struct {
	configDir  *string
	tuningPath *string
	seed       *string
}

func addEnvFlags(fs *flag.FlagSet) envFlags {
	return envFlags{
		configDir:  fs.String("configs", "./configs", "config directory (veins.json, tuning.yaml)"),
		tuningPath: fs.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)"),
		seed:       fs.String("seed", "", "override tuning seed"),
	}
}

func (f envFlags) load() (*catalogs.Veins, tuning.Tuning, error) {
	veins, err := catalogs.Load(*f.configDir)
	if err != nil {
		return nil, tuning.Tuning{}, fmt.Errorf("load veins: %w", err)
	}
	tp := strings.TrimSpace(*f.tuningPath)
	if tp == "" {
		tp = filepath.Join(*f.configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, tuning.Tuning{}, fmt.Errorf("load tuning: %w", err)
		}
		tune = tuning.Defaults()
	}
	if s := strings.TrimSpace(*f.seed); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, tuning.Tuning{}, fmt.Errorf("bad -seed: %w", err)
		}
		tune.Seed = seed
	}
	return veins, tune, nil
}

// Exit codes for locateCmd. A search that ran exits 0 whether or not a vein
// was found; callers read the report or the JSON "found" field.
const (
	exitOK        = 0
	exitLoad      = 1
	exitBadInput  = 2
	exitRenderErr = 3
)

// locateCmd runs one query and prints the report.
func locateCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("veinlocate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	x := fs.Float64("x", 0, "origin x")
	y := fs.Float64("y", 64, "origin y")
	z := fs.Float64("z", 0, "origin z")
	asJSON := fs.Bool("json", false, "print the wire response instead of the report")
	ef := addEnvFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}

	veins, tune, err := ef.load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitLoad
	}
	env := command.NewEnv(veins, tune)
	res := env.Run(grid.Vec3{X: *x, Y: *y, Z: *z}, fs.Args())

	if *asJSON {
		resp, errMsg := res.Wire(command.NewQueryID())
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if errMsg != nil {
			_ = enc.Encode(errMsg)
		} else {
			_ = enc.Encode(resp)
		}
	} else if err := command.Render(stdout, res); err != nil {
		fmt.Fprintln(stderr, "render:", err)
		return exitRenderErr
	}

	// Unknown veins, bad radii and out-of-range origins are input errors.
	if res.Code != "" {
		return exitBadInput
	}
	return exitOK
}

func veinsCmd(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("veins", flag.ContinueOnError)
	fs.SetOutput(stderr)
	ef := addEnvFlags(fs)
	if err := fs.Parse(args); err != nil {
		return exitBadInput
	}
	veins, _, err := ef.load()
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitLoad
	}
	fmt.Fprintf(stdout, "digest %s\n", veins.Digest)
	for _, d := range veins.Defs {
		biomes := "any"
		if len(d.Biomes) > 0 {
			biomes = strings.Join(d.Biomes, ",")
		}
		fmt.Fprintf(stdout, "%-40s %-24s weight=%-3d y=%d..%d biomes=%s\n", d.ID, catalogs.Label(d), d.Weight, d.MinY, d.MaxY, biomes)
	}
	return 0
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
