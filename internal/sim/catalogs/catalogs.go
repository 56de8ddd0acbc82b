package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Biome names produced by the generator's region hash.
const (
	BiomePlains = "PLAINS"
	BiomeForest = "FOREST"
	BiomeDesert = "DESERT"
)

var knownBiomes = map[string]struct{}{
	BiomePlains: {},
	BiomeForest: {},
	BiomeDesert: {},
}

// ErrUnknownVein is returned when an identifier does not resolve.
var ErrUnknownVein = errors.New("unknown vein")

var idPattern = regexp.MustCompile(`^[a-z0-9_.-]+:[a-z0-9_./-]+$`)

type VeinDef struct {
	ID     string   `json:"id"`
	Name   string   `json:"name"`
	Weight int      `json:"weight"`
	MinY   int      `json:"min_y"`
	MaxY   int      `json:"max_y"`
	Biomes []string `json:"biomes,omitempty"`
}

// AllowsBiome reports whether the def may be placed in biome. An empty
// whitelist allows every biome.
func (d VeinDef) AllowsBiome(biome string) bool {
	if len(d.Biomes) == 0 {
		return true
	}
	for _, b := range d.Biomes {
		if b == biome {
			return true
		}
	}
	return false
}

// Veins is the immutable descriptor registry. Defs are sorted by id.
type Veins struct {
	Defs   []VeinDef
	Index  map[string]int
	Digest string
}

func Load(configDir string) (*Veins, error) {
	return LoadFile(filepath.Join(configDir, "veins.json"))
}

func LoadFile(path string) (*Veins, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs []VeinDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("veins.json: %w", err)
	}
	v, err := New(defs)
	if err != nil {
		return nil, fmt.Errorf("veins.json: %w", err)
	}
	return v, nil
}

// MaxWeight bounds a single def's weight so the generator's weight total
// cannot overflow for any realistic catalog size.
const MaxWeight = 1 << 20

// New validates defs and builds a registry. Digest is the sha256 of
// Canonical(Defs), so formatting or ordering of the source file does not
// change it.
func New(defs []VeinDef) (*Veins, error) {
	out := &Veins{
		Defs:  make([]VeinDef, 0, len(defs)),
		Index: make(map[string]int, len(defs)),
	}
	seen := map[string]bool{}
	for _, d := range defs {
		d.ID = strings.TrimSpace(d.ID)
		if d.ID == "" {
			return nil, fmt.Errorf("empty id")
		}
		if !idPattern.MatchString(d.ID) {
			return nil, fmt.Errorf("vein %s: id must be namespace:path", d.ID)
		}
		if seen[d.ID] {
			return nil, fmt.Errorf("duplicate vein id: %s", d.ID)
		}
		seen[d.ID] = true
		if d.Weight <= 0 || d.Weight > MaxWeight {
			return nil, fmt.Errorf("vein %s: weight must be in [1, %d]", d.ID, MaxWeight)
		}
		if d.MinY > d.MaxY {
			return nil, fmt.Errorf("vein %s: min_y %d > max_y %d", d.ID, d.MinY, d.MaxY)
		}
		for _, b := range d.Biomes {
			if _, ok := knownBiomes[b]; !ok {
				return nil, fmt.Errorf("vein %s: unknown biome %q", d.ID, b)
			}
		}
		out.Defs = append(out.Defs, d)
	}
	sort.Slice(out.Defs, func(i, j int) bool { return out.Defs[i].ID < out.Defs[j].ID })
	for i, d := range out.Defs {
		out.Index[d.ID] = i
	}
	canon, err := Canonical(out.Defs)
	if err != nil {
		return nil, err
	}
	out.Digest = sha256Hex(canon)
	return out, nil
}

// Canonical is the JSON form the registry digest is computed over.
func Canonical(defs []VeinDef) ([]byte, error) {
	return json.Marshal(defs)
}

func (v *Veins) Lookup(id string) (VeinDef, bool) {
	if v == nil {
		return VeinDef{}, false
	}
	i, ok := v.Index[id]
	if !ok {
		return VeinDef{}, false
	}
	return v.Defs[i], true
}

// Resolve is Lookup with an error wrapping ErrUnknownVein.
func (v *Veins) Resolve(id string) (VeinDef, error) {
	d, ok := v.Lookup(id)
	if !ok {
		return VeinDef{}, fmt.Errorf("%w: %s", ErrUnknownVein, id)
	}
	return d, nil
}

func (v *Veins) IDs() []string {
	ids := make([]string, 0, len(v.Defs))
	for _, d := range v.Defs {
		ids = append(ids, d.ID)
	}
	return ids
}

// Label is the human-readable name, falling back to the id.
func Label(d VeinDef) string {
	if n := strings.TrimSpace(d.Name); n != "" {
		return n
	}
	return d.ID
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
