package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	Seed     int64 `yaml:"seed" json:"seed"`
	CellSize int   `yaml:"cell_size" json:"cell_size"`

	// Radii are in cells.
	DefaultRadius int `yaml:"default_radius" json:"default_radius"`
	MaxRadius     int `yaml:"max_radius" json:"max_radius"`

	VeinProbPermille int `yaml:"vein_prob_permille" json:"vein_prob_permille"`
	BiomeRegionSize  int `yaml:"biome_region_size" json:"biome_region_size"`
}

func Defaults() Tuning {
	return Tuning{
		Seed:             1337,
		CellSize:         16,
		DefaultRadius:    16,
		MaxRadius:        128,
		VeinProbPermille: 40,
		BiomeRegionSize:  256,
	}
}

// Load reads path over Defaults, so omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if t.CellSize <= 0 {
		return fmt.Errorf("cell_size must be > 0")
	}
	if t.MaxRadius < 0 {
		return fmt.Errorf("max_radius must be >= 0")
	}
	if t.DefaultRadius < 0 || t.DefaultRadius > t.MaxRadius {
		return fmt.Errorf("default_radius must be in [0, max_radius]")
	}
	if t.VeinProbPermille < 0 || t.VeinProbPermille > 1000 {
		return fmt.Errorf("vein_prob_permille must be in [0, 1000]")
	}
	if t.BiomeRegionSize < 0 {
		return fmt.Errorf("biome_region_size must be >= 0")
	}
	return nil
}
