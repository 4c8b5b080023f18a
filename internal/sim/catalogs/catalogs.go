package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

type Catalogs struct {
	Crops    CropCatalog
	Scenario Scenario
}

type CropCatalog struct {
	Palette []string
	Defs    map[string]CropDef
	Digest  string
}

type CropDef struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Yield int    `json:"yield"`
}

type Scenario struct {
	Stewards []StewardDef `json:"stewards"`
	Farms    []FarmDef    `json:"farms"`
	Digest   string       `json:"-"`
}

type StewardDef struct {
	ID          string `json:"id"`
	DailyUpkeep int    `json:"daily_upkeep,omitempty"`
}

type FarmDef struct {
	ID      string     `json:"id"`
	Kind    string     `json:"kind"`
	Steward string     `json:"steward"`
	Pos     [2]float64 `json:"pos"`
	Cell    [2]int     `json:"cell"`
	Active  bool       `json:"active"`
	Yield   *int       `json:"yield,omitempty"`

	// ResolvedYield is Yield if set, else the kind's catalog yield. Filled
	// during Load after kind validation.
	ResolvedYield int `json:"-"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadCrops(filepath.Join(configDir, "crops.json"), &c.Crops); err != nil {
		return nil, err
	}
	if err := loadScenario(filepath.Join(configDir, "steading.json"), &c.Scenario, &c.Crops); err != nil {
		return nil, err
	}

	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadCrops(path string, out *CropCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []CropDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("crops.json: %w", err)
	}
	out.Defs = map[string]CropDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("crops.json: empty id")
		}
		if d.Yield < 0 {
			return fmt.Errorf("crops.json: %s: negative yield", d.ID)
		}
		if _, dup := out.Defs[d.ID]; dup {
			return fmt.Errorf("crops.json: duplicate id %s", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	return nil
}

func loadScenario(path string, out *Scenario, crops *CropCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("steading.json: %w", err)
	}

	stewards := map[string]bool{}
	for _, s := range out.Stewards {
		if s.ID == "" {
			return fmt.Errorf("steading.json: empty steward id")
		}
		if stewards[s.ID] {
			return fmt.Errorf("steading.json: duplicate steward %s", s.ID)
		}
		if s.DailyUpkeep < 0 {
			return fmt.Errorf("steading.json: steward %s: negative daily_upkeep", s.ID)
		}
		stewards[s.ID] = true
	}

	seen := map[string]bool{}
	for i := range out.Farms {
		f := &out.Farms[i]
		if f.ID == "" {
			return fmt.Errorf("steading.json: empty farm id")
		}
		if seen[f.ID] {
			return fmt.Errorf("steading.json: duplicate farm %s", f.ID)
		}
		seen[f.ID] = true
		if !stewards[f.Steward] {
			return fmt.Errorf("steading.json: farm %s: unknown steward %q", f.ID, f.Steward)
		}
		def, ok := crops.Defs[f.Kind]
		if !ok {
			return fmt.Errorf("steading.json: farm %s: unknown crop kind %q", f.ID, f.Kind)
		}
		if f.Yield != nil {
			if *f.Yield < 0 {
				return fmt.Errorf("steading.json: farm %s: negative yield", f.ID)
			}
			f.ResolvedYield = *f.Yield
		} else {
			f.ResolvedYield = def.Yield
		}
	}
	return nil
}
