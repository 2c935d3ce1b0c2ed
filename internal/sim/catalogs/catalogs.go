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
	Blocks BlockCatalog
	Fluids FluidCatalog
	Items  ItemCatalog
}

type BlockCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]BlockDef
	PaletteDigest string
	DefsDigest    string
}

type BlockDef struct {
	ID    string `json:"id"`
	Solid bool   `json:"solid"`
	// Replaceable blocks (tall grass, snow layers) are overwritten by fluid.
	Replaceable bool `json:"replaceable,omitempty"`
	// Fluid marks any fluid block, source or flowing.
	Fluid bool `json:"fluid,omitempty"`
	// Transient marks decaying flowing fluid that may be overwritten.
	Transient bool `json:"transient,omitempty"`
}

type FluidCatalog struct {
	Defs   map[string]FluidDef
	Digest string
}

type FluidDef struct {
	ID string `json:"id"`
	// Placeable fluids can exist as blocks in the world (gases cannot).
	Placeable    bool   `json:"placeable"`
	SourceBlock  string `json:"source_block,omitempty"`
	FlowingBlock string `json:"flowing_block,omitempty"`
}

type ItemCatalog struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]ItemDef
	PaletteDigest string
	DefsDigest    string
}

type ItemDef struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"` // "FLUID_CONTAINER","MATERIAL","BATTERY"
	MaxStack int    `json:"max_stack,omitempty"`

	// FLUID_CONTAINER only.
	Fluid   string `json:"fluid,omitempty"`
	Amount  int    `json:"amount,omitempty"`
	EmptyAs string `json:"empty_as,omitempty"`
}

const KindFluidContainer = "FLUID_CONTAINER"

func (d ItemDef) StackLimit() int {
	if d.MaxStack <= 0 {
		return 64
	}
	return d.MaxStack
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs

	if err := loadBlocks(filepath.Join(configDir, "blocks.json"), &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadFluids(filepath.Join(configDir, "fluids.json"), &c.Fluids, &c.Blocks); err != nil {
		return nil, err
	}
	if err := loadItems(filepath.Join(configDir, "items.json"), &c.Items, &c.Fluids); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadBlocks(path string, out *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []BlockDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("blocks.json: %w", err)
	}
	out.Defs = map[string]BlockDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("blocks.json: empty id")
		}
		if d.Transient && !d.Fluid {
			return fmt.Errorf("blocks.json: %s: transient requires fluid", d.ID)
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// Ensure AIR exists and is palette id 0.
	if _, ok := out.Defs["AIR"]; !ok {
		return fmt.Errorf("blocks.json: missing AIR")
	}
	ids = append([]string{"AIR"}, filterOut(ids, "AIR")...)

	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

func loadFluids(path string, out *FluidCatalog, blocks *BlockCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []FluidDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("fluids.json: %w", err)
	}
	out.Defs = map[string]FluidDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("fluids.json: empty id")
		}
		if d.Placeable {
			for _, b := range []string{d.SourceBlock, d.FlowingBlock} {
				bd, ok := blocks.Defs[b]
				if !ok {
					return fmt.Errorf("fluids.json: %s: unknown block %q", d.ID, b)
				}
				if !bd.Fluid {
					return fmt.Errorf("fluids.json: %s: block %s is not a fluid block", d.ID, b)
				}
			}
		}
		out.Defs[d.ID] = d
	}
	return nil
}

func loadItems(path string, out *ItemCatalog, fluids *FluidCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.DefsDigest = sha256Hex(raw)

	var defs []ItemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	out.Defs = map[string]ItemDef{}
	for _, d := range defs {
		if d.ID == "" {
			return fmt.Errorf("items.json: empty id")
		}
		if d.Kind == KindFluidContainer && d.Fluid != "" {
			if _, ok := fluids.Defs[d.Fluid]; !ok {
				return fmt.Errorf("items.json: %s: unknown fluid %q", d.ID, d.Fluid)
			}
			if d.Amount <= 0 {
				return fmt.Errorf("items.json: %s: container amount must be positive", d.ID)
			}
		}
		out.Defs[d.ID] = d
	}

	ids := make([]string, 0, len(out.Defs))
	for id := range out.Defs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out.Palette = ids
	out.Index = make(map[string]uint16, len(ids))
	for i, id := range ids {
		out.Index[id] = uint16(i)
	}
	palJSON, _ := json.Marshal(ids)
	out.PaletteDigest = sha256Hex(palJSON)
	return nil
}

// FilledContainer returns the definition of a fluid container item that
// currently holds fluid.
func (c *Catalogs) FilledContainer(item string) (ItemDef, bool) {
	d, ok := c.Items.Defs[item]
	if !ok || d.Kind != KindFluidContainer || d.Fluid == "" {
		return ItemDef{}, false
	}
	return d, true
}

func (c *Catalogs) FluidPlaceable(fluid string) bool {
	d, ok := c.Fluids.Defs[fluid]
	return ok && d.Placeable
}

func filterOut(in []string, remove string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s == remove {
			continue
		}
		out = append(out, s)
	}
	return out
}
