package catalogs

import (
	"bytes"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelrealm.ai/internal/sim/decor"
	"voxelrealm.ai/internal/sim/inventory"
)

//go:embed schemas/*.json
var schemaFS embed.FS

const schemaBase = "https://voxelrealm.ai/schemas/"

// Catalogs is the seed content shipped in the configs directory.
type Catalogs struct {
	Items       []inventory.Item
	ItemsDigest string

	Assets       []decor.Asset
	Drops        []decor.DropRow
	AssetsDigest string
}

type itemDef struct {
	inventory.Item
	Active *bool `json:"is_active"`
}

type dropDef struct {
	decor.DropRow
	Active *bool `json:"is_active"`
}

type assetDef struct {
	decor.Asset
	Active *bool     `json:"is_active"`
	Drops  []dropDef `json:"drops"`
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadItems(filepath.Join(configDir, "items.json"), &c); err != nil {
		return nil, err
	}
	if err := loadAssets(filepath.Join(configDir, "decor_assets.json"), &c); err != nil {
		return nil, err
	}
	if err := c.crossCheck(); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func compileSchema(name string) (*jsonschema.Schema, error) {
	b, err := schemaFS.ReadFile("schemas/" + name)
	if err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaBase+name, bytes.NewReader(b)); err != nil {
		return nil, err
	}
	return c.Compile(schemaBase + name)
}

func validate(name, schema string, raw []byte) error {
	s, err := compileSchema(schema)
	if err != nil {
		return fmt.Errorf("%s: schema: %w", name, err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func active(p *bool) bool { return p == nil || *p }

func loadItems(path string, out *Catalogs) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("items.json", "items.schema.json", raw); err != nil {
		return err
	}
	out.ItemsDigest = sha256Hex(raw)

	var defs []itemDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("items.json: %w", err)
	}
	seen := map[string]bool{}
	for _, d := range defs {
		if seen[d.Code] {
			return fmt.Errorf("items.json: duplicate code %q", d.Code)
		}
		seen[d.Code] = true
		it := d.Item
		it.Active = active(d.Active)
		if it.MaxStack == 0 {
			it.MaxStack = 64
		}
		out.Items = append(out.Items, it)
	}
	sort.Slice(out.Items, func(i, j int) bool { return out.Items[i].Code < out.Items[j].Code })
	return nil
}

func loadAssets(path string, out *Catalogs) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := validate("decor_assets.json", "decor_assets.schema.json", raw); err != nil {
		return err
	}
	out.AssetsDigest = sha256Hex(raw)

	var defs []assetDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("decor_assets.json: %w", err)
	}
	seen := map[string]bool{}
	for _, d := range defs {
		if seen[d.Code] {
			return fmt.Errorf("decor_assets.json: duplicate code %q", d.Code)
		}
		seen[d.Code] = true
		a := d.Asset
		a.Active = active(d.Active)
		// Catalog order is generation order.
		out.Assets = append(out.Assets, a)
		for _, dd := range d.Drops {
			r := dd.DropRow
			r.AssetCode = a.Code
			r.Active = active(dd.Active)
			if r.QtyMin == 0 {
				r.QtyMin = 1
			}
			if r.QtyMax < r.QtyMin {
				r.QtyMax = r.QtyMin
			}
			out.Drops = append(out.Drops, r)
		}
	}
	return nil
}

// crossCheck verifies that asset and drop item references resolve.
func (c *Catalogs) crossCheck() error {
	items := map[string]bool{}
	for _, it := range c.Items {
		items[it.Code] = true
	}
	for _, a := range c.Assets {
		if a.ItemCode != "" && !items[a.ItemCode] {
			return fmt.Errorf("decor_assets.json: %s: unknown item_code %q", a.Code, a.ItemCode)
		}
	}
	for _, d := range c.Drops {
		if !items[d.ItemCode] {
			return fmt.Errorf("decor_assets.json: %s: unknown drop item %q", d.AssetCode, d.ItemCode)
		}
	}
	return nil
}

// DropsFor returns the drop rows configured for one asset.
func (c *Catalogs) DropsFor(code string) []decor.DropRow {
	var out []decor.DropRow
	for _, d := range c.Drops {
		if d.AssetCode == code {
			out = append(out, d)
		}
	}
	return out
}
