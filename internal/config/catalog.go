package config

import (
	"fmt"
	"os"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

const defaultCatalogPath = "configs/catalog.yaml"

// Center is a physical facility.
type Center struct {
	ID      int    `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Address string `yaml:"address" json:"address,omitempty"`
	Lanes   int    `yaml:"lanes" json:"lanes"`
}

// Package is a purchasable bundle of overs.
type Package struct {
	ID             int `yaml:"id" json:"id"`
	Overs          int `yaml:"overs" json:"overs"`
	ValidityMonths int `yaml:"validity_months" json:"validityMonths"`
	Price          int `yaml:"price" json:"price"`
}

// Catalog is the static reference data: centers and the package price list.
type Catalog struct {
	Centers  []Center  `yaml:"centers" json:"centers"`
	Packages []Package `yaml:"packages" json:"packages"`
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	return &Catalog{
		Centers: []Center{
			{ID: 1, Name: "Strike the ball - Sector 110", Address: "K Block, New Palam Vihar Phase 1, Sector 110, Gurugram", Lanes: 2},
			{ID: 2, Name: "Strike the ball - Sector 93", Address: "Shop No. 5, First Floor, Sector 93 Rd, Hayatpur, Gurugram", Lanes: 2},
			{ID: 3, Name: "Strike the ball - Sector 10A", Address: "Main Hudda Market, Sector 10A, Gurugram", Lanes: 3},
			{ID: 4, Name: "Strike the ball - Sector 107", Address: "Strike The Box, near Six Flag 2.0, Sector 107, Gurugram", Lanes: 2},
		},
		Packages: []Package{
			{ID: 1, Overs: 50, ValidityMonths: 1, Price: 2000},
			{ID: 2, Overs: 100, ValidityMonths: 3, Price: 3500},
			{ID: 3, Overs: 200, ValidityMonths: 6, Price: 6000},
			{ID: 4, Overs: 500, ValidityMonths: 12, Price: 14000},
		},
	}
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		path = defaultCatalogPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}
	return &c, nil
}

// Validate checks the catalog for errors.
func (c *Catalog) Validate() error {
	if len(c.Centers) == 0 {
		return fmt.Errorf("no centers defined")
	}

	ids := make(map[int]bool)
	names := make(map[string]bool)
	for i, center := range c.Centers {
		if center.ID <= 0 {
			return fmt.Errorf("center[%d]: id must be positive, got %d", i, center.ID)
		}
		if ids[center.ID] {
			return fmt.Errorf("center[%d]: duplicate id %d", i, center.ID)
		}
		ids[center.ID] = true

		if center.Name == "" {
			return fmt.Errorf("center[%d]: name is required", i)
		}
		if names[center.Name] {
			return fmt.Errorf("center[%d]: duplicate name '%s'", i, center.Name)
		}
		names[center.Name] = true
	}

	pkgIDs := make(map[int]bool)
	for i, p := range c.Packages {
		if p.ID <= 0 {
			return fmt.Errorf("package[%d]: id must be positive, got %d", i, p.ID)
		}
		if pkgIDs[p.ID] {
			return fmt.Errorf("package[%d]: duplicate id %d", i, p.ID)
		}
		pkgIDs[p.ID] = true

		if p.Overs <= 0 {
			return fmt.Errorf("package[%d]: overs must be positive", i)
		}
		if p.Price < 0 {
			return fmt.Errorf("package[%d]: price cannot be negative", i)
		}
	}
	return nil
}

func (c *Catalog) applyDefaults() {
	for i := range c.Centers {
		if c.Centers[i].Lanes == 0 {
			c.Centers[i].Lanes = 1
		}
	}
}

// CenterByID returns the center or nil.
func (c *Catalog) CenterByID(id int) *Center {
	for i := range c.Centers {
		if c.Centers[i].ID == id {
			return &c.Centers[i]
		}
	}
	return nil
}

// PackageByID returns the package or nil.
func (c *Catalog) PackageByID(id int) *Package {
	for i := range c.Packages {
		if c.Packages[i].ID == id {
			return &c.Packages[i]
		}
	}
	return nil
}

func (c *Catalog) String() string {
	return fmt.Sprintf("Catalog: %d centers, %d packages", len(c.Centers), len(c.Packages))
}

// CatalogHolder lets readers see the latest catalog while WatchCatalog swaps it.
type CatalogHolder struct {
	v atomic.Pointer[Catalog]
}

func NewCatalogHolder(c *Catalog) *CatalogHolder {
	h := &CatalogHolder{}
	h.v.Store(c)
	return h
}

func (h *CatalogHolder) Get() *Catalog {
	return h.v.Load()
}

func (h *CatalogHolder) Set(c *Catalog) {
	h.v.Store(c)
}
