package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"mappo/internal/models"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed packages.yaml
var defaultPackages []byte

// ErrPackageNotFound is returned by Find for an unknown package id.
var ErrPackageNotFound = errors.New("package not found")

// Catalog is the read-only list of experiences offered by the app.
type Catalog struct {
	packages []models.ExperiencePackage
}

// Default returns the catalog bundled with the binary.
func Default() (*Catalog, error) {
	return Parse(defaultPackages)
}

// Load reads a catalog from a YAML file. An empty path returns the bundled catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML list of packages and checks that ids are present and unique
// and that durations are in range.
func Parse(data []byte) (*Catalog, error) {
	var packages []models.ExperiencePackage
	if err := yaml.Unmarshal(data, &packages); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	seen := make(map[string]bool, len(packages))
	for i, p := range packages {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate catalog id %q", p.ID)
		}
		if p.DurationHours > models.MaxDurationHours {
			return nil, fmt.Errorf("catalog entry %q: durationHours %d exceeds %d", p.ID, p.DurationHours, models.MaxDurationHours)
		}
		seen[p.ID] = true
	}
	return &Catalog{packages: packages}, nil
}

// Packages returns the packages in catalog order.
func (c *Catalog) Packages() []models.ExperiencePackage {
	return append([]models.ExperiencePackage(nil), c.packages...)
}

// Find returns the package with the given id.
func (c *Catalog) Find(id string) (models.ExperiencePackage, error) {
	for _, p := range c.packages {
		if p.ID == id {
			return p, nil
		}
	}
	return models.ExperiencePackage{}, fmt.Errorf("%w: %q", ErrPackageNotFound, id)
}
