package packs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/twinsuns/draftroom/internal/models"
)

// Catalog is the draftable contents of one card set.
type Catalog struct {
	Code    string        `yaml:"code"`
	Name    string        `yaml:"name"`
	Leaders []CatalogCard `yaml:"leaders"`
	Cards   []CatalogCard `yaml:"cards"`
}

// CatalogCard is one catalog entry as stored in the set YAML files.
type CatalogCard struct {
	ID      string   `yaml:"id"`
	Name    string   `yaml:"name"`
	Aspects []string `yaml:"aspects"`
	Rarity  string   `yaml:"rarity"`
	Cost    int      `yaml:"cost"`
}

func (c CatalogCard) toModel(leader bool) models.Card {
	return models.Card{
		ID:      c.ID,
		Name:    c.Name,
		Aspects: append([]string(nil), c.Aspects...),
		Rarity:  c.Rarity,
		Cost:    c.Cost,
		Leader:  leader,
	}
}

// LoadCatalog reads a single set catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read set catalog: %w", err)
	}
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse set catalog %s: %w", path, err)
	}
	if cat.Code == "" {
		return nil, fmt.Errorf("set catalog %s has no code", path)
	}
	return &cat, nil
}

// LoadCatalogDir reads every *.yaml set catalog in a directory, keyed by
// upper-cased set code.
func LoadCatalogDir(dir string) (map[string]*Catalog, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	catalogs := make(map[string]*Catalog, len(paths))
	for _, path := range paths {
		cat, err := LoadCatalog(path)
		if err != nil {
			return nil, err
		}
		catalogs[strings.ToUpper(cat.Code)] = cat
	}
	if len(catalogs) == 0 {
		return nil, fmt.Errorf("no set catalogs found in %s", dir)
	}
	return catalogs, nil
}
