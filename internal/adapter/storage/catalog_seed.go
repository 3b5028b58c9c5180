package storage

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/rl1809/parts-stock/internal/core/domain"
)

// CatalogSeed is the YAML file loaded into the catalog at startup:
//
//	locations:
//	  - {id: 1, name: Matriz}
//	parts:
//	  - {id: FLT-100, name: Filtro de óleo, brand: Tecfil, price: "32.90"}
type CatalogSeed struct {
	Locations []domain.Location
	Parts     []domain.Part
}

type seedFile struct {
	Locations []struct {
		ID   int64  `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"locations"`
	Parts []struct {
		ID    string `yaml:"id"`
		Name  string `yaml:"name"`
		Code  string `yaml:"code"`
		Brand string `yaml:"brand"`
		Price string `yaml:"price"`
		Image string `yaml:"image"`
	} `yaml:"parts"`
}

func LoadCatalogSeed(path string) (*CatalogSeed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog seed: %w", err)
	}
	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse catalog seed %s: %w", path, err)
	}

	seed := &CatalogSeed{}
	for _, l := range file.Locations {
		seed.Locations = append(seed.Locations, domain.Location{ID: domain.LocationID(l.ID), Name: l.Name})
	}
	for _, p := range file.Parts {
		price := decimal.Zero
		if p.Price != "" {
			if price, err = decimal.NewFromString(p.Price); err != nil {
				return nil, fmt.Errorf("catalog seed part %s: price %q: %w", p.ID, p.Price, err)
			}
		}
		seed.Parts = append(seed.Parts, domain.Part{
			ID:    domain.PartID(p.ID),
			Name:  p.Name,
			Code:  p.Code,
			Brand: p.Brand,
			Price: price,
			Image: p.Image,
		})
	}
	return seed, nil
}
