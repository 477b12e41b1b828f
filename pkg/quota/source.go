package quota

import (
	"context"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Source defines how a quota catalog is loaded.
type Source interface {
	Load(ctx context.Context) (Catalog, error)
}

type staticSource struct {
	catalog Catalog
}

// NewStaticSource returns a Source backed by an in-memory catalog.
// The catalog is deep-copied to prevent external modifications.
func NewStaticSource(catalog Catalog) Source {
	return &staticSource{catalog: catalog.Clone()}
}

func (s *staticSource) Load(_ context.Context) (Catalog, error) {
	return s.catalog.Clone(), nil
}

// yamlCatalog is the on-disk shape of a catalog:
//
//	plans:
//	  basic:
//	    content_generation: 10
//	    profile_analysis: 3
//	  pro:
//	    content_generation: -1
//	    profile_analysis: 30
//	trial:
//	  content_generation: 3
//	  profile_analysis: 3
type yamlCatalog struct {
	Plans map[string]map[string]int64 `yaml:"plans"`
	Trial map[string]int64            `yaml:"trial"`
}

type fileSource struct {
	path string
}

// NewFileSource returns a Source that loads the catalog from a YAML file.
func NewFileSource(path string) Source {
	return &fileSource{path: path}
}

func (s *fileSource) Load(_ context.Context) (Catalog, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return Catalog{}, errors.Join(ErrFailedToLoadCatalog, err)
	}
	defer f.Close()
	return parseCatalog(f)
}

func parseCatalog(r io.Reader) (Catalog, error) {
	var raw yamlCatalog
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil {
		return Catalog{}, errors.Join(ErrFailedToLoadCatalog, err)
	}

	catalog := Catalog{
		Plans: make(map[PlanType]map[Feature]int64, len(raw.Plans)),
		Trial: make(map[Feature]int64, len(raw.Trial)),
	}
	for plan, limits := range raw.Plans {
		features := make(map[Feature]int64, len(limits))
		for feature, limit := range limits {
			features[Feature(feature)] = limit
		}
		catalog.Plans[PlanType(plan)] = features
	}
	for feature, limit := range raw.Trial {
		catalog.Trial[Feature(feature)] = limit
	}

	if err := catalog.Validate(); err != nil {
		return Catalog{}, err
	}
	return catalog, nil
}
