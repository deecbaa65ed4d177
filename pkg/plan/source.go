package plan

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed in-code plan map. Used in tests and by
// hosts that define their catalog programmatically.
type StaticSource map[string]Plan

func (s StaticSource) Load(_ context.Context) (map[string]Plan, error) {
	out := make(map[string]Plan, len(s))
	for id, p := range s {
		out[id] = p
	}
	return out, nil
}

// FileSource loads the catalog from a YAML file:
//
//	plans:
//	  - id: bin_api_pro
//	    feature_key: bin_lookup_api
//	    kind: recurring
//	    duration_days: 30
//	    price: {amount: 999, currency: USD}
//	    requests_per_day: 5000
//	    requires_api_key: true
//	    active: true
type FileSource struct {
	Path string
}

func (f FileSource) Load(_ context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}

	var doc struct {
		Plans []Plan `yaml:"plans"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Join(ErrFailedToLoad, err)
	}

	out := make(map[string]Plan, len(doc.Plans))
	for _, p := range doc.Plans {
		// Building the map would silently keep the last duplicate, so
		// catch them here where both definitions are still visible.
		if _, exists := out[p.ID]; exists {
			return nil, errors.Join(ErrInvalidConfiguration,
				fmt.Errorf("duplicate plan id %q", p.ID))
		}
		out[p.ID] = p
	}
	return out, nil
}
