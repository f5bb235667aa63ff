package buildings

import (
	"fmt"
	"slices"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Index narrows the dataset to features whose bounds may overlap a query
// bound. Results may include false positives, never false negatives.
// Load receives one bound per feature and indexes only positions whose
// usable flag is set.
type Index interface {
	Load(bounds []orb.Bound, usable []bool) error
	Query(bound orb.Bound) ([]int, error)
}

// Dataset is the immutable building collection shared by every session.
type Dataset struct {
	features []*geojson.Feature
	bounds   []orb.Bound
	usable   []bool
	index    Index
}

// NewDataset wraps fc. Features with nil or unsupported geometry are kept
// for positional stability but never match. When index is non-nil it is
// loaded with the bound of every usable feature.
func NewDataset(fc *geojson.FeatureCollection, index Index) (*Dataset, error) {
	ds := &Dataset{}
	if fc != nil {
		ds.features = fc.Features
	}

	ds.bounds = make([]orb.Bound, len(ds.features))
	ds.usable = make([]bool, len(ds.features))
	for i, f := range ds.features {
		if f == nil || f.Geometry == nil || !Supported(f.Geometry) {
			continue
		}
		ds.bounds[i] = f.Geometry.Bound()
		ds.usable[i] = true
	}

	if index != nil {
		if err := index.Load(ds.bounds, ds.usable); err != nil {
			return nil, fmt.Errorf("failed to load spatial index: %w", err)
		}
		ds.index = index
	}

	return ds, nil
}

// Len returns the number of features, including unusable ones.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.features)
}

// Feature returns the i-th feature.
func (d *Dataset) Feature(i int) *geojson.Feature {
	return d.features[i]
}

// Indexed reports whether candidate lookup goes through a spatial index.
func (d *Dataset) Indexed() bool {
	return d != nil && d.index != nil
}

// Candidates returns indices, ascending, of usable features whose bounds
// intersect bound.
func (d *Dataset) Candidates(bound orb.Bound) ([]int, error) {
	if d.Len() == 0 {
		return nil, nil
	}

	if d.index != nil {
		ids, err := d.index.Query(bound)
		if err != nil {
			return nil, fmt.Errorf("failed to query spatial index: %w", err)
		}
		out := ids[:0]
		for _, id := range ids {
			if id >= 0 && id < len(d.features) && d.usable[id] {
				out = append(out, id)
			}
		}
		slices.Sort(out)
		return out, nil
	}

	var out []int
	for i, b := range d.bounds {
		if d.usable[i] && b.Intersects(bound) {
			out = append(out, i)
		}
	}
	return out, nil
}
