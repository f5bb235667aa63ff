// Package buildings selects dataset footprints that intersect a selection
// polygon and derives their display attributes.
package buildings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/selectmap/internal/geo"
	"github.com/MeKo-Tech/selectmap/internal/worker"
)

// ErrNoUsableSelection is returned by callers that refuse to build from an
// empty or zero-area selection.
var ErrNoUsableSelection = errors.New("selection is empty or degenerate")

// Building is one matched feature with its derived attributes.
type Building struct {
	StableID string
	Feature  *geojson.Feature
	Height   float64
	Category Category
	RawType  string
}

// Properties returns the source properties overlaid with the derived ones.
func (b Building) Properties() geojson.Properties {
	props := make(geojson.Properties, len(b.Feature.Properties)+4)
	maps.Copy(props, b.Feature.Properties)
	props["id"] = b.StableID
	props["height"] = b.Height
	props["category"] = string(b.Category)
	props["raw_type"] = b.RawType
	return props
}

// Contains reports whether the footprint covers p.
func (b Building) Contains(p orb.Point) bool {
	if b.Feature == nil {
		return false
	}
	return ContainsPoint(b.Feature.Geometry, p)
}

// Config configures a Matcher.
type Config struct {
	// MinHeight and MaxHeight bound the derived height in metres.
	MinHeight float64
	MaxHeight float64
	// MinArea is the smallest usable selection area in squared local-plane degrees.
	MinArea float64
	// Workers is the number of parallel evaluators for large candidate sets.
	Workers int
	// ParallelThreshold is the candidate count above which the pool is used.
	ParallelThreshold int
	// OnProgress receives chunk completion updates on the parallel path.
	OnProgress worker.ProgressFunc
	Logger     *slog.Logger
}

// DefaultConfig returns the standard height range and a sequential matcher
// for small candidate sets.
func DefaultConfig() Config {
	return Config{
		MinHeight:         DefaultMinHeight,
		MaxHeight:         DefaultMaxHeight,
		MinArea:           geo.DefaultMinArea,
		Workers:           4,
		ParallelThreshold: 2000,
	}
}

// Matcher runs spatial matches. It holds no per-match state.
type Matcher struct {
	cfg Config
}

// NewMatcher creates a Matcher, filling zero fields from DefaultConfig.
func NewMatcher(cfg Config) *Matcher {
	def := DefaultConfig()
	if cfg.MinHeight == 0 && cfg.MaxHeight == 0 {
		cfg.MinHeight, cfg.MaxHeight = def.MinHeight, def.MaxHeight
	}
	if cfg.MinArea <= 0 {
		cfg.MinArea = def.MinArea
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.ParallelThreshold <= 0 {
		cfg.ParallelThreshold = def.ParallelThreshold
	}
	return &Matcher{cfg: cfg}
}

// Match returns every feature of ds that intersects poly, in dataset order,
// with stable ids and derived attributes. A degenerate polygon or an empty
// dataset yields an empty result.
func (m *Matcher) Match(ctx context.Context, ds *Dataset, poly orb.Polygon) ([]Building, error) {
	if ds.Len() == 0 || !geo.Usable(poly, m.cfg.MinArea) {
		return nil, nil
	}

	start := time.Now()
	candidates, err := ds.Candidates(poly.Bound())
	if err != nil {
		return nil, err
	}

	var matches []int
	parallel := len(candidates) > m.cfg.ParallelThreshold && m.cfg.Workers > 1
	if parallel {
		matches, err = m.matchParallel(ctx, ds, poly, candidates)
	} else {
		matches, err = evaluate(ctx, ds, poly, candidates)
	}
	if err != nil {
		return nil, err
	}

	out := make([]Building, 0, len(matches))
	for position, idx := range matches {
		f := ds.Feature(idx)
		id := StableID(f, position)
		category, raw := Classify(f.Properties)
		out = append(out, Building{
			StableID: id,
			Feature:  f,
			Height:   DeriveHeight(id, m.cfg.MinHeight, m.cfg.MaxHeight),
			Category: category,
			RawType:  raw,
		})
	}

	m.log().Debug("match completed",
		"dataset", ds.Len(),
		"candidates", len(candidates),
		"matched", len(out),
		"parallel", parallel,
		"indexed", ds.Indexed(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}

func (m *Matcher) matchParallel(ctx context.Context, ds *Dataset, poly orb.Polygon, candidates []int) ([]int, error) {
	pool := worker.New(worker.Config{
		Workers: m.cfg.Workers,
		Evaluator: worker.EvaluatorFunc(func(ctx context.Context, chunk []int) ([]int, error) {
			return evaluate(ctx, ds, poly, chunk)
		}),
		OnProgress: m.cfg.OnProgress,
	})

	results := pool.Run(ctx, worker.Split(candidates, m.cfg.Workers*4))

	var matches []int
	for _, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("failed to evaluate chunk %d: %w", r.Task.Chunk, r.Err)
		}
		matches = append(matches, r.Matches...)
	}
	slices.Sort(matches)
	return matches, nil
}

func evaluate(ctx context.Context, ds *Dataset, poly orb.Polygon, candidates []int) ([]int, error) {
	var out []int
	for i, idx := range candidates {
		if i%256 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if Intersects(ds.Feature(idx).Geometry, poly) {
			out = append(out, idx)
		}
	}
	return out, nil
}

func (m *Matcher) log() *slog.Logger {
	if m.cfg.Logger != nil {
		return m.cfg.Logger
	}
	return slog.Default()
}
