package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/paulmach/orb/geojson"

	"github.com/MeKo-Tech/selectmap/internal/buildings"
	"github.com/MeKo-Tech/selectmap/internal/config"
	"github.com/MeKo-Tech/selectmap/internal/datasource"
	"github.com/MeKo-Tech/selectmap/internal/spatialindex"
	"github.com/MeKo-Tech/selectmap/internal/types"
)

// newSource builds the configured dataset source.
func newSource(cfg config.DatasetConfig, log *slog.Logger) (datasource.Source, error) {
	var bbox types.BoundingBox
	if cfg.BBox != "" {
		parsed, err := types.ParseBoundingBox(cfg.BBox)
		if err != nil {
			return nil, err
		}
		bbox = parsed
	}

	return datasource.New(datasource.Config{
		Kind:             cfg.Source,
		URL:              cfg.URL,
		BBox:             bbox,
		OverpassEndpoint: cfg.OverpassEndpoint,
		TileZoom:         cfg.TileZoom,
		Logger:           log,
	})
}

// loadDataset loads and indexes the building dataset. Load failures leave
// an empty dataset; index failures fall back to a linear scan. The returned
// func releases the index.
func loadDataset(ctx context.Context, cfg config.DatasetConfig, log *slog.Logger) (*buildings.Dataset, func()) {
	fc := geojson.NewFeatureCollection()

	source, err := newSource(cfg, log)
	if err != nil {
		log.Warn("invalid dataset source, continuing without buildings", "error", err)
	} else {
		loaded, stats, err := source.Load(ctx)
		if err != nil {
			log.Warn("failed to load building dataset, continuing without buildings",
				"source", cfg.Source,
				"error", err,
			)
		} else {
			fc = loaded
			log.Info("building dataset loaded",
				"source", stats.Source,
				"features", humanize.Comma(int64(stats.Features)),
				"skipped", stats.Skipped,
				"size", humanize.Bytes(uint64(max(stats.Bytes, 0))),
				"duration", stats.Duration.Round(time.Millisecond),
			)
		}
	}

	noop := func() {}

	index, err := spatialindex.Open()
	if err != nil {
		log.Warn("spatial index unavailable, using linear scan", "error", err)
		ds, _ := buildings.NewDataset(fc, nil)
		return ds, noop
	}

	ds, err := buildings.NewDataset(fc, index)
	if err != nil {
		log.Warn("spatial index load failed, using linear scan", "error", err)
		_ = index.Close()
		ds, _ = buildings.NewDataset(fc, nil)
		return ds, noop
	}

	log.Debug("spatial index ready", "entries", index.Len())
	return ds, func() { _ = index.Close() }
}
