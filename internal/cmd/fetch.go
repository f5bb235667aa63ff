package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the building dataset as GeoJSON",
	Long: `Load buildings from the configured dataset source and save them as a
GeoJSON feature collection, so later runs can use the geojson source
instead of querying Overpass again.`,
	Example: `  selectmap fetch --dataset-source overpass --bbox 18.03,59.31,18.10,59.35 -o sthlm.geojson`,
	RunE:    runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringP("output", "o", "", "Output GeoJSON file (required)")
	fetchCmd.Flags().Bool("force", false, "Overwrite an existing output file")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"fetch.output", "output"},
		{"fetch.force", "force"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, fetchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	output := viper.GetString("fetch.output")
	force := viper.GetBool("fetch.force")

	if logger == nil {
		initLogging()
	}

	if output == "" {
		return fmt.Errorf("--output is required")
	}
	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("output file %s exists (use --force to overwrite)", output)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	source, err := newSource(cfg.Dataset, logger)
	if err != nil {
		return err
	}

	logger.Info("Fetching building dataset",
		"source", cfg.Dataset.Source,
		"url", cfg.Dataset.URL,
		"bbox", cfg.Dataset.BBox,
		"tile_zoom", cfg.Dataset.TileZoom,
	)

	fc, stats, err := source.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode dataset: %w", err)
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}

	logger.Info("Dataset saved",
		"path", output,
		"features", humanize.Comma(int64(stats.Features)),
		"skipped", stats.Skipped,
		"size", humanize.Bytes(uint64(len(data))),
		"duration", stats.Duration.Round(time.Millisecond),
	)
	return nil
}
