package cmd

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/selectmap/internal/geojson"
	"github.com/MeKo-Tech/selectmap/internal/selection"
	"github.com/MeKo-Tech/selectmap/internal/worker"
)

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match buildings against one selection rectangle",
	Long: `Build a camera-aligned selection rectangle from an anchor, an opposite
corner and a camera bearing, then write every intersecting building as a
GeoJSON feature collection.`,
	Example: `  selectmap match --dataset-url sthlm_XL.geojson \
    --anchor 18.06,59.33 --corner 18.08,59.34 --bearing -60 -o selection.geojson`,
	RunE: runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().String("anchor", "", "Drag start as lon,lat (required)")
	matchCmd.Flags().String("corner", "", "Drag end as lon,lat (required)")
	matchCmd.Flags().Float64("bearing", 0, "Camera bearing in degrees clockwise from north")
	matchCmd.Flags().StringP("output", "o", "", "Output GeoJSON file (default: stdout)")
	matchCmd.Flags().Bool("progress", false, "Show progress bar for parallel matches")
	matchCmd.Flags().Bool("with-selection", false, "Include the selection rectangle as the first feature")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"query.anchor", "anchor"},
		{"query.corner", "corner"},
		{"query.bearing", "bearing"},
		{"query.output", "output"},
		{"query.progress", "progress"},
		{"query.with_selection", "with-selection"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, matchCmd.Flags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func runMatch(cmd *cobra.Command, args []string) error {
	anchorStr := viper.GetString("query.anchor")
	cornerStr := viper.GetString("query.corner")
	bearing := viper.GetFloat64("query.bearing")
	output := viper.GetString("query.output")
	showProgress := viper.GetBool("query.progress")
	withSelection := viper.GetBool("query.with_selection")

	if logger == nil {
		initLogging()
	}

	if anchorStr == "" || cornerStr == "" {
		return fmt.Errorf("--anchor and --corner are required")
	}
	anchor, err := parsePoint(anchorStr)
	if err != nil {
		return fmt.Errorf("invalid anchor: %w", err)
	}
	corner, err := parsePoint(cornerStr)
	if err != nil {
		return fmt.Errorf("invalid corner: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	surface := &cliSurface{bearing: bearing}
	tool := selection.NewTool(surface,
		selection.WithMinArea(cfg.Selection.MinArea),
		selection.WithLogger(logger),
	)
	tool.Arm()
	tool.Press(selection.PrimaryButton, anchor)
	tool.Move(corner)
	tool.Release()

	if !tool.Usable() {
		return fmt.Errorf("selection from %s to %s encloses no usable area", anchorStr, cornerStr)
	}

	ds, closeIndex := loadDataset(ctx, cfg.Dataset, logger)
	defer closeIndex()

	progress := worker.NewProgress(0, "chunks", showProgress)
	matcher := newMatcher(cfg, progress.Callback())

	matched, err := matcher.Match(ctx, ds, tool.Polygon())
	if showProgress {
		progress.Done()
	}
	if err != nil {
		return fmt.Errorf("failed to match buildings: %w", err)
	}

	fc := geojson.BuildingsToGeoJSON(matched)
	if withSelection {
		sel := geojson.SelectionToGeoJSON(tool.Ring())
		fc.Features = append(sel.Features, fc.Features...)
	}

	data, err := geojson.ToGeoJSONBytes(fc)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	logger.Info("Match complete",
		"buildings", len(matched),
		"dataset", ds.Len(),
		"bearing", bearing,
		"progress", progress.Summary(),
	)

	if output == "" {
		_, err = cmd.OutOrStdout().Write(append(data, '\n'))
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", output, err)
	}
	logger.Info("Result written", "path", output)
	return nil
}

// cliSurface is a fixed camera for one-shot selections.
type cliSurface struct {
	bearing    float64
	panEnabled bool
	cursor     string
}

func (s *cliSurface) Bearing() float64           { return s.bearing }
func (s *cliSurface) SetPanEnabled(enabled bool) { s.panEnabled = enabled }
func (s *cliSurface) SetCursor(cursor string)    { s.cursor = cursor }

// parsePoint parses "lon,lat".
func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("expected lon,lat, got %q", s)
	}

	var p orb.Point
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Point{}, fmt.Errorf("invalid coordinate %q: %w", part, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return orb.Point{}, fmt.Errorf("coordinate %q is not finite", part)
		}
		p[i] = v
	}

	if p[0] < -180 || p[0] > 180 {
		return orb.Point{}, fmt.Errorf("longitude %g out of range", p[0])
	}
	if p[1] < -90 || p[1] > 90 {
		return orb.Point{}, fmt.Errorf("latitude %g out of range", p[1])
	}
	return p, nil
}
