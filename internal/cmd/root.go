package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/MeKo-Tech/selectmap/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "selectmap",
	Short: "Camera-aligned area selection over a building dataset with live vehicles",
	Long: `selectmap turns a drag gesture and the current camera bearing into a rotated
selection rectangle, matches it against a static building footprint dataset,
and animates live vehicle positions inside the selection.

It runs as an HTTP session service for a map front-end, or as one-shot
commands for matching and dataset preparation.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().String("dataset-source", "geojson", "Building dataset source (geojson, overpass, overpass-json)")
	rootCmd.PersistentFlags().String("dataset-url", "", "GeoJSON or saved Overpass response: URL or local path")
	rootCmd.PersistentFlags().String("bbox", "", "Bounding box for the overpass source: minLon,minLat,maxLon,maxLat")
	rootCmd.PersistentFlags().Int("tile-zoom", 0, "Split overpass queries into tiles at this zoom (0 = one query)")
	rootCmd.PersistentFlags().IntP("workers", "w", 4, "Parallel workers for large building matches")

	bindFlags := []struct {
		key  string
		flag string
	}{
		{"verbose", "verbose"},
		{"dataset.source", "dataset-source"},
		{"dataset.url", "dataset-url"},
		{"dataset.bbox", "bbox"},
		{"dataset.tile_zoom", "tile-zoom"},
		{"match.workers", "workers"},
	}

	for _, bf := range bindFlags {
		if err := viper.BindPFlag(bf.key, rootCmd.PersistentFlags().Lookup(bf.flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", bf.flag, err))
		}
	}
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	config.Configure(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		if viper.GetBool("verbose") {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// loadConfig resolves flags, environment, config file and defaults.
func loadConfig() (config.Config, error) {
	return config.Load(viper.GetViper())
}
