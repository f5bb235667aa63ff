// Package config defines the resolved selectmap configuration tree.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the resolved configuration.
type Config struct {
	Dataset   DatasetConfig   `mapstructure:"dataset" yaml:"dataset"`
	Vehicles  VehiclesConfig  `mapstructure:"vehicles" yaml:"vehicles"`
	Match     MatchConfig     `mapstructure:"match" yaml:"match"`
	Selection SelectionConfig `mapstructure:"selection" yaml:"selection"`
	Camera    CameraConfig    `mapstructure:"camera" yaml:"camera"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Verbose   bool            `mapstructure:"verbose" yaml:"verbose"`
}

// DatasetConfig selects where building footprints come from.
type DatasetConfig struct {
	Source           string `mapstructure:"source" yaml:"source" validate:"oneof=geojson overpass overpass-json"`
	URL              string `mapstructure:"url" yaml:"url" validate:"required_unless=Source overpass"`
	BBox             string `mapstructure:"bbox" yaml:"bbox" validate:"required_if=Source overpass"`
	OverpassEndpoint string `mapstructure:"overpass_endpoint" yaml:"overpass_endpoint" validate:"omitempty,url"`
	TileZoom         int    `mapstructure:"tile_zoom" yaml:"tile_zoom" validate:"gte=0,lte=22"`
}

// VehiclesConfig configures the vehicle feed poller. An empty FeedURL
// disables polling.
type VehiclesConfig struct {
	FeedURL           string        `mapstructure:"feed_url" yaml:"feed_url" validate:"omitempty,url"`
	PollInterval      time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	AnimationDuration time.Duration `mapstructure:"animation_duration" yaml:"animation_duration" validate:"gte=0"`
	FetchTimeout      time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout" validate:"gte=0"`
}

// MatchConfig configures building matching.
type MatchConfig struct {
	MinHeight         float64 `mapstructure:"min_height" yaml:"min_height" validate:"gte=0"`
	MaxHeight         float64 `mapstructure:"max_height" yaml:"max_height" validate:"gtefield=MinHeight"`
	Workers           int     `mapstructure:"workers" yaml:"workers" validate:"gte=1"`
	ParallelThreshold int     `mapstructure:"parallel_threshold" yaml:"parallel_threshold" validate:"gte=1"`
}

// SelectionConfig configures the selection gesture.
type SelectionConfig struct {
	MinArea float64 `mapstructure:"min_area" yaml:"min_area" validate:"gt=0"`
}

// CameraConfig is the initial view.
type CameraConfig struct {
	Center  []float64 `mapstructure:"center" yaml:"center,flow" validate:"len=2"`
	Zoom    float64   `mapstructure:"zoom" yaml:"zoom" validate:"gte=0,lte=24"`
	Pitch   float64   `mapstructure:"pitch" yaml:"pitch" validate:"gte=0,lte=85"`
	Bearing float64   `mapstructure:"bearing" yaml:"bearing" validate:"gte=-360,lte=360"`
}

// Point returns the center as lon/lat.
func (c CameraConfig) Point() orb.Point {
	if len(c.Center) != 2 {
		return orb.Point{}
	}
	return orb.Point{c.Center[0], c.Center[1]}
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"required,hostname_port"`
	// FrameRate is the SSE frame rate in frames per second. Zero disables the stream task.
	FrameRate       float64       `mapstructure:"frame_rate" yaml:"frame_rate" validate:"gte=0,lte=60"`
	CORSOrigin      string        `mapstructure:"cors_origin" yaml:"cors_origin"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gte=0"`
}

// FrameInterval converts FrameRate to a tick period. Zero means disabled.
func (s ServerConfig) FrameInterval() time.Duration {
	if s.FrameRate <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / s.FrameRate)
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Dataset: DatasetConfig{
			Source:           "geojson",
			URL:              "sthlm_XL.geojson",
			OverpassEndpoint: "https://overpass-api.de/api/interpreter",
			TileZoom:         0,
		},
		Vehicles: VehiclesConfig{
			FeedURL:           "http://localhost:3000/api/vehicles",
			PollInterval:      5000 * time.Millisecond,
			AnimationDuration: 4500 * time.Millisecond,
			FetchTimeout:      0,
		},
		Match: MatchConfig{
			MinHeight:         10,
			MaxHeight:         60,
			Workers:           4,
			ParallelThreshold: 2000,
		},
		Selection: SelectionConfig{
			MinArea: 1e-12,
		},
		Camera: CameraConfig{
			Center:  []float64{18.0686, 59.3293},
			Zoom:    13,
			Pitch:   60,
			Bearing: -60,
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			FrameRate:       10,
			CORSOrigin:      "*",
			ShutdownTimeout: 10 * time.Second,
		},
	}
}

// EnvPrefix prefixes environment overrides, e.g. SELECTMAP_SERVER_ADDR.
const EnvPrefix = "SELECTMAP"

// Configure enables environment overrides on v and registers defaults.
func Configure(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// SetDefaults registers every key of Default with v, so environment
// variables and config files can override each of them.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("dataset.source", d.Dataset.Source)
	v.SetDefault("dataset.url", d.Dataset.URL)
	v.SetDefault("dataset.bbox", d.Dataset.BBox)
	v.SetDefault("dataset.overpass_endpoint", d.Dataset.OverpassEndpoint)
	v.SetDefault("dataset.tile_zoom", d.Dataset.TileZoom)

	v.SetDefault("vehicles.feed_url", d.Vehicles.FeedURL)
	v.SetDefault("vehicles.poll_interval", d.Vehicles.PollInterval)
	v.SetDefault("vehicles.animation_duration", d.Vehicles.AnimationDuration)
	v.SetDefault("vehicles.fetch_timeout", d.Vehicles.FetchTimeout)

	v.SetDefault("match.min_height", d.Match.MinHeight)
	v.SetDefault("match.max_height", d.Match.MaxHeight)
	v.SetDefault("match.workers", d.Match.Workers)
	v.SetDefault("match.parallel_threshold", d.Match.ParallelThreshold)

	v.SetDefault("selection.min_area", d.Selection.MinArea)

	v.SetDefault("camera.center", d.Camera.Center)
	v.SetDefault("camera.zoom", d.Camera.Zoom)
	v.SetDefault("camera.pitch", d.Camera.Pitch)
	v.SetDefault("camera.bearing", d.Camera.Bearing)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("server.frame_rate", d.Server.FrameRate)
	v.SetDefault("server.cors_origin", d.Server.CORSOrigin)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)

	v.SetDefault("verbose", d.Verbose)
}

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// YAML renders the configuration.
func (c Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}
