package config

import (
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/ruterlive/ruterlive/geo"
)

// Load reads, validates and defaults the application configuration.
// Environment variables (optionally from a .env file) override the
// YAML for deployment-specific values.
func Load(paths ...string) (AppConfig, error) {
	_ = godotenv.Load()

	if len(paths) == 0 {
		paths = []string{"config.yml", "./config/config.yml"}
	}
	var data []byte
	var err error
	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}
	if err != nil {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *AppConfig) {
	if p := os.Getenv("PORT"); p != "" {
		if port, err := strconv.Atoi(p); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if n := os.Getenv("ET_CLIENT_NAME"); n != "" {
		cfg.Upstream.ClientName = n
	}
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 3000
	}
	if cfg.Cache.TimetableTTLSec == 0 {
		cfg.Cache.TimetableTTLSec = 90
	}
	if cfg.Cache.VehiclesTTLSec == 0 {
		cfg.Cache.VehiclesTTLSec = 20
	}
	if cfg.Cache.ResultTTLSec == 0 {
		cfg.Cache.ResultTTLSec = 15
	}
	if cfg.Cache.StopsTTLHours == 0 {
		cfg.Cache.StopsTTLHours = 23
	}
	if cfg.Cache.ShapeJobIntervalMin == 0 {
		cfg.Cache.ShapeJobIntervalMin = 15
	}
	if cfg.Cache.RateLimitCooldownSec == 0 {
		cfg.Cache.RateLimitCooldownSec = 300
	}
	if cfg.Batch.QuayBatchSize == 0 {
		cfg.Batch.QuayBatchSize = 25
	}
	if cfg.Batch.LineBatchSize == 0 {
		cfg.Batch.LineBatchSize = 20
	}
	if cfg.Batch.BatchConcurrency == 0 {
		cfg.Batch.BatchConcurrency = 4
	}
	empty := geo.BBox{}
	if cfg.Area.BBox == empty {
		// Greater Oslo: covers Oslo, Akershus, Lillestrøm, Drammen area, Ski, Nesodden
		cfg.Area.BBox = geo.BBox{MinLat: 59.45, MaxLat: 60.2, MinLon: 10.15, MaxLon: 11.25}
	}
	if cfg.Area.Center == (geo.LatLon{}) {
		cfg.Area.Center = geo.LatLon{Lat: 59.9139, Lon: 10.7522}
	}
}
