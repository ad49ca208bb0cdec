package config

import "github.com/ruterlive/ruterlive/geo"

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port           int      `yaml:"port" validate:"gt=0"`
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

// UpstreamConfig contains the upstream data source endpoints.
// ClientName is sent as ET-Client-Name on every request, as the upstream
// operator requires.
type UpstreamConfig struct {
	ClientName          string `yaml:"clientName" validate:"required"`
	TimetableURL        string `yaml:"timetableURL" validate:"omitempty,url"`
	VehiclesGraphQLURL  string `yaml:"vehiclesGraphQLURL" validate:"omitempty,url"`
	JourneyPlannerURL   string `yaml:"journeyPlannerURL" validate:"omitempty,url"`
	GTFSStopsURL        string `yaml:"gtfsStopsURL" validate:"omitempty,url"`
	VehiclePositionsURL string `yaml:"vehiclePositionsURL" validate:"omitempty,url"` // optional GTFS-RT protobuf feed
}

// AreaConfig pins the service to one metropolitan area.
type AreaConfig struct {
	BBox   geo.BBox   `yaml:"bbox"`
	Center geo.LatLon `yaml:"center"`
}

// CacheConfig holds TTLs and refresh cadences.
type CacheConfig struct {
	TimetableTTLSec      int `yaml:"timetableTTLSec" validate:"gte=0"`
	VehiclesTTLSec       int `yaml:"vehiclesTTLSec" validate:"gte=0"`
	ResultTTLSec         int `yaml:"resultTTLSec" validate:"gte=0"`
	StopsTTLHours        int `yaml:"stopsTTLHours" validate:"gte=0"`
	ShapeJobIntervalMin  int `yaml:"shapeJobIntervalMin" validate:"gte=0"`
	RateLimitCooldownSec int `yaml:"rateLimitCooldownSec" validate:"gte=0"`
}

// BatchConfig bounds the remote per-identifier lookups.
type BatchConfig struct {
	QuayBatchSize    int `yaml:"quayBatchSize" validate:"gt=0"`
	LineBatchSize    int `yaml:"lineBatchSize" validate:"gt=0"`
	BatchConcurrency int `yaml:"batchConcurrency" validate:"gt=0"`
}

// AppConfig is the root configuration structure
type AppConfig struct {
	Server   ServerConfig   `yaml:"server" validate:"required"`
	Upstream UpstreamConfig `yaml:"upstream" validate:"required"`
	Area     AreaConfig     `yaml:"area"`
	Cache    CacheConfig    `yaml:"cache"`
	Batch    BatchConfig    `yaml:"batch"`
}
