package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"github.com/ruterlive/ruterlive/config"
	"github.com/ruterlive/ruterlive/journeyplanner"
	"github.com/ruterlive/ruterlive/metrics"
	"github.com/ruterlive/ruterlive/mode"
	"github.com/ruterlive/ruterlive/server"
	"github.com/ruterlive/ruterlive/service"
	"github.com/ruterlive/ruterlive/shapes"
	"github.com/ruterlive/ruterlive/stops"
	"github.com/ruterlive/ruterlive/timetable"
	"github.com/ruterlive/ruterlive/upstream"
	"github.com/ruterlive/ruterlive/vehicles"
)

func initLogging() {
	log.SetOutput(os.Stdout)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
}

func main() {
	configPath := flag.String("config", "config.yml", "path to config file")
	flag.Parse()

	initLogging()
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	up := upstream.NewClient(cfg.Upstream.ClientName)
	jp := journeyplanner.NewClient(up, cfg.Upstream.JourneyPlannerURL, cfg.Batch.QuayBatchSize, cfg.Batch.BatchConcurrency)

	loader := stops.NewLoader(up, cfg.Upstream.GTFSStopsURL, cfg.Area.BBox, time.Duration(cfg.Cache.StopsTTLHours)*time.Hour)
	coords := stops.NewResolver(loader, jp)
	modes := mode.NewResolver(jp, cfg.Batch.LineBatchSize, cfg.Batch.BatchConcurrency)

	tt := timetable.NewSnapshotCache(up, cfg.Upstream.TimetableURL,
		time.Duration(cfg.Cache.TimetableTTLSec)*time.Second,
		time.Duration(cfg.Cache.RateLimitCooldownSec)*time.Second)
	feed := vehicles.NewCache(up, cfg.Upstream.VehiclesGraphQLURL, cfg.Area.BBox,
		time.Duration(cfg.Cache.VehiclesTTLSec)*time.Second)

	var extra service.AuthoritativeSource
	if cfg.Upstream.VehiclePositionsURL != "" {
		extra = vehicles.NewGTFSRTSource(up, cfg.Upstream.VehiclePositionsURL, cfg.Area.BBox)
	}

	mc := metrics.NewCollector()
	svc := service.New(service.Config{
		Timetable:     tt,
		Modes:         modes,
		Coords:        coords,
		Feed:          feed,
		Extra:         extra,
		RailSource:    shapes.NewRailSource(jp, coords),
		Metrics:       mc,
		ResultTTL:     time.Duration(cfg.Cache.ResultTTLSec) * time.Second,
		ShapeInterval: time.Duration(cfg.Cache.ShapeJobIntervalMin) * time.Minute,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go tt.Start(ctx)
	go svc.StartShapeRefresh(ctx)

	srv := server.New(&cfg, svc, jp, loader, coords, mc)
	srv.Start()
	srv.WaitForShutdown(cancel)
}
