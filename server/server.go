// Package server exposes the estimation pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/ruterlive/ruterlive/config"
	"github.com/ruterlive/ruterlive/journeyplanner"
	"github.com/ruterlive/ruterlive/metrics"
	"github.com/ruterlive/ruterlive/service"
	"github.com/ruterlive/ruterlive/stops"
)

type Server struct {
	svc    *service.Service
	jp     *journeyplanner.Client
	loader *stops.Loader
	coords *stops.Resolver
	mc     *metrics.Collector
	cfg    *config.AppConfig

	http *http.Server
}

func New(cfg *config.AppConfig, svc *service.Service, jp *journeyplanner.Client, loader *stops.Loader, coords *stops.Resolver, mc *metrics.Collector) *Server {
	s := &Server{svc: svc, jp: jp, loader: loader, coords: coords, mc: mc, cfg: cfg}

	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))
	r.Use(s.countRequests)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/live", s.handleLive)
	r.Get("/api/route-shapes", s.handleShapes)
	r.Get("/api/departures", s.handleDepartures)
	r.Post("/api/quay-coords", s.handleQuayCoords)
	r.Get("/api/stops-in-bbox", s.handleStopsInBBox)
	r.Get("/api/stops-search", s.handleStopsSearch)
	r.Handle("/metrics", mc.Handler())

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.http.Handler }

func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()
	log.Printf("server listening on %s", s.http.Addr)
}

// WaitForShutdown blocks until SIGINT/SIGTERM, then drains in-flight
// requests.
func (s *Server) WaitForShutdown(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	log.Printf("shutdown signal received")
	cancel()

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := s.http.Shutdown(ctx); err != nil {
		log.Printf("server shutdown error: %v", err)
	} else {
		log.Printf("server shut down successfully")
	}
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.mc != nil {
			s.mc.Requests.WithLabelValues(r.URL.Path).Inc()
		}
		next.ServeHTTP(w, r)
	})
}
