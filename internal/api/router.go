package api

import (
	"github.com/alexivanou/guide-offline/internal/service"
	"github.com/alexivanou/guide-offline/internal/stats"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter creates a new HTTP router
func NewRouter(service service.ServiceInterface, cache CacheController, statsCollector *stats.Collector, logger *zap.Logger) *mux.Router {
	handler := NewHandler(service, cache, logger)
	statsHandler := NewStatsHandler(statsCollector, logger)

	router := mux.NewRouter()

	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API v1
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/status", handler.GetStatus).Methods("GET")

	v1.HandleFunc("/cities", handler.GetCities).Methods("GET")
	v1.HandleFunc("/cities/{id}", handler.GetCity).Methods("GET")
	v1.HandleFunc("/landmarks", handler.GetLandmarks).Methods("GET")
	v1.HandleFunc("/landmarks/{id}", handler.GetLandmark).Methods("GET")

	v1.HandleFunc("/packages", handler.ListPackages).Methods("GET")
	v1.HandleFunc("/packages/downloaded", handler.ListDownloaded).Methods("GET")
	v1.HandleFunc("/packages/{cityId}", handler.DownloadCity).Methods("POST")
	v1.HandleFunc("/packages/{cityId}", handler.DeleteCity).Methods("DELETE")
	v1.HandleFunc("/packages/{cityId}/progress", handler.GetProgress).Methods("GET")

	v1.HandleFunc("/visited", handler.RecordVisit).Methods("POST")
	v1.HandleFunc("/sync", handler.SyncVisits).Methods("POST")

	v1.HandleFunc("/storage", handler.GetStorage).Methods("GET")
	v1.HandleFunc("/storage", handler.ClearStorage).Methods("DELETE")

	v1.HandleFunc("/audio", handler.ListAudio).Methods("GET")
	v1.HandleFunc("/audio", handler.PrefetchAudio).Methods("POST")
	v1.HandleFunc("/audio", handler.ClearAudio).Methods("DELETE")
	v1.HandleFunc("/audio/{landmarkId}", handler.GetAudio).Methods("GET")

	v1.HandleFunc("/export", handler.ExportBundle).Methods("POST")
	v1.HandleFunc("/import", handler.ImportBundle).Methods("POST")

	v1.HandleFunc("/cache/skip-waiting", handler.SkipWaiting).Methods("POST")
	v1.HandleFunc("/cache/clear", handler.ClearCache).Methods("POST")

	v1.HandleFunc("/stats", statsHandler.GetStats).Methods("GET")

	return router
}
