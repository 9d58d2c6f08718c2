// Command lootd is a thin HTTP environment demo: it owns a data path,
// loads plugins and metadata documents, and exposes the sort/metadata
// results over a small JSON API. The wiring follows the teacher's
// cmd/server pattern (net/http ServeMux, rs/cors, graceful shutdown).
package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/cors"

	"github.com/pluginsort/lootcore"
	"github.com/pluginsort/lootcore/internal/cache"
	"github.com/pluginsort/lootcore/internal/environment"
)

type serverConfig struct {
	Port        string
	DataDir     string
	Game        string
	CORSOrigins []string
}

func loadConfig() serverConfig {
	cfg := serverConfig{
		Port:        "8080",
		DataDir:     ".",
		Game:        "tes5se",
		CORSOrigins: []string{"*"},
	}
	if v := os.Getenv("LOOTD_PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOOTD_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("LOOTD_GAME"); v != "" {
		cfg.Game = v
	}
	if v := os.Getenv("LOOTD_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = strings.Split(v, ",")
	}
	return cfg
}

func main() {
	cfg := loadConfig()

	diskCache, err := cache.New(cache.Config{
		DBPath: filepath.Join(cfg.DataDir, ".lootcore", "cache.db"),
		TTL:    30 * 24 * time.Hour,
	})
	if err != nil {
		log.Fatalf("create cache: %v", err)
	}
	defer diskCache.Close()

	core, err := lootcore.New(cfg.DataDir, environment.Kind(cfg.Game), nil, nil)
	if err != nil {
		log.Fatalf("construct core: %v", err)
	}
	core.SetDiskCache(diskCache)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", healthHandler)
	mux.HandleFunc("POST /api/sort", sortHandler(core))
	mux.HandleFunc("GET /api/plugins/{name}", pluginMetadataHandler(core))
	mux.HandleFunc("GET /api/messages", messagesHandler(core))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	handler := c.Handler(mux)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("lootd starting on http://localhost:%s", cfg.Port)
		log.Printf("data directory: %s", cfg.DataDir)
		log.Printf("game: %s", cfg.Game)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down lootd...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("server shutdown error: %v", err)
	}
	log.Println("lootd stopped")
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type sortRequest struct {
	Plugins    []string `json:"plugins"`
	HeaderOnly bool     `json:"header_only"`
	Language   string   `json:"language"`
}

func sortHandler(core *lootcore.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sortRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if err := core.LoadPlugins(req.Plugins, req.HeaderOnly); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		ordered, err := core.Sort(req.Language)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"plugins":  ordered,
			"messages": core.Messages(),
		})
	}
}

func pluginMetadataHandler(core *lootcore.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(core.PluginMetadataFor(name))
	}
}

func messagesHandler(core *lootcore.Core) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(core.Messages())
	}
}
