package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	ebookbot "github.com/opd-ai/ebookbot/src"
	"github.com/opd-ai/ebookbot/srv/generator"
	"github.com/opd-ai/ebookbot/srv/util"
)

const maxUploadBytes = 64 << 20

type generateFunc func(ctx context.Context, progress *generator.Progress, sourcePath, referencePath, outputDir string) error

type Server struct {
	ctx      context.Context
	router   chi.Router
	runs     *cache.Cache
	generate generateFunc
	runsDir  string
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewServer wires the routes. Runs are started with ctx so they stop when
// the server shuts down.
func NewServer(ctx context.Context, cfg ebookbot.ServerConfig, generate generateFunc, logger *slog.Logger) *Server {
	s := &Server{
		ctx:      ctx,
		router:   chi.NewRouter(),
		runs:     cache.New(24*time.Hour, 1*time.Hour),
		generate: generate,
		runsDir:  cfg.RunsDir,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.setupRoutes(cfg.RateLimit)
	return s
}

func (s *Server) setupRoutes(rateLimit int) {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(util.LoggingMiddleware(s.logger))
	s.router.Use(util.RecoveryMiddleware(s.logger))

	s.router.Get("/healthz", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/runs", func(r chi.Router) {
		r.With(httprate.LimitByIP(rateLimit, time.Minute)).Post("/", s.handleCreateRun)
		r.Get("/{id}", s.handleGetRun)
		r.Get("/{id}/ebook", s.handleDownload)
		r.Get("/{id}/ws", s.handleWebSocket)
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "Invalid upload", http.StatusBadRequest)
		return
	}

	id := uuid.New().String()
	runDir := filepath.Join(s.runsDir, id)
	inputDir := filepath.Join(runDir, "input")
	if err := os.MkdirAll(inputDir, 0o755); err != nil {
		s.logger.Error("creating run directory", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	paths := map[string]string{}
	for _, field := range []string{"source", "reference"} {
		file, _, err := r.FormFile(field)
		if err != nil {
			os.RemoveAll(runDir)
			http.Error(w, fmt.Sprintf("Missing %s PDF", field), http.StatusBadRequest)
			return
		}
		path := filepath.Join(inputDir, field+".pdf")
		err = saveUpload(file, path)
		file.Close()
		if err != nil {
			os.RemoveAll(runDir)
			s.logger.Error("saving upload", "field", field, "err", err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		paths[field] = path
	}

	progress := generator.NewProgress(id)
	s.runs.Set(id, progress, cache.DefaultExpiration)
	go func() {
		if err := s.generate(s.ctx, progress, paths["source"], paths["reference"], filepath.Join(runDir, "output")); err != nil {
			s.logger.Warn("run ended with error", "run", id, "err", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func saveUpload(src multipart.File, path string) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return err
	}
	return dst.Close()
}

func (s *Server) progress(w http.ResponseWriter, r *http.Request) (*generator.Progress, bool) {
	id := chi.URLParam(r, "id")
	v, ok := s.runs.Get(id)
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return nil, false
	}
	return v.(*generator.Progress), true
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	progress, ok := s.progress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, progress.Snapshot())
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	progress, ok := s.progress(w, r)
	if !ok {
		return
	}
	status := progress.Snapshot()
	if !status.Done || status.State != ebookbot.StateDone || status.Summary == nil {
		http.Error(w, "Ebook not ready", http.StatusConflict)
		return
	}
	path, ok := status.Summary.Artifacts[ebookbot.ArtifactPDF]
	if !ok {
		http.Error(w, "Ebook not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", status.ID+".pdf"))
	http.ServeFile(w, r, path)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	progress, ok := s.progress(w, r)
	if !ok {
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	history, updates, cancel := progress.Subscribe()
	defer cancel()

	// Drain client frames so close messages are noticed.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for _, msg := range history {
		if err := conn.WriteJSON(msg); err != nil {
			return
		}
	}
	for {
		select {
		case msg, ok := <-updates:
			if !ok {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
