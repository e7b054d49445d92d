package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/newsroom/news-collector/internal/config"
	"github.com/newsroom/news-collector/internal/elasticsearch"
	"github.com/newsroom/news-collector/internal/logger"
	"github.com/newsroom/news-collector/internal/query"
)

type newsReader interface {
	GetNews(ctx context.Context, limit, offset int, keyword string) (query.Page, error)
	GetLatest(ctx context.Context, limit int) (query.Page, error)
	Statistics(ctx context.Context) (query.Statistics, error)
}

type healthChecker interface {
	Health(ctx context.Context) error
}

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.ElasticsearchIndex, log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	srv := &server{log: log, cfg: cfg, news: query.New(esClient), store: esClient}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}

type server struct {
	log   *slog.Logger
	cfg   *config.API
	news  newsReader
	store healthChecker
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/news", s.handleNews)
	r.Get("/news/latest", s.handleLatest)
	r.Get("/statistics", s.handleStatistics)
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

type newsResponse struct {
	Items    any    `json:"news_items"`
	Total    int64  `json:"total_items"`
	Returned int    `json:"returned_count"`
	Limit    int    `json:"limit"`
	Offset   int    `json:"offset"`
	Keyword  string `json:"keyword,omitempty"`
}

// handleHealth only reports liveness; it does not touch the store.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady reports whether the store is reachable.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.store.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleNews(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage)
	offset := clampInt(r.URL.Query().Get("offset"), 0, elasticsearch.MaxScanWindow)
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))

	page, err := s.news.GetNews(ctx, limit, offset, keyword)
	if err != nil {
		s.fail(w, "get news", err)
		return
	}

	writeJSON(w, http.StatusOK, newsResponse{
		Items:    page.Items,
		Total:    page.Total,
		Returned: len(page.Items),
		Limit:    limit,
		Offset:   offset,
		Keyword:  keyword,
	})
}

func (s *server) handleLatest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	limit := clampInt(r.URL.Query().Get("limit"), s.cfg.DefaultPage, s.cfg.MaxPage)

	page, err := s.news.GetLatest(ctx, limit)
	if err != nil {
		s.fail(w, "get latest news", err)
		return
	}

	writeJSON(w, http.StatusOK, newsResponse{
		Items:    page.Items,
		Total:    page.Total,
		Returned: len(page.Items),
		Limit:    limit,
	})
}

func (s *server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	stats, err := s.news.Statistics(ctx)
	if err != nil {
		s.fail(w, "get statistics", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func (s *server) fail(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, query.ErrInvalidArgument) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	s.log.Error(op, slog.Any("err", err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
}

// clampInt parses raw, falling back for empty, invalid or non-positive
// values and capping at max.
func clampInt(raw string, fallback, max int) int {
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fallback
	}
	if value <= 0 {
		return fallback
	}
	if value > max {
		return max
	}
	return value
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
