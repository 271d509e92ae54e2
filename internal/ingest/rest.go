package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"sentinelforge/internal/config"
	"sentinelforge/internal/metrics"
	"sentinelforge/internal/model"
	"sentinelforge/internal/normalize"
)

type RESTServer struct {
	parser *Parser
	out    chan<- model.Event
	logger *slog.Logger
}

func NewRESTServer(parser *Parser, out chan<- model.Event, logger *slog.Logger) *RESTServer {
	return &RESTServer{parser: parser, out: out, logger: logger}
}

func (s *RESTServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", s.handleEvents)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

func StartREST(ctx context.Context, cfg *config.Manager, parser *Parser, out chan<- model.Event, logger *slog.Logger) *http.Server {
	current := cfg.Get().Ingest.REST
	if !current.Enabled {
		if logger != nil {
			logger.Info("rest ingest disabled")
		}
		return nil
	}
	if logger != nil {
		logger.Info("rest ingest enabled", "addr", current.Addr)
	}
	server := NewRESTServer(parser, out, logger)
	httpServer := &http.Server{Addr: current.Addr, Handler: server.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctxShutdown)
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if logger != nil {
				logger.Error("rest ingest server error", "err", err)
			}
		}
	}()
	return httpServer
}

// handleEvents accepts a JSON object, a JSON array of objects, or plain text
// with one log line per row.
func (s *RESTServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 2<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	trim := bytes.TrimSpace(body)
	if len(trim) == 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	accepted, dropped, failed := 0, 0, 0
	count := func(ev model.Event, err error) {
		if err != nil {
			failed++
			metrics.LinesTotal.WithLabelValues("skipped").Inc()
			return
		}
		metrics.LinesTotal.WithLabelValues("parsed").Inc()
		if SendNonBlocking(r.Context(), s.out, ev, s.logger) {
			accepted++
		} else {
			dropped++
		}
	}

	switch trim[0] {
	case '[':
		var list []map[string]interface{}
		if err := json.Unmarshal(trim, &list); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		for _, obj := range list {
			count(s.normalizeMap(obj))
		}
	case '{':
		var obj map[string]interface{}
		if err := json.Unmarshal(trim, &obj); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		count(s.normalizeMap(obj))
	default:
		for _, line := range bytes.Split(trim, []byte("\n")) {
			ev, err := s.parser.ParseEvent(string(line))
			if errors.Is(err, ErrBlankLine) {
				continue
			}
			count(ev, err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"accepted": accepted,
		"dropped":  dropped,
		"failed":   failed,
	})
}

func (s *RESTServer) normalizeMap(obj map[string]interface{}) (model.Event, error) {
	fields := ParseJSONMap(obj)
	ev, err := normalize.Normalize(*fields, s.parser.loc)
	if err != nil && s.logger != nil {
		s.logger.Debug("rest normalize error", "err", err)
	}
	return ev, err
}
