package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/healthwatch/internal/engine"
	apimw "github.com/hamed0406/healthwatch/internal/httpapi/middleware"
	"github.com/hamed0406/healthwatch/internal/hub"
)

type Server struct {
	Logger *zap.Logger
	Engine *engine.Engine
	Hub    *hub.Hub // optional; /api/events is not mounted without it
}

func NewServer(l *zap.Logger, e *engine.Engine, h *hub.Hub) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Engine: e, Hub: h}
}

// Router wires the public (read) and admin (write) route groups. Each group
// gets its own rate limit; a non-positive rpm disables limiting.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, publicRPM, publicBurst, adminRPM, adminBurst int) http.Handler {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(publicRPM, publicBurst))
			r.Use(apimw.RequireAny(keys))

			r.Get("/status", s.handleStatus)
			r.Get("/checks", s.handleListChecks)
			r.Get("/checks/{id}", s.handleGetCheck)
			r.Get("/checks/{id}/metrics", s.handleCheckMetrics)
			r.Get("/checks/{id}/results", s.handleCheckResults)
			r.Get("/incidents", s.handleListIncidents)
			r.Get("/incidents/{id}", s.handleGetIncident)
			r.Get("/maintenance", s.handleListMaintenance)
			if s.Hub != nil {
				r.Get("/events", s.Hub.HandleConnect)
			}
		})

		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(adminRPM, adminBurst))
			r.Use(apimw.RequireAdmin(keys))

			r.Post("/checks", s.handleAddCheck)
			r.Patch("/checks/{id}", s.handlePatchCheck)
			r.Delete("/checks/{id}", s.handleDeleteCheck)
			r.Post("/incidents", s.handleCreateIncident)
			r.Post("/incidents/{id}/updates", s.handleIncidentUpdate)
			r.Post("/maintenance", s.handleScheduleMaintenance)
			r.Post("/maintenance/{id}/{action}", s.handleMaintenanceAction)
		})
	})

	return r
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.Logger.Debug("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decode reads a single JSON object and rejects unknown fields.
func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.New("bad payload: " + err.Error())
	}
	return nil
}

func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// normalizeHTTPURL lowercases scheme and host, strips the default port and
// a bare trailing slash. Anything unparsable is returned as-is.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	if u.Path == "/" {
		u.Path = ""
	}
	return u.String()
}
