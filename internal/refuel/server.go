package refuel

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zombor/refuel-tracker/internal/metrics"
)

// Server handles HTTP requests for the refuel log
type Server struct {
	service   *Service
	basicAuth BasicAuth
	mux       *http.ServeMux
}

// BasicAuth holds basic authentication credentials.
// Authentication is disabled when both are empty.
type BasicAuth struct {
	Username string
	Password string
}

// NewServer creates a new Server with default mux
func NewServer(service *Service, basicAuth BasicAuth) *Server {
	return NewServerWithMux(service, basicAuth, http.NewServeMux())
}

// NewServerWithMux creates a new Server with a custom mux for testing
func NewServerWithMux(service *Service, basicAuth BasicAuth, mux *http.ServeMux) *Server {
	metrics.Init()
	s := &Server{
		service:   service,
		basicAuth: basicAuth,
		mux:       mux,
	}
	s.registerRoutes()
	return s
}

func (s *Server) authenticate(r *http.Request) bool {
	if s.basicAuth.Username == "" && s.basicAuth.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(s.basicAuth.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(s.basicAuth.Password)) == 1
	return userOK && passOK
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			setCORSHeaders(w)
			w.Header().Set("WWW-Authenticate", `Basic realm="Refuel Tracker"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// registerRoutes registers all routes on the server's mux.
// More specific patterns win regardless of order.
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/refuels/{id}/evidence", s.requireAuth(s.handleGetEvidence))
	s.mux.HandleFunc("GET /api/refuels/{id}", s.requireAuth(s.handleGetRefuel))
	s.mux.HandleFunc("PUT /api/refuels/{id}", s.requireAuth(s.handleUpdateRefuel))
	s.mux.HandleFunc("DELETE /api/refuels/{id}", s.requireAuth(s.handleDeleteRefuel))
	s.mux.HandleFunc("GET /api/refuels", s.requireAuth(s.handleListRefuels))
	s.mux.HandleFunc("POST /api/refuels", s.requireAuth(s.handleCreateRefuel))

	s.mux.HandleFunc("POST /api/scans", s.requireAuth(s.handleScanTicket))

	s.mux.HandleFunc("GET /api/summary", s.requireAuth(s.handleSummary))
	s.mux.HandleFunc("GET /api/trip-cost", s.requireAuth(s.handleTripCost))
	s.mux.HandleFunc("GET /api/export.xlsx", s.requireAuth(s.handleExportXLSX))
	s.mux.HandleFunc("GET /api/export.pdf", s.requireAuth(s.handleExportPDF))

	s.mux.Handle("GET /metrics", s.requireAuth(promhttp.Handler().ServeHTTP))
	s.mux.HandleFunc("GET /{$}", s.requireAuth(s.handleIndex))
}

// Start starts the HTTP server
func (s *Server) Start(addr string) error {
	slog.Info("Starting server", "address", addr)
	return http.ListenAndServe(addr, s.Handler())
}

// Handler wraps the mux with CORS handling, including preflight requests
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		s.mux.ServeHTTP(w, r)
	})
}

// ServeHTTP implements http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
