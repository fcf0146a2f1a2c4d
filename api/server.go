/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the frontend
  5. Operator:   X-Operator-ID header becomes the audit actor

ROUTE GROUPS:
  /api/farmers/*      Farmer profiles, per-farmer records and statements
  /api/supplies/*     Supply entries
  /api/payments/*     Payments
  /api/settings       Business settings
  /api/dashboard      Totals across farmers
  /api/audit          Audit trail
  /api/health         Database ping for load balancers
  /api/admin/*        Reconcile all balances
  /api/sync/*         Outbox status and manual drain
  /api/scenarios/*    Demo data loaders
  /metrics            Prometheus scrape endpoint
  /*                  Static files (frontend)

SECURITY NOTE:
  No authentication middleware. The operator header is trusted as-is and
  only labels audit entries.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aasavchauhan/Water-Supply-Management-System/billing"
)

// OperatorHeader names the operator responsible for a mutation.
const OperatorHeader = "X-Operator-ID"

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", OperatorHeader},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))
	r.Use(operator)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/farmers", func(r chi.Router) {
			r.Get("/", h.ListFarmers)
			r.Post("/", h.CreateFarmer)
			r.Get("/{id}", h.GetFarmer)
			r.Put("/{id}", h.UpdateFarmer)
			r.Delete("/{id}", h.DeleteFarmer)
			r.Post("/{id}/deactivate", h.DeactivateFarmer)
			r.Get("/{id}/supplies", h.FarmerSupplies)
			r.Get("/{id}/payments", h.FarmerPayments)
			r.Get("/{id}/statement", h.GetStatement)
			r.Get("/{id}/statement.{format}", h.ExportStatement)
			r.Get("/{id}/stats", h.FarmerStats)
			r.Post("/{id}/reconcile", h.ReconcileFarmer)
		})

		r.Route("/supplies", func(r chi.Router) {
			r.Get("/", h.ListSupplies)
			r.Post("/", h.CreateSupply)
			r.Get("/{id}", h.GetSupply)
			r.Put("/{id}", h.UpdateSupply)
			r.Delete("/{id}", h.DeleteSupply)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Get("/", h.ListPayments)
			r.Post("/", h.CreatePayment)
			r.Get("/{id}", h.GetPayment)
			r.Put("/{id}", h.UpdatePayment)
			r.Delete("/{id}", h.DeletePayment)
		})

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
		r.Get("/dashboard", h.GetDashboard)
		r.Get("/audit", h.ListAudit)
		r.Get("/health", h.Health)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/reconcile", h.ReconcileAll)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/status", h.SyncStatus)
			r.Post("/run", h.RunSync)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
		})
	})

	// Serve the built frontend if present: first ./web/dist, then next to the executable.
	staticDir := "./web/dist"
	if _, err := os.Stat(staticDir); os.IsNotExist(err) {
		exe, _ := os.Executable()
		staticDir = filepath.Join(filepath.Dir(exe), "web", "dist")
	}
	if _, err := os.Stat(staticDir); err == nil {
		r.Get("/*", spaHandler(staticDir))
	} else {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Water Supply Billing</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Water Supply Billing API</h1>
<ul>
<li><a href="/api/farmers">/api/farmers</a> - List farmers</li>
<li><a href="/api/dashboard">/api/dashboard</a> - Dashboard totals</li>
<li><a href="/api/settings">/api/settings</a> - Business settings</li>
<li><a href="/metrics">/metrics</a> - Prometheus metrics</li>
</ul>
</body>
</html>`))
		})
	}

	return r
}

// operator copies the operator header into the request context.
func operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := r.Header.Get(OperatorHeader); id != "" {
			r = r.WithContext(billing.WithActor(r.Context(), id))
		}
		next.ServeHTTP(w, r)
	})
}

// spaHandler serves files from dir and falls back to index.html so the
// frontend can do its own routing.
func spaHandler(dir string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(dir))
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := os.Stat(filepath.Join(dir, filepath.Clean(r.URL.Path))); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}
