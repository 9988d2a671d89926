package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/clarity-dx/bill-review/billreview/console"
	"github.com/clarity-dx/bill-review/billreview/dashboard"
	"github.com/clarity-dx/bill-review/billreview/logging"
	"github.com/clarity-dx/bill-review/billreview/monitoring"
	appMiddleware "github.com/clarity-dx/bill-review/middleware"
)

func newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, appMiddleware.NewTransactionID, logging.NewStructuredLogger(), Recoverer, ConnectionClose)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)
	return r
}

// NewDashboardRouter serves the validation dashboard API.
func NewDashboardRouter(h *dashboard.Handler, allowedOrigins []string) http.Handler {
	r := newRouter()
	m := monitoring.GetMonitor()

	r.Route("/api", func(r chi.Router) {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
		}))
		r.Get(m.WrapHandler("/health", h.Health))
		r.Get(m.WrapHandler("/sessions", h.ListSessions))
		r.Get(m.WrapHandler("/sessions/{sessionID}", h.GetSession))
		r.Get(m.WrapHandler("/sessions/{sessionID}/failures", h.GetSessionFailures))
		r.Post(m.WrapHandler("/failures/{failureID}/correction", h.SubmitCorrection))
		r.Get(m.WrapHandler("/stats/common-errors", h.CommonErrors))
		r.Get(m.WrapHandler("/compare/{fileID}", h.Compare))
		r.Get(m.WrapHandler("/corrections", h.ListCorrections))
		r.Put(m.WrapHandler("/corrections/{correctionID}", h.ReviewCorrection))
	})
	return r
}

// NewConsoleRouter serves the rate analysis and PPO update console.
func NewConsoleRouter(h *console.Handler) http.Handler {
	r := newRouter()
	m := monitoring.GetMonitor()

	r.Post(m.WrapHandler("/upload", h.Upload))
	r.Post(m.WrapHandler("/analyze", h.Analyze))
	r.Get(m.WrapHandler("/download/{reportType}", h.Download))
	r.Route("/api", func(r chi.Router) {
		r.Get(m.WrapHandler("/summary", h.Summary))
		r.Get(m.WrapHandler("/providers", h.Providers))
		r.Get(m.WrapHandler("/cpts", h.CPTs))
		r.Get(m.WrapHandler("/failures", h.Failures))
	})
	r.Route("/update_rates", func(r chi.Router) {
		r.Get(m.WrapHandler("/categories", h.Categories))
		r.Post(m.WrapHandler("/from_failures", h.UpdateFromFailures))
		r.Post(m.WrapHandler("/category", h.UpdateCategory))
		r.Post(m.WrapHandler("/individual", h.UpdateIndividual))
		r.Get(m.WrapHandler("/provider/{tin}", h.ProviderRates))
	})
	return r
}
