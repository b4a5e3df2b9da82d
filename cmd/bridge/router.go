package main

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"telegram-bridge/internal/metrics"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var statusPage = template.Must(template.New("status").Parse(`<html>
<head><title>Telegram Bridge</title></head>
<body style="font-family: sans-serif; text-align: center; padding: 50px;">
	<h1>Telegram Bridge</h1>
	<p>The bridge is running.</p>
	<p>Workrooms: {{if .Workrooms}}enabled{{else}}disabled{{end}}</p>
	{{with .Username}}<p><a href="https://t.me/{{.}}" style="text-decoration: none; background-color: #0088cc; color: white; padding: 10px 20px; border-radius: 5px;">Open in Telegram</a></p>{{end}}
</body>
</html>`))

func newRouter(a *app) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(accessLog(a.log))
	r.Use(chimw.Recoverer)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/", a.status)
	r.Get("/healthz", health)
	r.Post("/webhook", a.webhooks.Handler)

	return r
}

// accessLog logs every request and counts it by route pattern.
func accessLog(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				route := r.URL.Path
				if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
					route = rc.RoutePattern()
				}
				metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()

				log.Info().
					Str("method", r.Method).
					Str("path", r.URL.Path).
					Int("status", ww.Status()).
					Dur("latency", time.Since(start)).
					Str("request_id", chimw.GetReqID(r.Context())).
					Msg("request completed")
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

func (a *app) status(w http.ResponseWriter, r *http.Request) {
	username, err := a.messenger.Username(r.Context())
	if err != nil {
		a.log.Debug().Err(err).Msg("bot username unavailable")
	}
	w.Header().Set("Content-Type", "text/html")
	_ = statusPage.Execute(w, struct {
		Username  string
		Workrooms bool
	}{username, a.machine != nil})
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
