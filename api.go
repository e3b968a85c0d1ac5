package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof" // register handlers
	"regexp"
	"strings"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (robo *Robot) api(ctx context.Context, listen string, mux *http.ServeMux, metrics []prometheus.Collector) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(
		collectors.WithGoCollectorMemStatsMetricsDisabled(),
		collectors.WithGoCollectorRuntimeMetrics(
			collectors.GoRuntimeMetricsRule{
				Matcher: regexp.MustCompile(`^(/gc/gogc:percent|/gc/gomemlimit:bytes|/gc/heap/allocs:bytes|/gc/heap/goal:bytes|/memory/classes/total:bytes|/sched/gomaxprocs:threads|/sched/goroutines:goroutines|/sched/latencies:seconds)$`),
			},
		),
	))
	reg.MustRegister(metrics...)
	opts := promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, opts))
	mux.HandleFunc("GET /debug/pprof/", pprof.Index)
	mux.HandleFunc("GET /debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("GET /debug/pprof/trace", pprof.Trace)
	robo.routes(mux)
	l, err := net.Listen("tcp", listen)
	if err != nil {
		return fmt.Errorf("couldn't start API server: %w", err)
	}
	srv := http.Server{
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
		BaseContext: func(l net.Listener) context.Context { return ctx },
	}
	go func() {
		slog.InfoContext(ctx, "HTTP API server", slog.Any("addr", l.Addr()))
		err := srv.Serve(l)
		if err == http.ErrServerClosed {
			return
		}
		slog.ErrorContext(ctx, "HTTP API server closed", slog.Any("err", err))
	}()
	<-ctx.Done()
	// The context is now done, so it is obviously the wrong choice for
	// managing the shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}

// routes adds the admin API routes to mux.
func (robo *Robot) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/status", robo.apiStatus)
	mux.HandleFunc("GET /api/themes", robo.apiThemes)
	mux.HandleFunc("POST /api/refresh", robo.apiRefresh)
	mux.HandleFunc("GET /api/bans", robo.apiBans)
	mux.HandleFunc("PUT /api/bans/{user}", robo.apiBan)
	mux.HandleFunc("DELETE /api/bans/{user}", robo.apiUnban)
}

func jsonerror(w http.ResponseWriter, status int, msg string) {
	v := struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}{
		Error:  msg,
		Status: status,
	}
	b, err := json.Marshal(&v)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func jsonok(ctx context.Context, log *slog.Logger, w http.ResponseWriter, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(b); err != nil {
		log.ErrorContext(ctx, "write response failed", slog.Any("err", err))
	}
}

func apilog(ctx context.Context, api string, r *http.Request) *slog.Logger {
	log := slog.With(slog.String("api", api), slog.Any("trace", uuid.New()))
	log.InfoContext(ctx, "handle", slog.String("route", r.Pattern), slog.String("remote", r.RemoteAddr))
	return log
}

type apiTheme struct {
	Label  string `json:"label"`
	ID     string `json:"id,omitzero"`
	Source string `json:"source"`
	Dark   bool   `json:"dark"`
}

func (robo *Robot) apiStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apilog(ctx, "status", r)
	defer log.InfoContext(ctx, "done")
	active, err := robo.settings.Active(ctx)
	if err != nil {
		log.WarnContext(ctx, "couldn't read active theme", slog.Any("err", err))
	}
	u := struct {
		Channel string `json:"channel"`
		Active  string `json:"active,omitzero"`
		Paused  bool   `json:"paused"`
		Themes  int    `json:"themes"`
		Banned  int    `json:"banned"`
		Status  int    `json:"status"`
	}{
		Channel: robo.channel,
		Active:  active,
		Paused:  robo.engine.Paused(),
		Themes:  len(robo.catalog.Items()),
		Banned:  len(robo.ledger.Banned()),
		Status:  http.StatusOK,
	}
	jsonok(ctx, log, w, &u)
}

func (robo *Robot) apiThemes(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apilog(ctx, "themes", r)
	defer log.InfoContext(ctx, "done")
	items := robo.catalog.Items()
	u := struct {
		Data   []apiTheme `json:"data"`
		Status int        `json:"status"`
	}{
		Data:   make([]apiTheme, len(items)),
		Status: http.StatusOK,
	}
	for i, it := range items {
		u.Data[i] = apiTheme{Label: it.Label, ID: it.ID, Source: it.Source, Dark: it.Dark}
	}
	jsonok(ctx, log, w, &u)
}

func (robo *Robot) apiRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apilog(ctx, "refresh", r)
	defer log.InfoContext(ctx, "done")
	if err := robo.catalog.Refresh(ctx); err != nil {
		log.ErrorContext(ctx, "couldn't refresh", slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (robo *Robot) apiBans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := apilog(ctx, "bans", r)
	defer log.InfoContext(ctx, "done")
	u := struct {
		Data   []string `json:"data"`
		Status int      `json:"status"`
	}{
		Data:   robo.ledger.Banned(),
		Status: http.StatusOK,
	}
	if u.Data == nil {
		u.Data = []string{}
	}
	jsonok(ctx, log, w, &u)
}

func (robo *Robot) apiBan(w http.ResponseWriter, r *http.Request) {
	robo.apiSetBan(w, r, true)
}

func (robo *Robot) apiUnban(w http.ResponseWriter, r *http.Request) {
	robo.apiSetBan(w, r, false)
}

func (robo *Robot) apiSetBan(w http.ResponseWriter, r *http.Request, ban bool) {
	ctx := r.Context()
	log := apilog(ctx, "ban", r)
	defer log.InfoContext(ctx, "done")
	user := strings.TrimPrefix(r.PathValue("user"), "@")
	if user == "" {
		jsonerror(w, http.StatusBadRequest, "no user")
		return
	}
	f := robo.ledger.Unban
	if ban {
		f = robo.ledger.Ban
	}
	if err := f(ctx, user); err != nil {
		log.ErrorContext(ctx, "couldn't save ban list", slog.String("user", user), slog.Bool("ban", ban), slog.Any("err", err))
		jsonerror(w, http.StatusInternalServerError, err.Error())
		return
	}
	log.InfoContext(ctx, "set ban", slog.String("user", user), slog.Bool("ban", ban))
	w.WriteHeader(http.StatusNoContent)
}
