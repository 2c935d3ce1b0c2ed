package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"plenisher.ai/internal/sim/plenish"
	"plenisher.ai/internal/sim/world"
	"plenisher.ai/internal/transport/ws"
)

type httpOptions struct {
	EnableAdmin bool
	EnablePprof bool
}

func newMux(w *world.World, idx runtimeIndex, opts httpOptions, log logrus.FieldLogger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(w, idx))

	if opts.EnableAdmin {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: w.ID(),
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/snapshot", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			tick, err := w.RequestSnapshot(ctx)
			rw.Header().Set("Content-Type", "application/json")
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
				return
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick})
		})
		mux.HandleFunc("/admin/v1/reset", resetHandler(w))
	} else {
		log.Info("admin endpoints disabled (PLEN_ENABLE_ADMIN_HTTP=false)")
	}
	if opts.EnablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, log).Handler())
	return mux
}

// resetHandler clears one machine's fill calculation: POST ?x=&y=&z=.
func resetHandler(w *world.World) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var p [3]int
		for i, k := range []string{"x", "y", "z"} {
			v, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get(k)))
			if err != nil {
				http.Error(rw, "bad "+k, http.StatusBadRequest)
				return
			}
			p[i] = v
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		tick, notice, err := w.RequestReset(ctx, plenish.CoordFromArray(w.Dim(), p))
		rw.Header().Set("Content-Type", "application/json")
		switch {
		case errors.Is(err, world.ErrNoMachine):
			rw.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
		case err != nil:
			rw.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "tick": tick, "error": err.Error()})
		default:
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": tick, "notice": notice})
		}
	}
}

func metricsHandler(w *world.World, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		id := w.ID()
		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		gauge := func(name, help string, v any) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
			fmt.Fprintf(rw, "%s{world=%q} %v\n", name, id, v)
		}
		counter := func(name, help string, v uint64) {
			fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
			fmt.Fprintf(rw, "# TYPE %s counter\n", name)
			fmt.Fprintf(rw, "%s{world=%q} %d\n", name, id, v)
		}

		gauge("plenisher_world_tick", "Current world tick.", tick)
		gauge("plenisher_machines", "Placed plenishers.", m.Machines)
		gauge("plenisher_machines_finished", "Plenishers whose fill calculation has finished.", m.FinishedMachines)
		gauge("plenisher_observers", "Subscribed observer sessions.", m.Observers)
		gauge("plenisher_loaded_chunks", "Loaded chunk count.", m.LoadedChunks)
		gauge("plenisher_cold_chunks", "Unloaded chunks holding edits.", m.ColdChunks)
		counter("plenisher_placed_total", "Fluid blocks placed.", m.PlacedTotal)
		counter("plenisher_reset_total", "Fill calculation resets.", m.ResetTotal)

		fmt.Fprintf(rw, "# HELP plenisher_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE plenisher_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "plenisher_world_queue_depth{world=%q,queue=%q} %d\n", id, "commands", m.QueueDepths.Commands)
		fmt.Fprintf(rw, "plenisher_world_queue_depth{world=%q,queue=%q} %d\n", id, "subscribe", m.QueueDepths.Subscribe)

		fmt.Fprintf(rw, "# HELP plenisher_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE plenisher_world_step_ms gauge\n")
		fmt.Fprintf(rw, "plenisher_world_step_ms{world=%q} %.3f\n", id, m.StepMS)

		if idx == nil {
			return
		}
		s := idx.Stats()
		gauge("plenisher_index_queue_depth", "Index writer queue depth.", s.QueueDepth)
		gauge("plenisher_index_queue_capacity", "Index writer queue capacity.", s.QueueCapacity)
		fmt.Fprintf(rw, "# HELP plenisher_index_dropped_total Index rows dropped on backpressure.\n")
		fmt.Fprintf(rw, "# TYPE plenisher_index_dropped_total counter\n")
		fmt.Fprintf(rw, "plenisher_index_dropped_total{world=%q,kind=%q} %d\n", id, "tick", s.DropTickTotal)
		fmt.Fprintf(rw, "plenisher_index_dropped_total{world=%q,kind=%q} %d\n", id, "audit", s.DropAuditTotal)
		fmt.Fprintf(rw, "plenisher_index_dropped_total{world=%q,kind=%q} %d\n", id, "state", s.DropStateTotal)
		fmt.Fprintf(rw, "plenisher_index_dropped_total{world=%q,kind=%q} %d\n", id, "snapshot", s.DropSnapshotTotal)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
