package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plenisher.ai/internal/logging"
	"plenisher.ai/internal/protocol"
	"plenisher.ai/internal/sim/catalogs"
	"plenisher.ai/internal/sim/machine"
	"plenisher.ai/internal/sim/plenish"
	"plenisher.ai/internal/sim/tuning"
	"plenisher.ai/internal/sim/world"
)

func newRunningWorld(t *testing.T) *world.World {
	t.Helper()
	cats, err := catalogs.Load("../../configs")
	if err != nil {
		t.Fatalf("load catalogs: %v", err)
	}
	tune := tuning.Defaults()
	w, err := world.New(world.WorldConfig{
		ID:         "http_test",
		TickRateHz: 100,
		Height:     tune.Height,
		Seed:       3,
		LoadRadius: 1,
		Machine:    machine.ConfigFromTuning(tune.Plenisher),
	}, cats, logging.Discard())
	if err != nil {
		t.Fatalf("new world: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()
	return w
}

func serve(mux *http.ServeMux, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_HealthAndMetrics(t *testing.T) {
	w := newRunningWorld(t)
	mux := newMux(w, nil, httpOptions{}, logging.Discard())

	if rec := serve(mux, http.MethodGet, "/healthz"); rec.Code != 200 || rec.Body.String() != "ok" {
		t.Fatalf("healthz=%d %q", rec.Code, rec.Body.String())
	}
	rec := serve(mux, http.MethodGet, "/metrics")
	body := rec.Body.String()
	for _, want := range []string{
		`plenisher_world_tick{world="http_test"}`,
		`plenisher_machines{world="http_test"} 0`,
		`plenisher_world_queue_depth{world="http_test",queue="commands"}`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
	if strings.Contains(body, "plenisher_index_") {
		t.Fatalf("index metrics without an index")
	}
	// Admin routes are not mounted when disabled.
	if rec := serve(mux, http.MethodPost, "/admin/v1/reset?x=0&y=0&z=0"); rec.Code != http.StatusNotFound {
		t.Fatalf("disabled admin reset status=%d", rec.Code)
	}
}

func TestHTTP_AdminReset(t *testing.T) {
	w := newRunningWorld(t)
	mux := newMux(w, nil, httpOptions{EnableAdmin: true}, logging.Discard())

	pos := [3]int{4, 40, 4}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := w.Submit(ctx, world.Command{Kind: protocol.CmdPlaceMachine, Actor: "tester", Pos: plenish.CoordFromArray(w.Dim(), pos)})
	if err != nil || !res.OK() {
		t.Fatalf("place: %+v %v", res, err)
	}

	rec := serve(mux, http.MethodPost, "/admin/v1/reset?x=4&y=40&z=4")
	if rec.Code != 200 {
		t.Fatalf("reset status=%d body=%s", rec.Code, rec.Body.String())
	}
	var body struct {
		OK     bool   `json:"ok"`
		Notice string `json:"notice"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.OK || body.Notice != machine.ResetNotice {
		t.Fatalf("reset body=%+v", body)
	}

	if rec := serve(mux, http.MethodPost, "/admin/v1/reset?x=9&y=40&z=9"); rec.Code != http.StatusNotFound {
		t.Fatalf("missing machine status=%d", rec.Code)
	}
	if rec := serve(mux, http.MethodPost, "/admin/v1/reset?x=a&y=40&z=9"); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad coord status=%d", rec.Code)
	}
	if rec := serve(mux, http.MethodGet, "/admin/v1/reset?x=4&y=40&z=4"); rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/admin/v1/reset?x=4&y=40&z=4", nil)
	req.RemoteAddr = "10.1.2.3:5000"
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	for addr, want := range map[string]bool{
		"127.0.0.1:1":  true,
		"[::1]:8080":   true,
		"10.0.0.1:80":  false,
		"not-an-addr":  false,
		"192.0.2.1:80": false,
	} {
		if got := isLoopbackRemote(addr); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v", addr, got)
		}
	}
}
