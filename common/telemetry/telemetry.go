// Package telemetry runs the optional debug endpoints. Only pprof is
// served, on its own localhost listener so profiling traffic never
// shares a port with the API.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/archonhq/archon/common/logger"
)

// Telemetry serves pprof handlers on a dedicated listener.
type Telemetry struct {
	server *http.Server
	log    *logger.Logger
}

// New creates the debug server. It does not start listening. The
// handlers are registered on a private mux, not http.DefaultServeMux.
func New(pprofPort int, log *logger.Logger) *Telemetry {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Telemetry{
		server: &http.Server{
			Addr:    fmt.Sprintf("localhost:%d", pprofPort),
			Handler: mux,
		},
		log: log,
	}
}

// Start begins serving in the background.
func (t *Telemetry) Start() {
	go func() {
		t.log.Info("pprof server listening", "addr", t.server.Addr)
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.log.Error("pprof server error", "error", err)
		}
	}()
}

// Stop shuts the debug server down, waiting briefly for in-flight
// profile requests.
func (t *Telemetry) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.server.Shutdown(ctx)
}
