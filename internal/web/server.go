// Package web serves the switch-node status page and its JSON views.
package web

import (
	"context"
	"log"
	"net"
	"net/http"
	"strconv"

	"github.com/sweeney/switch-node/internal/status"
	"github.com/sweeney/switch-node/internal/version"
)

// Server is the HTTP front of a status tracker.
type Server struct {
	srv     *http.Server
	tracker *status.Tracker
}

// New creates a Server on addr backed by tracker. Only GET (and HEAD) is
// routed; other methods get 405 from the mux.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.page)
	mux.HandleFunc("GET /index.html", s.page)
	mux.Handle("GET /index.json", jsonView(func(*http.Request) ([]byte, error) {
		return status.FormatJSON(s.tracker.Snapshot()), nil
	}))
	mux.Handle("GET /version.json", jsonView(func(*http.Request) ([]byte, error) {
		return marshal(VersionJSON{Version: version.Get()})
	}))
	mux.Handle("GET /firmware/{target}", jsonView(firmware))

	s.srv = &http.Server{Addr: addr, Handler: mux}
	return s
}

// ListenAndServe blocks until the server is shut down.
func (s *Server) ListenAndServe() error { return s.srv.ListenAndServe() }

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error { return s.srv.Serve(ln) }

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

func (s *Server) page(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

// errNotFound makes a jsonView answer 404.
type errNotFound string

func (e errNotFound) Error() string { return string(e) }

// jsonView adapts a body builder to a handler. Builder errors are 404 when
// they are errNotFound and 500 otherwise.
func jsonView(build func(*http.Request) ([]byte, error)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := build(r)
		if _, ok := err.(errNotFound); ok {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("http: %s: %v", r.URL.Path, err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		w.Write(body)
	})
}

// firmware reports one firmware target, /firmware/0 being the application.
func firmware(r *http.Request) ([]byte, error) {
	n, err := strconv.ParseUint(r.PathValue("target"), 10, 8)
	if err != nil {
		return nil, errNotFound("unknown firmware target")
	}
	return marshal(version.FirmwareVersion(int(n)))
}
