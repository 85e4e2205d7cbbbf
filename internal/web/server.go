// Package web provides an HTTP status server for the espresso daemon.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"

	"github.com/sweeney/espresso/internal/dispatch"
	"github.com/sweeney/espresso/internal/espresso"
	"github.com/sweeney/espresso/internal/status"
)

// maxWriteBody bounds a characteristic write.
const maxWriteBody = 4096

// Attributes serves characteristic reads and writes, usually the
// dispatcher.
type Attributes interface {
	HandleRead(characteristic string) ([]byte, error)
	HandleWrite(characteristic string, payload []byte) error
}

// HistorySource returns the recent snapshots, oldest first.
type HistorySource interface {
	All() []espresso.Snapshot
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	history    HistorySource
	attrs      Attributes
}

// New creates a Server that reads state from the given tracker. history and
// attrs may be nil, which disables their endpoints.
func New(addr string, tracker *status.Tracker, history HistorySource, attrs Attributes) *Server {
	s := &Server{tracker: tracker, history: history, attrs: attrs}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)
	mux.HandleFunc("/history.json", s.handleHistory)
	for _, name := range dispatch.Characteristics {
		mux.HandleFunc("/"+name, s.handleCharacteristic(name))
	}

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.NotFound(w, r)
		return
	}
	history := s.history.All()
	if history == nil {
		history = []espresso.Snapshot{}
	}
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// handleCharacteristic reads a characteristic on GET and writes it on POST,
// the same way the wireless transports do.
func (s *Server) handleCharacteristic(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.attrs == nil {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			data, err := s.attrs.HandleRead(name)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write(data)

		case http.MethodPost:
			body, err := io.ReadAll(io.LimitReader(r.Body, maxWriteBody))
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if err := s.attrs.HandleWrite(name, body); err != nil {
				code := http.StatusBadRequest
				if errors.Is(err, dispatch.ErrNotWritable) {
					code = http.StatusMethodNotAllowed
				}
				http.Error(w, err.Error(), code)
				return
			}
			log.Printf("http: applied %s write", name)
			w.WriteHeader(http.StatusNoContent)

		default:
			w.Header().Set("Allow", "GET, POST")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
