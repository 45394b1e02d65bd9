package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/relabs-tech/dead_reckoning/internal/config"
	"github.com/relabs-tech/dead_reckoning/internal/reckon"
)

// trajectoryStore keeps the route of the current live run.
type trajectoryStore struct {
	mu    sync.RWMutex
	route []reckon.Point
}

func (s *trajectoryStore) add(p reckon.Point) {
	s.mu.Lock()
	s.route = append(s.route, p)
	s.mu.Unlock()
}

func (s *trajectoryStore) reset() {
	s.mu.Lock()
	s.route = nil
	s.mu.Unlock()
}

func (s *trajectoryStore) latest() (reckon.Point, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.route) == 0 {
		return reckon.Point{}, false
	}
	return s.route[len(s.route)-1], true
}

func (s *trajectoryStore) all() []reckon.Point {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]reckon.Point, len(s.route))
	copy(out, s.route)
	return out
}

type webServer struct {
	store *trajectoryStore
	hub   *hub
}

func newWebServer() *webServer {
	return &webServer{store: &trajectoryStore{}, hub: newHub()}
}

func (ws *webServer) handlePoint(payload []byte) {
	var p reckon.Point
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Printf("web: point unmarshal error: %v", err)
		return
	}
	ws.store.add(p)
	ws.hub.broadcast(WSMessage{Type: "point", Point: &p})
}

func (ws *webServer) handleControl(payload []byte) {
	if !isReset(payload) {
		return
	}
	ws.store.reset()
	ws.hub.broadcast(WSMessage{Type: "reset"})
	log.Println("web: route cleared")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (ws *webServer) handler(staticDir string) http.Handler {
	mux := http.NewServeMux()

	// latest point
	mux.HandleFunc("/api/trajectory", func(w http.ResponseWriter, r *http.Request) {
		p, ok := ws.store.latest()
		if !ok {
			http.Error(w, "no data yet", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, p)
	})

	// every point of the current run
	mux.HandleFunc("/api/route", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, ws.store.all())
	})

	mux.HandleFunc("/ws/trajectory", ws.hub.serveWS)
	mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	return mux
}

// RunWeb serves the live trajectory: JSON endpoints, a websocket stream and
// the static viewer in ./web.
func RunWeb() error {
	cfg := config.Get()
	ws := newWebServer()

	client, err := connectMQTT("web", cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := subscribe(client, "web", cfg.TopicTrajectory, ws.handlePoint); err != nil {
		return err
	}
	if err := subscribe(client, "web", cfg.TopicControl, ws.handleControl); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
		Handler: ws.handler("web"),
	}

	ctx, stop := signalContext()
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("web server listening on %s", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
