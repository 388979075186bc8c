package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/thatsimonsguy/light-controller/db"
	"github.com/thatsimonsguy/light-controller/internal/controllers/roomcontroller"
)

// StatusProvider is the read side of the room controller.
type StatusProvider interface {
	State() roomcontroller.State
	Rooms() []roomcontroller.RoomStatus
	Room(id string) (roomcontroller.RoomStatus, bool)
}

type Server struct {
	db        *sql.DB
	status    StatusProvider
	startedAt time.Time
}

type HealthResponse struct {
	Status     string `json:"status"`
	Controller string `json:"controller"`
	Uptime     string `json:"uptime"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func NewServer(database *sql.DB, status StatusProvider) *Server {
	return &Server{
		db:        database,
		status:    status,
		startedAt: time.Now(),
	}
}

// Handler returns the routed API with CORS headers applied.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms", s.handleRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id}", s.handleRoom).Methods(http.MethodGet)
	r.HandleFunc("/api/rooms/{id}/events", s.handleRoomEvents).Methods(http.MethodGet)
	r.HandleFunc("/api/events", s.handleEvents).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, http.StatusNotFound, "Invalid path")
	})

	routed := handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(r)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodGet {
			s.writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}

		routed.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	addr := fmt.Sprintf("0.0.0.0:%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handlers.CombinedLoggingHandler(accessLog{}, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Str("address", addr).Msg("Starting REST API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.status.State()
	resp := HealthResponse{
		Status:     "ok",
		Controller: string(state),
		Uptime:     time.Since(s.startedAt).Round(time.Second).String(),
	}
	if state == roomcontroller.StateStopped {
		resp.Status = "stopped"
		s.writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.status.Rooms())
}

func (s *Server) handleRoom(w http.ResponseWriter, r *http.Request) {
	room, ok := s.status.Room(mux.Vars(r)["id"])
	if !ok {
		s.writeError(w, http.StatusNotFound, "Room not found")
		return
	}
	s.writeJSON(w, http.StatusOK, room)
}

func (s *Server) handleRoomEvents(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := db.RoomEvents(s.db, roomID, limit)
	if err != nil {
		log.Error().Err(err).Str("room", roomID).Msg("Failed to read room events")
		s.writeError(w, http.StatusInternalServerError, "Failed to read events")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := db.RecentEvents(s.db, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read events")
		s.writeError(w, http.StatusInternalServerError, "Failed to read events")
		return
	}
	s.writeJSON(w, http.StatusOK, events)
}

// accessLog routes access log lines into zerolog at debug level.
type accessLog struct{}

func (accessLog) Write(p []byte) (int, error) {
	log.Debug().Str("component", "api").Msg(strings.TrimSpace(string(p)))
	return len(p), nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return db.DefaultEventLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 || limit > 1000 {
		return 0, fmt.Errorf("limit must be an integer between 1 and 1000")
	}
	return limit, nil
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
