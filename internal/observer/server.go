// Package observer streams world changes to external viewers over websocket.
package observer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"worldgen/internal/mapgen"
	"worldgen/internal/world"
)

const writeWait = 5 * time.Second

// Bootstrap is the answer to GET /bootstrap.
type Bootstrap struct {
	Params          mapgen.WorldParams `json:"params"`
	Generating      bool               `json:"generating"`
	GeneratedChunks int                `json:"generatedChunks"`
	Seq             uint64             `json:"seq"`
}

// ChunkBlock is one stored cell of a chunk listing.
type ChunkBlock struct {
	X    int             `json:"x"`
	Y    int             `json:"y"`
	Z    int             `json:"z"`
	Type world.BlockType `json:"type"`
}

type Server struct {
	world *mapgen.WorldState
	feed  *Feed
	log   *slog.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *mapgen.WorldState, feed *Feed, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		world: w,
		feed:  feed,
		log:   logger.With("component", "observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler routes /bootstrap, /chunk, /map.png and /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/chunk", s.ChunkHandler())
	mux.HandleFunc("/map.png", s.MapHandler())
	mux.HandleFunc("/ws", s.WSHandler())
	return mux
}

// ListenAndServe serves the handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("observer listen %s: %w", addr, err)
	}
	return s.Serve(ctx, l)
}

func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info("observer listening", "addr", l.Addr().String())
	if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("observer serve: %w", err)
	}
	return nil
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		resp := Bootstrap{
			Params:          s.world.Params(),
			Generating:      s.world.Flags().Generating,
			GeneratedChunks: len(s.world.Store().GeneratedChunks()),
			Seq:             s.feed.Seq(),
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// ChunkHandler lists the stored cells of the chunk named by the x and y query
// parameters.
func (s *Server) ChunkHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		x, errX := strconv.Atoi(r.URL.Query().Get("x"))
		y, errY := strconv.Atoi(r.URL.Query().Get("y"))
		if errX != nil || errY != nil {
			http.Error(rw, "x and y must be integers", http.StatusBadRequest)
			return
		}
		coord := world.ChunkCoord{X: x, Y: y}
		if !s.world.Layout().InWorld(coord) {
			http.Error(rw, "chunk outside world", http.StatusNotFound)
			return
		}

		blocks := make([]ChunkBlock, 0)
		s.world.Store().ForEachInChunk(coord, func(pos world.LocalPos, t world.BlockType) bool {
			blocks = append(blocks, ChunkBlock{X: pos.X, Y: pos.Y, Z: pos.Z, Type: t})
			return true
		})
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(blocks)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		frames, gone, cancel := s.feed.Subscribe()
		defer cancel()
		log := s.log.With("remote", r.RemoteAddr)
		log.Info("observer connected")

		ctx, stop := context.WithCancel(r.Context())
		defer stop()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case <-gone:
					_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(time.Second))
					writeErr <- nil
					return
				case b := <-frames:
					_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Viewers send nothing; reading only notices the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		stop()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
		log.Info("observer disconnected")
	}
}
