package replication

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/yamux"
	"github.com/sasha-s/go-deadlock"

	"worldgen/internal/mapgen"
	"worldgen/internal/world"
)

// Hub serves the authoritative world to mirrors and implements
// mapgen.Broadcaster.
//
// Mirrors regenerate terrain from the seed, so the hub only keeps the block
// updates made since the last generation. A mirror that joins late receives
// them before any live push.
type Hub struct {
	world     *mapgen.WorldState
	rpcServer *rpc.Server
	log       *slog.Logger
	clientid  int32

	mu        deadlock.Mutex
	sessions  map[int32]*Session
	overrides map[world.WorldBlockKey]world.BlockType

	wg sync.WaitGroup
}

func NewHub(w *mapgen.WorldState, logger *slog.Logger) (*Hub, error) {
	if w.Role() != mapgen.RoleAuthority {
		return nil, ErrNotAuthoritative
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		world:     w,
		rpcServer: rpc.NewServer(),
		log:       logger.With("component", "replication"),
		sessions:  make(map[int32]*Session),
		overrides: make(map[world.WorldBlockKey]world.BlockType),
	}
	if err := h.rpcServer.RegisterName("World", &WorldService{world: w}); err != nil {
		return nil, fmt.Errorf("register world service: %w", err)
	}
	return h, nil
}

// Serve accepts mirrors until ctx is cancelled or the listener fails.
func (h *Hub) Serve(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		l.Close()
	}()
	defer h.closeSessions()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept mirror: %w", err)
		}
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.handleConn(conn)
		}()
	}
}

func (h *Hub) handleConn(conn net.Conn) {
	defer conn.Close()
	id := atomic.AddInt32(&h.clientid, 1)
	log := h.log.With("session", id, "remote", conn.RemoteAddr().String())

	// Send the session id; the handshake is done.
	if err := binary.Write(conn, binary.BigEndian, id); err != nil {
		log.Warn("handshake failed", "err", err)
		return
	}
	sess, err := yamux.Server(conn, nil)
	if err != nil {
		log.Warn("open multiplexer", "err", err)
		return
	}
	defer sess.Close()

	clientConn, err := sess.Open()
	if err != nil {
		log.Warn("open push stream", "err", err)
		return
	}
	session := NewSession(id, conn, clientConn, h.log)
	h.addSession(session)
	log.Info("mirror connected")

	go session.run()
	h.serveRPC(sess)

	h.removeSession(id)
	session.Close()
	log.Info("mirror disconnected")
}

func (h *Hub) serveRPC(sess *yamux.Session) {
	conn, err := sess.Accept()
	if err != nil {
		h.log.Debug("accept rpc stream", "err", err)
		return
	}
	h.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
}

// addSession registers s and queues the block updates it has missed.
func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	keys := make([]world.WorldBlockKey, 0, len(h.overrides))
	for key := range h.overrides {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return world.KeyLess(keys[i], keys[j]) })
	for _, key := range keys {
		s.enqueue(methodBlockUpdated, &BlockUpdate{Chunk: key.Chunk, Pos: key.Pos, Type: h.overrides[key]})
	}
	h.sessions[s.id] = s
}

func (h *Hub) removeSession(id int32) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// RangeSession calls f for every connected mirror.
func (h *Hub) RangeSession(f func(id int32, sess *Session)) {
	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()
	for _, s := range sessions {
		f(s.id, s)
	}
}

// Sessions is the number of connected mirrors.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *Hub) closeSessions() {
	h.RangeSession(func(_ int32, s *Session) { s.Close() })
	h.wg.Wait()
}

func (h *Hub) broadcastLocked(method string, args interface{}) {
	for _, s := range h.sessions {
		s.enqueue(method, args)
	}
}

func (h *Hub) BlockUpdated(key world.WorldBlockKey, t world.BlockType) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.overrides[key] = t
	h.broadcastLocked(methodBlockUpdated, &BlockUpdate{Chunk: key.Chunk, Pos: key.Pos, Type: t})
}

func (h *Hub) BlockDamaged(key world.WorldBlockKey, health float64, src world.DamageSource) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastLocked(methodBlockDamaged, &BlockDamaged{Chunk: key.Chunk, Pos: key.Pos, Health: health, Source: src})
}

func (h *Hub) GenerationComplete(params mapgen.WorldParams) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.overrides = make(map[world.WorldBlockKey]world.BlockType)
	h.broadcastLocked(methodGenerationComplete, &params)
}

// WorldService answers mirror queries about the authoritative world.
type WorldService struct {
	world *mapgen.WorldState
}

func (s *WorldService) Params(_ *Empty, reply *mapgen.WorldParams) error {
	*reply = s.world.Params()
	return nil
}

func (s *WorldService) Status(_ *Empty, reply *Status) error {
	params := s.world.Params()
	*reply = Status{
		Complete:     params.Complete,
		Seed:         params.Seed,
		GenerationID: params.GenerationID,
	}
	return nil
}
