package replication

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"

	"github.com/hashicorp/yamux"
	"github.com/sasha-s/go-deadlock"

	"worldgen/internal/mapgen"
)

// Mirror keeps a mirror world in step with an authoritative hub.
type Mirror struct {
	world     *mapgen.WorldState
	rpcServer *rpc.Server
	log       *slog.Logger

	ClientId int32
	*rpc.Client
	sess *yamux.Session
	ctx  context.Context

	followMu deadlock.Mutex
}

func NewMirror(w *mapgen.WorldState, logger *slog.Logger) (*Mirror, error) {
	if w.Role() != mapgen.RoleMirror {
		return nil, ErrNotMirror
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Mirror{
		world:     w,
		rpcServer: rpc.NewServer(),
		log:       logger.With("component", "replication"),
		ctx:       context.Background(),
	}
	if err := m.rpcServer.RegisterName("Mirror", &MirrorService{mirror: m}); err != nil {
		return nil, fmt.Errorf("register mirror service: %w", err)
	}
	return m, nil
}

// Dial connects to the hub at addr and starts the session.
func (m *Mirror) Dial(ctx context.Context, addr string, timeout time.Duration) error {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial authority %s: %w", addr, err)
	}
	if err := m.Start(ctx, conn); err != nil {
		conn.Close()
		return err
	}
	return nil
}

// Start runs the session over an established connection. ctx bounds every
// generation the mirror runs.
func (m *Mirror) Start(ctx context.Context, conn net.Conn) error {
	m.ctx = ctx
	if err := binary.Read(conn, binary.BigEndian, &m.ClientId); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	sess, err := yamux.Client(conn, nil)
	if err != nil {
		return fmt.Errorf("open multiplexer: %w", err)
	}
	m.sess = sess

	go m.doServer(sess)
	clientConn, err := sess.Open()
	if err != nil {
		sess.Close()
		return fmt.Errorf("open rpc stream: %w", err)
	}
	m.Client = rpc.NewClientWithCodec(jsonrpc.NewClientCodec(clientConn))
	m.log.Info("connected to authority", "session", m.ClientId)
	return nil
}

func (m *Mirror) doServer(sess *yamux.Session) {
	conn, err := sess.Accept()
	if err != nil {
		m.log.Debug("accept push stream", "err", err)
		return
	}
	m.rpcServer.ServeCodec(jsonrpc.NewServerCodec(conn))
}

// Sync generates the authoritative world if it is already complete.
// Otherwise the mirror waits for the completion push.
func (m *Mirror) Sync() error {
	var status Status
	if err := m.Call(methodStatus, &Empty{}, &status); err != nil {
		return fmt.Errorf("fetch status: %w", err)
	}
	if !status.Complete {
		m.log.Info("authority still generating, waiting for completion")
		return nil
	}
	var params mapgen.WorldParams
	if err := m.Call(methodParams, &Empty{}, &params); err != nil {
		return fmt.Errorf("fetch params: %w", err)
	}
	return m.follow(params, false)
}

// follow regenerates the mirror for params unless it already holds that
// generation. A pushed completion announces a new world, so anything
// mirrored before it is stale.
func (m *Mirror) follow(params mapgen.WorldParams, pushed bool) error {
	m.followMu.Lock()
	defer m.followMu.Unlock()

	flags := m.world.Flags()
	if flags.HasGenerated && m.world.GenerationID() == params.GenerationID {
		return nil
	}
	if pushed || flags.HasGenerated {
		m.world.Reset()
	}
	m.log.Info("following authority", "seed", params.Seed, "generation", params.GenerationID)
	return m.world.GenerateMirror(m.ctx, params)
}

// Done is closed when the session ends.
func (m *Mirror) Done() <-chan struct{} {
	return m.sess.CloseChan()
}

func (m *Mirror) Close() {
	if m.Client != nil {
		m.Client.Close()
	}
	if m.sess != nil {
		m.sess.Close()
	}
}

// MirrorService receives pushes from the hub.
type MirrorService struct {
	mirror *Mirror
}

func (s *MirrorService) BlockUpdated(u *BlockUpdate, _ *Empty) error {
	s.mirror.world.MirrorBlockUpdated(u.Key(), u.Type)
	return nil
}

func (s *MirrorService) BlockDamaged(d *BlockDamaged, _ *Empty) error {
	s.mirror.world.MirrorDamaged(d.Key(), d.Health, d.Source)
	return nil
}

func (s *MirrorService) GenerationComplete(p *mapgen.WorldParams, _ *Empty) error {
	return s.mirror.follow(*p, true)
}
