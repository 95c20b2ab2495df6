package replication

import (
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"sync"

	"github.com/sasha-s/go-deadlock"
)

type push struct {
	method string
	args   interface{}
}

// Session is one connected mirror. Pushes are queued without blocking and
// delivered one at a time, each waiting for the mirror's reply, so a mirror
// observes mutations in the order the authority made them.
type Session struct {
	id         int32
	masterConn net.Conn
	*rpc.Client
	log *slog.Logger

	mu     deadlock.Mutex
	queue  []push
	wake   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func NewSession(id int32, masterConn, clientConn net.Conn, logger *slog.Logger) *Session {
	return &Session{
		id:         id,
		masterConn: masterConn,
		Client:     rpc.NewClientWithCodec(jsonrpc.NewClientCodec(clientConn)),
		log:        logger.With("session", id),
		wake:       make(chan struct{}, 1),
		closed:     make(chan struct{}),
	}
}

func (s *Session) ID() int32 {
	return s.id
}

func (s *Session) enqueue(method string, args interface{}) {
	s.mu.Lock()
	s.queue = append(s.queue, push{method: method, args: args})
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Pending is the number of queued pushes.
func (s *Session) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Session) next() (push, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return push{}, false
	}
	p := s.queue[0]
	s.queue[0] = push{}
	s.queue = s.queue[1:]
	return p, true
}

// run delivers queued pushes until the session closes.
func (s *Session) run() {
	for {
		select {
		case <-s.closed:
			return
		case <-s.wake:
		}
		for {
			p, ok := s.next()
			if !ok {
				break
			}
			if err := s.Call(p.method, p.args, &Empty{}); err != nil {
				s.log.Warn("push failed, dropping mirror", "method", p.method, "err", err)
				s.Close()
				return
			}
		}
	}
}

func (s *Session) Close() {
	s.once.Do(func() {
		close(s.closed)
		s.Client.Close()
		s.masterConn.Close()
	})
}
