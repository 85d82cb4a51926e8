package universal

import (
	"bufio"
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
)

// Helper is the cooperating background process of spec §3/§6: it holds
// the canonical table of universal variables and fans out every
// SET/SET_EXPORT/ERASE it receives from one session to every other
// connected session.
type Helper struct {
	store      *Store
	socketPath string
	logger     *slog.Logger

	mu      sync.Mutex
	clients map[*clientConn]struct{}

	listener net.Listener
}

type clientConn struct {
	conn net.Conn
	w    *bufio.Writer
	mu   sync.Mutex
}

// NewHelper creates a Helper backed by the SQLite table at dbPath,
// listening on the Unix socket at socketPath.
func NewHelper(dbPath, socketPath string, logger *slog.Logger) (*Helper, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store, err := OpenStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &Helper{
		store:      store,
		socketPath: socketPath,
		logger:     logger,
		clients:    make(map[*clientConn]struct{}),
	}, nil
}

// Serve listens on the configured socket and services clients until ctx
// is cancelled or Close is called.
func (h *Helper) Serve(ctx context.Context) error {
	_ = os.Remove(h.socketPath)
	l, err := net.Listen("unix", h.socketPath)
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.listener = l
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				h.logger.Error("universal: accept failed", "err", err)
				return err
			}
		}
		go h.serveConn(conn)
	}
}

// Close shuts down the listener, every client connection, and the
// underlying store.
func (h *Helper) Close() error {
	h.mu.Lock()
	if h.listener != nil {
		_ = h.listener.Close()
	}
	for c := range h.clients {
		_ = c.conn.Close()
	}
	h.mu.Unlock()
	return h.store.Close()
}

func (h *Helper) serveConn(conn net.Conn) {
	c := &clientConn{conn: conn, w: bufio.NewWriter(conn)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		conn.Close()
	}()

	ctx := context.Background()
	if err := h.syncInitial(ctx, c); err != nil {
		h.logger.Debug("universal: initial sync failed", "err", err)
		return
	}

	r := bufio.NewReader(conn)
	for {
		m, err := readMessage(r)
		if err != nil {
			return
		}
		if err := h.store.Apply(ctx, m); err != nil {
			h.logger.Error("universal: apply failed", "name", m.Name, "err", err)
			continue
		}
		h.broadcast(m, c)
	}
}

// syncInitial sends the full current table to a newly-connected client,
// terminated by the barrier sentinel (spec §3 "barrier passed" flag).
func (h *Helper) syncInitial(ctx context.Context, c *clientConn) error {
	all, err := h.store.All(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range all {
		if err := writeMessage(c.w, m); err != nil {
			return err
		}
	}
	return writeMessage(c.w, Message{Kind: kindBarrier})
}

// broadcast relays m to every connected client except the one it
// originated from.
func (h *Helper) broadcast(m Message, from *clientConn) {
	h.mu.Lock()
	targets := make([]*clientConn, 0, len(h.clients))
	for c := range h.clients {
		if c != from {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		err := writeMessage(c.w, m)
		c.mu.Unlock()
		if err != nil {
			h.logger.Debug("universal: broadcast to client failed", "err", err)
		}
	}
}
