package universal

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
)

// NotificationFunc is invoked for every SET/SET_EXPORT/ERASE the helper
// delivers, including the initial full-table sync that precedes the
// barrier sentinel. It has the same shape as
// internal/variable.Store.OnUniversalNotification but takes this
// package's Kind, so wiring a Client to a Store needs a small adapter
// (internal/cmd does this with toStoreKind).
type NotificationFunc func(kind Kind, name string, values []string)

// Client is a session's connection to the universal-variable helper
// (spec §6 "Universal helper"). It sends local SET/SET_EXPORT/ERASE
// requests and delivers the helper's broadcasts (including other
// sessions' changes) to an injected callback.
type Client struct {
	conn net.Conn
	w    *bufio.Writer

	mu sync.Mutex

	onNotify    NotificationFunc
	barrierCh   chan struct{}
	barrierOnce sync.Once
}

// Dial connects to the helper's Unix socket at socketPath within
// timeout and starts the background read loop, which calls onNotify for
// every message other than the barrier sentinel, starting with the
// initial sync.
func Dial(socketPath string, timeout time.Duration, onNotify NotificationFunc, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("universal: dial %s: %w", socketPath, err)
	}

	c := &Client{
		conn:      conn,
		w:         bufio.NewWriter(conn),
		onNotify:  onNotify,
		barrierCh: make(chan struct{}),
	}
	go c.readLoop(logger)
	return c, nil
}

// WaitBarrier blocks until the helper's initial full-table sync has
// completed, or ctx is done (spec §3 "barrier passed" flag).
func (c *Client) WaitBarrier(ctx context.Context) error {
	select {
	case <-c.barrierCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Set sends a SET or SET_EXPORT request for name.
func (c *Client) Set(name string, values []string, exported bool) error {
	kind := KindSet
	if exported {
		kind = KindSetExport
	}
	return c.send(Message{Kind: kind, Name: name, Values: values})
}

// Erase sends an ERASE request for name.
func (c *Client) Erase(name string) error {
	return c.send(Message{Kind: KindErase, Name: name})
}

func (c *Client) send(m Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return writeMessage(c.w, m)
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) readLoop(logger *slog.Logger) {
	r := bufio.NewReader(c.conn)
	for {
		m, err := readMessage(r)
		if err != nil {
			logger.Debug("universal: client read loop ended", "err", err)
			return
		}
		if m.Kind == kindBarrier {
			c.barrierOnce.Do(func() { close(c.barrierCh) })
			continue
		}
		if c.onNotify != nil {
			c.onNotify(m.Kind, m.Name, m.Values)
		}
	}
}
