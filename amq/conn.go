package amq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// ErrDisconnected is returned by Run when the server ends the session.
var ErrDisconnected = errors.New("disconnected by server")

// Conn is a Socket.IO session over a WebSocket.
type Conn struct {
	ws     *websocket.Conn
	logger *slog.Logger

	mu sync.Mutex
	// timeout is the time to wait for any packet before giving up.
	timeout time.Duration
}

// Dial opens a connection. The URL should already carry the EIO=4 and
// transport=websocket parameters.
func Dial(ctx context.Context, url string, client *http.Client, lg *slog.Logger) (*Conn, error) {
	ws, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPClient: client})
	if err != nil {
		return nil, fmt.Errorf("couldn't dial AMQ socket: %w", err)
	}
	ws.SetReadLimit(8 << 20)
	return &Conn{ws: ws, logger: lg, timeout: time.Minute}, nil
}

// EventFunc receives socket events.
type EventFunc func(ctx context.Context, event string, args []jsontext.Value)

// Run reads packets until the connection fails, the server disconnects, or
// the context ends. It answers pings and joins the default namespace, and
// passes events to fn. fn runs on the read loop.
func (c *Conn) Run(ctx context.Context, fn EventFunc) error {
	defer c.ws.CloseNow()
	for {
		rctx, cancel := context.WithTimeout(ctx, c.readTimeout())
		typ, b, err := c.ws.Read(rctx)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				c.ws.Close(websocket.StatusNormalClosure, "")
				return ctx.Err()
			}
			return fmt.Errorf("couldn't read AMQ socket: %w", err)
		}
		if typ != websocket.MessageText {
			c.logger.DebugContext(ctx, "ignoring binary packet", slog.Int("len", len(b)))
			continue
		}
		p, err := Decode(b)
		if err != nil {
			c.logger.WarnContext(ctx, "bad packet", slog.String("packet", string(b)), slog.Any("err", err))
			continue
		}
		switch p.Engine {
		case EngineOpen:
			var o Open
			if err := json.Unmarshal(p.Data, &o); err != nil {
				return fmt.Errorf("couldn't decode open packet: %w", err)
			}
			c.mu.Lock()
			if o.PingInterval > 0 {
				c.timeout = time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
			}
			c.mu.Unlock()
			c.logger.DebugContext(ctx, "engine open", slog.String("sid", o.SID), slog.Int("ping", o.PingInterval))
			if err := c.write(ctx, &Packet{Engine: EngineMessage, Socket: SocketConnect, ID: -1}); err != nil {
				return err
			}
		case EnginePing:
			if err := c.write(ctx, &Packet{Engine: EnginePong, ID: -1, Data: p.Data}); err != nil {
				return err
			}
		case EngineClose:
			return ErrDisconnected
		case EngineMessage:
			switch p.Socket {
			case SocketConnect:
				c.logger.InfoContext(ctx, "AMQ socket connected")
			case SocketConnectError:
				return fmt.Errorf("AMQ socket refused connection: %s", p.Data)
			case SocketDisconnect:
				return ErrDisconnected
			case SocketEvent:
				fn(ctx, p.Event, p.Args)
			}
		}
	}
}

func (c *Conn) readTimeout() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timeout
}

// Emit sends an event.
func (c *Conn) Emit(ctx context.Context, event string, args ...any) error {
	p, err := Event(event, args...)
	if err != nil {
		return err
	}
	return c.write(ctx, p)
}

func (c *Conn) write(ctx context.Context, p *Packet) error {
	b, err := Encode(p)
	if err != nil {
		return fmt.Errorf("couldn't encode packet: %w", err)
	}
	if err := c.ws.Write(ctx, websocket.MessageText, b); err != nil {
		return fmt.Errorf("couldn't write AMQ socket: %w", err)
	}
	return nil
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.ws.Close(websocket.StatusNormalClosure, "")
}
