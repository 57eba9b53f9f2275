package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/solanatracker/data-api-sdk/models"
)

const (
	// Time allowed to write a frame to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10
)

// Socket is one open channel connection.
type Socket interface {
	// SendJSON marshals v and writes it as a text frame.
	SendJSON(v interface{}) error

	// Close tears the connection down. The close callback does not fire
	// for deliberate closes.
	Close() error
}

// SocketCallbacks receive inbound traffic and closure notifications from
// a socket's read loop.
type SocketCallbacks struct {
	OnFrame func(channel models.ChannelType, data []byte)
	OnClose func(channel models.ChannelType, err error)
}

// Dialer opens a socket for one channel. The default dials the datastream
// service over websocket; tests substitute their own.
type Dialer func(ctx context.Context, channel models.ChannelType, cfg Config, cb SocketCallbacks) (Socket, error)

// wsSocket wraps a gorilla websocket connection for one channel.
type wsSocket struct {
	channel models.ChannelType
	conn    *websocket.Conn
	cb      SocketCallbacks

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// WebsocketDialer opens a gorilla websocket connection for the given
// channel and starts its read and ping loops.
func WebsocketDialer(ctx context.Context, channel models.ChannelType, cfg Config, cb SocketCallbacks) (Socket, error) {
	header := http.Header{}
	if cfg.APIKey != "" {
		header.Set("X-API-KEY", cfg.APIKey)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, cfg.channelURL(channel), header)
	if err != nil {
		return nil, err
	}

	s := &wsSocket{
		channel: channel,
		conn:    conn,
		cb:      cb,
		closed:  make(chan struct{}),
	}

	go s.readLoop()
	go s.pingLoop()

	return s, nil
}

func (s *wsSocket) SendJSON(v interface{}) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return s.conn.WriteJSON(v)
}

func (s *wsSocket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)

		s.writeMu.Lock()
		s.conn.SetWriteDeadline(time.Now().Add(time.Second))
		s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()

		err = s.conn.Close()
	})
	return err
}

func (s *wsSocket) readLoop() {
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				// Deliberate close, no notification
			default:
				s.closeOnce.Do(func() {
					close(s.closed)
					s.conn.Close()
				})
				if s.cb.OnClose != nil {
					s.cb.OnClose(s.channel, err)
				}
			}
			return
		}
		if s.cb.OnFrame != nil {
			s.cb.OnFrame(s.channel, message)
		}
	}
}

func (s *wsSocket) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.closed:
			return
		case <-ticker.C:
			s.writeMu.Lock()
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := s.conn.WriteMessage(websocket.PingMessage, nil)
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
