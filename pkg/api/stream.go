package api

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hpcloud/tail"
	"github.com/rs/zerolog"
)

const streamWriteTimeout = 5 * time.Second

// LogStream : pushes every line appended to the migration log to the
// connected websocket clients
type LogStream struct {
	path     string
	log      zerolog.Logger
	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[*websocket.Conn]struct{}
}

func NewLogStream(path string, log zerolog.Logger) *LogStream {
	return &LogStream{
		path: path,
		log:  log.With().Str("component", "log_stream").Logger(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clients: map[*websocket.Conn]struct{}{},
	}
}

// Run : follows the log file from its current end until ctx is done
func (s *LogStream) Run(ctx context.Context) error {
	t, err := tail.TailFile(s.path, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Poll:     true,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:   tail.DiscardingLogger,
	})
	if err != nil {
		return err
	}
	defer t.Cleanup()
	defer s.closeAll()
	for {
		select {
		case <-ctx.Done():
			return t.Stop()
		case line, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if line.Err != nil {
				s.log.Warn().Err(line.Err).Msg("tail error")
				continue
			}
			// legacy entries end with ", "
			text := strings.TrimSuffix(strings.TrimSpace(line.Text), ",")
			if text == "" {
				continue
			}
			s.broadcast(text)
		}
	}
}

func (s *LogStream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("upgrade error")
		return
	}
	s.mu.Lock()
	s.clients[conn] = struct{}{}
	s.mu.Unlock()

	// clients only listen, reading detects the disconnect
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.drop(conn)
}

// Clients : number of connected clients
func (s *LogStream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *LogStream) broadcast(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
			s.log.Debug().Err(err).Msg("write error")
			_ = conn.Close()
			delete(s.clients, conn)
		}
	}
}

func (s *LogStream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = conn.Close()
	delete(s.clients, conn)
}

func (s *LogStream) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.clients {
		_ = conn.Close()
		delete(s.clients, conn)
	}
}
