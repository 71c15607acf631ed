// Package control serves the engine's control operations over a websocket
// and pushes engine events to every connected client.
package control

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/net/netutil"
	errors "golang.org/x/xerrors"

	"github.com/lanikai/alohaplay/internal/decoder"
	"github.com/lanikai/alohaplay/internal/engine"
	"github.com/lanikai/alohaplay/internal/logging"
	"github.com/lanikai/alohaplay/internal/media"
)

var log = logging.DefaultLogger.WithTag("control")

const (
	// Events queued per client before the oldest is dropped.
	clientEventQueue = 64

	writeTimeout = 5 * time.Second
)

var (
	errUnknownCommand = errors.New("unknown command")
	errUnknownPort    = errors.New("unknown port")
	errUnknownClass   = errors.New("unknown class")
)

// Server accepts control connections for one engine.
type Server struct {
	engine *engine.Engine

	// Ports a rewire command may select, by name.
	ports map[string]media.Port

	// Timeout for taking the port rewiring lock.
	RewireTimeout time.Duration

	maxConns int
	upgrader websocket.Upgrader
	server   *http.Server
}

// NewServer creates a control server. maxConns caps the number of
// simultaneous connections when listening with Listen.
func NewServer(e *engine.Engine, ports map[string]media.Port, maxConns int) *Server {
	s := &Server{
		engine:        e,
		ports:         ports,
		RewireTimeout: time.Second,
		maxConns:      maxConns,
	}
	s.server = &http.Server{Handler: s.Handler()}
	return s
}

func (s *Server) Handler() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc("/ws", s.handleWebsocket)
	return router
}

// Listen serves connections on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.maxConns > 0 {
		l = netutil.LimitListener(l, s.maxConns)
	}
	log.Info("Control server listening on %s", l.Addr())
	err = s.server.Serve(l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// PortNames returns the names a rewire command accepts, sorted.
func (s *Server) PortNames() []string {
	names := make([]string, 0, len(s.ports))
	for name := range s.ports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	c := &client{ws: ws}
	sub := s.engine.Events().Subscribe(clientEventQueue)
	defer s.engine.Events().Unsubscribe(sub)

	go func() {
		for ev := range sub {
			if err := c.write(push{Event: ev}); err != nil {
				log.Debug("push to %s: %v", ws.RemoteAddr(), err)
				return
			}
		}
	}()

	log.Info("Control client %s connected", ws.RemoteAddr())
	for {
		var req request
		if err := ws.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("Failed to read control message: %v", err)
			}
			log.Info("Control client %s disconnected", ws.RemoteAddr())
			return
		}

		resp := response{ID: req.ID, OK: true}
		data, err := s.execute(&req)
		if err != nil {
			resp.OK = false
			resp.Error = err.Error()
			log.Debug("%s failed: %v", req.Cmd, err)
		} else if data != nil {
			if resp.Data, err = json.Marshal(data); err != nil {
				resp.OK = false
				resp.Error = err.Error()
			}
		}
		if err := c.write(resp); err != nil {
			log.Warn("Failed to write control response: %v", err)
			return
		}
	}
}

// execute runs one command and returns the response payload, if any.
func (s *Server) execute(req *request) (interface{}, error) {
	switch req.Cmd {
	case cmdPause:
		return nil, s.engine.Pause()

	case cmdResume:
		return nil, s.engine.Resume()

	case cmdSpeed:
		return nil, s.engine.SetSpeed(req.Value)

	case cmdRewire:
		class, ok := parseClass(req.Class)
		if !ok {
			return nil, errors.Errorf("%q: %w", req.Class, errUnknownClass)
		}
		var port media.Port
		if req.Port != "" {
			if port, ok = s.ports[req.Port]; !ok {
				return nil, errors.Errorf("%q: %w", req.Port, errUnknownPort)
			}
		}
		_, err := s.engine.RewirePort(class, port, s.RewireTimeout)
		return nil, err

	case cmdAudioChannel:
		st, err := s.engine.Stream(req.Stream)
		if err != nil {
			return nil, err
		}
		st.SetAudioChannel(req.Value)
		return nil, nil

	case cmdSPUChannel:
		st, err := s.engine.Stream(req.Stream)
		if err != nil {
			return nil, err
		}
		st.SetSPUChannel(req.Value)
		return nil, nil

	case cmdStats:
		if req.Stream == "" {
			return engineStats{
				Speed:   s.engine.Speed(),
				Streams: s.engine.Streams(),
				Ticket:  s.engine.Ticket().Stats(),
				Dropped: s.engine.Events().Dropped(),
			}, nil
		}
		st, err := s.engine.Stream(req.Stream)
		if err != nil {
			return nil, err
		}
		return statsOf(st), nil
	}
	return nil, errors.Errorf("%q: %w", req.Cmd, errUnknownCommand)
}

func statsOf(st *decoder.Stream) streamStats {
	return streamStats{
		Stats:        st.Stats(),
		AudioChannel: st.AudioChannel(),
		SPUChannel:   st.SPUChannel(),
		AudioTracks:  trackNames(st.AudioTracks()),
		SPUTracks:    trackNames(st.SPUTracks()),
		EverBound:    st.EverBound(),
	}
}

// client serialises writes to one connection. Responses and pushed events
// come from different goroutines.
type client struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

