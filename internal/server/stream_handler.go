package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"streetsight/internal/config"
	"streetsight/internal/dao"
	"streetsight/internal/detector"
	"streetsight/internal/pipeline"
	"streetsight/pkg/log"
)

// StreamManager owns the Live Channel sessions. It enforces one active
// route per user id: the per-user stream folder in blob storage is
// cleared at run start, so two concurrent runs for the same user would
// race on that reset.
type StreamManager struct {
	conf     *config.Config
	pipe     *pipeline.Pipeline
	registry *detector.Registry
	upgrader websocket.Upgrader
	validate *validator.Validate

	mu          sync.Mutex
	activeUsers map[int]struct{}
}

func NewStreamManager(conf *config.Config, pipe *pipeline.Pipeline, registry *detector.Registry) *StreamManager {
	return &StreamManager{
		conf:     conf,
		pipe:     pipe,
		registry: registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16384,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:    validator.New(),
		activeUsers: make(map[int]struct{}),
	}
}

// streamSession is one websocket connection. Writes are serialized
// because progress comes from pipeline workers while errors come from the
// read loop.
type streamSession struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  *logrus.Entry

	runMu     sync.Mutex
	runCancel context.CancelFunc
	running   bool
}

func (sess *streamSession) writeJSON(v interface{}) error {
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	return sess.conn.WriteJSON(v)
}

func (sess *streamSession) writeError(msg string) {
	err := sess.writeJSON(dao.StreamError{Type: dao.MessageTypeError, Error: msg})
	if err != nil {
		sess.logger.WithError(err).Warn("failed to write error message")
	}
}

// HandleStream upgrades the connection and serves the Live Channel: one
// start command launches a route run; progress messages stream back in
// completion order; cancel or disconnect stops the run before its next
// unit.
func (m *StreamManager) HandleStream(c *gin.Context) {
	conn, err := m.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	sess := &streamSession{
		conn:   conn,
		logger: log.GetLogger(c.Request.Context()),
	}
	defer m.stopRun(sess)

	for {
		var cmd dao.StreamCommand
		if err := conn.ReadJSON(&cmd); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sess.logger.WithError(err).Debug("stream connection closed")
			}
			return
		}

		switch cmd.Action {
		case dao.ActionStart:
			if err := m.startRun(sess, cmd.Start); err != nil {
				sess.writeError(err.Error())
			}
		case dao.ActionCancel:
			m.stopRun(sess)
		default:
			sess.writeError(fmt.Sprintf("unknown action: %s", cmd.Action))
		}
	}
}

// startRun validates the start command and launches the route in a
// background goroutine. Validation failures reject the command before any
// work begins.
func (m *StreamManager) startRun(sess *streamSession, req *dao.StartStreamRequest) error {
	if req == nil {
		return errors.New("start command requires a start payload")
	}
	if err := m.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid start command: %v", err)
	}

	backend, err := m.registry.Get(req.DetectorName)
	if err != nil {
		return err
	}

	sess.runMu.Lock()
	defer sess.runMu.Unlock()
	if sess.running {
		return errors.New("a route is already running on this session")
	}

	m.mu.Lock()
	if _, active := m.activeUsers[req.UserId]; active {
		m.mu.Unlock()
		return fmt.Errorf("a route is already running for user %d", req.UserId)
	}
	m.activeUsers[req.UserId] = struct{}{}
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	sess.runCancel = cancel
	sess.running = true

	route := pipeline.SampleRoute(req.StartLat, req.StartLon, req.EndLat, req.EndLon, req.NumPoints)

	go func() {
		defer m.releaseRun(sess, req.UserId)

		done := m.pipe.Run(ctx, pipeline.RunParams{
			UserId:   req.UserId,
			Route:    route,
			Detector: backend,
			Emit: func(progress dao.StreamProgress) {
				if err := sess.writeJSON(progress); err != nil {
					sess.logger.WithError(err).Warn("failed to write progress, cancelling route")
					cancel()
				}
			},
		})

		if err := sess.writeJSON(done); err != nil {
			sess.logger.WithError(err).Warn("failed to write done message")
		}
	}()

	return nil
}

func (m *StreamManager) releaseRun(sess *streamSession, userId int) {
	m.mu.Lock()
	delete(m.activeUsers, userId)
	m.mu.Unlock()

	sess.runMu.Lock()
	sess.running = false
	sess.runCancel = nil
	sess.runMu.Unlock()
}

func (m *StreamManager) stopRun(sess *streamSession) {
	sess.runMu.Lock()
	cancel := sess.runCancel
	sess.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}
