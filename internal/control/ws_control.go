// Package control classifies pointer gestures and maps them onto device screens.
package control

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Dispatcher sends device-space gestures to the provider without blocking input.
type Dispatcher interface {
	DispatchAsync(ctx context.Context, udid string, g Gesture)
}

// ScreenResolver returns the parsed screen size of a device.
type ScreenResolver func(udid string) (geometry.ScreenSize, error)

// ErrUnknownDevice is returned by resolvers for devices missing from the inventory.
var ErrUnknownDevice = errors.New("unknown device")

// Server handles control view websockets, one per device.
type Server struct {
	mu           sync.Mutex
	upgrader     websocket.Upgrader
	authFn       func() bool
	screens      ScreenResolver
	dispatcher   Dispatcher
	canvasHeight float64
	views        map[string]*view
	log          *logrus.Entry
}

// view is the state of one connected control view.
type view struct {
	udid    string
	conn    *websocket.Conn
	writeMu sync.Mutex
	tracker *Tracker
	screen  geometry.ScreenSize
	canvas  geometry.Canvas
}

// NewServer creates a control websocket server.
func NewServer(authFn func() bool, screens ScreenResolver, dispatcher Dispatcher, canvasHeight float64) *Server {
	if canvasHeight <= 0 {
		canvasHeight = geometry.DefaultCanvasHeight
	}
	return &Server{
		authFn:       authFn,
		screens:      screens,
		dispatcher:   dispatcher,
		canvasHeight: canvasHeight,
		views:        make(map[string]*view),
		log:          logging.For("control"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeDevice upgrades the request and runs the control view for udid.
func (s *Server) ServeDevice(w http.ResponseWriter, r *http.Request, udid string) {
	if s.authFn != nil && !s.authFn() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	screen, screenErr := s.screens(udid)
	if errors.Is(screenErr, ErrUnknownDevice) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if screenErr != nil {
		s.log.WithField("udid", udid).Warnf("control view rejected: %v", screenErr)
		s.rejectConn(conn, screenErr.Error())
		return
	}

	v := &view{
		udid:    udid,
		conn:    conn,
		tracker: NewTracker(),
		screen:  screen,
		canvas:  geometry.CanvasFor(screen, s.canvasHeight),
	}
	if err := s.acceptView(v); err != nil {
		s.rejectConn(conn, err.Error())
		return
	}
	defer s.cleanupView(v)

	_ = v.send(Event{T: EventReady, Width: v.canvas.Width, Height: v.canvas.Height})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := s.handleMessage(r.Context(), v, msg); err != nil {
			return
		}
	}
}

// NotifyExpired prompts the device's control view to refresh its session or leave.
func (s *Server) NotifyExpired(udid string, reason string) {
	s.mu.Lock()
	v := s.views[udid]
	s.mu.Unlock()
	if v == nil {
		return
	}
	v.tracker.Reset()
	_ = v.send(Event{T: EventSessionExpired, Reason: reason})
}

// Connected reports whether a control view is open for udid.
func (s *Server) Connected(udid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.views[udid]
	return ok
}

// acceptView ensures only one control view per device.
func (s *Server) acceptView(v *view) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.views[v.udid]; ok {
		return fmt.Errorf("control view already open for %s", v.udid)
	}
	s.views[v.udid] = v
	return nil
}

// cleanupView releases the device slot when the view closes.
func (s *Server) cleanupView(v *view) {
	s.mu.Lock()
	if s.views[v.udid] == v {
		delete(s.views, v.udid)
	}
	s.mu.Unlock()
	_ = v.conn.Close()
}

// rejectConn sends an error event and a policy violation close.
func (s *Server) rejectConn(conn *websocket.Conn, reason string) {
	_ = conn.WriteJSON(Event{T: EventError, Reason: reason})
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(time.Second))
	_ = conn.Close()
}

// handleMessage applies a single viewer message.
func (s *Server) handleMessage(ctx context.Context, v *view, msg Message) error {
	switch msg.T {
	case "down":
		v.tracker.Down(msg.ID, msg.Sample())
		return nil
	case "up":
		return s.handlePointerUp(ctx, v, msg)
	case "cancel":
		v.tracker.Reset()
		return nil
	case "canvas":
		if msg.W > 0 && msg.H > 0 {
			v.canvas = geometry.Canvas{Width: msg.W, Height: msg.H}
		}
		return nil
	default:
		return nil
	}
}

// handlePointerUp classifies the finished gesture and dispatches it in device space.
func (s *Server) handlePointerUp(ctx context.Context, v *view, msg Message) error {
	g, ok := v.tracker.Up(msg.ID, msg.Sample())
	if !ok {
		return nil
	}
	mapped, err := MapGesture(g, v.canvas, v.screen)
	if err != nil {
		return v.send(Event{T: EventError, Reason: err.Error()})
	}
	s.log.WithFields(logrus.Fields{
		"udid":    v.udid,
		"gesture": mapped.Kind,
		"x":       mapped.From.X,
		"y":       mapped.From.Y,
	}).Debug("dispatching gesture")
	s.dispatcher.DispatchAsync(ctx, v.udid, mapped)
	return v.send(gestureEvent(mapped))
}

// send writes an event to the view.
func (v *view) send(ev Event) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return v.conn.WriteJSON(ev)
}
