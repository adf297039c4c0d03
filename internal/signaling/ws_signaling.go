package signaling

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// ViewerPolicy controls how additional viewers of a device are handled.
type ViewerPolicy int

const (
	// ViewerReject rejects new connections when one is active.
	ViewerReject ViewerPolicy = iota
	// ViewerReplace closes the active connection when a new one arrives.
	ViewerReplace
)

// PeerFactory creates the server side peer for a device.
type PeerFactory interface {
	NewPeer(udid string) (*webrtc.PeerConnection, error)
}

// Server handles WebRTC signaling over WebSocket, one viewer per device.
type Server struct {
	mu       sync.Mutex
	upgrader websocket.Upgrader
	peers    PeerFactory
	policy   ViewerPolicy
	authFn   func() bool
	known    func(udid string) bool
	viewers  map[string]*viewer
	log      *logrus.Entry
}

// viewer is one signaling connection and its peer.
type viewer struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	peer    *webrtc.PeerConnection
}

// NewServer creates a signaling server. known reports whether a device exists.
func NewServer(peers PeerFactory, policy ViewerPolicy, authFn func() bool, known func(udid string) bool) *Server {
	return &Server{
		peers:   peers,
		policy:  policy,
		authFn:  authFn,
		known:   known,
		viewers: make(map[string]*viewer),
		log:     logging.For("signaling"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeDevice upgrades the request and runs the signaling loop for udid.
func (s *Server) ServeDevice(w http.ResponseWriter, r *http.Request, udid string) {
	if s.authFn != nil && !s.authFn() {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if s.known != nil && !s.known(udid) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	v := &viewer{conn: conn}
	if err := s.acceptViewer(udid, v); err != nil {
		rejectConn(conn, err.Error())
		return
	}
	defer s.cleanupViewer(udid, v)

	log := s.log.WithField("udid", udid)
	peer, err := s.peers.NewPeer(udid)
	if err != nil {
		log.Warnf("create peer: %v", err)
		_ = v.send(Message{T: "error", Reason: err.Error()})
		return
	}
	if err := s.attachPeer(udid, v, peer); err != nil {
		_ = peer.Close()
		return
	}

	peer.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		candidate := c.ToJSON()
		_ = v.send(Message{T: "ice", Candidate: &candidate})
	})

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		if err := handleMessage(v, peer, msg); err != nil {
			log.Debugf("signaling ended: %v", err)
			_ = v.send(Message{T: "error", Reason: err.Error()})
			return
		}
	}
}

// NotifyRestart asks the device's viewer to renegotiate.
func (s *Server) NotifyRestart(udid string) {
	s.mu.Lock()
	v := s.viewers[udid]
	s.mu.Unlock()
	if v == nil {
		return
	}
	_ = v.send(Message{T: "restart"})
}

// acceptViewer registers a viewer for udid or returns an error.
func (s *Server) acceptViewer(udid string, v *viewer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old := s.viewers[udid]; old != nil {
		switch s.policy {
		case ViewerReplace:
			_ = old.conn.Close()
			delete(s.viewers, udid)
		default:
			return fmt.Errorf("viewer already connected to %s", udid)
		}
	}
	s.viewers[udid] = v
	return nil
}

// attachPeer stores the peer connection when the viewer is still active.
func (s *Server) attachPeer(udid string, v *viewer, peer *webrtc.PeerConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewers[udid] != v {
		return errors.New("connection no longer active")
	}
	v.peer = peer
	return nil
}

// cleanupViewer clears state if the viewer is still the active one.
func (s *Server) cleanupViewer(udid string, v *viewer) {
	s.mu.Lock()
	if s.viewers[udid] == v {
		delete(s.viewers, udid)
	}
	peer := v.peer
	s.mu.Unlock()
	if peer != nil {
		_ = peer.Close()
	}
	_ = v.conn.Close()
}

// rejectConn sends a policy violation close and closes the socket.
func rejectConn(conn *websocket.Conn, reason string) {
	message := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(1*time.Second))
	_ = conn.Close()
}

// handleMessage dispatches signaling messages.
func handleMessage(v *viewer, peer *webrtc.PeerConnection, msg Message) error {
	switch msg.T {
	case "offer":
		return handleOffer(v, peer, msg.SDP)
	case "ice":
		return handleICE(peer, msg.Candidate)
	default:
		return nil
	}
}

// handleOffer processes an SDP offer and replies with an answer.
func handleOffer(v *viewer, peer *webrtc.PeerConnection, sdp string) error {
	if sdp == "" {
		return errors.New("empty offer")
	}
	if err := peer.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}); err != nil {
		return errors.Wrap(err, "set remote description")
	}
	answer, err := peer.CreateAnswer(nil)
	if err != nil {
		return errors.Wrap(err, "create answer")
	}
	gatherComplete := webrtc.GatheringCompletePromise(peer)
	if err := peer.SetLocalDescription(answer); err != nil {
		return errors.Wrap(err, "set local description")
	}
	<-gatherComplete
	local := peer.LocalDescription()
	if local == nil {
		return errors.New("missing local description")
	}
	return v.send(Message{T: "answer", SDP: local.SDP})
}

// handleICE adds a remote ICE candidate.
func handleICE(peer *webrtc.PeerConnection, candidate *webrtc.ICECandidateInit) error {
	if candidate == nil {
		return nil
	}
	return peer.AddICECandidate(*candidate)
}

// send writes a message to the viewer.
func (v *viewer) send(msg Message) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	return v.conn.WriteJSON(msg)
}
