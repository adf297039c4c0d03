package stream

import (
	"context"
	"iter"
	"net/http"
	"time"

	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// WSSource reads frames from a binary WebSocket stream.
type WSSource struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	log    *logrus.Entry
}

// NewWSSource returns a source for the ws:// or wss:// stream at url.
func NewWSSource(url string, header http.Header) *WSSource {
	return &WSSource{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   64 * 1024,
		},
		log: logging.For("stream").WithField("transport", "ws"),
	}
}

// Frames implements Source.
func (s *WSSource) Frames(ctx context.Context) iter.Seq2[Frame, error] {
	return func(yield func(Frame, error) bool) {
		conn, resp, err := s.dialer.DialContext(ctx, s.url, s.header)
		if err != nil {
			if resp != nil {
				err = errors.Wrapf(err, "dial %s: status %d", s.url, resp.StatusCode)
			} else {
				err = errors.Wrapf(err, "dial %s", s.url)
			}
			yield(Frame{}, err)
			return
		}
		defer conn.Close()
		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		defer stop()

		s.log.WithField("url", s.url).Debug("stream connected")
		var seq uint64
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return
				}
				yield(Frame{}, errors.Wrap(err, "read stream"))
				return
			}
			if mt != websocket.BinaryMessage {
				continue
			}
			tag, payload, err := DecodeMessage(data)
			if err != nil {
				s.log.Debugf("skipping message: %v", err)
				continue
			}
			if tag != TagImage {
				continue
			}
			seq++
			if !yield(Frame{Seq: seq, Data: payload, ReceivedAt: time.Now()}, nil) {
				return
			}
		}
	}
}
