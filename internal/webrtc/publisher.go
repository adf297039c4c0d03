// Package webrtc relays device frames to browsers over WebRTC data channels.
package webrtc

import (
	"sync"

	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/frudas24/farmdeck/internal/mjpeg"
	"github.com/frudas24/farmdeck/internal/stream"
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// FramesLabel is the data channel label the browser opens to receive frames.
const FramesLabel = "frames"

// TagChunk marks a partial frame. The final chunk of a frame is tagged stream.TagImage.
const TagChunk uint32 = 1

// maxChunk keeps data channel messages under the SCTP message size browsers accept.
const maxChunk = 16 * 1024

// FrameFeed hands out per-device frame streams.
type FrameFeed interface {
	Acquire(udid string) (*mjpeg.Stream, func(), error)
}

// Publisher creates peer connections that push a device's frames to the browser.
type Publisher struct {
	api  *webrtc.API
	feed FrameFeed
	log  *logrus.Entry
}

// NewPublisher initializes a WebRTC publisher with default codecs/interceptors.
func NewPublisher(feed FrameFeed) (*Publisher, error) {
	media := &webrtc.MediaEngine{}
	if err := media.RegisterDefaultCodecs(); err != nil {
		return nil, errors.Wrap(err, "register codecs")
	}

	interceptors := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(media, interceptors); err != nil {
		return nil, errors.Wrap(err, "register interceptors")
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(media),
		webrtc.WithInterceptorRegistry(interceptors),
	)

	return &Publisher{api: api, feed: feed, log: logging.For("webrtc")}, nil
}

// NewPeer creates a peer connection that serves udid's frames on the browser's "frames" channel.
func (p *Publisher) NewPeer(udid string) (*webrtc.PeerConnection, error) {
	peer, err := p.api.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, errors.Wrap(err, "new peer connection")
	}
	log := p.log.WithField("udid", udid)

	peer.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != FramesLabel {
			log.Debugf("ignoring data channel %q", dc.Label())
			return
		}
		closed := make(chan struct{})
		var once sync.Once
		dc.OnClose(func() { once.Do(func() { close(closed) }) })
		dc.OnOpen(func() {
			go p.pushFrames(udid, dc, closed, log)
		})
	})
	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Debugf("peer state %s", state)
		if state == webrtc.PeerConnectionStateFailed {
			_ = peer.Close()
		}
	})
	return peer, nil
}

// pushFrames sends every frame of udid until the channel closes.
func (p *Publisher) pushFrames(udid string, dc *webrtc.DataChannel, closed <-chan struct{}, log *logrus.Entry) {
	s, release, err := p.feed.Acquire(udid)
	if err != nil {
		log.Warnf("open frames: %v", err)
		_ = dc.Close()
		return
	}
	defer release()

	ch := s.Subscribe()
	defer s.Unsubscribe(ch)

	for {
		select {
		case <-closed:
			return
		case jpg, ok := <-ch:
			if !ok {
				return
			}
			for _, msg := range splitFrame(jpg) {
				if err := dc.Send(msg); err != nil {
					log.Debugf("send frame: %v", err)
					return
				}
			}
		}
	}
}

// splitFrame cuts a frame into tagged chunks; only the last chunk carries stream.TagImage.
func splitFrame(jpg []byte) [][]byte {
	var out [][]byte
	for len(jpg) > maxChunk {
		out = append(out, stream.EncodeMessage(TagChunk, jpg[:maxChunk]))
		jpg = jpg[maxChunk:]
	}
	return append(out, stream.EncodeMessage(stream.TagImage, jpg))
}
