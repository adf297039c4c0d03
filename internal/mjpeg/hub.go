package mjpeg

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/frudas24/farmdeck/internal/stream"
	"github.com/sirupsen/logrus"
)

// reconnectDelay is the pause before reopening a device stream that failed.
const reconnectDelay = time.Second

// SourceFunc opens the frame source of a device.
type SourceFunc func(udid string) (stream.Source, error)

// Hub owns one Stream per device and keeps the device connection open only while someone watches.
type Hub struct {
	mu          sync.Mutex
	open        SourceFunc
	minInterval time.Duration
	devices     map[string]*deviceFeed
	log         *logrus.Entry
}

// deviceFeed is a device stream plus the pump feeding it.
type deviceFeed struct {
	stream  *Stream
	viewers int
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewHub returns a hub opening device sources with open.
func NewHub(open SourceFunc, minInterval time.Duration) *Hub {
	return &Hub{
		open:        open,
		minInterval: minInterval,
		devices:     make(map[string]*deviceFeed),
		log:         logging.For("mjpeg"),
	}
}

// Acquire returns the device stream, starting the pump for the first viewer.
// The release func must be called exactly once; the last release stops the pump.
func (h *Hub) Acquire(udid string) (*Stream, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	feed := h.devices[udid]
	if feed == nil {
		src, err := h.open(udid)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithCancel(context.Background())
		feed = &deviceFeed{
			stream: NewStream(h.minInterval),
			cancel: cancel,
			done:   make(chan struct{}),
		}
		h.devices[udid] = feed
		go h.pump(ctx, udid, src, feed)
	}
	feed.viewers++

	var once sync.Once
	release := func() {
		once.Do(func() { h.release(udid, feed) })
	}
	return feed.stream, release, nil
}

// ServeDevice streams the device to one HTTP client.
func (h *Hub) ServeDevice(w http.ResponseWriter, r *http.Request, udid string) {
	s, release, err := h.Acquire(udid)
	if err != nil {
		h.log.WithField("udid", udid).Warnf("open stream: %v", err)
		http.Error(w, "stream unavailable", http.StatusBadGateway)
		return
	}
	defer release()
	s.Handler(w, r)
}

// Viewers returns how many viewers hold the device stream.
func (h *Hub) Viewers(udid string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if feed := h.devices[udid]; feed != nil {
		return feed.viewers
	}
	return 0
}

// Close stops every pump and waits for them to exit.
func (h *Hub) Close() {
	h.mu.Lock()
	feeds := make([]*deviceFeed, 0, len(h.devices))
	for udid, feed := range h.devices {
		feed.cancel()
		feeds = append(feeds, feed)
		delete(h.devices, udid)
	}
	h.mu.Unlock()
	for _, feed := range feeds {
		<-feed.done
	}
}

// release drops one viewer and stops the pump after the last one.
func (h *Hub) release(udid string, feed *deviceFeed) {
	h.mu.Lock()
	defer h.mu.Unlock()
	feed.viewers--
	if feed.viewers > 0 {
		return
	}
	feed.cancel()
	if h.devices[udid] == feed {
		delete(h.devices, udid)
	}
}

// pump publishes frames until ctx is cancelled, reconnecting after failures.
func (h *Hub) pump(ctx context.Context, udid string, src stream.Source, feed *deviceFeed) {
	defer close(feed.done)
	log := h.log.WithField("udid", udid)
	log.Debug("stream started")
	defer log.Debug("stream stopped")

	for {
		for f, err := range src.Frames(ctx) {
			if err != nil {
				log.Warnf("stream error: %v", err)
				break
			}
			feed.stream.Publish(f.Data)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
