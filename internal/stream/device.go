package stream

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/pkg/errors"
)

// ForDevice picks the stream transport for a device: MJPEG over HTTP for iOS,
// binary WebSocket for Android. header is sent on every connection.
func ForDevice(dev inventory.Device, header http.Header) (Source, error) {
	raw := strings.TrimSpace(dev.StreamURL)
	if raw == "" {
		return nil, errors.Errorf("device %s has no stream url", dev.UDID)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "device %s stream url", dev.UDID)
	}

	switch strings.ToLower(dev.OS) {
	case inventory.OSiOS:
		if u.Scheme != "http" && u.Scheme != "https" {
			return nil, errors.Errorf("device %s: mjpeg stream needs http(s), got %q", dev.UDID, u.Scheme)
		}
		return NewMJPEGSource(u.String(), header, nil), nil
	case inventory.OSAndroid:
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		case "ws", "wss":
		default:
			return nil, errors.Errorf("device %s: websocket stream needs ws(s), got %q", dev.UDID, u.Scheme)
		}
		return NewWSSource(u.String(), header), nil
	default:
		return nil, errors.Errorf("device %s: unsupported os %q", dev.UDID, dev.OS)
	}
}
