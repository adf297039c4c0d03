package stream

import (
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collect drains up to n frames from src.
func collect(t *testing.T, ctx context.Context, src Source, n int) ([]Frame, error) {
	t.Helper()
	var frames []Frame
	for f, err := range src.Frames(ctx) {
		if err != nil {
			return frames, err
		}
		frames = append(frames, f)
		if len(frames) == n {
			break
		}
	}
	return frames, nil
}

// TestDecodeMessage verifies the tag is read big-endian and the rest is payload.
func TestDecodeMessage(t *testing.T) {
	tag, payload, err := DecodeMessage([]byte{0, 0, 0, 2, 0xff, 0xd8})
	require.NoError(t, err)
	assert.Equal(t, TagImage, tag)
	assert.Equal(t, []byte{0xff, 0xd8}, payload)

	tag, payload, err = DecodeMessage(EncodeMessage(7, nil))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), tag)
	assert.Empty(t, payload)
}

// TestDecodeMessage_Short verifies messages without a full tag are rejected.
func TestDecodeMessage_Short(t *testing.T) {
	_, _, err := DecodeMessage([]byte{0, 2})
	assert.ErrorIs(t, err, ErrShortMessage)
}

// wsStreamServer serves the given messages then keeps the socket open until the client leaves.
func wsStreamServer(t *testing.T, gotAuth chan<- string, msgs ...func(*websocket.Conn) error) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gotAuth != nil {
			gotAuth <- r.Header.Get("Authorization")
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range msgs {
			if err := m(conn); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

// binaryMsg returns a writer for one binary message.
func binaryMsg(b []byte) func(*websocket.Conn) error {
	return func(c *websocket.Conn) error { return c.WriteMessage(websocket.BinaryMessage, b) }
}

// TestWSSource_FiltersImageFrames verifies only tag-2 binary messages become frames.
func TestWSSource_FiltersImageFrames(t *testing.T) {
	auth := make(chan string, 1)
	ts := wsStreamServer(t, auth,
		func(c *websocket.Conn) error { return c.WriteMessage(websocket.TextMessage, []byte(`{"hello":1}`)) },
		binaryMsg([]byte{1}),
		binaryMsg(EncodeMessage(1, []byte("meta"))),
		binaryMsg(EncodeMessage(TagImage, []byte("jpeg-1"))),
		binaryMsg(EncodeMessage(TagImage, []byte("jpeg-2"))),
	)

	src := NewWSSource("ws"+strings.TrimPrefix(ts.URL, "http"), http.Header{"Authorization": {"Bearer tok"}})
	frames, err := collect(t, context.Background(), src, 2)
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte("jpeg-1"), frames[0].Data)
	assert.Equal(t, uint64(1), frames[0].Seq)
	assert.Equal(t, []byte("jpeg-2"), frames[1].Data)
	assert.Equal(t, uint64(2), frames[1].Seq)
	assert.Equal(t, "Bearer tok", <-auth)
}

// TestWSSource_Restartable verifies each iteration opens a fresh connection.
func TestWSSource_Restartable(t *testing.T) {
	ts := wsStreamServer(t, nil, binaryMsg(EncodeMessage(TagImage, []byte("x"))))
	src := NewWSSource("ws"+strings.TrimPrefix(ts.URL, "http"), nil)

	for range 2 {
		frames, err := collect(t, context.Background(), src, 1)
		require.NoError(t, err)
		require.Len(t, frames, 1)
		assert.Equal(t, uint64(1), frames[0].Seq)
	}
}

// TestWSSource_CancelEndsQuietly verifies cancelling ctx stops the sequence without an error.
func TestWSSource_CancelEndsQuietly(t *testing.T) {
	ts := wsStreamServer(t, nil)
	src := NewWSSource("ws"+strings.TrimPrefix(ts.URL, "http"), nil)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	frames, err := collect(t, ctx, src, 1)
	assert.NoError(t, err)
	assert.Empty(t, frames)
}

// TestWSSource_DialError verifies a refused handshake is yielded as an error.
func TestWSSource_DialError(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()
	src := NewWSSource("ws"+strings.TrimPrefix(ts.URL, "http"), nil)

	_, err := collect(t, context.Background(), src, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

// mjpegServer writes parts as a multipart/x-mixed-replace stream.
func mjpegServer(t *testing.T, parts ...string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		_ = mw.SetBoundary("frame")
		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		for _, p := range parts {
			pw, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			_, _ = pw.Write([]byte(p))
			w.(http.Flusher).Flush()
		}
		_ = mw.Close()
	}))
	t.Cleanup(ts.Close)
	return ts
}

// TestMJPEGSource_YieldsParts verifies each multipart part becomes a frame until the stream ends.
func TestMJPEGSource_YieldsParts(t *testing.T) {
	ts := mjpegServer(t, "a", "bb", "ccc")
	src := NewMJPEGSource(ts.URL, nil, nil)

	frames, err := collect(t, context.Background(), src, 10)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []byte("ccc"), frames[2].Data)
	assert.Equal(t, uint64(3), frames[2].Seq)
}

// TestMJPEGSource_OversizedFrame verifies a frame over the size limit is reported instead of truncated.
func TestMJPEGSource_OversizedFrame(t *testing.T) {
	ts := mjpegServer(t, "ok", "too large", "after")
	src := NewMJPEGSource(ts.URL, nil, nil)
	src.maxFrame = 4

	frames, err := collect(t, context.Background(), src, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds 4 bytes")
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("ok"), frames[0].Data)
}

// TestMJPEGSource_FrameAtLimit verifies a frame exactly at the limit is kept whole.
func TestMJPEGSource_FrameAtLimit(t *testing.T) {
	ts := mjpegServer(t, "four")
	src := NewMJPEGSource(ts.URL, nil, nil)
	src.maxFrame = 4

	frames, err := collect(t, context.Background(), src, 10)
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, []byte("four"), frames[0].Data)
}

// TestMJPEGSource_BadStatus verifies non-2xx responses are yielded as errors.
func TestMJPEGSource_BadStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := collect(t, context.Background(), NewMJPEGSource(ts.URL, nil, nil), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

// TestMJPEGSource_WrongContentType verifies non-multipart responses are refused.
func TestMJPEGSource_WrongContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte("x"))
	}))
	defer ts.Close()

	_, err := collect(t, context.Background(), NewMJPEGSource(ts.URL, nil, nil), 1)
	assert.Error(t, err)
}

// TestForDevice verifies the transport is chosen by platform.
func TestForDevice(t *testing.T) {
	src, err := ForDevice(inventory.Device{UDID: "i", OS: "iOS", StreamURL: "http://farm/i.mjpeg"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &MJPEGSource{}, src)

	src, err = ForDevice(inventory.Device{UDID: "a", OS: inventory.OSAndroid, StreamURL: "https://farm/a"}, nil)
	require.NoError(t, err)
	require.IsType(t, &WSSource{}, src)
	assert.Equal(t, "wss://farm/a", src.(*WSSource).url)

	_, err = ForDevice(inventory.Device{UDID: "x", OS: "tizen", StreamURL: "http://farm/x"}, nil)
	assert.Error(t, err)
	_, err = ForDevice(inventory.Device{UDID: "y", OS: inventory.OSiOS}, nil)
	assert.Error(t, err)
}
