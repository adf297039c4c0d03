package app

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/frudas24/farmdeck/internal/config"
	"github.com/frudas24/farmdeck/internal/control"
	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/frudas24/farmdeck/internal/provider"
	"github.com/frudas24/farmdeck/internal/session"
	"github.com/frudas24/farmdeck/internal/testutil"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	app     *App
	sess    *session.Session
	fake    *testutil.FakeProvider
	server  *httptest.Server
	invPath string
}

// newTestEnv wires an App against a fake provider with two devices, one with broken geometry.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	fake := testutil.NewFakeProvider()
	t.Cleanup(fake.Close)

	sess, err := session.New("pw")
	require.NoError(t, err)
	sess.SetToken("tok")

	client, err := provider.NewClient(fake.URL, sess.Token, provider.WithTimeout(2*time.Second))
	require.NoError(t, err)

	devices := inventory.NewRegistry(
		inventory.Device{UDID: "dev-1", OS: inventory.OSAndroid, Screen: "1080x2400", StreamURL: "ws://127.0.0.1:1/dev-1"},
		inventory.Device{UDID: "bad", OS: inventory.OSiOS, Screen: "1080"},
	)
	invPath := filepath.Join(t.TempDir(), "devices.yaml")
	cfg := config.Config{CanvasHeight: geometry.DefaultCanvasHeight, InventoryPath: invPath}

	a, err := New(cfg, sess, devices, client)
	require.NoError(t, err)
	t.Cleanup(a.Close)

	ts := httptest.NewServer(a.Router(filepath.Join(t.TempDir(), "no-static")))
	t.Cleanup(ts.Close)
	return &testEnv{app: a, sess: sess, fake: fake, server: ts, invPath: invPath}
}

// do sends a request to the test server.
func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// login authenticates the viewer session.
func (e *testEnv) login(t *testing.T) {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/login", loginRequest{Password: "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

// decode reads a JSON response body into v.
func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// TestLogin_RequiredForAPI verifies the API is closed until the viewer logs in.
func TestLogin_RequiredForAPI(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/state", nil).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/login", loginRequest{Password: "nope"}).StatusCode)

	env.login(t)
	resp := env.do(t, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var state stateResponse
	decode(t, resp, &state)
	assert.True(t, state.Authenticated)
	assert.True(t, state.HasToken)
	assert.Equal(t, 2, state.Devices)

	env.do(t, http.MethodPost, "/logout", nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/devices", nil).StatusCode)
}

// TestDevices_ListsCanvasOrError verifies each device reports its canvas or its geometry error.
func TestDevices_ListsCanvasOrError(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.do(t, http.MethodGet, "/api/devices", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []deviceResponse
	decode(t, resp, &list)
	require.Len(t, list, 2)
	require.NotNil(t, list[0].Canvas)
	assert.Equal(t, geometry.Canvas{Width: 382.5, Height: 850}, *list[0].Canvas)
	assert.Nil(t, list[1].Canvas)
	assert.Contains(t, list[1].Error, "1080")
}

// TestGesture_TapDispatched verifies a REST gesture is classified, mapped and sent once.
func TestGesture_TapDispatched(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.do(t, http.MethodPost, "/api/devices/dev-1/gesture", gestureRequest{
		Down: control.PointerSample{X: 191.25, Y: 425, TimestampMs: 1000},
		Up:   control.PointerSample{X: 191.25, Y: 425, TimestampMs: 1100},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var g gestureResponse
	decode(t, resp, &g)
	assert.Equal(t, control.GestureTap, g.Kind)
	assert.Equal(t, geometry.Point{X: 540, Y: 1200}, g.From)

	calls := env.fake.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "/device/dev-1/tap", calls[0].Path)
	assert.Equal(t, "tok", calls[0].Token)
}

// TestGesture_ExpiredSession verifies a 401 marks the session expired and is reported as a conflict.
func TestGesture_ExpiredSession(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.fake.SetStatus(http.StatusUnauthorized)

	resp := env.do(t, http.MethodPost, "/api/devices/dev-1/gesture", gestureRequest{
		Down: control.PointerSample{X: 10, Y: 10, TimestampMs: 0},
		Up:   control.PointerSample{X: 300, Y: 10, TimestampMs: 200},
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	var body errorResponse
	decode(t, resp, &body)
	assert.True(t, body.SessionExpired)

	exp, ok := env.sess.Expired()
	require.True(t, ok)
	assert.Equal(t, "dev-1", exp.UDID)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/api/token", tokenRequest{Token: "tok-2"}).StatusCode)
	_, ok = env.sess.Expired()
	assert.False(t, ok)
}

// TestGesture_MalformedGeometry verifies nothing reaches the provider when geometry fails to parse.
func TestGesture_MalformedGeometry(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	resp := env.do(t, http.MethodPost, "/api/devices/bad/gesture", gestureRequest{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodPost, "/api/devices/ghost/gesture", gestureRequest{}).StatusCode)
	assert.Empty(t, env.fake.Calls())
}

// TestHealth verifies the health check is proxied to the provider.
func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)

	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/devices/dev-1/health", nil).StatusCode)
	env.fake.SetStatus(http.StatusNotFound)
	assert.Equal(t, http.StatusConflict, env.do(t, http.MethodGet, "/api/devices/dev-1/health", nil).StatusCode)
	env.fake.SetStatus(http.StatusServiceUnavailable)
	assert.Equal(t, http.StatusBadGateway, env.do(t, http.MethodGet, "/api/devices/dev-1/health", nil).StatusCode)
}

// TestSync_ReplacesInventory verifies the provider device list replaces and persists the inventory.
func TestSync_ReplacesInventory(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.fake.SetDevices([]provider.DeviceInfo{{UDID: "new-1", OS: "ios", Screen: "1179x2556"}})

	resp := env.do(t, http.MethodPost, "/api/devices/sync", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, ok := env.app.devices.Get("new-1")
	assert.True(t, ok)

	saved, err := inventory.Load(env.invPath)
	require.NoError(t, err)
	require.Len(t, saved, 1)
}

// TestVideoMode verifies the transport switch endpoint.
func TestVideoMode(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	resp := env.do(t, http.MethodPost, "/api/video", videoRequest{Mode: session.VideoWebRTC})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, session.VideoWebRTC, env.sess.VideoMode())
}

// TestStaticIndex verifies the embedded UI is served.
func TestStaticIndex(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestControlSocket_ExpiryPrompt verifies a rejected dispatch pushes a sessionExpired prompt to the control view.
func TestControlSocket_ExpiryPrompt(t *testing.T) {
	env := newTestEnv(t)
	env.login(t)
	env.fake.SetStatus(http.StatusUnauthorized)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws/control/dev-1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	next := func() control.Event {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var ev control.Event
		require.NoError(t, conn.ReadJSON(&ev))
		return ev
	}
	assert.Equal(t, control.EventReady, next().T)

	require.NoError(t, conn.WriteJSON(control.Message{T: "down", ID: 1, X: 100, Y: 100, TS: 0}))
	require.NoError(t, conn.WriteJSON(control.Message{T: "up", ID: 1, X: 100, Y: 100, TS: 50}))

	// The prompt comes from the dispatch goroutine, so it may overtake the gesture echo.
	got := map[string]control.Event{}
	for range 2 {
		ev := next()
		got[ev.T] = ev
	}
	require.Contains(t, got, control.EventGesture)
	require.Contains(t, got, control.EventSessionExpired)
	assert.Equal(t, "provider session expired", got[control.EventSessionExpired].Reason)
	assert.Len(t, env.fake.Calls(), 1)
}

// TestExpiryReason verifies the viewer-facing text per failure class.
func TestExpiryReason(t *testing.T) {
	assert.Equal(t, "provider session expired", expiryReason(provider.ErrSessionExpired))
	assert.Equal(t, "provider unreachable", expiryReason(&provider.NetworkError{Op: "x", Err: assert.AnError}))
	assert.Contains(t, expiryReason(&provider.StatusError{Op: "x", StatusCode: 500}), "500")
}
