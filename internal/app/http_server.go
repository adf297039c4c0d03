package app

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"

	"github.com/frudas24/farmdeck/internal/control"
	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/frudas24/farmdeck/internal/provider"
	"github.com/frudas24/farmdeck/internal/session"
	"github.com/frudas24/farmdeck/internal/web"
	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

// Router builds the HTTP routes. staticDir overrides the embedded UI when it exists on disk.
func (a *App) Router(staticDir string) *mux.Router {
	if staticDir == "" {
		staticDir = filepath.Join("internal", "web", "static")
	}

	r := mux.NewRouter()
	r.HandleFunc("/login", a.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", a.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/favicon.ico", handleFavicon)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(a.requireAuth)
	api.HandleFunc("/state", a.handleState).Methods(http.MethodGet)
	api.HandleFunc("/token", a.handleToken).Methods(http.MethodPost)
	api.HandleFunc("/video", a.handleVideoMode).Methods(http.MethodPost)
	api.HandleFunc("/devices", a.handleDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/sync", a.handleSync).Methods(http.MethodPost)
	api.HandleFunc("/devices/{udid}/health", a.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/devices/{udid}/gesture", a.handleGesture).Methods(http.MethodPost)

	r.Handle("/mjpeg/{udid}", a.requireAuth(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		a.hub.ServeDevice(w, req, mux.Vars(req)["udid"])
	}))).Methods(http.MethodGet)
	r.HandleFunc("/ws/control/{udid}", func(w http.ResponseWriter, req *http.Request) {
		a.control.ServeDevice(w, req, mux.Vars(req)["udid"])
	})
	r.HandleFunc("/ws/signal/{udid}", func(w http.ResponseWriter, req *http.Request) {
		a.signaling.ServeDevice(w, req, mux.Vars(req)["udid"])
	})

	r.PathPrefix("/").Handler(staticFileServer(staticDir))
	return r
}

type loginRequest struct {
	Password string `json:"password"`
}

type tokenRequest struct {
	Token string `json:"token"`
}

type videoRequest struct {
	Mode string `json:"mode"`
}

type stateResponse struct {
	session.Snapshot
	Devices      int      `json:"devices"`
	CanvasHeight float64  `json:"canvasHeight"`
	Controlled   []string `json:"controlled"`
}

type deviceResponse struct {
	inventory.Device
	Canvas *geometry.Canvas `json:"canvas,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type gestureRequest struct {
	Down   control.PointerSample `json:"down"`
	Up     control.PointerSample `json:"up"`
	Canvas *geometry.Canvas      `json:"canvas,omitempty"`
}

type gestureResponse struct {
	Kind control.GestureKind `json:"kind"`
	From geometry.Point      `json:"from"`
	To   *geometry.Point     `json:"to,omitempty"`
}

type errorResponse struct {
	Error          string `json:"error"`
	SessionExpired bool   `json:"sessionExpired,omitempty"`
}

// handleLogin authenticates the session.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if !a.session.Authenticate(req.Password) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleLogout clears authentication state.
func (a *App) handleLogout(w http.ResponseWriter, _ *http.Request) {
	a.session.Logout()
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleState returns current session state.
func (a *App) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := stateResponse{
		Snapshot:     a.session.Snapshot(),
		Devices:      a.devices.Len(),
		CanvasHeight: a.cfg.CanvasHeight,
		Controlled:   []string{},
	}
	for _, d := range a.devices.List() {
		if a.control.Connected(d.UDID) {
			resp.Controlled = append(resp.Controlled, d.UDID)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleToken stores a refreshed provider token.
func (a *App) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Token == "" {
		http.Error(w, "token is required", http.StatusBadRequest)
		return
	}
	a.session.SetToken(req.Token)
	a.log.Info("provider token refreshed")
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleVideoMode switches the frame transport viewers use.
func (a *App) handleVideoMode(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	a.session.SetVideoMode(req.Mode)
	writeJSON(w, http.StatusOK, map[string]string{"videoMode": a.session.VideoMode()})
}

// handleDevices lists the inventory with each device's canvas or geometry error.
func (a *App) handleDevices(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.deviceList())
}

// handleSync refreshes the inventory from the provider.
func (a *App) handleSync(w http.ResponseWriter, r *http.Request) {
	if _, err := inventory.Sync(r.Context(), a.client, a.devices, a.cfg.InventoryPath); err != nil {
		a.writeProviderError(w, "", err)
		return
	}
	writeJSON(w, http.StatusOK, a.deviceList())
}

// handleHealth checks the device through the provider before the viewer enters control.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	udid := mux.Vars(r)["udid"]
	if !a.knownDevice(udid) {
		http.Error(w, "device not found", http.StatusNotFound)
		return
	}
	if err := a.client.Health(r.Context(), udid); err != nil {
		a.writeProviderError(w, udid, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// handleGesture classifies one down/up pair and dispatches it synchronously.
func (a *App) handleGesture(w http.ResponseWriter, r *http.Request) {
	udid := mux.Vars(r)["udid"]
	screen, err := a.screenOf(udid)
	switch {
	case errors.Is(err, control.ErrUnknownDevice):
		http.Error(w, "device not found", http.StatusNotFound)
		return
	case err != nil:
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	var req gestureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	canvas := geometry.CanvasFor(screen, a.cfg.CanvasHeight)
	if req.Canvas != nil {
		canvas = *req.Canvas
	}

	g, err := control.Resolve(req.Down, req.Up, canvas, screen)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	if err := a.dispatcher.Dispatch(r.Context(), udid, g); err != nil {
		a.writeProviderError(w, udid, err)
		return
	}
	writeJSON(w, http.StatusOK, toGestureResponse(g))
}

// deviceList renders the inventory for the API.
func (a *App) deviceList() []deviceResponse {
	list := a.devices.List()
	out := make([]deviceResponse, 0, len(list))
	for _, d := range list {
		item := deviceResponse{Device: d}
		if c, err := d.Canvas(a.cfg.CanvasHeight); err != nil {
			item.Error = err.Error()
		} else {
			item.Canvas = &c
		}
		out = append(out, item)
	}
	return out
}

// writeProviderError maps provider failures onto HTTP statuses.
func (a *App) writeProviderError(w http.ResponseWriter, udid string, err error) {
	a.log.WithField("udid", udid).Warnf("provider request failed: %v", err)
	if provider.IsSessionExpired(err) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: expiryReason(err), SessionExpired: true})
		return
	}
	writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
}

// toGestureResponse renders a device-space gesture.
func toGestureResponse(g control.Gesture) gestureResponse {
	resp := gestureResponse{Kind: g.Kind, From: g.From}
	if g.Kind == control.GestureSwipe {
		to := g.To
		resp.To = &to
	}
	return resp
}

// requireAuth rejects requests from unauthenticated viewers.
func (a *App) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.session.IsAuthenticated() {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeJSON writes v with status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// staticFileServer returns a handler for static assets, preferring disk then embed.
func staticFileServer(staticDir string) http.Handler {
	if staticDir != "" {
		if info, err := os.Stat(staticDir); err == nil && info.IsDir() {
			return http.FileServer(http.Dir(staticDir))
		}
	}

	embedded, err := web.StaticFS()
	if err != nil {
		return http.NotFoundHandler()
	}
	return http.FileServer(http.FS(embedded))
}

// handleFavicon avoids noisy 404s for the default browser request.
func handleFavicon(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
