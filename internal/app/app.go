// Package app wires the viewer HTTP API, websocket servers and device streams together.
package app

import (
	"net/http"

	"github.com/frudas24/farmdeck/internal/config"
	"github.com/frudas24/farmdeck/internal/control"
	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/inventory"
	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/frudas24/farmdeck/internal/mjpeg"
	"github.com/frudas24/farmdeck/internal/provider"
	"github.com/frudas24/farmdeck/internal/session"
	"github.com/frudas24/farmdeck/internal/signaling"
	"github.com/frudas24/farmdeck/internal/stream"
	"github.com/frudas24/farmdeck/internal/webrtc"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// App coordinates the HTTP API, websocket servers and device streams.
type App struct {
	cfg        config.Config
	session    *session.Session
	devices    *inventory.Registry
	client     *provider.Client
	dispatcher *provider.Dispatcher
	hub        *mjpeg.Hub
	publisher  *webrtc.Publisher
	signaling  *signaling.Server
	control    *control.Server
	log        *logrus.Entry
}

// New creates a new application with its dependencies wired.
func New(cfg config.Config, sess *session.Session, devices *inventory.Registry, client *provider.Client) (*App, error) {
	if sess == nil {
		return nil, errors.New("session is required")
	}
	if devices == nil {
		return nil, errors.New("device registry is required")
	}
	if client == nil {
		return nil, errors.New("provider client is required")
	}

	app := &App{
		cfg:     cfg,
		session: sess,
		devices: devices,
		client:  client,
		log:     logging.For("app"),
	}

	app.dispatcher = provider.NewDispatcher(client, app.handleDispatchFailure)
	app.hub = mjpeg.NewHub(app.openSource, cfg.MJPEGInterval())

	publisher, err := webrtc.NewPublisher(app.hub)
	if err != nil {
		return nil, err
	}
	app.publisher = publisher
	app.signaling = signaling.NewServer(publisher, signaling.ViewerReplace, sess.IsAuthenticated, app.knownDevice)
	app.control = control.NewServer(sess.IsAuthenticated, app.screenOf, app.dispatcher, cfg.CanvasHeight)

	return app, nil
}

// Close stops device streams and waits for in-flight dispatches.
func (a *App) Close() {
	a.hub.Close()
	a.dispatcher.Wait()
}

// Control returns the control websocket server.
func (a *App) Control() *control.Server {
	return a.control
}

// handleDispatchFailure is the expiry collaborator: every failed dispatch prompts the device's viewer.
func (a *App) handleDispatchFailure(udid string, err error) {
	reason := expiryReason(err)
	a.session.MarkExpired(udid, reason)
	a.control.NotifyExpired(udid, reason)
}

// expiryReason turns a dispatch failure into the text shown to the viewer.
func expiryReason(err error) string {
	if errors.Is(err, provider.ErrSessionExpired) {
		return "provider session expired"
	}
	var netErr *provider.NetworkError
	if errors.As(err, &netErr) {
		return "provider unreachable"
	}
	return err.Error()
}

// knownDevice reports whether udid is in the inventory.
func (a *App) knownDevice(udid string) bool {
	_, ok := a.devices.Get(udid)
	return ok
}

// screenOf resolves a device's parsed screen size for the control view.
func (a *App) screenOf(udid string) (geometry.ScreenSize, error) {
	dev, ok := a.devices.Get(udid)
	if !ok {
		return geometry.ScreenSize{}, control.ErrUnknownDevice
	}
	return dev.ScreenSize()
}

// openSource opens the provider stream for udid with the current token.
func (a *App) openSource(udid string) (stream.Source, error) {
	dev, ok := a.devices.Get(udid)
	if !ok {
		return nil, errors.Wrap(control.ErrUnknownDevice, udid)
	}
	header := http.Header{}
	if token := a.session.Token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	return stream.ForDevice(dev, header)
}
