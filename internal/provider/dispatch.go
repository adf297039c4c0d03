// Package provider talks to the device-provider control API.
package provider

import (
	"context"
	"sync"

	"github.com/frudas24/farmdeck/internal/control"
	"github.com/frudas24/farmdeck/internal/geometry"
	"github.com/frudas24/farmdeck/internal/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Actuator is the subset of the provider API used to replay gestures.
type Actuator interface {
	Tap(ctx context.Context, udid string, p geometry.Point) error
	TouchAndHold(ctx context.Context, udid string, p geometry.Point) error
	Swipe(ctx context.Context, udid string, from, to geometry.Point) error
}

// ExpiryFunc is called for every failed dispatch so the viewer can be prompted.
type ExpiryFunc func(udid string, err error)

// Dispatcher sends classified gestures to the provider, at most once each.
type Dispatcher struct {
	act      Actuator
	onExpire ExpiryFunc
	log      *logrus.Entry
	wg       sync.WaitGroup
}

// Ensure Dispatcher satisfies the control view dependency.
var _ control.Dispatcher = (*Dispatcher)(nil)

// NewDispatcher returns a dispatcher that reports failures to onExpire.
func NewDispatcher(act Actuator, onExpire ExpiryFunc) *Dispatcher {
	return &Dispatcher{
		act:      act,
		onExpire: onExpire,
		log:      logging.For("dispatch"),
	}
}

// Dispatch sends g (device space) to the device. Failures are also handed to the expiry callback.
func (d *Dispatcher) Dispatch(ctx context.Context, udid string, g control.Gesture) error {
	err := d.send(ctx, udid, g)
	if err == nil {
		return nil
	}
	d.log.WithFields(logrus.Fields{
		"udid":    udid,
		"gesture": g.Kind,
		"expired": IsSessionExpired(err),
	}).Warnf("dispatch failed: %v", err)
	if d.onExpire != nil {
		d.onExpire(udid, err)
	}
	return err
}

// DispatchAsync dispatches g on its own goroutine. Cancelling ctx does not abort the request.
func (d *Dispatcher) DispatchAsync(ctx context.Context, udid string, g control.Gesture) {
	ctx = context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		_ = d.Dispatch(ctx, udid, g)
	}()
}

// Wait blocks until all asynchronous dispatches have finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// send maps the gesture kind onto its provider endpoint.
func (d *Dispatcher) send(ctx context.Context, udid string, g control.Gesture) error {
	switch g.Kind {
	case control.GestureTap:
		return d.act.Tap(ctx, udid, g.From)
	case control.GestureLongPress:
		return d.act.TouchAndHold(ctx, udid, g.From)
	case control.GestureSwipe:
		return d.act.Swipe(ctx, udid, g.From, g.To)
	default:
		return errors.Errorf("unknown gesture kind %q", g.Kind)
	}
}
