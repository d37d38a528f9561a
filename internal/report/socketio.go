package report

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/vk/exerunner/internal/config"
	"github.com/vk/exerunner/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

const (
	defaultEvent   = "step_result"
	defaultTimeout = 10 * time.Second
)

// SocketIO emits each event on a socket.io connection and waits for the
// host to answer with "<event>_ack".
type SocketIO struct {
	baseURL            string
	path               string
	namespace          string
	event              string
	timeout            time.Duration
	insecureSkipVerify bool
}

// NewSocketIO validates cfg and returns a reporter for it.
func NewSocketIO(cfg *config.Reporter) (*SocketIO, error) {
	if cfg == nil || cfg.URL == "" {
		return nil, errors.New("reporter: url is required")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("reporter: failed to parse URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("reporter: URL %q must be absolute", cfg.URL)
	}

	r := &SocketIO{
		baseURL:            fmt.Sprintf("%s://%s", u.Scheme, u.Host),
		path:               u.Path,
		namespace:          cfg.Namespace,
		event:              cfg.Event,
		timeout:            defaultTimeout,
		insecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if r.namespace == "" {
		r.namespace = "/"
	}
	if r.event == "" {
		r.event = defaultEvent
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("reporter: invalid timeout %q: %w", cfg.Timeout, err)
		}
		r.timeout = d
	}
	return r, nil
}

// Report implements Reporter.
func (r *SocketIO) Report(ctx context.Context, ev Event) error {
	logger := ctxlog.FromContext(ctx).With("reporter", "socketio", "url", r.baseURL, "event", r.event)

	payload, err := toPayload(ev)
	if err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	opts := socket.DefaultOptions()
	opts.SetPath(r.path)
	if r.insecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification")
		opts.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	manager := socket.NewManager(r.baseURL, opts)
	io := manager.Socket(r.namespace, opts)
	defer io.Disconnect()

	var connected atomic.Bool
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	io.On(types.EventName("connect"), func(...any) {
		connected.Store(true)
		logger.Debug("Connected, emitting step result.", "sid", io.Id(), "step", ev.Step)
		io.Emit(r.event, payload)
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		if len(errs) > 0 {
			if err, ok := errs[0].(error); ok {
				finish(fmt.Errorf("reporter: connect: %w", err))
				return
			}
		}
		finish(errors.New("reporter: connect failed"))
	})
	io.On(types.EventName(r.event+"_ack"), func(...any) {
		finish(nil)
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		if connected.Load() {
			return fmt.Errorf("reporter: timed out waiting for %s_ack", r.event)
		}
		return errors.New("reporter: timed out while waiting for connection")
	case err := <-done:
		return err
	}
}

func toPayload(ev Event) (map[string]any, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
