// Package messaging carries commands between the page session and the
// background collaborators.
//
// A command is dispatched either to an in-process handler or, when a route
// says so, to a remote endpoint through a transport factory. Callers never
// know which:
//
//	r := messaging.New()
//	r.RegisterTransport("http", messaging.HTTPFactory())
//	r.RegisterLocal(messaging.CmdAIGenerate, svc.Handle)
//	_ = r.SetRoute(messaging.Route{Command: messaging.CmdAIGenerate, Strategy: "http", Endpoint: url})
//	resp, err := r.Call(ctx, messaging.CmdAIGenerate, payload)
package messaging

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
)

// Handler is a transport-agnostic command function: bytes in, bytes out.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// TransportFactory creates a Handler for a remote endpoint. The returned
// close function, which may be nil, runs when the route is replaced or the
// router closes.
type TransportFactory func(endpoint string, config json.RawMessage) (handler Handler, close func(), err error)

// Route sends one command somewhere other than its local handler.
// Strategy "local" (or empty) removes the remote route, "noop" swallows the
// command, anything else names a registered transport.
type Route struct {
	Command  string          `yaml:"command" json:"command"`
	Strategy string          `yaml:"strategy" json:"strategy"`
	Endpoint string          `yaml:"endpoint" json:"endpoint,omitempty"`
	Config   json.RawMessage `yaml:"-" json:"config,omitempty"`
}

func (rt Route) fingerprint() string {
	return rt.Strategy + "|" + rt.Endpoint + "|" + string(rt.Config)
}

type remoteEntry struct {
	route   Route
	handler Handler
	close   func()
}

// Router dispatches commands. Safe for concurrent use.
type Router struct {
	mu         sync.RWMutex
	local      map[string]Handler
	remote     map[string]remoteEntry
	noop       map[string]bool
	factories  map[string]TransportFactory
	middleware Middleware
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the router's logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.logger = l }
}

// WithMiddleware wraps every dispatched call, local or remote.
func WithMiddleware(mws ...Middleware) Option {
	return func(r *Router) { r.middleware = Chain(mws...) }
}

// New creates a Router with no handlers.
func New(opts ...Option) *Router {
	r := &Router{
		local:     make(map[string]Handler),
		remote:    make(map[string]remoteEntry),
		noop:      make(map[string]bool),
		factories: make(map[string]TransportFactory),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RegisterLocal registers the in-process handler of a command.
func (r *Router) RegisterLocal(command string, h Handler) {
	r.mu.Lock()
	r.local[command] = h
	r.mu.Unlock()
}

// RegisterTransport registers a factory for a strategy name ("http", ...).
func (r *Router) RegisterTransport(strategy string, f TransportFactory) {
	r.mu.Lock()
	r.factories[strategy] = f
	r.mu.Unlock()
}

// SetRoute installs or replaces the route of a command. An unchanged route
// keeps its existing handler.
func (r *Router) SetRoute(rt Route) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, hadRemote := r.remote[rt.Command]
	delete(r.noop, rt.Command)

	switch rt.Strategy {
	case "", "local":
		delete(r.remote, rt.Command)
		closeEntry(old, hadRemote)
		return nil
	case "noop":
		delete(r.remote, rt.Command)
		closeEntry(old, hadRemote)
		r.noop[rt.Command] = true
		return nil
	}

	if hadRemote && old.route.fingerprint() == rt.fingerprint() {
		return nil
	}
	factory, ok := r.factories[rt.Strategy]
	if !ok {
		return &ErrNoFactory{Command: rt.Command, Strategy: rt.Strategy}
	}
	h, closeFn, err := factory(rt.Endpoint, rt.Config)
	if err != nil {
		return &ErrFactoryFailed{Command: rt.Command, Strategy: rt.Strategy, Endpoint: rt.Endpoint, Cause: err}
	}
	r.remote[rt.Command] = remoteEntry{route: rt, handler: h, close: closeFn}
	closeEntry(old, hadRemote)
	r.logger.Info("messaging: route built",
		"command", rt.Command, "strategy", rt.Strategy, "endpoint", rt.Endpoint)
	return nil
}

func closeEntry(e remoteEntry, ok bool) {
	if ok && e.close != nil {
		e.close()
	}
}

// Call dispatches a command: noop routes succeed with no response, remote
// routes take priority over the local handler.
func (r *Router) Call(ctx context.Context, command string, payload []byte) ([]byte, error) {
	r.mu.RLock()
	entry, hasRemote := r.remote[command]
	localH := r.local[command]
	noop := r.noop[command]
	mw := r.middleware
	r.mu.RUnlock()

	var h Handler
	switch {
	case noop:
		r.logger.DebugContext(ctx, "messaging: noop", "command", command)
		return nil, nil
	case hasRemote:
		r.logger.DebugContext(ctx, "messaging: remote",
			"command", command, "strategy", entry.route.Strategy, "endpoint", entry.route.Endpoint)
		h = entry.handler
	case localH != nil:
		r.logger.DebugContext(ctx, "messaging: local", "command", command)
		h = localH
	default:
		return nil, &ErrCommandNotFound{Command: command}
	}
	if mw != nil {
		h = mw(command, h)
	}
	return h(ctx, payload)
}

// Commands lists the commands with a local handler or a route, sorted.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[string]bool)
	for c := range r.local {
		seen[c] = true
	}
	for c := range r.remote {
		seen[c] = true
	}
	for c := range r.noop {
		seen[c] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Close releases every remote handler.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.remote {
		if e.close != nil {
			e.close()
		}
	}
	r.remote = make(map[string]remoteEntry)
	return nil
}
