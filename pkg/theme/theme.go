// Package theme keeps a client's colour theme in sync with the local store,
// the system colour scheme and, when signed in, the server preferences.
//
// A Provider has an explicit lifecycle: build it with NewProvider, call Init
// once, and Close it when the UI goes away.
package theme

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrClosed is returned by Init and reported by Toggle once the provider is closed.
var ErrClosed = errors.New("theme provider is closed")

// Preference is what the user picked.
type Preference string

const (
	Light Preference = "light"
	Dark  Preference = "dark"
	Auto  Preference = "auto"
)

func (p Preference) Valid() bool {
	return p == Light || p == Dark || p == Auto
}

// Effective is the theme actually rendered.
type Effective string

const (
	EffectiveLight Effective = "light"
	EffectiveDark  Effective = "dark"
)

// Storage is the local persistent store.
type Storage interface {
	// Load reports ok=false when nothing has been stored yet.
	Load() (p Preference, ok bool, err error)
	Save(p Preference) error
}

// SchemeSource reports the operating system colour scheme.
type SchemeSource interface {
	Current() Effective
	// Subscribe calls fn on every change until the returned func is called.
	Subscribe(fn func(Effective)) (unsubscribe func())
}

// Remote is the server preferences API. Its presence means a session exists.
type Remote interface {
	FetchTheme(ctx context.Context) (Preference, error)
	SaveTheme(ctx context.Context, p Preference) error
}

// Listener is called synchronously after every change of preference or
// effective theme.
type Listener func(p Preference, e Effective)

// Result reports the outcome of a Toggle. A failed server write leaves the
// local change applied.
type Result struct {
	Success bool
	Err     error
}

type Options struct {
	Storage Storage
	Scheme  SchemeSource
	// Remote is nil for signed-out clients.
	Remote Remote
	Logger *zap.Logger
}

type Provider struct {
	storage Storage
	scheme  SchemeSource
	remote  Remote
	logger  *zap.Logger

	mu           sync.Mutex
	pref         Preference
	eff          Effective
	listeners    map[int]Listener
	nextListener int
	stopScheme   func()
	closed       bool
}

func NewProvider(opts Options) *Provider {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	scheme := opts.Scheme
	if scheme == nil {
		scheme = NewManualScheme(EffectiveLight)
	}
	return &Provider{
		storage:   opts.Storage,
		scheme:    scheme,
		remote:    opts.Remote,
		logger:    log.With(zap.String("component", "theme-provider")),
		pref:      Light,
		eff:       EffectiveLight,
		listeners: make(map[int]Listener),
	}
}

// Init loads the starting preference: from the server when a session exists,
// else from local storage, else Light. Failures fall through to the next
// source; only a cancelled ctx is returned as an error.
func (p *Provider) Init(ctx context.Context) error {
	pref := p.initialPreference(ctx)
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.pref = pref
	p.syncSchemeLocked()
	p.eff = p.resolve(pref)
	eff := p.eff
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	notify(listeners, pref, eff)
	return nil
}

func (p *Provider) initialPreference(ctx context.Context) Preference {
	if p.remote != nil {
		pref, err := p.remote.FetchTheme(ctx)
		if err == nil && pref.Valid() {
			p.saveLocal(pref)
			return pref
		}
		p.logger.Warn("failed to load theme from server, using local value", zap.Error(err))
	}
	if p.storage != nil {
		pref, ok, err := p.storage.Load()
		switch {
		case err != nil:
			p.logger.Warn("failed to read stored theme", zap.Error(err))
		case ok && pref.Valid():
			return pref
		}
	}
	return Light
}

func (p *Provider) Preference() Preference {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pref
}

func (p *Provider) Effective() Effective {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.eff
}

// Subscribe registers fn until the returned func is called.
func (p *Provider) Subscribe(fn Listener) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextListener
	p.nextListener++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Toggle switches to pref. Listeners are notified before anything is
// persisted; the value is then saved locally and, with a session, on the
// server. A closed provider changes and saves nothing.
func (p *Provider) Toggle(ctx context.Context, pref Preference) Result {
	if !pref.Valid() {
		return Result{Err: fmt.Errorf("invalid theme %q", pref)}
	}
	if !p.apply(pref) {
		return Result{Err: ErrClosed}
	}

	localErr := p.saveLocal(pref)
	if p.remote == nil {
		return Result{Success: localErr == nil, Err: localErr}
	}
	if err := p.remote.SaveTheme(ctx, pref); err != nil {
		p.logger.Warn("failed to save theme on server", zap.String("theme", string(pref)), zap.Error(err))
		return Result{Err: err}
	}
	return Result{Success: true}
}

// Close releases the scheme subscription and drops all listeners.
func (p *Provider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if p.stopScheme != nil {
		p.stopScheme()
		p.stopScheme = nil
	}
	p.listeners = make(map[int]Listener)
}

// apply changes the in-memory state and notifies listeners. It does not
// persist, and reports false if the provider is closed.
func (p *Provider) apply(pref Preference) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	p.pref = pref
	// Subscribe before reading the scheme so no change slips in between.
	p.syncSchemeLocked()
	p.eff = p.resolve(pref)
	eff := p.eff
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	notify(listeners, pref, eff)
	return true
}

func (p *Provider) saveLocal(pref Preference) error {
	if p.storage == nil {
		return nil
	}
	if err := p.storage.Save(pref); err != nil {
		p.logger.Warn("failed to store theme locally", zap.Error(err))
		return err
	}
	return nil
}

func (p *Provider) resolve(pref Preference) Effective {
	switch pref {
	case Dark:
		return EffectiveDark
	case Auto:
		return p.scheme.Current()
	default:
		return EffectiveLight
	}
}

// syncSchemeLocked holds a scheme subscription exactly while the preference is Auto.
func (p *Provider) syncSchemeLocked() {
	if p.pref == Auto && p.stopScheme == nil {
		p.stopScheme = p.scheme.Subscribe(p.onSchemeChange)
		return
	}
	if p.pref != Auto && p.stopScheme != nil {
		p.stopScheme()
		p.stopScheme = nil
	}
}

func (p *Provider) onSchemeChange(e Effective) {
	p.mu.Lock()
	if p.closed || p.pref != Auto || p.eff == e {
		p.mu.Unlock()
		return
	}
	p.eff = e
	listeners := p.snapshotLocked()
	p.mu.Unlock()

	notify(listeners, Auto, e)
}

func (p *Provider) snapshotLocked() []Listener {
	out := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		out = append(out, l)
	}
	return out
}

func notify(listeners []Listener, pref Preference, eff Effective) {
	for _, l := range listeners {
		l(pref, eff)
	}
}
