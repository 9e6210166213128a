package middleware

import (
	"context"
	"errors"
	"sync"

	"github.com/compassd/dcompass/config"
	"github.com/semihalev/zlog/v2"
)

// Handler is implemented by every stage of the ambient server chain
// (access control, access log, metrics, and finally the script router).
type Handler interface {
	Name() string
	ServeDNS(ctx context.Context, ch *Chain)
}

type middleware struct {
	mu sync.RWMutex

	cfg      *config.Config
	handlers []registration
}

type registration struct {
	name string
	new  func(*config.Config) Handler
}

var m middleware
var builtHandlers []Handler
var alreadySetup bool

// Register a middleware constructor under name.
func Register(name string, new func(*config.Config) Handler) {
	zlog.Debug("register middleware", "name", name)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, registration{name: name, new: new})
}

// SetConfig sets the config handed to every handler constructor at Setup.
func SetConfig(cfg *config.Config) {
	m.cfg = cfg
}

// Setup instantiates every registered handler, in registration order.
func Setup() error {
	if m.cfg == nil {
		return errors.New("middleware: set config first")
	}

	if alreadySetup {
		return errors.New("middleware: setup already done")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, reg := range m.handlers {
		builtHandlers = append(builtHandlers, reg.new(m.cfg))
	}

	alreadySetup = true

	return nil
}

// Handlers returns the instantiated handler chain, in registration order.
func Handlers() []Handler {
	return builtHandlers
}

// List returns the names of registered handlers.
func List() (list []string) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, reg := range m.handlers {
		list = append(list, reg.name)
	}

	return list
}

// Get returns a built handler by name, or nil.
func Get(name string) Handler {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, reg := range m.handlers {
		if reg.name == name {
			if len(builtHandlers) <= i {
				return nil
			}
			return builtHandlers[i]
		}
	}

	return nil
}
