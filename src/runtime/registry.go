package runtime

import (
	"fmt"
	"sync"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

// Handler is a program entry point. It mutates the working copies of the
// pages referenced by the call; the mutations only reach the store if the
// invariant checker accepts them. A handler that returns an error, or a
// CallErr, sees all of its mutations discarded.
//
// A handler must confine itself to the pages it is given: no ambient I/O and
// no state of its own. Whatever it wants to remember goes in the memory of a
// page its program owns.
type Handler interface {
	Invoke(call *ledger.Call, pages []*ledger.Page, meter *Meter) error
}

// HandlerFunc is an adapter to allow the use of ordinary functions as
// Handlers.
type HandlerFunc func(call *ledger.Call, pages []*ledger.Page, meter *Meter) error

// Invoke implements the Handler interface.
func (f HandlerFunc) Invoke(call *ledger.Call, pages []*ledger.Page, meter *Meter) error {
	return f(call, pages, meter)
}

// Registry maps (program, method) pairs to Handlers. Methods below 128 are
// the system interface and never reach the registry; programs register their
// own methods from 128 up. The external loader populates the registry at
// start-up, before the runtime accepts batches.
type Registry struct {
	sync.RWMutex
	handlers map[string]Handler
	logger   *logrus.Entry
}

// NewRegistry instantiates an empty Registry.
func NewRegistry(logger *logrus.Entry) *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

func handlerKey(program []byte, method uint8) string {
	if ledger.IsDefaultProgram(program) {
		program = ledger.DefaultProgram
	}
	return fmt.Sprintf("%s#%d", common.EncodeToString(program), method)
}

// Register binds a handler to a (program, method) pair. Methods below 128
// are reserved for the system interface and cannot be taken; binding the
// same pair twice is an error.
func (r *Registry) Register(program []byte, method uint8, handler Handler) error {
	if method < 128 {
		return fmt.Errorf("method %d is reserved for the system interface", method)
	}

	r.Lock()
	defer r.Unlock()

	key := handlerKey(program, method)
	if _, ok := r.handlers[key]; ok {
		return fmt.Errorf("handler already registered for %s", key)
	}

	r.handlers[key] = handler

	r.logger.WithFields(logrus.Fields{
		"program": common.EncodeToString(program),
		"method":  method,
	}).Debug("Registered handler")

	return nil
}

// Resolve returns the handler bound to a (program, method) pair.
func (r *Registry) Resolve(program []byte, method uint8) (Handler, bool) {
	r.RLock()
	defer r.RUnlock()

	handler, ok := r.handlers[handlerKey(program, method)]
	return handler, ok
}
