package runtime

import (
	"fmt"

	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

// Dispatcher routes a loaded call to its entry point and runs it over the
// working copies. Methods below 128 always resolve to the system interface,
// whatever program the call names; everything else is looked up in the
// registry under the (program, method) pair.
type Dispatcher struct {
	registry *Registry
	budget   uint64
	logger   *logrus.Entry
}

// NewDispatcher instantiates a Dispatcher drawing handlers from the given
// registry. Every dispatch gets a fresh meter with the given budget.
func NewDispatcher(registry *Registry, budget uint64, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		budget:   budget,
		logger:   logger,
	}
}

// Dispatch executes the call's entry point. A nil return means the working
// copies, modified or not, move on to the invariant checks. A CallErr return
// means the call is discarded for that reason. A handler that panics or runs
// over its budget is discarded with ResourceExhausted; its partial writes die
// with the working copies.
func (d *Dispatcher) Dispatch(call *ledger.Call, pages []*ledger.Page) (err error) {
	meter := NewMeter(d.budget)

	defer func() {
		if r := recover(); r != nil {
			d.logger.WithFields(logrus.Fields{
				"call":  call.Hex(),
				"panic": r,
			}).Error("Dispatch: handler panicked")
			err = ledger.NewCallErr(call.Hex(), ledger.ResourceExhausted, fmt.Sprintf("handler aborted: %v", r))
		}
	}()

	if call.Body.Method < 128 {
		switch call.Body.Method {
		case MethodRealloc:
			err = sysRealloc(call, pages, meter, d.logger)
		case MethodAssign:
			err = sysAssign(call, pages, meter, d.logger)
		default:
			return ledger.NewCallErr(call.Hex(), ledger.NoSuchEntryPoint,
				fmt.Sprintf("system method %d", call.Body.Method))
		}
		return d.wrap(call, err)
	}

	handler, ok := d.registry.Resolve(call.Body.Program, call.Body.Method)
	if !ok {
		d.logger.WithFields(logrus.Fields{
			"call":    call.Hex(),
			"program": call.ProgramHex(),
			"method":  call.Body.Method,
		}).Debug("Dispatch: no handler")
		return ledger.NewCallErr(call.Hex(), ledger.NoSuchEntryPoint,
			fmt.Sprintf("program %s method %d", call.ProgramHex(), call.Body.Method))
	}

	return d.wrap(call, handler.Invoke(call, pages, meter))
}

// wrap maps handler errors to rejections. CallErrs pass through; anything
// else, budget exhaustion included, reads as the handler failing mid-run.
func (d *Dispatcher) wrap(call *ledger.Call, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := ledger.RejectReason(err); ok {
		return err
	}
	return ledger.NewCallErr(call.Hex(), ledger.ResourceExhausted, err.Error())
}
