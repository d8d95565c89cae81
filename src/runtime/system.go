package runtime

import (
	"bytes"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// Methods 0 to 127 form the system interface; it is the same for every
// program and is implemented by the runtime itself. Programs define their own
// methods from 128 up.
const (
	// MethodRealloc resizes the caller page's memory.
	MethodRealloc uint8 = 0
	// MethodAssign hands the caller page over to a program.
	MethodAssign uint8 = 1
	// MethodMoveFunds transfers balance between the first two pages. It is
	// method 128 of the default program, not part of the system interface.
	MethodMoveFunds uint8 = 128
)

//meter charges of the built-in entry points
const (
	assignCost    = 64
	moveFundsCost = 32
)

// ReallocArgs is the payload of MethodRealloc.
type ReallocArgs struct {
	Size uint64
}

// AssignArgs is the payload of MethodAssign.
type AssignArgs struct {
	Program []byte
}

// MoveFundsArgs is the payload of MethodMoveFunds.
type MoveFundsArgs struct {
	Amount uint64
}

// EncodePayload returns the canonical JSON encoding of a payload argument
// struct.
func EncodePayload(args interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(args); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// DecodePayload parses a canonical JSON encoded payload into args.
func DecodePayload(data []byte, args interface{}) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(args); err != nil {
		return err
	}

	return nil
}

/*******************************************************************************
System interface

The system entry points follow the original account model's tolerance for
unmet preconditions: they decline by doing nothing, and the call still
commits with its fee debit and version bump. Only unknown methods reject.
*******************************************************************************/

// sysRealloc implements MethodRealloc. It resizes pages[0].Memory to the
// requested size, zero-padding growth and truncating shrinkage. It only takes
// effect when the call invokes the default program; it is how a page acquires
// memory, before or after being assigned.
func sysRealloc(call *ledger.Call, pages []*ledger.Page, meter *Meter, logger *logrus.Entry) error {
	var args ReallocArgs
	if err := DecodePayload(call.Body.Payload, &args); err != nil {
		logger.WithError(err).Warning("realloc: undecodable payload")
		return nil
	}

	if !ledger.IsDefaultProgram(call.Body.Program) {
		logger.WithFields(logrus.Fields{
			"page":    common.EncodeToString(pages[0].Owner),
			"program": call.ProgramHex(),
		}).Warning("realloc: not invoked on the default program")
		return nil
	}

	if err := meter.Charge(args.Size); err != nil {
		return err
	}

	size := int(args.Size)
	if size <= len(pages[0].Memory) {
		pages[0].Memory = pages[0].Memory[:size]
	} else {
		pages[0].Memory = append(pages[0].Memory, make([]byte, size-len(pages[0].Memory))...)
	}

	return nil
}

// sysAssign implements MethodAssign. It hands pages[0] over to the program
// named in the payload and clears the page's memory, so the new program
// never observes leftover bytes. Only the default program can give pages
// away, and only pages it still holds.
func sysAssign(call *ledger.Call, pages []*ledger.Page, meter *Meter, logger *logrus.Entry) error {
	var args AssignArgs
	if err := DecodePayload(call.Body.Payload, &args); err != nil {
		logger.WithError(err).Warning("assign: undecodable payload")
		return nil
	}

	if !ledger.IsDefaultProgram(call.Body.Program) || !ledger.IsDefaultProgram(pages[0].Program) {
		logger.Warning("assign: page already belongs to a program")
		return nil
	}

	if err := meter.Charge(assignCost); err != nil {
		return err
	}

	pages[0].Program = args.Program
	pages[0].Memory = []byte{}

	return nil
}

// moveFunds is method 128 of the default program. It debits pages[0] and
// credits pages[1] by the amount in the payload. The handler itself declines
// when the caller page cannot cover the amount; the call still commits with
// nothing but the fee debit.
func moveFunds(logger *logrus.Entry) HandlerFunc {
	return func(call *ledger.Call, pages []*ledger.Page, meter *Meter) error {
		if err := meter.Charge(moveFundsCost); err != nil {
			return err
		}

		var args MoveFundsArgs
		if err := DecodePayload(call.Body.Payload, &args); err != nil {
			logger.WithError(err).Warning("move_funds: undecodable payload")
			return nil
		}

		if len(pages) < 2 {
			logger.Warning("move_funds: no destination page")
			return nil
		}

		if pages[0].Balance < args.Amount {
			logger.WithFields(logrus.Fields{
				"balance": pages[0].Balance,
				"amount":  args.Amount,
			}).Warning("move_funds: insufficient balance")
			return nil
		}

		if pages[1].Balance+args.Amount < pages[1].Balance {
			logger.Warning("move_funds: destination balance overflow")
			return nil
		}

		pages[0].Balance -= args.Amount
		pages[1].Balance += args.Amount

		return nil
	}
}
