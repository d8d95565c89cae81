package dummy

import (
	"bytes"
	"encoding/binary"

	"github.com/mosaicnetworks/quilt/src/crypto"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/mosaicnetworks/quilt/src/runtime"
	"github.com/sirupsen/logrus"
)

// ProgramID identifies the journal program.
var ProgramID = bytes.Repeat([]byte{1}, 32)

// MethodRecord appends an entry to a journal page.
const MethodRecord uint8 = 128

// StateSize is the size of a journal page's memory: a 32 byte rolling digest
// followed by a big-endian count of recorded entries.
const StateSize = 40

//flat meter charge of MethodRecord; each entry byte costs one more unit
const recordCost = 16

// RecordArgs is the payload of MethodRecord.
type RecordArgs struct {
	Entry []byte
}

// Journal is an example contract. It doesn't really do anything useful but
// fold submitted entries into a digest and log them. It keeps no state of its
// own; everything it records lives in the memory of pages assigned to its
// program ID. The digest is computed by cumulatively hashing entries together
// as they come in, so two pages that recorded the same entries in the same
// order carry the same digest.
//
// A page is turned into a journal by assigning it to ProgramID and resizing
// its memory to StateSize. Both steps go through the system interface; the
// journal itself only ever sees initialised pages.
type Journal struct {
	logger *logrus.Entry
}

// NewJournal instantiates the journal contract.
func NewJournal(logger *logrus.Entry) *Journal {
	return &Journal{logger: logger}
}

// Register binds the journal's methods in a runtime registry.
func (j *Journal) Register(registry *runtime.Registry) error {
	return registry.Register(ProgramID, MethodRecord, j)
}

// Invoke implements the runtime Handler interface. It folds the payload entry
// into the caller page's digest and bumps the entry count. Malformed calls
// decline by doing nothing; the call still commits with its fee debit.
func (j *Journal) Invoke(call *ledger.Call, pages []*ledger.Page, meter *runtime.Meter) error {
	var args RecordArgs
	if err := runtime.DecodePayload(call.Body.Payload, &args); err != nil {
		j.logger.WithError(err).Warning("record: undecodable payload")
		return nil
	}

	if err := meter.Charge(recordCost + uint64(len(args.Entry))); err != nil {
		return err
	}

	page := pages[0]

	if !ledger.SameProgram(page.Program, ProgramID) {
		j.logger.WithField("page", page.OwnerHex()).Warning("record: page not assigned to the journal")
		return nil
	}

	if len(page.Memory) != StateSize {
		j.logger.WithFields(logrus.Fields{
			"page": page.OwnerHex(),
			"size": len(page.Memory),
		}).Warning("record: journal not initialised")
		return nil
	}

	j.logger.Info(string(args.Entry))

	digest := crypto.SimpleHashFromTwoHashes(page.Memory[:32], crypto.SHA256(args.Entry))
	copy(page.Memory[:32], digest)

	count := binary.BigEndian.Uint64(page.Memory[32:]) + 1
	binary.BigEndian.PutUint64(page.Memory[32:], count)

	j.logger.WithFields(logrus.Fields{
		"page":  page.OwnerHex(),
		"count": count,
	}).Debug("Recorded entry")

	return nil
}

// Digest returns the rolling digest of a journal page's memory, or nil if the
// page has not been initialised.
func Digest(memory []byte) []byte {
	if len(memory) != StateSize {
		return nil
	}
	return memory[:32]
}

// Count returns the number of entries recorded in a journal page's memory.
func Count(memory []byte) uint64 {
	if len(memory) != StateSize {
		return 0
	}
	return binary.BigEndian.Uint64(memory[32:])
}
