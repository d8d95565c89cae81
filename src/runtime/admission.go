package runtime

import (
	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

// Admission performs the stateless checks that every call must pass before it
// is considered for execution. The checks only read the store, so admission is
// safe to run concurrently over the calls of a batch. The page values observed
// here are advisory. They are re-checked under lock when the call's pages are
// loaded, because an earlier call in the same batch may have touched them in
// the meantime.
type Admission struct {
	store       ledger.PageStore
	checkpoints *ledger.CheckpointLog
	logger      *logrus.Entry
}

// NewAdmission instantiates an Admission stage reading from the given store
// and checkpoint log.
func NewAdmission(store ledger.PageStore, checkpoints *ledger.CheckpointLog, logger *logrus.Entry) *Admission {
	return &Admission{
		store:       store,
		checkpoints: checkpoints,
		logger:      logger,
	}
}

// Admit returns nil if the call passes all admission checks, or a CallErr
// carrying the reason it was turned away. Admitted calls have spent nothing;
// the fee is only charged from execution onwards.
func (a *Admission) Admit(call *ledger.Call) error {
	if ok, err := call.Verify(); err != nil {
		a.logger.WithFields(logrus.Fields{
			"call":  call.Hex(),
			"error": err,
		}).Debug("Admission: bad proof")
		return ledger.NewCallErr(call.Hex(), ledger.SignatureInvalid, err.Error())
	} else if !ok {
		a.logger.WithField("call", call.Hex()).Debug("Admission: invalid proof")
		return ledger.NewCallErr(call.Hex(), ledger.SignatureInvalid, "invalid proof")
	}

	if !a.checkpoints.Contains(call.Body.LastID, call.Body.LastHash) {
		a.logger.WithFields(logrus.Fields{
			"call":    call.Hex(),
			"last_id": call.Body.LastID,
		}).Debug("Admission: unknown checkpoint")
		return ledger.NewCallErr(call.Hex(), ledger.StaleReference, "unknown checkpoint")
	}

	version, balance := a.callerState(call)

	if call.Body.Version <= version {
		a.logger.WithFields(logrus.Fields{
			"call":           call.Hex(),
			"call_version":   call.Body.Version,
			"stored_version": version,
		}).Debug("Admission: version not above stored")
		return ledger.NewCallErr(call.Hex(), ledger.ReplayedOrStale, "version not above stored")
	}

	if call.Body.Fee > balance {
		a.logger.WithFields(logrus.Fields{
			"call":    call.Hex(),
			"fee":     call.Body.Fee,
			"balance": balance,
		}).Debug("Admission: fee above balance")
		return ledger.NewCallErr(call.Hex(), ledger.InsufficientFee, "fee above balance")
	}

	return nil
}

// callerState reads the stored version and balance of the call's first page.
// An unknown page reads as version 0 with no funds; a first call against it
// must use version >= 1 and a zero fee.
func (a *Admission) callerState(call *ledger.Call) (uint64, uint64) {
	page, err := a.store.GetPage(call.Body.Keys[0])
	if err != nil {
		if !common.IsStore(err, common.KeyNotFound) {
			a.logger.WithFields(logrus.Fields{
				"caller": call.Caller(),
				"error":  err,
			}).Error("Admission: reading caller page")
		}
		return 0, 0
	}
	return page.Version, page.Balance
}
