package runtime

import (
	"bytes"
	"fmt"

	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

// Committer is the only stage that writes pages back to the store. It
// validates a call's working copies against the snapshot taken at load time
// and either installs them all or drops them all. A dropped call still pays:
// the fee debit and the caller's version bump are written on every path past
// admission, so a failed call cannot be replayed for free.
type Committer struct {
	store  ledger.PageStore
	logger *logrus.Entry
}

// NewCommitter instantiates a Committer writing to the given store.
func NewCommitter(store ledger.PageStore, logger *logrus.Entry) *Committer {
	return &Committer{
		store:  store,
		logger: logger,
	}
}

// Commit settles a dispatched call. With execErr nil and the invariant checks
// green, the working copies replace the stored pages: the caller page takes
// the call's version, every other touched page's version advances by one, and
// memory hashes are refreshed. On any rejection the copies are dropped and
// only the fee debit is written. The page locks are released before
// returning.
func (c *Committer) Commit(ws *workingSet, execErr error) *ledger.Receipt {
	defer ws.release()

	call := ws.call

	if execErr != nil {
		reason, ok := ledger.RejectReason(execErr)
		if !ok {
			reason = ledger.ResourceExhausted
		}
		return c.commitFeeOnly(ws, reason)
	}

	if err := c.check(ws); err != nil {
		reason, _ := ledger.RejectReason(err)
		c.logger.WithFields(logrus.Fields{
			"call":  call.Hex(),
			"error": err,
		}).Warning("Commit: invariant violation")
		return c.commitFeeOnly(ws, reason)
	}

	newVersions := make(map[string]uint64, len(ws.unique))
	for i, page := range ws.unique {
		expected := ws.snapshot[i].Version
		if i == 0 {
			page.Version = call.Body.Version
		} else {
			page.Version = expected + 1
		}
		page.UpdateMemHash()

		if err := c.store.CompareAndSwapPage(expected, page); err != nil {
			c.logger.WithFields(logrus.Fields{
				"call":  call.Hex(),
				"page":  page.OwnerHex(),
				"error": err,
			}).Error("Commit: page moved under lock")
			c.restore(ws, i)
			return ledger.NewRejectReceipt(call.Hex(), ledger.ReplayedOrStale, 0)
		}

		newVersions[page.OwnerHex()] = page.Version
	}

	return ledger.NewCommitReceipt(call.Hex(), call.Body.Fee, newVersions)
}

// check verifies the invariants that every committed call must leave intact.
// The working copies are compared page by page against the post-fee snapshot;
// the first violation wins.
func (c *Committer) check(ws *workingSet) error {
	call := ws.call

	var before, after uint64
	for i, page := range ws.unique {
		pre := ws.snapshot[i]
		before += pre.Balance
		after += page.Balance

		if !bytes.Equal(page.Owner, pre.Owner) {
			return ledger.NewCallErr(call.Hex(), ledger.UnauthorizedDebit,
				fmt.Sprintf("page %s re-keyed", pre.OwnerHex()))
		}

		// balance only decreases under the page's own program or with the
		// owner's signed consent
		if page.Balance < pre.Balance &&
			!ledger.SameProgram(pre.Program, call.Body.Program) &&
			!call.HasProof(page.Owner) {
			return ledger.NewCallErr(call.Hex(), ledger.UnauthorizedDebit,
				fmt.Sprintf("page %s debited", page.OwnerHex()))
		}

		if !bytes.Equal(page.Program, pre.Program) {
			// only assign re-homes a page, and the new program starts from
			// a blank memory
			if i != 0 || call.Body.Method != MethodAssign || !ledger.IsDefaultProgram(pre.Program) {
				return ledger.NewCallErr(call.Hex(), ledger.UnauthorizedDebit,
					fmt.Sprintf("page %s re-homed", page.OwnerHex()))
			}
			if len(page.Memory) != 0 {
				return ledger.NewCallErr(call.Hex(), ledger.UnauthorizedDebit,
					fmt.Sprintf("page %s memory not cleared", page.OwnerHex()))
			}
			continue
		}

		if i == 0 && call.Body.Method == MethodRealloc {
			// the one legal size change; the content must survive the
			// resize, with growth zero-padded
			n := len(page.Memory)
			if len(pre.Memory) < n {
				n = len(pre.Memory)
			}
			if !bytes.Equal(page.Memory[:n], pre.Memory[:n]) || !allZero(page.Memory[n:]) {
				return ledger.NewCallErr(call.Hex(), ledger.UnauthorizedDebit,
					fmt.Sprintf("page %s memory written", page.OwnerHex()))
			}
		} else if !ledger.SameProgram(pre.Program, call.Body.Program) {
			// pages of other programs must come back byte-identical
			if !bytes.Equal(page.Memory, pre.Memory) {
				return ledger.NewCallErr(call.Hex(), ledger.UnauthorizedDebit,
					fmt.Sprintf("page %s memory written", page.OwnerHex()))
			}
		} else if len(page.Memory) != len(pre.Memory) {
			return ledger.NewCallErr(call.Hex(), ledger.UnauthorizedDebit,
				fmt.Sprintf("page %s memory resized", page.OwnerHex()))
		}
	}

	if before != after {
		return ledger.NewCallErr(call.Hex(), ledger.ConservationViolation,
			fmt.Sprintf("%d before, %d after", before, after))
	}

	return nil
}

// commitFeeOnly writes the caller page back in its pre-execution state, minus
// the fee and with the call's version. The version advances even here so the
// same signed call cannot be resubmitted to burn the fee twice.
func (c *Committer) commitFeeOnly(ws *workingSet, reason ledger.RejectType) *ledger.Receipt {
	call := ws.call

	page := ws.snapshot[0]
	expected := page.Version
	page.Version = call.Body.Version

	if err := c.store.CompareAndSwapPage(expected, page); err != nil {
		c.logger.WithFields(logrus.Fields{
			"call":  call.Hex(),
			"page":  page.OwnerHex(),
			"error": err,
		}).Error("Commit: writing fee debit")
		return ledger.NewRejectReceipt(call.Hex(), reason, 0)
	}

	return ledger.NewRejectReceipt(call.Hex(), reason, call.Body.Fee)
}

func allZero(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// restore puts the pre-images of the first n unique pages back, undoing a
// commit that failed halfway through.
func (c *Committer) restore(ws *workingSet, n int) {
	for j := 0; j < n; j++ {
		pre := ws.snapshot[j].Copy()
		if j == 0 {
			pre.Balance += ws.call.Body.Fee
		}
		if err := c.store.SetPage(pre); err != nil {
			c.logger.WithFields(logrus.Fields{
				"page":  pre.OwnerHex(),
				"error": err,
			}).Error("Commit: restoring page")
		}
	}
}
