package ledger

import (
	"github.com/google/uuid"
)

// Receipt reports the outcome of one call. Rejected calls carry the reason;
// committed calls carry the new versions of the pages they touched. A fee can
// be charged on either path because a call that was scheduled pays for its
// slot even when the runtime refuses its effects.
type Receipt struct {
	CallHex     string            `json:"call"`
	Committed   bool              `json:"committed"`
	Reason      string            `json:"reason,omitempty"`
	FeeCharged  uint64            `json:"fee_charged"`
	NewVersions map[string]uint64 `json:"new_versions,omitempty"`
}

// NewCommitReceipt builds the receipt of a committed call.
func NewCommitReceipt(callHex string, feeCharged uint64, newVersions map[string]uint64) *Receipt {
	return &Receipt{
		CallHex:     callHex,
		Committed:   true,
		FeeCharged:  feeCharged,
		NewVersions: newVersions,
	}
}

// NewRejectReceipt builds the receipt of a rejected call.
func NewRejectReceipt(callHex string, reason RejectType, feeCharged uint64) *Receipt {
	return &Receipt{
		CallHex:    callHex,
		Committed:  false,
		Reason:     reason.String(),
		FeeCharged: feeCharged,
	}
}

// BatchReceipt reports the outcome of a whole batch. Receipts are aligned
// with the submission order of the calls. The state digest identifies the
// ledger state left behind by the batch; two runs of the same batch on the
// same starting state produce the same digest.
type BatchReceipt struct {
	BatchID     string     `json:"batch_id"`
	Receipts    []*Receipt `json:"receipts"`
	StateDigest string     `json:"state_digest"`
	Committed   int        `json:"committed"`
	Rejected    int        `json:"rejected"`
}

// NewBatchReceipt builds an empty BatchReceipt with a fresh random id and one
// nil receipt slot per call.
func NewBatchReceipt(numCalls int) *BatchReceipt {
	return &BatchReceipt{
		BatchID:  uuid.New().String(),
		Receipts: make([]*Receipt, numCalls),
	}
}

// Tally recounts the committed and rejected totals from the receipts.
func (br *BatchReceipt) Tally() {
	committed := 0
	rejected := 0
	for _, r := range br.Receipts {
		if r == nil {
			continue
		}
		if r.Committed {
			committed++
		} else {
			rejected++
		}
	}
	br.Committed = committed
	br.Rejected = rejected
}
