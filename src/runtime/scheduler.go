package runtime

import (
	"sort"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

// Scheduler partitions the calls of a batch into conflict groups. Two calls
// conflict when their key sets intersect, directly or through a chain of other
// calls. Calls in different groups touch disjoint pages, so groups can execute
// concurrently; calls within a group run one after the other, in batch order.
type Scheduler struct {
	logger *logrus.Entry
}

// NewScheduler instantiates a new Scheduler.
func NewScheduler(logger *logrus.Entry) *Scheduler {
	return &Scheduler{logger: logger}
}

// Partition computes the conflict groups of a batch. Entries of calls may be
// nil (calls already turned away at admission); they claim no keys and belong
// to no group. The result contains indexes into calls. Groups are ordered by
// their earliest member, and members appear in batch order, so the same batch
// always produces the same partition.
func (s *Scheduler) Partition(calls []*ledger.Call) [][]int {
	parent := make([]int, len(calls))
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}

	// union roots sets so that the root of a set is always its smallest
	// index, ie. the earliest call
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra == rb {
			return
		}
		if ra < rb {
			parent[rb] = ra
		} else {
			parent[ra] = rb
		}
	}

	claims := make(map[string]int)
	for i, call := range calls {
		if call == nil {
			continue
		}
		for _, key := range call.Body.Keys {
			k := common.EncodeToString(key)
			if j, ok := claims[k]; ok {
				union(i, j)
			} else {
				claims[k] = i
			}
		}
	}

	members := make(map[int][]int)
	reps := []int{}
	for i, call := range calls {
		if call == nil {
			continue
		}
		r := find(i)
		if _, ok := members[r]; !ok {
			reps = append(reps, r)
		}
		members[r] = append(members[r], i)
	}
	sort.Ints(reps)

	groups := make([][]int, 0, len(reps))
	for _, r := range reps {
		groups = append(groups, members[r])
	}

	s.logger.WithFields(logrus.Fields{
		"calls":  len(calls),
		"groups": len(groups),
	}).Debug("Partitioned batch")

	return groups
}
