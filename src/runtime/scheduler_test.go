package runtime

import (
	"reflect"
	"testing"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

func keyedCall(callKeys ...[]byte) *ledger.Call {
	return ledger.NewCall(ledger.CallBody{Keys: callKeys})
}

func initScheduler(t *testing.T) *Scheduler {
	return NewScheduler(common.NewTestLogger(t, logrus.DebugLevel).WithField("prefix", "test"))
}

func TestPartitionDisjoint(t *testing.T) {
	s := initScheduler(t)

	calls := []*ledger.Call{
		keyedCall([]byte("A"), []byte("B")),
		keyedCall([]byte("C"), []byte("D")),
		keyedCall([]byte("E")),
	}

	groups := s.Partition(calls)

	expected := [][]int{{0}, {1}, {2}}
	if !reflect.DeepEqual(groups, expected) {
		t.Fatalf("groups should be %v, not %v", expected, groups)
	}
}

func TestPartitionChain(t *testing.T) {
	s := initScheduler(t)

	// calls 0 and 1 are disjoint but call 2 bridges them
	calls := []*ledger.Call{
		keyedCall([]byte("A"), []byte("B")),
		keyedCall([]byte("C"), []byte("D")),
		keyedCall([]byte("B"), []byte("C")),
	}

	groups := s.Partition(calls)

	expected := [][]int{{0, 1, 2}}
	if !reflect.DeepEqual(groups, expected) {
		t.Fatalf("groups should be %v, not %v", expected, groups)
	}
}

func TestPartitionOrder(t *testing.T) {
	s := initScheduler(t)

	calls := []*ledger.Call{
		keyedCall([]byte("X")),
		keyedCall([]byte("A"), []byte("B")),
		keyedCall([]byte("Y")),
		keyedCall([]byte("B")),
	}

	groups := s.Partition(calls)

	// groups ordered by earliest member, members in submission order
	expected := [][]int{{0}, {1, 3}, {2}}
	if !reflect.DeepEqual(groups, expected) {
		t.Fatalf("groups should be %v, not %v", expected, groups)
	}
}

func TestPartitionNilEntries(t *testing.T) {
	s := initScheduler(t)

	calls := []*ledger.Call{
		keyedCall([]byte("A")),
		nil,
		keyedCall([]byte("A")),
	}

	groups := s.Partition(calls)

	expected := [][]int{{0, 2}}
	if !reflect.DeepEqual(groups, expected) {
		t.Fatalf("groups should be %v, not %v", expected, groups)
	}
}

func TestPartitionDeterminism(t *testing.T) {
	s := initScheduler(t)

	calls := []*ledger.Call{
		keyedCall([]byte("A"), []byte("B")),
		keyedCall([]byte("C")),
		keyedCall([]byte("B"), []byte("D")),
		keyedCall([]byte("E"), []byte("C")),
		keyedCall([]byte("D"), []byte("F")),
	}

	first := s.Partition(calls)
	for i := 0; i < 10; i++ {
		if again := s.Partition(calls); !reflect.DeepEqual(first, again) {
			t.Fatalf("partition should be stable, got %v then %v", first, again)
		}
	}
}
