package runtime

import (
	"testing"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/sirupsen/logrus"
)

func initRegistry(t *testing.T) *Registry {
	return NewRegistry(common.NewTestLogger(t, logrus.DebugLevel).WithField("prefix", "test"))
}

func nopHandler() Handler {
	return HandlerFunc(func(call *ledger.Call, pages []*ledger.Page, meter *Meter) error {
		return nil
	})
}

func TestRegistryReservedMethods(t *testing.T) {
	r := initRegistry(t)

	for _, method := range []uint8{0, 1, 64, 127} {
		if err := r.Register([]byte("some-program"), method, nopHandler()); err == nil {
			t.Fatalf("registering method %d should fail", method)
		}
	}

	if err := r.Register([]byte("some-program"), 128, nopHandler()); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryDuplicate(t *testing.T) {
	r := initRegistry(t)

	program := []byte("some-program")

	if err := r.Register(program, 130, nopHandler()); err != nil {
		t.Fatal(err)
	}

	if err := r.Register(program, 130, nopHandler()); err == nil {
		t.Fatal("registering the same entry point twice should fail")
	}

	// same method under another program is fine
	if err := r.Register([]byte("other-program"), 130, nopHandler()); err != nil {
		t.Fatal(err)
	}
}

func TestRegistryResolve(t *testing.T) {
	r := initRegistry(t)

	program := []byte("some-program")

	if err := r.Register(program, 130, nopHandler()); err != nil {
		t.Fatal(err)
	}

	if _, ok := r.Resolve(program, 130); !ok {
		t.Fatal("registered entry point should resolve")
	}

	if _, ok := r.Resolve(program, 131); ok {
		t.Fatal("unregistered method should not resolve")
	}

	if _, ok := r.Resolve([]byte("other-program"), 130); ok {
		t.Fatal("unregistered program should not resolve")
	}
}

func TestRegistryDefaultProgramForms(t *testing.T) {
	r := initRegistry(t)

	if err := r.Register(nil, 200, nopHandler()); err != nil {
		t.Fatal(err)
	}

	// the empty and the all-zero key both name the default program
	if _, ok := r.Resolve([]byte{}, 200); !ok {
		t.Fatal("empty program should resolve against the default program")
	}

	if _, ok := r.Resolve(make([]byte, 32), 200); !ok {
		t.Fatal("zero program should resolve against the default program")
	}
}
