package service

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/config"
	"github.com/mosaicnetworks/quilt/src/crypto/keys"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/mosaicnetworks/quilt/src/runtime"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

var testBalance = uint64(1000)

// The handlers live on the DefaultServeMux, so everything runs against a
// single service instance.
func TestService(t *testing.T) {
	conf := config.NewTestConfig(t, logrus.DebugLevel)

	store := ledger.NewInmemStore(conf.CacheSize)

	alice, _ := keys.GenerateECDSAKey()
	bob, _ := keys.GenerateECDSAKey()

	for _, pub := range [][]byte{
		keys.FromPublicKey(&alice.PublicKey),
		keys.FromPublicKey(&bob.PublicKey),
	} {
		page := ledger.NewPage(pub)
		page.Balance = testBalance
		if err := store.SetPage(page); err != nil {
			t.Fatal(err)
		}
	}

	rt, err := runtime.NewRuntime(conf, store)
	if err != nil {
		t.Fatal(err)
	}
	defer rt.Shutdown()

	NewService("127.0.0.1:0", rt, conf.Logger().WithField("component", "service"))

	srv := httptest.NewServer(http.DefaultServeMux)
	defer srv.Close()

	alicePub := keys.FromPublicKey(&alice.PublicKey)
	bobPub := keys.FromPublicKey(&bob.PublicKey)
	aliceHex := common.EncodeToString(alicePub)
	bobHex := common.EncodeToString(bobPub)

	transfer := func(version uint64) *ledger.Call {
		payload, err := runtime.EncodePayload(runtime.MoveFundsArgs{Amount: 100})
		if err != nil {
			t.Fatal(err)
		}

		cp := rt.LastCheckpoint()

		call := ledger.NewCall(ledger.CallBody{
			Keys:     [][]byte{alicePub, bobPub},
			LastID:   cp.ID,
			LastHash: cp.Hash,
			Program:  ledger.DefaultProgram,
			Fee:      10,
			Version:  version,
			Method:   runtime.MethodMoveFunds,
			Payload:  payload,
		})

		if err := call.Sign(alice); err != nil {
			t.Fatal(err)
		}

		return call
	}

	t.Run("checkpoint", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/checkpoint")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var checkpoint CheckpointJSON
		if err := json.NewDecoder(resp.Body).Decode(&checkpoint); err != nil {
			t.Fatal(err)
		}

		if checkpoint.ID != 0 {
			t.Fatalf("checkpoint id should be 0, not %d", checkpoint.ID)
		}

		hash, err := common.DecodeFromString(checkpoint.Hash)
		if err != nil {
			t.Fatal(err)
		}
		if len(hash) == 0 {
			t.Fatal("checkpoint hash should not be empty")
		}
	})

	t.Run("batch", func(t *testing.T) {
		b := new(bytes.Buffer)
		jh := new(codec.JsonHandle)
		jh.Canonical = true
		if err := codec.NewEncoder(b, jh).Encode([]*ledger.Call{transfer(1)}); err != nil {
			t.Fatal(err)
		}

		resp, err := http.Post(srv.URL+"/batch", "application/json", b)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			t.Fatalf("batch should return 200, not %d", resp.StatusCode)
		}

		var receipt ledger.BatchReceipt
		if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
			t.Fatal(err)
		}

		if receipt.Committed != 1 {
			t.Fatalf("batch should commit 1 call, not %d", receipt.Committed)
		}

		if !receipt.Receipts[0].Committed {
			t.Fatalf("call should commit, not reject with %s", receipt.Receipts[0].Reason)
		}
	})

	t.Run("pages", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/pages/" + aliceHex)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var page PageJSON
		if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
			t.Fatal(err)
		}

		if page.Balance != testBalance-110 {
			t.Fatalf("alice balance should be %d, not %d", testBalance-110, page.Balance)
		}

		if page.Version != 1 {
			t.Fatalf("alice version should be 1, not %d", page.Version)
		}

		if page.Owner != aliceHex {
			t.Fatalf("page owner should be %s, not %s", aliceHex, page.Owner)
		}
	})

	t.Run("balance", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/balance/" + bobHex)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var balance BalanceJSON
		if err := json.NewDecoder(resp.Body).Decode(&balance); err != nil {
			t.Fatal(err)
		}

		if balance.Balance != testBalance+100 {
			t.Fatalf("bob balance should be %d, not %d", testBalance+100, balance.Balance)
		}

		if balance.Version != 1 {
			t.Fatalf("bob version should be 1, not %d", balance.Version)
		}
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/stats")
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var stats map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			t.Fatal(err)
		}

		if stats["state"] != "Ready" {
			t.Fatalf("state should be Ready, not %s", stats["state"])
		}

		if stats["num_batches"] != "1" {
			t.Fatalf("num_batches should be 1, not %s", stats["num_batches"])
		}
	})

	t.Run("rpc", func(t *testing.T) {
		req, err := json2.EncodeClientRequest("Quilt.SubmitBatch",
			&SubmitBatchArgs{Calls: []*ledger.Call{transfer(2)}})
		if err != nil {
			t.Fatal(err)
		}

		resp, err := http.Post(srv.URL+"/rpc", "application/json", bytes.NewBuffer(req))
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()

		var receipt ledger.BatchReceipt
		if err := json2.DecodeClientResponse(resp.Body, &receipt); err != nil {
			t.Fatal(err)
		}

		if receipt.Committed != 1 {
			t.Fatalf("batch should commit 1 call, not %d", receipt.Committed)
		}

		req, err = json2.EncodeClientRequest("Quilt.GetPage", &GetPageArgs{Key: aliceHex})
		if err != nil {
			t.Fatal(err)
		}

		resp2, err := http.Post(srv.URL+"/rpc", "application/json", bytes.NewBuffer(req))
		if err != nil {
			t.Fatal(err)
		}
		defer resp2.Body.Close()

		var page PageJSON
		if err := json2.DecodeClientResponse(resp2.Body, &page); err != nil {
			t.Fatal(err)
		}

		if page.Balance != testBalance-220 {
			t.Fatalf("alice balance should be %d, not %d", testBalance-220, page.Balance)
		}

		if page.Version != 2 {
			t.Fatalf("alice version should be 2, not %d", page.Version)
		}
	})
}
