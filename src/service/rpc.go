package service

import (
	"net/http"

	"github.com/gorilla/rpc/v2"
	"github.com/gorilla/rpc/v2/json2"
	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
)

// RPCService exposes the runtime over JSON-RPC 2.0. It is registered under
// the Quilt namespace, so methods are called as Quilt.SubmitBatch and
// Quilt.GetPage.
type RPCService struct {
	service *Service
}

// SubmitBatchArgs are the arguments of Quilt.SubmitBatch.
type SubmitBatchArgs struct {
	Calls []*ledger.Call `json:"calls"`
}

// SubmitBatch runs an ordered list of calls through the runtime and replies
// with the batch receipt.
func (rs *RPCService) SubmitBatch(_ *http.Request, args *SubmitBatchArgs, reply *ledger.BatchReceipt) error {
	receipt, err := rs.service.runtime.SubmitBatch(args.Calls)
	if err != nil {
		return err
	}

	*reply = *receipt

	return nil
}

// GetPageArgs are the arguments of Quilt.GetPage.
type GetPageArgs struct {
	Key string `json:"key"`
}

// GetPage replies with the page addressed by the hex encoded key in the
// arguments.
func (rs *RPCService) GetPage(_ *http.Request, args *GetPageArgs, reply *PageJSON) error {
	key, err := common.DecodeFromString(args.Key)
	if err != nil {
		return err
	}

	page, err := rs.service.runtime.GetPage(key)
	if err != nil {
		return err
	}

	*reply = *newPageJSON(page)

	return nil
}

// rpcServer builds the JSON-RPC server behind the /rpc endpoint.
func (s *Service) rpcServer() *rpc.Server {
	server := rpc.NewServer()

	codec := json2.NewCodec()
	server.RegisterCodec(codec, "application/json")
	server.RegisterCodec(codec, "application/json;charset=UTF-8")

	if err := server.RegisterService(&RPCService{service: s}, "Quilt"); err != nil {
		s.logger.WithError(err).Error("Registering RPC service")
	}

	return server
}
