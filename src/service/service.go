package service

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/quilt/src/common"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/mosaicnetworks/quilt/src/runtime"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

// Service ...
type Service struct {
	sync.Mutex

	bindAddress string
	runtime     *runtime.Runtime
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, r *runtime.Runtime, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		runtime:     r,
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

// registerHandlers registers the API handlers with the DefaultServerMux of the
// http package. It is possible that another server in the same process is
// simultaneously using the DefaultServerMux. In which case, the handlers will
// be accessible from both servers. This is usefull when Quilt is used
// in-memory and expecpted to use the same endpoint (address:port) as the
// application's API.
func (s *Service) registerHandlers() {
	s.logger.Debug("Registering Quilt API handlers")
	http.HandleFunc("/stats", s.makeHandler(s.GetStats))
	http.HandleFunc("/pages/", s.makeHandler(s.GetPage))
	http.HandleFunc("/balance/", s.makeHandler(s.GetBalance))
	http.HandleFunc("/checkpoint", s.makeHandler(s.GetCheckpoint))
	http.HandleFunc("/batch", s.makeHandler(s.SubmitBatch))
	http.HandleFunc("/rpc", s.makeHandler(s.rpcServer().ServeHTTP))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Serve calls ListenAndServe. This is a blocking call. It is not necessary to
// call Serve when Quilt is used in-memory and another server has already been
// started with the DefaultServerMux and the same address:port combination.
// Indeed, Quilt API handlers have already been registered when the service was
// instantiated.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving Quilt API")

	// Use the DefaultServerMux
	err := http.ListenAndServe(s.bindAddress, nil)
	if err != nil {
		s.logger.Error(err)
	}
}

// PageJSON is the REST representation of a page, with byte fields rendered as
// hex strings.
type PageJSON struct {
	Owner   string `json:"owner"`
	Program string `json:"program"`
	Balance uint64 `json:"balance"`
	Version uint64 `json:"version"`
	MemHash string `json:"mem_hash"`
	Memory  string `json:"memory"`
}

func newPageJSON(page *ledger.Page) *PageJSON {
	return &PageJSON{
		Owner:   page.OwnerHex(),
		Program: common.EncodeToString(page.Program),
		Balance: page.Balance,
		Version: page.Version,
		MemHash: common.EncodeToString(page.MemHash),
		Memory:  common.EncodeToString(page.Memory),
	}
}

// BalanceJSON is the response of the balance endpoint.
type BalanceJSON struct {
	Balance uint64 `json:"balance"`
	Version uint64 `json:"version"`
}

// CheckpointJSON is the REST representation of a checkpoint.
type CheckpointJSON struct {
	ID   uint64 `json:"id"`
	Hash string `json:"hash"`
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.runtime.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetPage ...
func (s *Service) GetPage(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/pages/"):]

	key, err := common.DecodeFromString(param)

	if err != nil {
		s.logger.WithError(err).Errorf("Parsing page key parameter %s", param)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	page, err := s.runtime.GetPage(key)

	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving page %s", param)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(newPageJSON(page))
}

// GetBalance ...
func (s *Service) GetBalance(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/balance/"):]

	key, err := common.DecodeFromString(param)

	if err != nil {
		s.logger.WithError(err).Errorf("Parsing page key parameter %s", param)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	balance, err := s.runtime.GetBalance(key)

	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving balance of %s", param)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	version, err := s.runtime.GetVersion(key)

	if err != nil {
		s.logger.WithError(err).Errorf("Retrieving version of %s", param)

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(BalanceJSON{Balance: balance, Version: version})
}

// GetCheckpoint ...
func (s *Service) GetCheckpoint(w http.ResponseWriter, r *http.Request) {
	checkpoint := s.runtime.LastCheckpoint()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(CheckpointJSON{
		ID:   checkpoint.ID,
		Hash: common.EncodeToString(checkpoint.Hash),
	})
}

// SubmitBatch decodes an ordered list of calls from the request body, runs it
// through the runtime, and responds with the batch receipt. Calls are encoded
// the way Call.Marshal produces them.
func (s *Service) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "batch submission requires POST", http.StatusMethodNotAllowed)

		return
	}

	var calls []*ledger.Call

	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(r.Body, jh)

	if err := dec.Decode(&calls); err != nil {
		s.logger.WithError(err).Error("Parsing batch")

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	receipt, err := s.runtime.SubmitBatch(calls)

	if err != nil {
		s.logger.WithError(err).Error("Processing batch")

		http.Error(w, err.Error(), http.StatusInternalServerError)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(receipt)
}
