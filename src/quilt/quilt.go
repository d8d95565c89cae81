package quilt

import (
	"crypto/ecdsa"
	"fmt"
	"os"

	"github.com/mosaicnetworks/quilt/src/config"
	"github.com/mosaicnetworks/quilt/src/crypto/keys"
	"github.com/mosaicnetworks/quilt/src/ledger"
	"github.com/mosaicnetworks/quilt/src/runtime"
	"github.com/mosaicnetworks/quilt/src/service"
)

// Quilt is a struct holding a runtime and the top-level objects plugged into
// it: the page store and the HTTP API service.
type Quilt struct {
	Config  *config.Config
	Runtime *runtime.Runtime
	Store   ledger.PageStore
	Service *service.Service
}

// NewQuilt instantiates a new Quilt engine from a config object. Init must be
// called before the engine is used.
func NewQuilt(config *config.Config) *Quilt {
	engine := &Quilt{
		Config: config,
	}

	return engine
}

func (q *Quilt) initStore() error {
	if !q.Config.Store {
		q.Store = ledger.NewInmemStore(q.Config.CacheSize)

		q.Config.Logger().Debug("created new in-mem store")
	} else {
		var err error

		q.Config.Logger().WithField("path", q.Config.DatabaseDir).Debug("Attempting to load or create database")

		if q.Config.Bootstrap {
			q.Store, err = ledger.LoadBadgerStore(q.Config.CacheSize, q.Config.DatabaseDir)
		} else {
			q.Store, err = ledger.LoadOrCreateBadgerStore(q.Config.CacheSize, q.Config.DatabaseDir)
		}

		if err != nil {
			return err
		}

		if q.Store.PageCount() > 0 {
			q.Config.Logger().Debug("loaded badger store from existing database")
		} else {
			q.Config.Logger().Debug("created new badger store from fresh database")
		}
	}

	return nil
}

func (q *Quilt) initKey() error {
	if q.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(q.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()

		if err != nil {
			q.Config.Logger().Warn("Cannot read private key from file", err)

			privKey, err = Keygen(q.Config.Keyfile())

			if err != nil {
				q.Config.Logger().Error("Cannot generate a new private key", err)

				return err
			}

			q.Config.Logger().Info("Created a new key:", keys.PublicKeyHex(&privKey.PublicKey))
		}

		q.Config.Key = privKey
	}

	if q.Config.Moniker == "" {
		pubBytes := keys.FromPublicKey(&q.Config.Key.PublicKey)
		q.Config.Moniker = fmt.Sprintf("node%d", keys.PublicKeyID(pubBytes))
	}

	return nil
}

// initGenesis seeds a fresh store with the page allocations of the genesis
// file. A store carrying pages was bootstrapped from a previous run and is
// left alone; the genesis file only ever speaks once.
func (q *Quilt) initGenesis() error {
	if q.Store.PageCount() > 0 {
		q.Config.Logger().Debug("store already populated; skipping genesis")

		return nil
	}

	genesis := ledger.NewJSONGenesis(q.Config.DataDir)

	pages, err := genesis.Pages()

	if err != nil {
		if os.IsNotExist(err) {
			q.Config.Logger().Debug("no genesis file")

			return nil
		}

		return err
	}

	for _, page := range pages {
		if err := q.Store.SetPage(page); err != nil {
			return err
		}
	}

	q.Config.Logger().WithField("pages", len(pages)).Debug("Loaded genesis pages")

	return nil
}

// initRuntime must run after initGenesis so that the genesis checkpoint
// covers the seeded pages.
func (q *Quilt) initRuntime() error {
	rt, err := runtime.NewRuntime(q.Config, q.Store)

	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %s", err)
	}

	q.Runtime = rt

	return nil
}

func (q *Quilt) initService() error {
	if !q.Config.NoService {
		q.Service = service.NewService(q.Config.ServiceAddr, q.Runtime, q.Config.Logger())
	}
	return nil
}

// Init reads in the configuration and initialises the engine: store, key,
// genesis pages, runtime, and service, in that order.
func (q *Quilt) Init() error {
	if err := q.initStore(); err != nil {
		return err
	}

	if err := q.initKey(); err != nil {
		return err
	}

	if err := q.initGenesis(); err != nil {
		return err
	}

	if err := q.initRuntime(); err != nil {
		return err
	}

	if err := q.initService(); err != nil {
		return err
	}

	return nil
}

// Run starts the service and the runtime's main loop. This is a blocking
// call; batches are submitted through the service or, when Quilt is embedded,
// through Runtime.SubmitBatch directly.
func (q *Quilt) Run() {
	if q.Service != nil {
		go q.Service.Serve()
	}

	q.Runtime.Run()
}

// Shutdown stops the runtime and closes the store.
func (q *Quilt) Shutdown() {
	if q.Runtime != nil {
		q.Runtime.Shutdown()
	}
}

// Keygen generates a new key pair and writes it to keyfile. It refuses to
// overwrite an existing key.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	simpleKeyfile := keys.NewSimpleKeyfile(keyfile)

	_, err := simpleKeyfile.ReadKey()

	if err == nil {
		return nil, fmt.Errorf("Another key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateECDSAKey()

	if err != nil {
		return nil, err
	}

	if err := simpleKeyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
