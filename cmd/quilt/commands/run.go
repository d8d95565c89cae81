package commands

import (
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/mosaicnetworks/quilt/src/config"
	"github.com/mosaicnetworks/quilt/src/quilt"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts a Quilt node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runQuilt,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runQuilt(cmd *cobra.Command, args []string) error {
	engine := quilt.NewQuilt(&_config.Quilt)

	if err := engine.Init(); err != nil {
		_config.Quilt.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	engine.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Quilt.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Quilt.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("moniker", _config.Quilt.Moniker, "Optional name")
	cmd.Flags().Bool("discard", _config.Discard, "Discard stderr output when file logging is on")

	// Service
	cmd.Flags().Bool("no-service", _config.Quilt.NoService, "Disable the HTTP API service")
	cmd.Flags().StringP("service-listen", "s", _config.Quilt.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Quilt.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Quilt.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Bool("bootstrap", _config.Quilt.Bootstrap, "Load from database")
	cmd.Flags().Int("cache-size", _config.Quilt.CacheSize, "Number of items in LRU caches")

	// Runtime configuration
	cmd.Flags().Duration("heartbeat", _config.Quilt.HeartbeatTimeout, "Time between checkpoints")
	cmd.Flags().Int("workers", _config.Quilt.Workers, "Number of concurrent execution routines")
	cmd.Flags().Uint64("exec-budget", _config.Quilt.ExecBudget, "Compute budget per call")
	cmd.Flags().Int("checkpoint-window", _config.Quilt.CheckpointWindow, "Number of checkpoints calls may reference")
	cmd.Flags().Bool("maintenance-mode", _config.Quilt.MaintenanceMode, "Start suspended, without processing batches")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Quilt.SetDataDir(_config.Quilt.DataDir)

	_config.Quilt.Logger().Logger.SetLevel(config.LogLevel(_config.Quilt.LogLevel))

	addLogFiles()

	logFields := logrus.Fields{
		"quilt.DataDir":          _config.Quilt.DataDir,
		"quilt.ServiceAddr":      _config.Quilt.ServiceAddr,
		"quilt.NoService":        _config.Quilt.NoService,
		"quilt.Store":            _config.Quilt.Store,
		"quilt.LogLevel":         _config.Quilt.LogLevel,
		"quilt.Moniker":          _config.Quilt.Moniker,
		"quilt.HeartbeatTimeout": _config.Quilt.HeartbeatTimeout,
		"quilt.Workers":          _config.Quilt.Workers,
		"quilt.ExecBudget":       _config.Quilt.ExecBudget,
		"quilt.CheckpointWindow": _config.Quilt.CheckpointWindow,
		"quilt.CacheSize":        _config.Quilt.CacheSize,
		"quilt.MaintenanceMode":  _config.Quilt.MaintenanceMode,
		"Discard":                _config.Discard,
	}

	if _config.Quilt.Store {
		logFields["quilt.DatabaseDir"] = _config.Quilt.DatabaseDir
		logFields["quilt.Bootstrap"] = _config.Quilt.Bootstrap
	}

	_config.Quilt.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/quilt.toml (.json, .yaml also work)
	viper.SetConfigName("quilt")               // name of config file (without extension)
	viper.AddConfigPath(_config.Quilt.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Quilt.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Quilt.Logger().Debugf("No config file found in: %s", _config.Quilt.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}

// addLogFiles hooks per-level log files, next to the data dir, into the
// logger.
func addLogFiles() {
	logger := _config.Quilt.Logger().Logger

	pathMap := lfshook.PathMap{}

	infoPath := filepath.Join(_config.Quilt.DataDir, "quilt_info.log")

	_, err := os.OpenFile(infoPath, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open quilt_info.log file, using default stderr")
	} else {
		pathMap[logrus.InfoLevel] = infoPath
	}

	debugPath := filepath.Join(_config.Quilt.DataDir, "quilt_debug.log")

	_, err = os.OpenFile(debugPath, os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		logger.Info("Failed to open quilt_debug.log file, using default stderr")
	} else {
		pathMap[logrus.DebugLevel] = debugPath
	}

	if err == nil && _config.Discard {
		logger.Out = ioutil.Discard
	}

	logger.Hooks.Add(lfshook.NewHook(
		pathMap,
		&logrus.TextFormatter{},
	))
}
