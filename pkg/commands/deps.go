package commands

import (
	"github.com/spf13/pflag"

	"github.com/hal-console/dmr-framework/config"
	"github.com/hal-console/dmr-framework/mgmt"
	"github.com/hal-console/dmr-framework/operations"
	"github.com/hal-console/dmr-framework/operations/sqlreporter"
	"github.com/hal-console/dmr-framework/pkg/logger"
	"github.com/hal-console/dmr-framework/plan"
)

// ConfigLoaderFunc loads the configuration for the flags of the running command.
type ConfigLoaderFunc func(fs *pflag.FlagSet) (*config.Config, error)

// LoggerFunc builds the logger for a loaded configuration.
type LoggerFunc func(cfg *config.Config) (logger.Logger, error)

// DispatcherFunc connects to the management endpoint.
type DispatcherFunc func(cfg *config.Config, lggr logger.Logger) (operations.Dispatcher, error)

// ReporterFunc opens the report store. The returned close function is never nil.
type ReporterFunc func(cfg *config.Config, lggr logger.Logger) (operations.Reporter, func() error, error)

// PlanLoaderFunc reads a plan file.
type PlanLoaderFunc func(path string) (*plan.Plan, error)

func defaultLogger(cfg *config.Config) (logger.Logger, error) {
	lc, err := cfg.Logger()
	if err != nil {
		return nil, err
	}

	return lc.New()
}

func defaultDispatcher(cfg *config.Config, lggr logger.Logger) (operations.Dispatcher, error) {
	return mgmt.NewClient(cfg.ManagementClient(), mgmt.WithLogger(lggr.Named("mgmt")))
}

// defaultReporter keeps reports in memory unless a reports DSN is configured.
func defaultReporter(cfg *config.Config, lggr logger.Logger) (operations.Reporter, func() error, error) {
	if cfg.Reports.DSN == "" {
		return operations.NewMemoryReporter(), func() error { return nil }, nil
	}
	r, err := sqlreporter.Open(cfg.Reports.Driver, cfg.Reports.DSN, sqlreporter.WithLogger(lggr.Named("reports")))
	if err != nil {
		return nil, nil, err
	}

	return r, r.Close, nil
}

// Deps holds the injectable dependencies of the commands.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// LoadConfig loads the configuration.
	// Default: config.LoadFlags
	LoadConfig ConfigLoaderFunc

	// NewLogger builds the logger.
	// Default: the logger described by the log section of the configuration
	NewLogger LoggerFunc

	// NewDispatcher connects to the management endpoint.
	// Default: mgmt.NewClient
	NewDispatcher DispatcherFunc

	// NewReporter opens the report store.
	// Default: sqlreporter.Open when reports.dsn is set, a MemoryReporter otherwise
	NewReporter ReporterFunc

	// LoadPlan reads a plan file.
	// Default: plan.Load
	LoadPlan PlanLoaderFunc
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.LoadConfig == nil {
		d.LoadConfig = config.LoadFlags
	}
	if d.NewLogger == nil {
		d.NewLogger = defaultLogger
	}
	if d.NewDispatcher == nil {
		d.NewDispatcher = defaultDispatcher
	}
	if d.NewReporter == nil {
		d.NewReporter = defaultReporter
	}
	if d.LoadPlan == nil {
		d.LoadPlan = plan.Load
	}
}
