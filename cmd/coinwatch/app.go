// File: cmd/coinwatch/app.go
package main

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/coinwatch-gateway/internal/config"
	"github.com/smartdevs17/coinwatch-gateway/internal/connection"
	"github.com/smartdevs17/coinwatch-gateway/internal/gateway"
	"github.com/smartdevs17/coinwatch-gateway/internal/metrics"
	"github.com/smartdevs17/coinwatch-gateway/internal/notification"
	"github.com/smartdevs17/coinwatch-gateway/internal/poller"
	"github.com/smartdevs17/coinwatch-gateway/internal/server"
	"github.com/smartdevs17/coinwatch-gateway/internal/service"
	"github.com/smartdevs17/coinwatch-gateway/internal/storage"
	"github.com/smartdevs17/coinwatch-gateway/pkg/utils"
)

// Application holds the wired components
type Application struct {
	config       *config.Config
	logger       *logrus.Entry
	metrics      *metrics.Manager
	connection   *connection.ConnectionManager
	node         *connection.NodeClient
	gateway      *gateway.Gateway
	journal      storage.Storage
	notification *notification.NotificationManager
	watch        *service.WatchService
	updater      *poller.Updater
	server       *server.HTTPServer
}

// NewApplication creates a new application instance. The node connection is
// opened lazily on the first contract call.
func NewApplication(cfg *config.Config) (*Application, error) {
	app := &Application{config: cfg}

	if err := app.initializeLogger(); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		app.Stop()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return err
	}

	app.logger = utils.ComponentLogger("app")
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Debug("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.metrics = metrics.NewManager()

	if err := app.initializeNode(); err != nil {
		return fmt.Errorf("failed to initialize node client: %w", err)
	}

	if err := app.initializeGateway(); err != nil {
		return fmt.Errorf("failed to initialize gateway: %w", err)
	}

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.notification = notification.FromConfig(app.config.Notifications, app.journal, app.metrics)
	app.watch = service.NewWatchService(app.gateway, app.journal, app.notification)

	app.updater = poller.NewUpdater(
		app.gateway,
		app.watch,
		poller.NewBlockchainInfo(app.config.Poller.BalanceAPIURL, app.config.Poller.RequestTimeout, app.config.Poller.RetryMax),
		app.node.From(),
		poller.Config{
			Interval:       app.config.Poller.Interval,
			UpdateInterval: app.config.Poller.UpdateInterval,
			Confirmations:  app.config.Poller.Confirmations,
		},
		app.metrics,
	)

	app.logger.WithFields(logrus.Fields{
		"contract":     app.gateway.Contract().Hex(),
		"journal":      app.journal != nil,
		"can_transact": app.node.CanTransact(),
	}).Debug("All components initialized")
	return nil
}

func (app *Application) initializeNode() error {
	app.connection = connection.NewConnectionManager(app.config.Node, nil, app.metrics)

	node, err := connection.NewNodeClient(app.connection, app.config.Contract.SenderKey, app.metrics)
	if err != nil {
		return err
	}
	app.node = node
	return nil
}

func (app *Application) initializeGateway() error {
	gasPrice, err := app.config.Contract.GasPriceWei()
	if err != nil {
		return err
	}
	if app.config.Contract.BelowIntrinsicGas() {
		app.logger.WithField("gas_limit", app.config.Contract.GasLimit).
			Warn("Gas limit is below intrinsic transaction gas, transactions will be rejected")
	}

	app.gateway = gateway.NewGateway(gateway.Config{
		ContractAddress: app.config.Contract.ContractAddress(),
		GasLimit:        app.config.Contract.GasLimit,
		GasPrice:        gasPrice,
	}, app.node, app.node, app.metrics)
	return nil
}

func (app *Application) initializeStorage() error {
	journal, err := storage.Open(app.config.Storage, app.metrics)
	if err != nil {
		return err
	}
	app.journal = journal
	return nil
}

// StartServer starts the HTTP server and, when enabled, the owner updater
func (app *Application) StartServer(ctx context.Context) error {
	deps := server.Dependencies{
		Gateway:       app.gateway,
		Watcher:       app.watch,
		Node:          app.connection,
		Journal:       app.journal,
		Notifications: app.notification,
		Metrics:       app.metrics,
	}
	if app.config.Poller.Enabled {
		deps.Poller = app.updater
	}

	srv, err := server.NewHTTPServer(&app.config.Server, deps)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		return err
	}
	app.server = srv

	if app.config.Poller.Enabled {
		if err := app.updater.Start(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() {
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop HTTP server")
		}
	}

	if app.updater != nil {
		if err := app.updater.Stop(); err != nil {
			app.logger.WithError(err).Error("Failed to stop owner updater")
		}
	}

	if app.journal != nil {
		if err := app.journal.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close journal")
		}
	}

	if app.connection != nil {
		if err := app.connection.Close(); err != nil {
			app.logger.WithError(err).Error("Failed to close connection")
		}
	}
}
