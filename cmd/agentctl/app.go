// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/teradata-labs/agentctl/internal/log"
	"github.com/teradata-labs/agentctl/pkg/cluster"
	"github.com/teradata-labs/agentctl/pkg/cluster/kube"
	"github.com/teradata-labs/agentctl/pkg/cluster/sqlstore"
	appconfig "github.com/teradata-labs/agentctl/pkg/config"
	"github.com/teradata-labs/agentctl/pkg/observability"
	"github.com/teradata-labs/agentctl/pkg/versions"
	"go.uber.org/zap"
)

// app holds what every command needs once config is loaded.
type app struct {
	config   *Config
	logger   *zap.Logger
	tracer   observability.Tracer
	cluster  cluster.Store
	versions *versions.Store
	out      *printer
}

func newApp(cmd *cobra.Command) (*app, error) {
	ctx := cmd.Context()
	logger := log.Logger()
	tracer := newTracer(config, logger)

	store, err := openCluster(ctx, config, logger, tracer)
	if err != nil {
		return nil, err
	}
	vs, err := versions.New(versions.Config{
		Cluster:     store,
		Namespace:   config.Cluster.Namespace,
		StrictPrune: config.Versions.StrictPrune,
		Logger:      logger.Named("versions"),
		Tracer:      tracer,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	return &app{
		config:   config,
		logger:   logger,
		tracer:   tracer,
		cluster:  store,
		versions: vs,
		out:      newPrinter(cmd.OutOrStdout(), config.Output.Format, config.Output.Color),
	}, nil
}

// Close flushes metrics and releases the backend.
func (a *app) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.tracer.Flush(ctx); err != nil {
		a.logger.Warn("Failed to push metrics", zap.Error(err))
	}
	if err := a.cluster.Close(); err != nil {
		a.logger.Warn("Failed to close resource backend", zap.Error(err))
	}
}

func newTracer(cfg *Config, logger *zap.Logger) observability.Tracer {
	if cfg.Metrics.PushgatewayURL == "" {
		return observability.NewNoOpTracer()
	}
	return observability.NewPrometheusTracer(observability.PrometheusConfig{
		PushgatewayURL: cfg.Metrics.PushgatewayURL,
		Logger:         logger.Named("metrics"),
	})
}

func openCluster(ctx context.Context, cfg *Config, logger *zap.Logger, tracer observability.Tracer) (cluster.Store, error) {
	switch cfg.Cluster.Backend {
	case "kube":
		return kube.New(kube.Config{
			Kubeconfig: cfg.Cluster.Kubeconfig,
			Context:    cfg.Cluster.Context,
			Logger:     logger.Named("kube"),
			Tracer:     tracer,
		})
	case "sqlite":
		dsn := cfg.Database.DSN
		if dsn == "" {
			dsn = appconfig.GetSubDir("agentctl.db")
		}
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: dsn, Logger: logger.Named("sqlstore"), Tracer: tracer})
	case "postgres":
		return sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverPostgres, DSN: cfg.Database.DSN, Logger: logger.Named("sqlstore"), Tracer: tracer})
	case "mysql":
		return sqlstore.Open(ctx, sqlstore.Config{Driver: sqlstore.DriverMySQL, DSN: cfg.Database.DSN, Logger: logger.Named("sqlstore"), Tracer: tracer})
	default:
		return nil, fmt.Errorf("unsupported backend %q", cfg.Cluster.Backend)
	}
}
