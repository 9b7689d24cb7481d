/*
Copyright 2022 The Numaproj Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/numaproj/timerflow/pkg/config"
	"github.com/numaproj/timerflow/pkg/engine"
	"github.com/numaproj/timerflow/pkg/metrics"
	"github.com/numaproj/timerflow/pkg/replay"
	"github.com/numaproj/timerflow/pkg/shared/logging"
)

func NewReplayCommand() *cobra.Command {
	var (
		configFile  string
		metricsPort int
		output      string
	)
	command := &cobra.Command{
		Use:   "replay SCENARIO",
		Short: "Replay a timer scenario and print what fired",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "table" && output != "text" {
				return fmt.Errorf("unsupported output format %q", output)
			}
			logger := logging.NewLogger().Named("replay")
			ctx, stop := signal.NotifyContext(logging.WithLogger(context.Background(), logger), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var opts []config.LoadOption
			if configFile != "" {
				opts = append(opts, config.WithConfigFile(configFile))
			}
			cfg, err := config.LoadConfig(opts...)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-port") {
				cfg.MetricsPort = metricsPort
			}

			sc, err := replay.LoadScenario(args[0])
			if err != nil {
				return err
			}

			s, closeStore, err := openStore(ctx, cfg.Store)
			if err != nil {
				return err
			}
			defer closeStore()

			if cfg.MetricsPort > 0 {
				server := metrics.NewMetricsServer(metrics.WithPort(cfg.MetricsPort), metrics.WithReadinessCheck(func(ctx context.Context) error {
					_, err := s.Keys(ctx)
					return err
				}))
				shutdown, err := server.Start(ctx)
				if err != nil {
					return err
				}
				defer func() {
					if err := shutdown(context.Background()); err != nil {
						logger.Errorw("Failed to shut down metrics server", zap.Error(err))
					}
				}()
			}

			engineOpts := []engine.Option{engine.WithPartitions(cfg.Partitions)}
			if cfg.Workers > 0 {
				engineOpts = append(engineOpts, engine.WithWorkers(cfg.Workers))
			}
			result, err := replay.Run(ctx, sc, s, engineOpts...)
			if result != nil {
				if output == "table" {
					result.WriteTable(cmd.OutOrStdout())
				} else {
					fmt.Fprint(cmd.OutOrStdout(), result.String())
				}
			}
			return err
		},
	}
	command.Flags().StringVar(&configFile, "config", "", "path of the timerflow config file")
	command.Flags().IntVar(&metricsPort, "metrics-port", 0, "serve prometheus metrics on this port while replaying, 0 disables")
	command.Flags().StringVarP(&output, "output", "o", "table", "output format, table or text")
	return command
}
