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
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/teradata-labs/agentctl/internal/log"
	"github.com/teradata-labs/agentctl/internal/version"
)

var (
	cfgFile string
	config  *Config
)

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Optimize, version, and roll back language agents",
	Long: heredoc.Doc(`
		agentctl manages the code of language agents running under the
		language operator.

		It turns tasks that an agent keeps solving the same way into plain
		code, stores every code change as a numbered version, and rolls an
		agent back to any earlier version.
	`),
	Version:           version.String(),
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	_ = log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.SilenceErrors = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $AGENTCTL_HOME/config.yaml)")
	flags.StringP("namespace", "n", "default", "namespace of the agent")
	flags.String("backend", "kube", "resource backend (kube, sqlite, postgres, mysql)")
	flags.String("kubeconfig", "", "path to the kubeconfig file")
	flags.String("context", "", "kubeconfig context to use")
	flags.String("dsn", "", "database DSN for the sqlite, postgres, and mysql backends")
	flags.String("traces-endpoint", "", "trace analyzer URL")
	flags.StringP("output", "o", "table", "output format (table, json, yaml)")
	flags.Bool("no-color", false, "disable colored output")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text, json)")

	bindRootFlags()
}

// bindRootFlags ties the persistent flags to their viper keys.
func bindRootFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("cluster.namespace", flags.Lookup("namespace"))
	_ = viper.BindPFlag("cluster.backend", flags.Lookup("backend"))
	_ = viper.BindPFlag("cluster.kubeconfig", flags.Lookup("kubeconfig"))
	_ = viper.BindPFlag("cluster.context", flags.Lookup("context"))
	_ = viper.BindPFlag("database.dsn", flags.Lookup("dsn"))
	_ = viper.BindPFlag("traces.endpoint", flags.Lookup("traces-endpoint"))
	_ = viper.BindPFlag("output.format", flags.Lookup("output"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", flags.Lookup("log-format"))
}

// initConfig loads configuration and the logger before any subcommand runs.
func initConfig(cmd *cobra.Command, args []string) error {
	var err error
	config, err = LoadConfig(cfgFile)
	if err != nil {
		return err
	}
	if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
		config.Output.Color = false
	}
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		config.Output.Color = false
	}
	if _, err := log.Configure(config.Logging.Level, config.Logging.Format); err != nil {
		return err
	}
	return nil
}
