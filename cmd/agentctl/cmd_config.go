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
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	appconfig "github.com/teradata-labs/agentctl/pkg/config"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage agentctl configuration and secrets",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the merged configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := yaml.Marshal(config.Redacted())
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file in use",
	Run: func(cmd *cobra.Command, args []string) {
		if used := viper.ConfigFileUsed(); used != "" {
			fmt.Fprintln(cmd.OutOrStdout(), used)
			return
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (not created)\n", filepath.Join(appconfig.GetHomeDir(), DefaultConfigFileName+".yaml"))
	},
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret <key>",
	Short: "Save a secret to the system keyring",
	Long: fmt.Sprintf(`Save a secret to the system keyring (Keychain on macOS, Credential
Manager on Windows, Secret Service on Linux). The value is read without echo,
or from stdin when it is not a terminal.

Available keys: %s`, strings.Join(ListAvailableSecretKeys(), ", ")),
	Args: cobra.ExactArgs(1),
	RunE: runConfigSetSecret,
}

var configDeleteSecretCmd = &cobra.Command{
	Use:   "delete-secret <key>",
	Short: "Remove a secret from the system keyring",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validSecretKey(args[0]); err != nil {
			return err
		}
		if err := keyring.Delete(ServiceName, args[0]); err != nil {
			return fmt.Errorf("failed to delete %s from keyring: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from system keyring\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd, configSetSecretCmd, configDeleteSecretCmd)
}

func validSecretKey(key string) error {
	keys := ListAvailableSecretKeys()
	if !slices.Contains(keys, key) {
		return fmt.Errorf("invalid key name %q (available: %s)", key, strings.Join(keys, ", "))
	}
	return nil
}

func runConfigSetSecret(cmd *cobra.Command, args []string) error {
	key := args[0]
	if err := validSecretKey(key); err != nil {
		return err
	}

	var secret string
	if isInteractive(os.Stdin) {
		fmt.Fprintf(cmd.OutOrStdout(), "Enter %s (input hidden): ", key)
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}
		secret = string(b)
	} else {
		line, err := newPrompter(cmd.InOrStdin(), cmd.OutOrStdout(), nil).readLine()
		if err != nil {
			return fmt.Errorf("error reading input: %w", err)
		}
		secret = line
	}

	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	if err := keyring.Set(ServiceName, key, secret); err != nil {
		return fmt.Errorf("error saving to keyring: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to system keyring\n", key)
	return nil
}
