// Copyright 2024 The remotefs-fuse Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cmd implements the remotefs-fuse command line: one subcommand
// per backend, shared mount flags on the root.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/darktohka/remotefs-fuse/internal/logger"
)

var (
	cfgFile     string
	mountPoint  string
	volumeName  string
	uidFlag     int64
	gidFlag     int64
	defaultMode string
	rawOptions  []string
	logLevel    string
	logFormat   string
	logFile     string
)

var rootCmd = &cobra.Command{
	Use:   "remotefs-fuse",
	Short: "Mount a remote file store as a local filesystem",
	Long: `remotefs-fuse exposes a remote file store (SFTP, FTP, S3, WebDAV,
SMB, or an in-memory test store) as a locally mounted filesystem. Pick the
backend with a subcommand and point --to at the mountpoint.`,
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
			if err := viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config file: %w", err)
			}
			if err := applyConfigFile(cmd); err != nil {
				return err
			}
		}

		if logFile != "" {
			logger.InitLogFile(logFile, logFormat, 100, 5)
		} else if err := logger.SetLogFormat(logFormat); err != nil {
			return err
		}
		return logger.SetLogLevel(logLevel)
	},
}

// applyConfigFile backfills flags the user didn't set from the config
// file, so the precedence is flag > file > default.
func applyConfigFile(cmd *cobra.Command) error {
	var err error
	apply := func(f *pflag.Flag) {
		if err != nil || f.Changed || !viper.IsSet(f.Name) {
			return
		}
		if setErr := f.Value.Set(viper.GetString(f.Name)); setErr != nil {
			err = fmt.Errorf("config file key %q: %w", f.Name, setErr)
		}
	}
	cmd.Flags().VisitAll(apply)
	cmd.InheritedFlags().VisitAll(apply)
	return err
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&mountPoint, "to", "", "path where the remote filesystem will be mounted")
	pf.StringVar(&volumeName, "volume", "remotefs", "name of the mounted filesystem volume")
	pf.Int64Var(&uidFlag, "uid", -1, "uid to report for all files on the mounted filesystem")
	pf.Int64Var(&gidFlag, "gid", -1, "gid to report for all files on the mounted filesystem")
	pf.StringVar(&defaultMode, "default-mode", "", "octal file mode for backends that track none (e.g. 644)")
	pf.StringArrayVarP(&rawOptions, "option", "o", nil, "mount option in key[=value] form; repeatable")
	pf.StringVarP(&logLevel, "log-level", "l", "info", "log severity: error, warn, info, debug or trace")
	pf.StringVar(&logFormat, "log-format", "text", "log format: text or json")
	pf.StringVar(&logFile, "log-file", "", "write logs to this file instead of stderr")
	pf.StringVar(&cfgFile, "config", "", "YAML config file supplying flag defaults")

	cobra.CheckErr(rootCmd.MarkPersistentFlagRequired("to"))
}

// Execute runs the CLI. Errors have already been printed when it returns.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "remotefs-fuse: %v\n", err)
	}
	return err
}
