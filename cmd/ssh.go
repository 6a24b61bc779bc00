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

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/darktohka/remotefs-fuse/remote/sftpfs"
)

var sshFlags = struct {
	hostname string
	port     uint16
	username string
	password string
}{}

func newSSHCommand(use, short string) *cobra.Command {
	c := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mountAndRun(sftpfs.New(sftpfs.Config{
				Host:     sshFlags.hostname,
				Port:     sshFlags.port,
				Username: sshFlags.username,
				Password: sshFlags.password,
			}))
		},
	}

	c.Flags().StringVar(&sshFlags.hostname, "hostname", "", "hostname of the SSH server")
	c.Flags().Uint16Var(&sshFlags.port, "port", 22, "port of the SSH server")
	c.Flags().StringVar(&sshFlags.username, "username", "", "username to authenticate with")
	c.Flags().StringVar(&sshFlags.password, "password", "", "password to authenticate with")
	cobra.CheckErr(c.MarkFlagRequired("hostname"))
	cobra.CheckErr(c.MarkFlagRequired("username"))
	cobra.CheckErr(c.MarkFlagRequired("password"))

	return c
}

func init() {
	rootCmd.AddCommand(newSSHCommand("sftp", "Mount an SFTP server filesystem"))
	// SCP rides the same SSH file transfer subsystem.
	rootCmd.AddCommand(newSSHCommand("scp", "Mount an SCP server filesystem"))
}
