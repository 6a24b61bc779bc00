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

	"github.com/darktohka/remotefs-fuse/remote/ftpfs"
)

var ftpFlags = struct {
	hostname string
	port     uint16
	username string
	password string
	secure   bool
	active   bool
}{}

var ftpCmd = &cobra.Command{
	Use:   "ftp",
	Short: "Mount an FTP server filesystem",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mountAndRun(ftpfs.New(ftpfs.Config{
			Host:     ftpFlags.hostname,
			Port:     ftpFlags.port,
			Username: ftpFlags.username,
			Password: ftpFlags.password,
			TLS:      ftpFlags.secure,
			Active:   ftpFlags.active,
		}))
	},
}

func init() {
	f := ftpCmd.Flags()
	f.StringVar(&ftpFlags.hostname, "hostname", "", "FTP server hostname")
	f.Uint16Var(&ftpFlags.port, "port", 21, "FTP server port")
	f.StringVar(&ftpFlags.username, "username", "anonymous", "FTP server username")
	f.StringVar(&ftpFlags.password, "password", "", "FTP server password")
	f.BoolVar(&ftpFlags.secure, "secure", false, "use FTPS (FTP over TLS)")
	f.BoolVar(&ftpFlags.active, "active", false, "disable EPSV and use plain PASV (transfers stay passive)")
	cobra.CheckErr(ftpCmd.MarkFlagRequired("hostname"))

	rootCmd.AddCommand(ftpCmd)
}
