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

	"github.com/darktohka/remotefs-fuse/remote/smbfs"
)

var smbFlags = struct {
	address   string
	port      uint16
	username  string
	password  string
	share     string
	workgroup string
}{}

var smbCmd = &cobra.Command{
	Use:   "smb",
	Short: "Mount an SMB share filesystem",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mountAndRun(smbfs.New(smbfs.Config{
			Address:   smbFlags.address,
			Port:      smbFlags.port,
			Username:  smbFlags.username,
			Password:  smbFlags.password,
			Share:     smbFlags.share,
			Workgroup: smbFlags.workgroup,
		}))
	},
}

func init() {
	f := smbCmd.Flags()
	f.StringVar(&smbFlags.address, "address", "", "hostname of the SMB server")
	f.Uint16Var(&smbFlags.port, "port", 445, "port of the SMB server")
	f.StringVar(&smbFlags.username, "username", "", "username to authenticate with")
	f.StringVar(&smbFlags.password, "password", "", "password to authenticate with")
	f.StringVar(&smbFlags.share, "share", "", "share to mount")
	f.StringVar(&smbFlags.workgroup, "workgroup", "", "workgroup to authenticate with")
	cobra.CheckErr(smbCmd.MarkFlagRequired("address"))
	cobra.CheckErr(smbCmd.MarkFlagRequired("share"))

	rootCmd.AddCommand(smbCmd)
}
