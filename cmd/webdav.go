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

	"github.com/darktohka/remotefs-fuse/remote/webdavfs"
)

var webdavFlags = struct {
	url      string
	username string
	password string
}{}

var webdavCmd = &cobra.Command{
	Use:   "webdav",
	Short: "Mount a WebDAV server filesystem",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mountAndRun(webdavfs.New(webdavfs.Config{
			URL:      webdavFlags.url,
			Username: webdavFlags.username,
			Password: webdavFlags.password,
		}))
	},
}

func init() {
	f := webdavCmd.Flags()
	f.StringVar(&webdavFlags.url, "url", "", "WebDAV URL")
	f.StringVar(&webdavFlags.username, "username", "", "WebDAV username")
	f.StringVar(&webdavFlags.password, "password", "", "WebDAV password")
	cobra.CheckErr(webdavCmd.MarkFlagRequired("url"))
	cobra.CheckErr(webdavCmd.MarkFlagRequired("username"))
	cobra.CheckErr(webdavCmd.MarkFlagRequired("password"))

	rootCmd.AddCommand(webdavCmd)
}
