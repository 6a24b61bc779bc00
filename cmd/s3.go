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

	"github.com/darktohka/remotefs-fuse/remote/s3fs"
)

var s3Flags = struct {
	bucket       string
	region       string
	endpoint     string
	profile      string
	accessKey    string
	secretKey    string
	sessionToken string
	pathStyle    bool
}{}

var s3Cmd = &cobra.Command{
	Use:   "s3",
	Short: "Mount an S3 bucket",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return mountAndRun(s3fs.New(s3fs.Config{
			Bucket:       s3Flags.bucket,
			Region:       s3Flags.region,
			Endpoint:     s3Flags.endpoint,
			Profile:      s3Flags.profile,
			AccessKey:    s3Flags.accessKey,
			SecretKey:    s3Flags.secretKey,
			SessionToken: s3Flags.sessionToken,
			PathStyle:    s3Flags.pathStyle,
		}))
	},
}

func init() {
	f := s3Cmd.Flags()
	f.StringVar(&s3Flags.bucket, "bucket", "", "name of the bucket to mount")
	f.StringVar(&s3Flags.region, "region", "", "region of the bucket")
	f.StringVar(&s3Flags.endpoint, "endpoint", "", "custom S3 endpoint")
	f.StringVar(&s3Flags.profile, "profile", "", "AWS profile")
	f.StringVar(&s3Flags.accessKey, "access-key", "", "access key")
	f.StringVar(&s3Flags.secretKey, "secret-access-key", "", "secret key")
	f.StringVar(&s3Flags.sessionToken, "security-token", "", "STS security token")
	f.BoolVar(&s3Flags.pathStyle, "new-path-style", false, "force path-style addressing")
	cobra.CheckErr(s3Cmd.MarkFlagRequired("bucket"))

	rootCmd.AddCommand(s3Cmd)
}
