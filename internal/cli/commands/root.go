// Copyright 2025 lxfs Authors
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

package commands

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lxfs/internal/block"
	"lxfs/internal/device"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString returns the version string with build info
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		// Dev build: include epoch and commit for troubleshooting
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	// Prod build: version with date
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts epoch timestamp to readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "lxfs",
	Short: "Tools for lxfs volume images",
	Long: `Create, inspect and manipulate lxfs volume images, and control the
lxfs daemon that serves mounted volumes over IPC.`,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("lxfs version {{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// withVolume opens the volume image at path and runs fn on it. The volume
// is closed on return, which releases the image lock.
func withVolume(path string, fn func(*block.Volume) error) error {
	dev, err := device.Open(path)
	if err != nil {
		return err
	}
	vol, err := block.Open(dev)
	if err != nil {
		dev.Close()
		return err
	}
	defer vol.Close()
	return fn(vol)
}
