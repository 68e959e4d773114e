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
	"os"
	"time"

	"github.com/spf13/cobra"

	"lxfs/internal/fs"
)

var openCmd = &cobra.Command{
	Use:   "open <name> <path>",
	Short: "Open a path on a mounted volume",
	Long: `Runs an open call against a mounted volume through the daemon and
prints the resulting entry. Symlinks are chased; with --create a missing
file is created first.

Examples:
  lxfs open disk /etc/config
  lxfs open --create --write --mode 0644 disk /var/new.txt`,
	Args: cobra.ExactArgs(2),
	RunE: runOpen,
}

var (
	openWrite    bool
	openCreate   bool
	openExcl     bool
	openTruncate bool
	openMode     uint16
	openUmask    uint16
)

func init() {
	openCmd.Flags().BoolVarP(&openWrite, "write", "w", false, "Open for writing")
	openCmd.Flags().BoolVarP(&openCreate, "create", "c", false, "Create the file if missing")
	openCmd.Flags().BoolVarP(&openExcl, "exclusive", "x", false, "Fail if the file already exists (with --create)")
	openCmd.Flags().BoolVarP(&openTruncate, "truncate", "t", false, "Truncate to zero length")
	openCmd.Flags().Uint16Var(&openMode, "mode", 0o644, "Permission bits for created files")
	openCmd.Flags().Uint16Var(&openUmask, "umask", 0o022, "Umask applied to --mode")
	rootCmd.AddCommand(openCmd)
}

func runOpen(cmd *cobra.Command, args []string) error {
	flags := fs.OpenRead
	if openWrite {
		flags |= fs.OpenWrite
	}
	if openCreate {
		flags |= fs.OpenCreate
	}
	if openExcl {
		flags |= fs.OpenExclusive
	}
	if openTruncate {
		flags |= fs.OpenTruncate
	}

	client, err := connectDaemon(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Open(args[0], args[1], flags, openMode, openUmask,
		uint32(os.Getuid()), uint32(os.Getgid()))
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("open %s: %s (errno %d)", args[1], resp.Error, resp.Errno)
	}

	e := resp.Entry
	fmt.Printf("%s\n", resp.Path)
	fmt.Printf("  Type:        %s\n", e.Type)
	fmt.Printf("  Permissions: %04o\n", e.Permissions)
	fmt.Printf("  Owner:       %d:%d\n", e.Owner, e.Group)
	fmt.Printf("  Size:        %d\n", e.Size)
	fmt.Printf("  Block:       %d\n", e.Block)
	fmt.Printf("  Modified:    %s\n", time.Unix(e.ModTime, 0).Format(time.RFC3339))
	return nil
}
