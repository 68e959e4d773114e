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
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lxfs/internal/block"
	"lxfs/internal/dirent"
	"lxfs/internal/fs"
)

var lsCmd = &cobra.Command{
	Use:   "ls <image> [path]",
	Short: "List a directory on a volume",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	path := "/"
	if len(args) > 1 {
		path = args[1]
	}

	return withVolume(args[0], func(vol *block.Volume) error {
		entries, err := fs.New(vol).ReadDir(path)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%d:%d\t%d\t%s\t%s\n",
				modeString(e),
				e.Owner, e.Group,
				e.Size,
				time.Unix(e.ModTime, 0).Format("2006-01-02 15:04"),
				e.Name)
		}
		return w.Flush()
	})
}

// modeString renders the entry type and permission bits ls-style.
func modeString(e *dirent.Entry) string {
	buf := []byte("----------")
	switch e.Type() {
	case dirent.TypeDir:
		buf[0] = 'd'
	case dirent.TypeSoftLink:
		buf[0] = 'l'
	case dirent.TypeHardLink:
		buf[0] = 'h'
	}
	marks := []byte("rwxrwxrwx")
	for i := range marks {
		if e.Permissions&(1<<(8-i)) != 0 {
			buf[i+1] = marks[i]
		}
	}
	return string(buf)
}
