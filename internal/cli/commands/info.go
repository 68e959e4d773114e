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

	"github.com/spf13/cobra"

	"lxfs/internal/block"
)

var infoCmd = &cobra.Command{
	Use:   "info <image>",
	Short: "Show volume information",
	Long:  `Prints the superblock of a volume image and its free block count.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withVolume(args[0], func(vol *block.Volume) error {
		sb := vol.Superblock()
		free, err := vol.CountFreeBlocks()
		if err != nil {
			return err
		}

		fmt.Printf("Volume %s\n", args[0])
		if sb.Label != "" {
			fmt.Printf("  Label:       %s\n", sb.Label)
		}
		fmt.Printf("  UUID:        %s\n", sb.UUID)
		fmt.Printf("  Block size:  %d\n", sb.BlockSize)
		fmt.Printf("  Blocks:      %d\n", sb.TotalBlocks)
		fmt.Printf("  Free blocks: %d\n", free)
		fmt.Printf("  Table start: %d (%d blocks)\n", sb.TableStart, sb.TableBlocks)
		fmt.Printf("  Root block:  %d\n", sb.RootBlock)
		return nil
	})
}
