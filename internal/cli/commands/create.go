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

	"github.com/spf13/cobra"

	"lxfs/internal/block"
	"lxfs/internal/common"
	"lxfs/internal/fs"
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <image> <path>",
	Short: "Create a directory on a volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(args[0], fs.CreateRequest{
			Path: args[1],
			Kind: fs.KindDirectory,
			Perm: mkdirMode,
		})
	},
}

var touchCmd = &cobra.Command{
	Use:   "touch <image> <path>",
	Short: "Create an empty file on a volume",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCreate(args[0], fs.CreateRequest{
			Path: args[1],
			Kind: fs.KindRegular,
			Perm: touchMode,
		})
	},
}

var lnCmd = &cobra.Command{
	Use:   "ln <image> <target> <path>",
	Short: "Create a hard or symbolic link on a volume",
	Long: `Creates a link at <path> pointing to <target>.

Hard links share the target's storage chain and bump its reference count;
with -s a symbolic link holding the target path is created instead.`,
	Args: cobra.ExactArgs(3),
	RunE: runLn,
}

var (
	mkdirMode  uint16
	touchMode  uint16
	lnSymbolic bool
)

func init() {
	mkdirCmd.Flags().Uint16Var(&mkdirMode, "mode", 0o755, "Permission bits for the new directory")
	touchCmd.Flags().Uint16Var(&touchMode, "mode", 0o644, "Permission bits for the new file")
	lnCmd.Flags().BoolVarP(&lnSymbolic, "symbolic", "s", false, "Create a symbolic link")
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(touchCmd)
	rootCmd.AddCommand(lnCmd)
}

func runCreate(image string, req fs.CreateRequest) error {
	req.Owner = uint32(os.Getuid())
	req.Group = uint32(os.Getgid())

	return withVolume(image, func(vol *block.Volume) error {
		_, err := fs.New(vol).Create(req)
		return err
	})
}

func runLn(cmd *cobra.Command, args []string) error {
	image, target, path := args[0], args[1], args[2]
	uid, gid := uint32(os.Getuid()), uint32(os.Getgid())

	return withVolume(image, func(vol *block.Volume) error {
		eng := fs.New(vol)
		req := fs.CreateRequest{
			Path:   path,
			Owner:  uid,
			Group:  gid,
			Target: target,
		}
		if lnSymbolic {
			req.Kind = fs.KindSymlink
			req.Perm = 0o777
		} else {
			src, err := eng.Resolve(target)
			if err != nil {
				return fmt.Errorf("link target %s: %w", target, err)
			}
			if src.IsDir() {
				return common.EISDIR
			}
			req.Kind = fs.KindHardLink
			req.Perm = src.Permissions
			req.SourceBlock = src.Block
		}
		_, err := eng.Create(req)
		return err
	})
}
