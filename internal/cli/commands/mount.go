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
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lxfs/internal/daemon"
)

var mountCmd = &cobra.Command{
	Use:   "mount <image> [name]",
	Short: "Mount a volume image in the daemon",
	Long: `Asks the daemon to open the volume image and register it under a
device name. The name defaults to the image's base name without extension.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runMount,
}

var unmountCmd = &cobra.Command{
	Use:   "unmount <name>",
	Short: "Unmount a volume from the daemon",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnmount,
}

var mountsCmd = &cobra.Command{
	Use:   "mounts",
	Short: "List mounted volumes",
	Args:  cobra.NoArgs,
	RunE:  runMounts,
}

func init() {
	rootCmd.AddCommand(mountCmd)
	rootCmd.AddCommand(unmountCmd)
	rootCmd.AddCommand(mountsCmd)
}

func runMount(cmd *cobra.Command, args []string) error {
	image, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	name := defaultMountName(image)
	if len(args) > 1 {
		name = args[1]
	}

	client, err := connectDaemon(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Mount(name, image)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Printf("Mounted %s as %s\n", image, name)
	return nil
}

func defaultMountName(image string) string {
	base := filepath.Base(image)
	return base[:len(base)-len(filepath.Ext(base))]
}

func runUnmount(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Unmount(args[0])
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}
	fmt.Printf("Unmounted %s\n", args[0])
	return nil
}

func runMounts(cmd *cobra.Command, args []string) error {
	client, err := connectDaemon(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	mounts, err := client.Mounts()
	if err != nil {
		return err
	}
	if len(mounts) == 0 {
		fmt.Println("No volumes mounted")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDEVICE\tBLOCK SIZE\tBLOCKS\tFREE\tLABEL")
	for _, m := range mounts {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%s\n",
			m.Name, m.Device, m.BlockSize, m.Blocks, m.FreeBlocks, m.Label)
	}
	return w.Flush()
}

// connectDaemon connects to a running daemon, refusing rather than
// auto-starting one.
func connectDaemon(cmd *cobra.Command) (*daemon.Client, error) {
	client, err := daemon.Connect()
	if err != nil {
		return nil, fmt.Errorf("daemon not running (start it with 'lxfs daemon start'): %w", err)
	}
	return client, nil
}
