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
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"lxfs/internal/daemon"
	"lxfs/internal/util"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
	Long:  `Commands for controlling the lxfs daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long:  `Starts the lxfs daemon in the background.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var (
	daemonForeground bool
	daemonLogLevel   string
)

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForeground, "foreground", "f", false, "Run in foreground")
	daemonStartCmd.Flags().StringVar(&daemonLogLevel, "logging", "", "Log level: trace, debug, info, warn, off")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		fmt.Printf("Daemon already running (PID %d)\n", pid)
		return nil
	}

	if daemonForeground {
		d := daemon.New()
		d.LogLevel = daemonLogLevel
		return d.Run()
	}

	exe, err := os.Executable()
	if err != nil {
		return err
	}

	cmdArgs := []string{"daemon", "start", "--foreground"}
	if daemonLogLevel != "" {
		cmdArgs = append(cmdArgs, "--logging", daemonLogLevel)
	}
	bgDaemon := exec.Command(exe, cmdArgs...)
	bgDaemon.Stdout = nil
	bgDaemon.Stderr = nil
	bgDaemon.Env = os.Environ() // Inherit environment (including LXFS_CONFIG_DIR)
	bgDaemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	if err := bgDaemon.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	if util.WaitFixed(200, 25*time.Millisecond, daemon.IsDaemonRunning) {
		pid, _ := daemon.GetPID()
		fmt.Printf("Daemon started (PID %d)\n", pid)
		return nil
	}

	return fmt.Errorf("daemon did not start")
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon not running")
		return nil
	}

	client, err := daemon.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	resp, err := client.Stop()
	client.Close()
	if err != nil {
		return fmt.Errorf("stop request failed: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	stopped := util.WaitFixed(200, 25*time.Millisecond, func() bool {
		return !daemon.IsDaemonRunning()
	})
	if !stopped {
		pid, _ := daemon.GetPID()
		return fmt.Errorf("daemon (PID %d) did not stop", pid)
	}

	fmt.Println("Daemon stopped")
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon: not running")
		return nil
	}

	pid, _ := daemon.GetPID()
	fmt.Printf("Daemon: running (PID %d)\n", pid)

	client, err := daemon.Connect()
	if err != nil {
		return nil
	}
	defer client.Close()

	mounts, err := client.Mounts()
	if err != nil {
		return nil
	}
	fmt.Printf("Mounts: %d\n", len(mounts))
	for _, m := range mounts {
		fmt.Printf("  %s -> %s\n", m.Name, m.Device)
	}
	return nil
}
