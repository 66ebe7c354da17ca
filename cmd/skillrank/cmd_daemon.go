package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/felixgeelhaar/skillrank/internal/config"
	"github.com/spf13/cobra"
)

var healthClient = &http.Client{Timeout: 2 * time.Second}

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start skillrankd in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := daemonAddr(cmd)
			if err != nil {
				return err
			}
			if isRunning(addr) {
				fmt.Println("✓ Daemon is already running")
				return nil
			}

			dir, err := config.EnsureSkillrankDir()
			if err != nil {
				return fmt.Errorf("setup skillrank directory: %w", err)
			}

			daemonPath, err := findDaemonBinary()
			if err != nil {
				return fmt.Errorf("find daemon binary: %w", err)
			}

			proc := exec.Command(daemonPath)
			proc.Dir = dir
			configureDaemonProcess(proc)

			if err := proc.Start(); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			fmt.Print("Starting daemon...")
			for i := 0; i < 30; i++ {
				time.Sleep(100 * time.Millisecond)
				if isRunning(addr) {
					fmt.Println(" ✓")
					fmt.Printf("Daemon running at %s\n", addr)
					return nil
				}
				fmt.Print(".")
			}

			fmt.Println(" ✗")
			return fmt.Errorf("daemon failed to start (check logs with 'skillrank logs')")
		},
	}
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := daemonAddr(cmd)
			if err != nil {
				return err
			}
			if !isRunning(addr) {
				fmt.Println("Daemon is not running")
				return nil
			}

			dir, err := config.SkillrankDir()
			if err != nil {
				return err
			}
			pid, err := readPID(filepath.Join(dir, pidFile))
			if err != nil {
				return err
			}

			process, err := os.FindProcess(pid)
			if err != nil {
				return fmt.Errorf("find process: %w", err)
			}

			fmt.Print("Stopping daemon...")
			if err := process.Signal(syscall.SIGTERM); err != nil {
				return fmt.Errorf("send signal: %w", err)
			}

			for i := 0; i < 50; i++ {
				time.Sleep(100 * time.Millisecond)
				if !isRunning(addr) {
					fmt.Println(" ✓")
					return nil
				}
				fmt.Print(".")
			}

			fmt.Println(" ✗")
			return fmt.Errorf("daemon did not stop gracefully")
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := daemonAddr(cmd)
			if err != nil {
				return err
			}

			resp, err := healthClient.Get(addr + "/v1/health")
			if err != nil {
				if jsonOutput(cmd) {
					return printJSON(map[string]string{"status": "stopped"})
				}
				fmt.Println("Status: stopped")
				return nil
			}
			defer resp.Body.Close()

			var status struct {
				Status  string `json:"status"`
				Storage string `json:"storage"`
				Queue   bool   `json:"queue"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
				return fmt.Errorf("parse status: %w", err)
			}

			if jsonOutput(cmd) {
				return printJSON(status)
			}
			fmt.Printf("Status:   %s\n", status.Status)
			fmt.Printf("Storage:  %s\n", status.Storage)
			fmt.Printf("Queue:    %t\n", status.Queue)
			fmt.Printf("Address:  %s\n", addr)
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon logs",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := config.SkillrankDir()
			if err != nil {
				return err
			}

			logPath := filepath.Join(dir, "logs", "skillrankd.log")
			if _, err := os.Stat(logPath); os.IsNotExist(err) {
				fmt.Println("No log file found. Start the daemon first.")
				return nil
			}

			file, err := os.Open(logPath)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}
			defer file.Close()

			// Seek to end and go back ~4KB for recent logs
			info, _ := file.Stat()
			offset := info.Size() - 4096
			if offset < 0 {
				offset = 0
			}
			_, _ = file.Seek(offset, 0)

			scanner := bufio.NewScanner(file)
			// Skip partial first line if we seeked
			if offset > 0 {
				scanner.Scan()
			}
			for scanner.Scan() {
				fmt.Println(scanner.Text())
			}
			return scanner.Err()
		},
	}
}

// daemonAddr builds the daemon base URL from the configured bind and port
func daemonAddr(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	bind := cfg.Daemon.Bind
	if bind == "" || bind == "0.0.0.0" {
		bind = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", bind, cfg.Daemon.Port), nil
}

// isRunning checks if the daemon is running by calling the health endpoint
func isRunning(addr string) bool {
	resp, err := healthClient.Get(addr + "/v1/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse PID: %w", err)
	}
	return pid, nil
}

// findDaemonBinary locates the skillrankd binary
func findDaemonBinary() (string, error) {
	if path, err := exec.LookPath("skillrankd"); err == nil {
		return path, nil
	}

	// Check relative to this binary
	if self, err := os.Executable(); err == nil {
		path := filepath.Join(filepath.Dir(self), "skillrankd")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	for _, path := range []string{"/usr/local/bin/skillrankd", "./skillrankd"} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("skillrankd binary not found (build with 'go build ./cmd/skillrankd')")
}
