package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"chatlink/internal/config"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your chatlink setup",
		Long: `Verifies that chatlink's configuration, the chat server endpoint and
the audio capture command are usable. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			fmt.Printf("chatlink doctor v%s\n", version)
			fmt.Printf("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			passed := 0
			failed := 0
			warned := 0

			// 1. Config file exists and validates
			cfg := config.Defaults()
			if _, err := os.Stat(cfgPath); err != nil {
				printWarn("Config file", fmt.Sprintf("not found at %s (using defaults)", cfgPath))
				warned++
			} else {
				loaded, err := config.Load(cfgPath)
				if err != nil {
					printFail("Config validation", err.Error())
					failed++
				} else {
					printPass("Config file", cfgPath)
					passed++
					cfg = loaded
				}
			}

			// 2. Server health endpoint
			if err := checkHealth(cfg.Server.Endpoint); err != nil {
				printFail("Server health", err.Error())
				failed++
			} else {
				printPass("Server health", cfg.Server.Endpoint)
				passed++
			}

			// 3. Capture command available
			argv := cfg.Audio.RecordCommand
			if len(argv) == 0 {
				argv = []string{"arecord"}
			}
			if _, err := exec.LookPath(argv[0]); err != nil {
				printWarn("Capture command", fmt.Sprintf("%s not found (voice messages unavailable)", argv[0]))
				warned++
			} else {
				printPass("Capture command", argv[0])
				passed++
			}

			// 4. Artifact slot writable
			if err := checkArtifactSlot(cfg.Audio.ArtifactPath); err != nil {
				printFail("Artifact slot", err.Error())
				failed++
			} else {
				printPass("Artifact slot", cfg.Audio.ArtifactPath)
				passed++
			}

			fmt.Printf("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
			fmt.Printf("Results: %d passed, %d warnings, %d failed\n", passed, warned, failed)
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

// checkHealth probes the server's REST health endpoint.
func checkHealth(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("bad endpoint: %w", err)
	}
	u.Path = "/api/health"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("bad health payload: %w", err)
	}
	if body.Status != "healthy" {
		return fmt.Errorf("reports %q", body.Status)
	}
	return nil
}

// checkArtifactSlot verifies the recording slot's directory is writable.
func checkArtifactSlot(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	return os.Remove(probe)
}

func printPass(check, detail string) {
	fmt.Printf("  [PASS] %-20s %s\n", check, detail)
}

func printFail(check, detail string) {
	fmt.Printf("  [FAIL] %-20s %s\n", check, detail)
}

func printWarn(check, detail string) {
	fmt.Printf("  [WARN] %-20s %s\n", check, detail)
}
