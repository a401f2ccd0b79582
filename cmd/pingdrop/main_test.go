package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/postalsys/pingdrop/internal/echoguard"
	"github.com/postalsys/pingdrop/internal/transfer"
)

func TestLoadConfig_FlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pingdrop.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: warn\n  format: json\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	g := &globalFlags{}
	cmd := serveCmd(g)
	bindGlobalFlags(cmd, g)
	if err := cmd.ParseFlags([]string{"--config", path, "--log-level", "debug"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfig(cmd, g)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %s, want flag value debug", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %s, want file value json", cfg.Log.Format)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	g := &globalFlags{configPath: filepath.Join(t.TempDir(), "nope.yaml")}
	if _, err := loadConfig(configCmd(g), g); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestReceiverStats(t *testing.T) {
	cfg := transfer.DefaultServerConfig()
	cfg.OutputDir = t.TempDir()
	cfg.Suppressor = echoguard.Nop{}
	srv, err := transfer.NewServer(cfg, nopTransport{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	stats := receiverStats{srv}
	if stats.IsRunning() {
		t.Error("receiver reported running before Serve")
	}
	if st := stats.Stats(); st.Completed != 0 || st.Filename != "" {
		t.Errorf("Stats() = %+v", st)
	}
}

func TestProgressLine_NotTerminal(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	p := newProgressLine(f)
	p.Update(transfer.Progress{Seq: 1, TotalChunks: 1, BytesSent: 10, Size: 10})
	p.Done()

	info, _ := f.Stat()
	if info.Size() != 0 {
		t.Errorf("wrote %d bytes to a non-terminal", info.Size())
	}

	var nilLine *progressLine
	nilLine.Update(transfer.Progress{})
	nilLine.Done()
}
