package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Ning0612/mirrorsync/internal/domain"
	"github.com/Ning0612/mirrorsync/internal/state"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestParseInterval(t *testing.T) {
	for _, tc := range []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "1", want: time.Second},
		{in: "60", want: time.Minute},
		{in: "0", wantErr: true},
		{in: "-5", wantErr: true},
		{in: "1.5", wantErr: true},
		{in: "10s", wantErr: true},
		{in: "", wantErr: true},
	} {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseInterval(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parseInterval(%q) = %v, want error", tc.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseInterval(%q) returned error: %v", tc.in, err)
			}
			if got != tc.want {
				t.Errorf("parseInterval(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestLoadConfig_PositionalArgs(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })
	cfgFile = ""

	tmpDir := t.TempDir()
	source := filepath.Join(tmpDir, "source")
	replica := filepath.Join(tmpDir, "replica")
	logFile := filepath.Join(tmpDir, "sync.log")

	cfg, err := loadConfig(rootCmd, []string{source, replica, logFile, "5"})
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.Source != source || cfg.Replica != replica || cfg.LogFile != logFile {
		t.Errorf("unexpected roots: %+v", cfg)
	}
	if cfg.Interval != 5*time.Second {
		t.Errorf("Interval = %v, want 5s", cfg.Interval)
	}
	if cfg.Workers != 1 {
		t.Errorf("Workers = %d, want 1", cfg.Workers)
	}
}

func TestLoadConfig_BadInterval(t *testing.T) {
	tmpDir := t.TempDir()
	_, err := loadConfig(rootCmd, []string{
		filepath.Join(tmpDir, "a"), filepath.Join(tmpDir, "b"), filepath.Join(tmpDir, "c.log"), "soon",
	})
	if err == nil {
		t.Fatal("expected error for non-numeric interval, got nil")
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })

	tmpDir := t.TempDir()
	cfgFile = filepath.Join(tmpDir, "nonexistent.yaml")

	_, err := loadConfig(rootCmd, []string{
		filepath.Join(tmpDir, "a"), filepath.Join(tmpDir, "b"), filepath.Join(tmpDir, "c.log"), "5",
	})
	if !errors.Is(err, domain.ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
}

func TestRunMirror_MissingSource(t *testing.T) {
	origCfgFile := cfgFile
	t.Cleanup(func() { cfgFile = origCfgFile })
	cfgFile = ""

	tmpDir := t.TempDir()
	logFile := filepath.Join(tmpDir, "sync.log")

	_, err := execute(t, filepath.Join(tmpDir, "missing"), filepath.Join(tmpDir, "replica"), logFile, "1")
	if !errors.Is(err, domain.ErrAccess) {
		t.Fatalf("expected ErrAccess, got %v", err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "cannot start mirroring") {
		t.Errorf("log file does not record the failure:\n%s", data)
	}
}

func TestRunMirror_WrongArgCount(t *testing.T) {
	if _, err := execute(t, "only-source"); err == nil {
		t.Fatal("expected error for missing arguments, got nil")
	}
}

func TestPrintHistory_Empty(t *testing.T) {
	var out bytes.Buffer
	if err := printHistory(&out, nil); err != nil {
		t.Fatalf("printHistory returned error: %v", err)
	}
	if !strings.Contains(out.String(), "no cycles recorded") {
		t.Errorf("unexpected output: %q", out.String())
	}
}

func TestHistoryCmd(t *testing.T) {
	origLimit, origReplica := historyLimit, historyReplica
	t.Cleanup(func() { historyLimit, historyReplica = origLimit, origReplica })

	dbPath := filepath.Join(t.TempDir(), "history.db")
	mgr, err := state.NewManager(dbPath)
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	start := time.Now().Add(-time.Minute)
	err = mgr.SaveCycle(state.CycleRecord{
		Source:      "/data/src",
		Replica:     "/data/replica",
		StartTime:   start,
		EndTime:     start.Add(2 * time.Second),
		Status:      domain.CycleSuccess,
		Copied:      3,
		BytesCopied: 42,
	})
	if err != nil {
		t.Fatalf("SaveCycle returned error: %v", err)
	}
	mgr.Close()

	out, err := execute(t, "history", "--history-db", dbPath, "--limit", "5")
	if err != nil {
		t.Fatalf("history returned error: %v", err)
	}
	for _, want := range []string{"STATUS", "success", "/data/replica", "42"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestHistoryCmd_MissingDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "absent.db")
	if _, err := execute(t, "history", "--history-db", dbPath); err == nil {
		t.Fatal("expected error for missing database, got nil")
	}
	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Error("history must not create the database")
	}
}

func TestSetupSignalHandler(t *testing.T) {
	ctx, cancel := setupSignalHandler()
	if ctx == nil {
		t.Fatal("setupSignalHandler returned nil context")
	}

	cancel()

	<-ctx.Done()
	if err := ctx.Err(); err == nil {
		t.Fatal("expected context error after cancel, got nil")
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version returned error: %v", err)
	}
	if !strings.Contains(out, "mirrorsync dev") {
		t.Errorf("unexpected output: %q", out)
	}
}
