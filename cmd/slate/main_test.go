package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/config"
)

// TestMain pins dev mode off so CLI tests never write workspace log files.
func TestMain(m *testing.M) {
	_ = os.Setenv("SLATE_DEV_MODE", "false")
	os.Exit(m.Run())
}

// cliEnv points one test at private db and config paths.
type cliEnv struct {
	dbPath  string
	cfgPath string
}

func newCLIEnv(t *testing.T) cliEnv {
	t.Helper()
	tmp := t.TempDir()
	return cliEnv{
		dbPath:  filepath.Join(tmp, "slate.db"),
		cfgPath: filepath.Join(tmp, "missing.toml"),
	}
}

// run executes one CLI invocation against the env and returns stdout.
func (e cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	full := append([]string{"--db", e.dbPath, "--config", e.cfgPath}, args...)
	err := run(context.Background(), full, &out, io.Discard)
	return out.String(), err
}

func (e cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("run(%v) error = %v", args, err)
	}
	return out
}

func (e cliEnv) snapshot(t *testing.T) app.Snapshot {
	t.Helper()
	var snap app.Snapshot
	if err := json.Unmarshal([]byte(e.mustRun(t, "export")), &snap); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	return snap
}

func TestRunVersion(t *testing.T) {
	if err := run(context.Background(), []string{"--version"}, io.Discard, io.Discard); err != nil {
		t.Fatalf("run(version) error = %v", err)
	}
}

func TestRunInvalidFlag(t *testing.T) {
	if err := run(context.Background(), []string{"--unknown-flag"}, io.Discard, io.Discard); err == nil {
		t.Fatal("expected flag parse error")
	}
}

func TestRunUnknownCommand(t *testing.T) {
	err := run(context.Background(), []string{"unknown-command"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

// TestRunBoardCardMoveFlow drives create, add and move through the CLI and checks persisted order.
func TestRunBoardCardMoveFlow(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "board", "create", "Roadmap")
	boardID, _, ok := strings.Cut(strings.TrimSpace(out), "\t")
	if !ok || boardID == "" {
		t.Fatalf("unexpected board create output %q", out)
	}

	snap := env.snapshot(t)
	if len(snap.Lists) != 3 || snap.Lists[0].Name != "To Do" {
		t.Fatalf("expected configured default lists, got %#v", snap.Lists)
	}
	todo := snap.Lists[0].ID
	done := snap.Lists[2].ID

	for _, title := range []string{"A", "B", "C"} {
		env.mustRun(t, "card", "add", todo, title, "--label", "ops")
	}
	snap = env.snapshot(t)
	cardC := snap.Cards[2].ID
	if snap.Cards[2].Title != "C" {
		t.Fatalf("expected tail card C, got %q", snap.Cards[2].Title)
	}

	env.mustRun(t, "card", "move", cardC, "--to", "0")
	snap = env.snapshot(t)
	titles := make([]string, 0, len(snap.Cards))
	for _, card := range snap.Cards {
		titles = append(titles, card.Title)
	}
	if got := strings.Join(titles, ""); got != "CAB" {
		t.Fatalf("card order = %q, want CAB", got)
	}

	if _, err := env.run(t, "card", "move", cardC); err == nil {
		t.Fatal("expected move without --to to fail")
	}

	env.mustRun(t, "card", "move", cardC, "--to", "0", "--list", done)
	snap = env.snapshot(t)
	for _, card := range snap.Cards {
		if card.ID == cardC && card.ListID != done {
			t.Fatalf("expected card moved to done list, got %q", card.ListID)
		}
	}

	env.mustRun(t, "list", "move", done, "--to", "0")
	snap = env.snapshot(t)
	if snap.Lists[0].ID != done {
		t.Fatalf("expected done list first, got %q", snap.Lists[0].Name)
	}

	shown := env.mustRun(t, "board", "show", boardID)
	for _, want := range []string{"Roadmap", "To Do", "Done", "C"} {
		if !strings.Contains(shown, want) {
			t.Fatalf("board show output missing %q:\n%s", want, shown)
		}
	}

	events := env.mustRun(t, "board", "events", boardID, "--limit", "1")
	if !strings.Contains(events, "move") || !strings.Contains(events, "list") {
		t.Fatalf("expected newest event to be the list move, got:\n%s", events)
	}

	listed := env.mustRun(t, "board", "list")
	if !strings.Contains(listed, boardID) {
		t.Fatalf("board list missing %s:\n%s", boardID, listed)
	}
}

// findCard returns the exported card with the given id.
func findCard(t *testing.T, snap app.Snapshot, id string) (app.SnapshotCard, bool) {
	t.Helper()
	for _, card := range snap.Cards {
		if card.ID == id {
			return card, true
		}
	}
	return app.SnapshotCard{}, false
}

// TestRunEditArchiveRestoreFlow drives edit, rm, restore, rename and archive through the CLI.
func TestRunEditArchiveRestoreFlow(t *testing.T) {
	env := newCLIEnv(t)
	out := env.mustRun(t, "board", "create", "Roadmap", "--description", "Q3")
	boardID, _, _ := strings.Cut(strings.TrimSpace(out), "\t")
	snap := env.snapshot(t)
	todo, done := snap.Lists[0].ID, snap.Lists[2].ID

	out = env.mustRun(t, "card", "add", todo, "Ship", "--due", "2026-04-01", "--label", "ops")
	cardID, _, _ := strings.Cut(strings.TrimSpace(out), "\t")

	env.mustRun(t, "card", "edit", cardID, "--priority", "HIGH")
	card, _ := findCard(t, env.snapshot(t), cardID)
	if card.Priority != "high" || card.Title != "Ship" || card.DueAt == nil || len(card.Labels) != 1 {
		t.Fatalf("expected only priority to change, got %#v", card)
	}
	env.mustRun(t, "card", "edit", cardID, "--title", "Ship it", "--clear-due")
	card, _ = findCard(t, env.snapshot(t), cardID)
	if card.Title != "Ship it" || card.DueAt != nil || card.Priority != "high" {
		t.Fatalf("unexpected edited card %#v", card)
	}
	if _, err := env.run(t, "card", "edit", cardID, "--due", "2026-05-01", "--clear-due"); err == nil {
		t.Fatal("expected --due with --clear-due to fail")
	}

	if got := env.mustRun(t, "card", "rm", cardID); !strings.Contains(got, "archived") {
		t.Fatalf("default delete mode should archive, got %q", got)
	}
	card, _ = findCard(t, env.snapshot(t), cardID)
	if card.ArchivedAt == nil {
		t.Fatal("expected archived card in export")
	}
	env.mustRun(t, "card", "restore", cardID)
	card, _ = findCard(t, env.snapshot(t), cardID)
	if card.ArchivedAt != nil {
		t.Fatal("expected restored card")
	}
	if _, err := env.run(t, "card", "rm", cardID, "--mode", "shred"); err == nil {
		t.Fatal("expected unknown delete mode to fail")
	}

	env.mustRun(t, "list", "rename", done, "Shipped")
	env.mustRun(t, "list", "archive", done)
	shown := env.mustRun(t, "board", "show", boardID)
	if strings.Contains(shown, "Shipped") || strings.Contains(shown, "Done") {
		t.Fatalf("archived list should be hidden:\n%s", shown)
	}

	env.mustRun(t, "board", "edit", boardID, "--name", "Roadmap 2")
	snap = env.snapshot(t)
	if snap.Boards[0].Name != "Roadmap 2" || snap.Boards[0].Description != "Q3" {
		t.Fatalf("unexpected edited board %#v", snap.Boards[0])
	}
	if _, err := env.run(t, "board", "edit", boardID); err == nil {
		t.Fatal("expected board edit without flags to fail")
	}
	env.mustRun(t, "board", "archive", boardID)
	if listed := env.mustRun(t, "board", "list"); strings.Contains(listed, boardID) {
		t.Fatalf("archived board listed:\n%s", listed)
	}
	env.mustRun(t, "board", "restore", boardID)
	if listed := env.mustRun(t, "board", "list"); !strings.Contains(listed, boardID) {
		t.Fatalf("restored board missing:\n%s", listed)
	}
}

// TestRunCardRemoveHonorsConfiguredDeleteMode verifies delete.default_mode reaches the binary.
func TestRunCardRemoveHonorsConfiguredDeleteMode(t *testing.T) {
	env := newCLIEnv(t)
	env.cfgPath = filepath.Join(t.TempDir(), "slate.toml")
	if err := os.WriteFile(env.cfgPath, []byte("[delete]\ndefault_mode = \"hard\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	env.mustRun(t, "board", "create", "Roadmap")
	todo := env.snapshot(t).Lists[0].ID
	out := env.mustRun(t, "card", "add", todo, "Gone")
	cardID, _, _ := strings.Cut(strings.TrimSpace(out), "\t")

	if got := env.mustRun(t, "card", "rm", cardID); !strings.Contains(got, "deleted") {
		t.Fatalf("configured hard mode should delete, got %q", got)
	}
	if _, ok := findCard(t, env.snapshot(t), cardID); ok {
		t.Fatal("expected card removed from export")
	}
}

func TestRunExportImportRoundTrip(t *testing.T) {
	src := newCLIEnv(t)
	src.mustRun(t, "board", "create", "Imported")
	outPath := filepath.Join(t.TempDir(), "nested", "snapshot.json")
	src.mustRun(t, "export", "--out", outPath)

	dst := newCLIEnv(t)
	dst.mustRun(t, "import", "--in", outPath)
	snap := dst.snapshot(t)
	if len(snap.Boards) != 1 || snap.Boards[0].Name != "Imported" {
		t.Fatalf("unexpected imported boards %#v", snap.Boards)
	}
	if len(snap.Lists) != 3 {
		t.Fatalf("expected imported lists, got %d", len(snap.Lists))
	}

	if _, err := dst.run(t, "import"); err == nil {
		t.Fatal("expected import error for missing --in")
	}
	badIn := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(badIn, []byte("{"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := dst.run(t, "import", "--in", badIn); err == nil {
		t.Fatal("expected import decode error")
	}
}

func TestRunSchemaPrintAndLint(t *testing.T) {
	env := newCLIEnv(t)
	metadata := filepath.Join(t.TempDir(), "entities.yaml")
	content := "Card:\n  estimate: {type: number, required: true}\n  tags: {type: array}\n"
	if err := os.WriteFile(metadata, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	written := filepath.Join(t.TempDir(), "schema.graphql")
	out := env.mustRun(t, "schema", "print", "--metadata", metadata, "--write", written)
	if !strings.Contains(out, "estimate: Int!") {
		t.Fatalf("expected overlay field in schema:\n%s", out)
	}
	if strings.Contains(out, "tags:") {
		t.Fatalf("array without items should be omitted:\n%s", out)
	}
	onDisk, err := os.ReadFile(written)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(onDisk) != out {
		t.Fatal("written schema differs from printed schema")
	}

	lint, err := env.run(t, "schema", "lint", "--metadata", metadata)
	if err == nil {
		t.Fatal("expected lint failure for array without items")
	}
	if !strings.Contains(lint, "tags") {
		t.Fatalf("expected lint issue for tags, got %q", lint)
	}
}

func TestRunConfigAndDBEnvOverrides(t *testing.T) {
	tmp := t.TempDir()
	dbPath := filepath.Join(tmp, "env.db")
	cfgPath := filepath.Join(tmp, "env.toml")
	cfgContent := "[database]\npath = \"/tmp/ignore-me.db\"\n"
	if err := os.WriteFile(cfgPath, []byte(cfgContent), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	t.Setenv("SLATE_CONFIG", cfgPath)
	t.Setenv("SLATE_DB_PATH", dbPath)

	err := run(context.Background(), []string{"export", "--out", filepath.Join(tmp, "out.json")}, io.Discard, io.Discard)
	if err != nil {
		t.Fatalf("run(export with env paths) error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("expected db created at env path, stat error %v", err)
	}
}

func TestRunRejectsInvalidLoggingLevelFromConfig(t *testing.T) {
	tmp := t.TempDir()
	cfgPath := filepath.Join(tmp, "slate.toml")
	if err := os.WriteFile(cfgPath, []byte("[logging]\nlevel = \"verbose\"\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	err := run(context.Background(), []string{"--db", filepath.Join(tmp, "slate.db"), "--config", cfgPath, "board", "list"}, io.Discard, io.Discard)
	if err == nil || !strings.Contains(err.Error(), "invalid logging.level") {
		t.Fatalf("expected logging level validation error, got %v", err)
	}
}

func TestRunPathsCommand(t *testing.T) {
	var out strings.Builder
	if err := run(context.Background(), []string{"--app", "slatex", "--dev", "paths"}, &out, io.Discard); err != nil {
		t.Fatalf("run(paths) error = %v", err)
	}
	output := out.String()
	for _, want := range []string{"app: slatex", "dev_mode: true", "metadata:", "entities.yaml", "schema.graphql"} {
		if !strings.Contains(output, want) {
			t.Fatalf("expected %q in paths output, got %q", want, output)
		}
	}
}

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("SLATE_BOOL_TEST", "true")
	got, ok := parseBoolEnv("SLATE_BOOL_TEST")
	if !ok || !got {
		t.Fatalf("expected true bool env parse, got value=%t ok=%t", got, ok)
	}

	t.Setenv("SLATE_BOOL_TEST", "not-bool")
	if _, ok := parseBoolEnv("SLATE_BOOL_TEST"); ok {
		t.Fatal("expected invalid bool env to return ok=false")
	}
}

func TestParseDue(t *testing.T) {
	got, err := parseDue("2024-05-01")
	if err != nil || got == nil || got.Day() != 1 {
		t.Fatalf("parseDue(date) = %v, %v", got, err)
	}
	if got, err := parseDue(" "); err != nil || got != nil {
		t.Fatalf("parseDue(blank) = %v, %v", got, err)
	}
	if _, err := parseDue("next week"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestRuntimeLoggerCanMuteConsoleSink(t *testing.T) {
	var console bytes.Buffer
	cfg := config.Default("/tmp/slate.db").Logging

	logger, err := newRuntimeLogger(&console, "slate", false, cfg, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}

	logger.Info("before")
	logger.SetConsoleEnabled(false)
	logger.Info("during")
	logger.Component("server").Info("component during")
	logger.SetConsoleEnabled(true)
	logger.Info("after")
	logger.Component("server").Info("component after")

	out := console.String()
	if !strings.Contains(out, "before") || !strings.Contains(out, "after") {
		t.Fatalf("expected console output around mute, got %q", out)
	}
	if strings.Contains(out, "during") {
		t.Fatalf("expected muted console log to omit 'during', got %q", out)
	}
	if !strings.Contains(out, "slate/server") {
		t.Fatalf("expected component prefix, got %q", out)
	}
}

func TestRuntimeLoggerWritesRotatingDevFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default("/tmp/slate.db").Logging
	cfg.DevFile.Dir = dir

	logger, err := newRuntimeLogger(io.Discard, "slate dev", true, cfg, func() time.Time {
		return time.Date(2026, 2, 23, 12, 0, 0, 0, time.UTC)
	})
	if err != nil {
		t.Fatalf("newRuntimeLogger() error = %v", err)
	}
	want := filepath.Join(dir, "slate-dev-20260223.log")
	if logger.DevLogPath() != want {
		t.Fatalf("DevLogPath() = %q, want %q", logger.DevLogPath(), want)
	}
	logger.Info("persisted", "key", "value")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	content, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(content), "persisted") || !strings.Contains(string(content), "key=value") {
		t.Fatalf("unexpected dev log content %q", content)
	}
}

func TestWorkspaceRootFromUsesNearestMarker(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/test\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	nested := filepath.Join(root, "cmd", "slate")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if got := workspaceRootFrom(nested); filepath.Clean(got) != filepath.Clean(root) {
		t.Fatalf("expected workspace root %q, got %q", root, got)
	}
}

func TestSanitizeLogFileStem(t *testing.T) {
	cases := map[string]string{
		"":           "slate",
		"  ":         "slate",
		"a/b":        "a-b",
		"my app":     "my-app",
		"/:/":        "slate",
	}
	for in, want := range cases {
		if got := sanitizeLogFileStem(in); got != want {
			t.Fatalf("sanitizeLogFileStem(%q) = %q, want %q", in, got, want)
		}
	}
}
