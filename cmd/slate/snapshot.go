package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/hylla/slate/internal/app"
)

func newExportCommand(state *cliState) *cobra.Command {
	var (
		outPath         string
		includeArchived bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export boards, lists and cards as a JSON snapshot",
		Args:  cobra.NoArgs,
		RunE: serviceCommand(state, "export", func(cmd *cobra.Command, _ []string, svc *app.Service) error {
			snap, err := svc.ExportSnapshot(cmd.Context(), includeArchived)
			if err != nil {
				return fmt.Errorf("export snapshot: %w", err)
			}
			encoded, err := json.MarshalIndent(snap, "", "  ")
			if err != nil {
				return fmt.Errorf("encode snapshot json: %w", err)
			}
			encoded = append(encoded, '\n')

			if outPath == "-" {
				if _, err := cmd.OutOrStdout().Write(encoded); err != nil {
					return fmt.Errorf("write snapshot to stdout: %w", err)
				}
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
				return fmt.Errorf("create export output dir: %w", err)
			}
			if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
				return fmt.Errorf("write export file: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	cmd.Flags().BoolVar(&includeArchived, "include-archived", true, "include archived boards, lists and cards")
	return cmd
}

func newImportCommand(state *cliState) *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import a JSON snapshot produced by export",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			if inPath == "" {
				return errors.New("--in is required")
			}
			return nil
		},
		RunE: serviceCommand(state, "import", func(cmd *cobra.Command, _ []string, svc *app.Service) error {
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var snap app.Snapshot
			if err := json.Unmarshal(content, &snap); err != nil {
				return fmt.Errorf("decode snapshot json: %w", err)
			}
			if err := svc.ImportSnapshot(cmd.Context(), snap); err != nil {
				return fmt.Errorf("import snapshot: %w", err)
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

func newPathsCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", state.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", state.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", state.configPath)
			_, _ = fmt.Fprintf(out, "metadata: %s\n", state.paths.MetadataPath)
			_, _ = fmt.Fprintf(out, "schema: %s\n", state.paths.SchemaPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", state.paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", state.dbPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", state.paths.LogDir)
			return nil
		},
	}
}
