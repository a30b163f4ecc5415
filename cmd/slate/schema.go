package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/hylla/slate/internal/app"
	"github.com/hylla/slate/internal/schema"
)

// errLintFailed reports that schema lint found at least one issue.
var errLintFailed = errors.New("schema lint found issues")

func newSchemaCommand(state *cliState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or lint the query schema compiled from entity metadata",
	}
	cmd.PersistentFlags().String("metadata", "", "entity metadata file (defaults to schema.metadata_path)")
	cmd.AddCommand(newSchemaPrintCommand(state), newSchemaLintCommand(state))
	return cmd
}

// metadataPath resolves the --metadata flag against config.
func metadataPath(state *cliState, cmd *cobra.Command) (string, error) {
	if path, _ := cmd.Flags().GetString("metadata"); strings.TrimSpace(path) != "" {
		return path, nil
	}
	cfg, err := state.loadConfig()
	if err != nil {
		return "", err
	}
	return cfg.Schema.MetadataPath, nil
}

func newSchemaPrintCommand(state *cliState) *cobra.Command {
	var (
		render bool
		write  string
	)
	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print the assembled schema document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := metadataPath(state, cmd)
			if err != nil {
				return err
			}
			decls, err := app.LoadDeclarations(path)
			if err != nil {
				return err
			}
			doc := schema.BuildDocument(decls)
			if write != "" {
				sink := app.FileSchemaSink{Path: write}
				if err := sink.PublishSchema(cmd.Context(), app.SchemaUpdated{Document: doc, Hash: doc.Hash()}); err != nil {
					return err
				}
			}
			out := doc.Text()
			if render {
				out, err = renderSchemaMarkdown(doc)
				if err != nil {
					return err
				}
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().BoolVar(&render, "render", false, "render with terminal styling")
	cmd.Flags().StringVar(&write, "write", "", "also write the document to this file")
	return cmd
}

func newSchemaLintCommand(state *cliState) *cobra.Command {
	return &cobra.Command{
		Use:   "lint",
		Short: "Report fields the compiler would omit or pass through unrecognized",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := metadataPath(state, cmd)
			if err != nil {
				return err
			}
			decls, err := app.LoadDeclarations(path)
			if err != nil {
				return err
			}
			total := 0
			for _, decl := range decls {
				for _, issue := range schema.Lint(decl.Entity, decl.Fields) {
					total++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", decl.Entity, issue)
				}
			}
			if total > 0 {
				return fmt.Errorf("%w: %d", errLintFailed, total)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "ok: %d entities\n", len(decls))
			return nil
		},
	}
}

// renderSchemaMarkdown wraps the document in a fenced block and styles it for the terminal.
func renderSchemaMarkdown(doc schema.Document) (string, error) {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", fmt.Errorf("configure markdown renderer: %w", err)
	}
	markdown := fmt.Sprintf("# Schema `%s`\n\n```graphql\n%s```\n", shortHash(doc.Hash()), doc.Text())
	rendered, err := renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("render schema: %w", err)
	}
	return rendered, nil
}

func shortHash(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}
