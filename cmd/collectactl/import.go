package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"collecta/internal/autosave"
	"collecta/internal/editor"
	"collecta/internal/entry/models"
	id "collecta/pkg/domain"
	"collecta/pkg/requestcontext"
)

var (
	importActor    string
	importUnit     string
	importCategory string
	importSubmit   bool
)

type importDoc struct {
	Values map[string]string `yaml:"values"`
}

var importCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Load field values from a YAML file into a group as its owner",
	Long: `Load field values into one (unit, category) group through an editing
session, exactly as an owner typing them would. The file holds a single
"values" map of field id to raw value.

With --submit the group is submitted afterwards; validation errors are
printed and the draft is kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		actor, err := id.ParseActorID(importActor)
		if err != nil {
			return err
		}
		unit, err := id.ParseUnitID(importUnit)
		if err != nil {
			return err
		}
		category, err := id.ParseCategoryID(importCategory)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		var doc importDoc
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("decode %s: %w", args[0], err)
		}

		ctx := requestcontext.WithActor(cmd.Context(), actor)
		app, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer app.Close()

		key := models.GroupKey{UnitID: unit, CategoryID: category}
		session, err := editor.Open(ctx, app.Workflow, app.Catalog, key, cfg.Autosave,
			autosave.WithLogger(log),
			autosave.WithMetrics(app.AutosaveMetrics),
		)
		if err != nil {
			return err
		}
		defer session.Close()

		fields := make([]string, 0, len(doc.Values))
		for f := range doc.Values {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fieldID, err := id.ParseFieldID(f)
			if err != nil {
				return err
			}
			if err := session.Edit(fieldID, doc.Values[f]); err != nil {
				return err
			}
		}
		if err := session.Save(ctx); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "saved %d values into %s\n", len(fields), key)

		if !importSubmit {
			return nil
		}
		group, result, err := session.Submit(ctx)
		for _, issue := range result.Errors {
			fmt.Fprintf(out, "error   %s: %s\n", issue.FieldID, issue.Message)
		}
		for _, issue := range result.Warnings {
			fmt.Fprintf(out, "warning %s: %s\n", issue.FieldID, issue.Message)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "submitted %s: %s\n", key, group.Status)
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importActor, "actor", "", "owner actor UUID (required)")
	importCmd.Flags().StringVar(&importUnit, "unit", "", "unit UUID (required)")
	importCmd.Flags().StringVar(&importCategory, "category", "", "category id (required)")
	importCmd.Flags().BoolVar(&importSubmit, "submit", false, "submit the group after saving")
	for _, f := range []string{"actor", "unit", "category"} {
		_ = importCmd.MarkFlagRequired(f)
	}
}
