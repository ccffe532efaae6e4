package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/firmcrawl/internal/export"
	"github.com/sells-group/firmcrawl/internal/model"
	"github.com/sells-group/firmcrawl/internal/store"
)

var firmsCmd = &cobra.Command{
	Use:   "firms",
	Short: "Inspect and export stored firms",
}

// -- firms list --

var firmsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored firms",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		prefix, _ := cmd.Flags().GetString("name")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		firms, err := st.ListFirms(ctx, store.FirmFilter{NamePrefix: prefix, Limit: limit, Offset: offset})
		if err != nil {
			return eris.Wrap(err, "firms list")
		}
		if len(firms) == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "No firms found.")
			return nil
		}

		formatFirmsList(cmd.OutOrStdout(), firms)
		return nil
	},
}

// -- firms show --

var firmsShowCmd = &cobra.Command{
	Use:   "show <ceref>",
	Short: "Show one stored firm",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if format != "yaml" && format != "json" {
			return eris.Errorf("firms show: unknown format %q (yaml, json)", format)
		}

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		firm, err := st.GetFirm(ctx, args[0])
		if err != nil {
			return eris.Wrapf(err, "firms show %s", args[0])
		}
		return writeFirm(cmd.OutOrStdout(), firm, format)
	},
}

// -- firms export --

var firmsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all stored firms to an xlsx workbook",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		out, _ := cmd.Flags().GetString("out")

		st, err := initStore(ctx, "read")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		firms, err := allFirms(ctx, st)
		if err != nil {
			return err
		}
		if err := export.SaveXLSX(out, firms); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d firms to %s\n", len(firms), out)
		return nil
	},
}

func init() {
	firmsListCmd.Flags().String("name", "", "filter by English name prefix")
	firmsListCmd.Flags().Int("limit", 50, "max number of firms to display")
	firmsListCmd.Flags().Int("offset", 0, "number of firms to skip")

	firmsShowCmd.Flags().String("format", "yaml", "output format (yaml, json)")

	firmsExportCmd.Flags().String("out", "firms.xlsx", "output workbook path")

	firmsCmd.AddCommand(firmsListCmd)
	firmsCmd.AddCommand(firmsShowCmd)
	firmsCmd.AddCommand(firmsExportCmd)
	rootCmd.AddCommand(firmsCmd)
}

const exportPageSize = 500

type firmLister interface {
	ListFirms(ctx context.Context, filter store.FirmFilter) ([]model.Firm, error)
}

// allFirms pages through the store.
func allFirms(ctx context.Context, st firmLister) ([]model.Firm, error) {
	var out []model.Firm
	for offset := 0; ; offset += exportPageSize {
		page, err := st.ListFirms(ctx, store.FirmFilter{Limit: exportPageSize, Offset: offset})
		if err != nil {
			return nil, eris.Wrap(err, "firms export")
		}
		out = append(out, page...)
		if len(page) < exportPageSize {
			return out, nil
		}
	}
}

// formatFirmsList writes a tabular list of firms to out.
func formatFirmsList(out io.Writer, firms []model.Firm) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CEREF\tNAME\tROS\tREPS\tCONDITIONS\tACTIONS\tUPDATED")
	_, _ = fmt.Fprintln(w, "-----\t----\t---\t----\t----------\t-------\t-------")

	for _, f := range firms {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			f.Ceref,
			truncateName(f.Name, 40),
			optInt(f.NumROs),
			optInt(f.NumReps),
			len(f.Conditions),
			len(f.DisciplinaryActions),
			f.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateName shortens s to at most limit runes, ending in "..." when cut.
func truncateName(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-3]) + "..."
}

func optInt(n *int) string {
	if n == nil {
		return "-"
	}
	return fmt.Sprint(*n)
}

// writeFirm prints a firm as YAML or indented JSON using the document's
// field names.
func writeFirm(out io.Writer, firm *model.Firm, format string) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(firm)
	}

	raw, err := json.Marshal(firm)
	if err != nil {
		return eris.Wrap(err, "firms show: encode")
	}
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return eris.Wrap(err, "firms show: decode")
	}
	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return eris.Wrap(err, "firms show: yaml")
	}
	return enc.Close()
}
