package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"audience/internal/domain/filter"
	"audience/internal/domain/importer"
	"audience/internal/domain/profile"
)

func newEvaluateCmd() *cobra.Command {
	var (
		profilesPath string
		criteriaPath string
		format       string
		countOnly    bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Run criteria against a CSV or XLSX profile file and print the matches",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			outFormat, err := profile.ParseExportFormat(format)
			if err != nil {
				return err
			}
			c, err := readCriteria(criteriaPath)
			if err != nil {
				return err
			}
			all, err := readProfiles(cmd, profilesPath)
			if err != nil {
				return err
			}

			matched := filter.Select(all, profile.View, c)
			fmt.Fprintf(cmd.ErrOrStderr(), "matched %d of %d profiles\n", len(matched), len(all))
			if countOnly {
				fmt.Fprintln(cmd.OutOrStdout(), len(matched))
				return nil
			}
			return profile.WriteExport(cmd.OutOrStdout(), outFormat, matched)
		},
	}

	f := cmd.Flags()
	f.StringVar(&profilesPath, "profiles", "", "profile file (.csv or .xlsx)")
	f.StringVar(&criteriaPath, "criteria", "", "criteria JSON file")
	f.StringVar(&format, "format", "csv", "output format: csv or xlsx")
	f.BoolVar(&countOnly, "count", false, "print only the number of matches")
	_ = cmd.MarkFlagRequired("profiles")
	_ = cmd.MarkFlagRequired("criteria")
	return cmd
}

func readCriteria(path string) (filter.Criteria, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return filter.Criteria{}, fmt.Errorf("read criteria: %w", err)
	}
	var c filter.Criteria
	if err := json.Unmarshal(raw, &c); err != nil {
		return filter.Criteria{}, fmt.Errorf("decode criteria: %w", err)
	}
	if err := c.Validate(); err != nil {
		return filter.Criteria{}, err
	}
	return c, nil
}

// readProfiles maps every row of the file the way an import would. Rows that
// fail to map are reported on stderr and left out.
func readProfiles(cmd *cobra.Command, path string) ([]*profile.Profile, error) {
	format, err := importer.FormatFromFilename(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open profiles: %w", err)
	}
	defer f.Close()

	table, err := importer.Parse(f, format, 0)
	if err != nil {
		return nil, err
	}

	out := make([]*profile.Profile, 0, len(table.Rows))
	for _, row := range table.Rows {
		in, rowErr := importer.MapRow(table.Columns, row, profile.StatusActive)
		if rowErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped %v\n", rowErr)
			continue
		}
		in.Profile.Normalize()
		out = append(out, in.Profile)
	}
	return out, nil
}
