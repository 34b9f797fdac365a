package sources

import (
	"context"
	"fmt"
	"os"

	"condorview/internal/etl"
	"condorview/internal/grid"
)

// ── CSV File Source ─────────────────────────────────────────
// Reads a local header-first CSV (or TSV) file as a 2-D table payload.

type csvFileSource struct{}

func init() { etl.RegisterSource(&csvFileSource{}) }

func (s *csvFileSource) Spec() etl.SourceSpec {
	return etl.SourceSpec{
		Type:    "csv_file",
		Label:   "CSV File",
		Schemes: []string{"file", ""},
		Example: "url=file:///var/lib/condorview/usage.csv",
		Help:    "Local .csv or .tsv file; the first row holds the headers",
	}
}

func (s *csvFileSource) Match(loc *etl.Location) bool {
	if !loc.IsFile() {
		return false
	}
	switch loc.Ext() {
	case ".csv", ".tsv":
		return true
	}
	return false
}

func (s *csvFileSource) Fetch(ctx context.Context, loc *etl.Location) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := resolveFilePath(loc)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	delim := ','
	if loc.Ext() == ".tsv" {
		delim = '\t'
	}
	records, err := grid.ReadCSVRecords(f, delim)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("empty csv file")
	}
	return records, nil
}
