package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/flight-search/internal/indexer/schema"
	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
)

const noResults = "No such record found"

// printRecords writes the console listing: a count line, then one numbered
// line per record with its fields in schema order.
func printRecords(w io.Writer, s *schema.Schema, records []schema.Record) {
	if len(records) == 0 {
		fmt.Fprintln(w, noResults)
		return
	}
	fmt.Fprintf(w, "%d Record(s) Found\n", len(records))
	for i, r := range records {
		fmt.Fprintf(w, "Record (%d): %s\n", i+1, formatRecord(s, r))
	}
}

func formatRecord(s *schema.Schema, r schema.Record) string {
	parts := make([]string, 0, len(s.Fields()))
	for _, f := range s.Fields() {
		v := r.Get(s, f.Name)
		if v == "" {
			continue
		}
		parts = append(parts, f.Name+"="+strconv.Quote(v))
	}
	return strings.Join(parts, " ")
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printBatchFailures lists the records a batch rejected.
func printBatchFailures(w io.Writer, err *apperrors.BatchError) {
	for _, f := range err.Failures {
		fmt.Fprintln(w, "  skipped", f.Error())
	}
}
