package scoring

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// WriteReport renders the classic per-query report: one line per query with
// its AP as a percentage to two decimal places, a separator, then the mean.
// Existing result logs are parsed against this exact layout.
func WriteReport(w io.Writer, result AggregateResult) {
	for _, q := range result.Queries {
		fmt.Fprintf(w, "%s: %.2f\n", q.Name, q.AP*100)
	}
	fmt.Fprintln(w, strings.Repeat("-", 20))
	fmt.Fprintf(w, "Mean: %.2f\n", result.MAP*100)
}

// WriteTieredTable renders a per-view summary table with mAP and mP@k
// columns, all values as percentages to two decimal places.
func WriteTieredTable(w io.Writer, tiered TieredResult, ks []int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	header := []string{"View", "mAP"}
	for _, k := range ks {
		header = append(header, fmt.Sprintf("mP@%d", k))
	}
	fmt.Fprintln(tw, strings.Join(header, "\t"))

	sep := make([]string, len(header))
	for i := range sep {
		sep[i] = "---"
	}
	fmt.Fprintln(tw, strings.Join(sep, "\t"))

	writeViewRow(tw, "Easy", tiered.Easy, ks)
	writeViewRow(tw, "Medium", tiered.Medium, ks)
	writeViewRow(tw, "Hard", tiered.Hard, ks)

	tw.Flush()
}

func writeViewRow(tw *tabwriter.Writer, view string, result AggregateResult, ks []int) {
	row := []string{view, fmt.Sprintf("%.2f", result.MAP*100)}
	for _, k := range ks {
		row = append(row, fmt.Sprintf("%.2f", result.MeanPrecisionAt[k]*100))
	}
	fmt.Fprintln(tw, strings.Join(row, "\t"))
}
