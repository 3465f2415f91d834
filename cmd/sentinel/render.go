package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"sentinel/internal/view"
)

func structured() bool {
	return viper.GetBool("json") || viper.GetBool("yaml")
}

func printStructured(v any) error {
	if viper.GetBool("yaml") {
		return printYAML(v)
	}
	return printJSON(v)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printYAML goes through JSON first so field names follow the wire contract.
func printYAML(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(generic)
}

var tierColors = map[view.Tier]text.Colors{
	view.TierHigh:   {text.FgRed, text.Bold},
	view.TierMedium: {text.FgYellow},
	view.TierLow:    {text.FgGreen},
}

func tierLabel(t view.Tier) string {
	if c, ok := tierColors[t]; ok {
		return c.Sprint(t.Label())
	}
	return t.Label()
}

func renderSummary(w io.Writer, s view.Summary) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleLight)
	tw.SetTitle("Decision " + s.RunID)
	tw.AppendRow(table.Row{"Action", s.Action})
	tw.AppendRow(table.Row{"Route", s.Route})
	tw.AppendRow(table.Row{"Urgency", tierLabel(s.Urgency)})
	tw.AppendRow(table.Row{"Confidence", s.Confidence})
	tw.AppendRow(table.Row{"Citations", strings.Join(s.Citations, " ")})
	tw.AppendRow(table.Row{"Evaluation", s.Eval})
	tw.Render()

	fmt.Fprintln(w, "\nReasons:")
	if len(s.Reasons) == 0 {
		fmt.Fprintln(w, "  "+view.Placeholder)
	}
	for _, r := range s.Reasons {
		fmt.Fprintln(w, "  - "+r)
	}
	fmt.Fprintln(w, "\nDraft response:")
	fmt.Fprintln(w, "  "+s.DraftResponse)
	if s.Sources != "" {
		fmt.Fprintln(w, "  Sources: "+s.Sources)
	}
	fmt.Fprintln(w, "\nQA issues:")
	if s.NoIssues {
		fmt.Fprintln(w, "  No issues detected.")
	}
	for _, is := range s.Issues {
		fmt.Fprintln(w, "  - "+is)
	}
	if s.SuggestedFix != "" {
		fmt.Fprintln(w, "\nSuggested fix:")
		fmt.Fprintln(w, "  "+s.SuggestedFix)
	}
}

func renderHistory(w io.Writer, rows []view.Row) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"Time", "Age", "Route", "Urgency", "Eval", "Ticket", "Model"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Ticket", WidthMax: 60},
	})
	for _, r := range rows {
		tw.AppendRow(table.Row{r.Time, r.Age, r.Route, tierLabel(r.Urgency), r.Eval, r.Ticket, r.Model})
	}
	if len(rows) == 0 {
		tw.AppendFooter(table.Row{"No runs yet."})
	}
	tw.Render()
}
