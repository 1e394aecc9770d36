package tui

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vvka-141/txretry/internal/bank"
	"github.com/vvka-141/txretry/internal/txattr"
)

// NewTable returns a table with the CLI's border and header styling.
func NewTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(BorderStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle
			}
			return CellStyle
		})
}

// VariablesTable renders session variables, one per row.
func VariablesTable(vars []txattr.Variable) string {
	t := NewTable("NAME", "DEFAULT", "MUTABLE", "SINCE", "DESCRIPTION")
	for _, v := range vars {
		mutable := SymbolCheck
		if !v.Mutable() {
			mutable = SymbolCross
		}
		name := v.Name
		if v.Deprecated {
			name += " (deprecated)"
		}
		t.Row(name, v.DefaultOrUndefined(), mutable, v.Version(), v.Description)
	}
	return t.Render()
}

// BalancesTable renders per-currency totals.
func BalancesTable(totals []bank.Money) string {
	t := NewTable("CURRENCY", "TOTAL")
	for _, m := range totals {
		t.Row(m.Currency, m.Amount.StringFixed(2))
	}
	return t.Render()
}

// ReportTable renders a workload report.
func ReportTable(r *bank.Report) string {
	t := NewTable("METRIC", "VALUE")
	t.Row("strategy", string(r.Strategy))
	t.Row("tasks", strconv.Itoa(r.Tasks))
	t.Row("succeeded", strconv.Itoa(r.Succeeded))
	t.Row("failed", strconv.Itoa(r.Failed))
	t.Row("committed transfers", strconv.FormatInt(r.Committed, 10))
	t.Row("elapsed", r.Elapsed.Round(time.Millisecond).String())
	t.Row("recovered operations", strconv.FormatInt(r.Retries.Recovered, 10))
	t.Row("exhausted operations", strconv.FormatInt(r.Retries.Exhausted, 10))
	t.Row("serialization failures", strconv.FormatInt(r.Retries.TransientErrors, 10))

	causes := make([]string, 0, len(r.Failures))
	for cause := range r.Failures {
		causes = append(causes, cause)
	}
	sort.Strings(causes)
	for _, cause := range causes {
		t.Row("failed: "+cause, strconv.Itoa(r.Failures[cause]))
	}

	for _, m := range r.TotalBefore {
		t.Row("total before ("+m.Currency+")", m.Amount.StringFixed(2))
	}
	for _, m := range r.TotalAfter {
		t.Row("total after ("+m.Currency+")", m.Amount.StringFixed(2))
	}
	return t.Render()
}

// Conservation renders the one-line verdict on a workload report.
func Conservation(r *bank.Report) string {
	if r.Conserved() {
		return SuccessStyle.Render(fmt.Sprintf("%s Total balance conserved", SymbolCheck))
	}
	return ErrorStyle.Render(fmt.Sprintf("%s Total balance changed", SymbolCross))
}
