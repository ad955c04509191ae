// Package summary aggregates local records into monthly and per-category
// totals for display.
package summary

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steveyegge/fintrack/internal/model"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/unicode/norm"
)

// Month is the activity of one calendar month.
type Month struct {
	Year    int
	Month   time.Month
	Income  decimal.Decimal
	Expense decimal.Decimal
	Count   int

	// Goal is the savings target for the month, nil when none is set.
	Goal *decimal.Decimal
}

// Period returns "YYYY-MM".
func (m Month) Period() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// Net returns income minus expense.
func (m Month) Net() decimal.Decimal {
	return m.Income.Sub(m.Expense)
}

// Progress returns net savings as a percentage of the goal.
// ok is false when the month has no goal.
func (m Month) Progress() (pct decimal.Decimal, ok bool) {
	if m.Goal == nil || !m.Goal.IsPositive() {
		return decimal.Zero, false
	}
	return m.Net().Div(*m.Goal).Mul(decimal.NewFromInt(100)), true
}

type periodKey struct {
	year  int
	month time.Month
}

// Monthly groups transactions by month and attaches each month's goal.
// Months with only a goal are included. The result is newest first.
//
// When a month has several local goals (a duplicate that the server
// rejected), the synced one wins, then the most recently created.
func Monthly(txs []*model.Transaction, goals []*model.Goal) []Month {
	months := make(map[periodKey]*Month)
	get := func(k periodKey) *Month {
		m, ok := months[k]
		if !ok {
			m = &Month{Year: k.year, Month: k.month}
			months[k] = m
		}
		return m
	}

	for _, tx := range txs {
		m := get(periodKey{tx.OccurredAt.Year(), tx.OccurredAt.Month()})
		m.Count++
		if tx.Kind == model.KindIncome {
			m.Income = m.Income.Add(tx.Amount)
		} else {
			m.Expense = m.Expense.Add(tx.Amount)
		}
	}

	chosen := make(map[periodKey]*model.Goal)
	for _, g := range goals {
		k := periodKey{g.TargetYear, time.Month(g.TargetMonth)}
		if cur, ok := chosen[k]; ok && !preferGoal(g, cur) {
			continue
		}
		chosen[k] = g
	}
	for k, g := range chosen {
		target := g.TargetAmount
		get(k).Goal = &target
	}

	out := make([]Month, 0, len(months))
	for _, m := range months {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out
}

func preferGoal(candidate, current *model.Goal) bool {
	if candidate.Synced != current.Synced {
		return candidate.Synced
	}
	return candidate.LocalID > current.LocalID
}

// CategoryTotal is the sum of one category.
type CategoryTotal struct {
	Category string
	Total    decimal.Decimal
	Count    int
}

// ByCategory sums transactions of the given kind per category, largest
// first. Categories that differ only in case or Unicode form are merged and
// shown in title case.
func ByCategory(txs []*model.Transaction, kind model.Kind) []CategoryTotal {
	fold := cases.Fold()
	title := cases.Title(language.English)

	totals := make(map[string]*CategoryTotal)
	for _, tx := range txs {
		if tx.Kind != kind {
			continue
		}
		name := strings.TrimSpace(norm.NFC.String(tx.Category))
		key := fold.String(name)

		ct, ok := totals[key]
		if !ok {
			ct = &CategoryTotal{Category: title.String(name)}
			totals[key] = ct
		}
		ct.Total = ct.Total.Add(tx.Amount)
		ct.Count++
	}

	out := make([]CategoryTotal, 0, len(totals))
	for _, ct := range totals {
		out = append(out, *ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Category < out[j].Category
	})
	return out
}

// Balance returns total income minus total expense.
func Balance(txs []*model.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, tx := range txs {
		sum = sum.Add(tx.SignedAmount())
	}
	return sum
}

var printer = message.NewPrinter(language.English)

// FormatAmount renders d with two decimals and thousands separators.
func FormatAmount(d decimal.Decimal) string {
	return printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

const rowFormat = "%-8s %12s %12s %12s %12s %9s\n"

// Render writes months as an aligned table.
func Render(w io.Writer, months []Month) error {
	if _, err := fmt.Fprintf(w, rowFormat, "MONTH", "INCOME", "EXPENSE", "NET", "GOAL", "PROGRESS"); err != nil {
		return err
	}

	for _, m := range months {
		goal, progress := "-", "-"
		if m.Goal != nil {
			goal = FormatAmount(*m.Goal)
		}
		if pct, ok := m.Progress(); ok {
			progress = pct.Round(0).String() + "%"
		}

		_, err := fmt.Fprintf(w, rowFormat,
			m.Period(),
			FormatAmount(m.Income),
			FormatAmount(m.Expense),
			FormatAmount(m.Net()),
			goal,
			progress,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RenderCategories writes category totals as an aligned list.
func RenderCategories(w io.Writer, totals []CategoryTotal) error {
	for _, ct := range totals {
		if _, err := fmt.Fprintf(w, "%-20s %12s %5d\n", ct.Category, FormatAmount(ct.Total), ct.Count); err != nil {
			return err
		}
	}
	return nil
}
