package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/steveyegge/fintrack/internal/model"
)

var dateParser = newDateParser()

func newDateParser() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}

// parseDate accepts YYYY-MM-DD or a natural expression such as "yesterday"
// or "last friday", relative to now. Empty input means today.
func parseDate(s string, now time.Time) (model.Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.DateOf(now), nil
	}
	if d, err := model.ParseDate(s); err == nil {
		return d, nil
	}

	r, err := dateParser.Parse(s, now)
	if err != nil {
		return model.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	if r == nil {
		return model.Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD or e.g. \"yesterday\")", s)
	}
	return model.DateOf(r.Time), nil
}

// parseMonth accepts YYYY-MM, or a date expression whose month is used.
func parseMonth(s string, now time.Time) (year int, month time.Month, err error) {
	if t, perr := time.Parse("2006-01", strings.TrimSpace(s)); perr == nil {
		return t.Year(), t.Month(), nil
	}
	d, err := parseDate(s, now)
	if err != nil {
		return 0, 0, err
	}
	return d.Year(), d.Month(), nil
}
