package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/jask/jaskledger/internal/ledger"
)

// Catppuccin Mocha
const (
	colorRed      lipgloss.Color = "#f38ba8"
	colorPeach    lipgloss.Color = "#fab387"
	colorYellow   lipgloss.Color = "#f9e2af"
	colorGreen    lipgloss.Color = "#a6e3a1"
	colorTeal     lipgloss.Color = "#94e2d5"
	colorLavender lipgloss.Color = "#b4befe"
	colorOverlay1 lipgloss.Color = "#7f849c"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorLavender)
	headerStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorOverlay1)
	positiveStyle = lipgloss.NewStyle().Foreground(colorGreen)
	negativeStyle = lipgloss.NewStyle().Foreground(colorRed)
	errorStyle    = lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	matchTypeStyles = map[ledger.MatchType]lipgloss.Style{
		ledger.Exact:    lipgloss.NewStyle().Foreground(colorGreen).Bold(true),
		ledger.Probable: lipgloss.NewStyle().Foreground(colorTeal),
		ledger.Possible: lipgloss.NewStyle().Foreground(colorYellow),
	}
	matchStatusStyles = map[ledger.MatchStatus]lipgloss.Style{
		ledger.Pending:   lipgloss.NewStyle().Foreground(colorPeach),
		ledger.Confirmed: lipgloss.NewStyle().Foreground(colorGreen),
		ledger.Rejected:  lipgloss.NewStyle().Foreground(colorOverlay1),
	}
)

// formatMoney renders amount in currency with go-money's symbol and
// separators. Amounts finer than the currency's minor unit, or in a code
// go-money does not know, fall back to the plain decimal and the code.
func formatMoney(amount decimal.Decimal, currency string) string {
	cur := money.GetCurrency(currency)
	if cur == nil {
		return amount.String() + " " + currency
	}
	minor := amount.Shift(int32(cur.Fraction))
	if !minor.Equal(minor.Truncate(0)) {
		return amount.String() + " " + currency
	}
	return money.New(minor.IntPart(), cur.Code).Display()
}

// signedMoney is formatMoney colored by sign.
func signedMoney(amount decimal.Decimal, currency string) string {
	s := formatMoney(amount, currency)
	switch {
	case amount.IsNegative():
		return negativeStyle.Render(s)
	case amount.IsPositive():
		return positiveStyle.Render(s)
	}
	return s
}

func styleMatchType(t ledger.MatchType) string {
	if st, ok := matchTypeStyles[t]; ok {
		return st.Render(string(t))
	}
	return string(t)
}

func styleMatchStatus(s ledger.MatchStatus) string {
	if st, ok := matchStatusStyles[s]; ok {
		return st.Render(string(s))
	}
	return string(s)
}

// shortID is the prefix the CLI prints and accepts for ids.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// table aligns rendered cells on display width, so styled cells line up.
type table struct {
	header []string
	rows   [][]string
	right  map[int]bool
}

func newTable(header ...string) *table {
	return &table{header: header, right: map[int]bool{}}
}

func (t *table) alignRight(cols ...int) *table {
	for _, c := range cols {
		t.right[c] = true
	}
	return t
}

func (t *table) add(cells ...string) { t.rows = append(t.rows, cells) }

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.header))
	for i, h := range t.header {
		widths[i] = lipgloss.Width(h)
	}
	for _, r := range t.rows {
		for i, c := range r {
			if i < len(widths) {
				widths[i] = max(widths[i], lipgloss.Width(c))
			}
		}
	}
	line := func(cells []string, style *lipgloss.Style) {
		parts := make([]string, len(widths))
		for i := range widths {
			c := ""
			if i < len(cells) {
				c = cells[i]
			}
			if style != nil {
				c = style.Render(c)
			}
			if t.right[i] {
				parts[i] = padLeft(c, widths[i])
			} else {
				parts[i] = padRight(c, widths[i])
			}
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}
	line(t.header, &headerStyle)
	for _, r := range t.rows {
		line(r, nil)
	}
}

func padRight(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}

func padLeft(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	return strings.Repeat(" ", width-w) + s
}

func printTitle(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf(format, args...)))
}
