package diag

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// PrettyOpts controls Pretty's rendering.
type PrettyOpts struct {
	Color bool // colorize severity labels; false for piped/non-terminal output
}

var (
	errorColor = color.New(color.FgRed, color.Bold)
	warnColor  = color.New(color.FgYellow, color.Bold)
	infoColor  = color.New(color.FgCyan)
)

// Pretty writes bag's diagnostics to w, one per line, in whatever order
// they're already in (call Sort first for deterministic output). Each
// line is "<function>: <severity> <code>: <message>".
func Pretty(w io.Writer, bag *Bag, opts PrettyOpts) {
	for _, d := range bag.Items() {
		fmt.Fprintf(w, "%s: %s %s: %s\n", d.At, severityLabel(d.Severity, opts.Color), d.Code, d.Message)
	}
}

func severityLabel(sev Severity, useColor bool) string {
	label := sev.String()
	if !useColor {
		return label
	}
	switch sev {
	case SevError:
		return errorColor.Sprint(label)
	case SevWarning:
		return warnColor.Sprint(label)
	default:
		return infoColor.Sprint(label)
	}
}

// Summary writes a one-line "N errors, N warnings" footer, skipping
// either count when it's zero and writing "no diagnostics" when both
// are.
func Summary(w io.Writer, bag *Bag) {
	errs, warns := 0, 0
	for _, d := range bag.Items() {
		switch {
		case d.Severity >= SevError:
			errs++
		case d.Severity >= SevWarning:
			warns++
		}
	}
	switch {
	case errs == 0 && warns == 0:
		fmt.Fprintln(w, "no diagnostics")
	case errs > 0 && warns > 0:
		fmt.Fprintf(w, "%d error(s), %d warning(s)\n", errs, warns)
	case errs > 0:
		fmt.Fprintf(w, "%d error(s)\n", errs)
	default:
		fmt.Fprintf(w, "%d warning(s)\n", warns)
	}
}
