package pss

import "pssbuild/internal/diag"

// BuildError is returned by Build when the module could not be lowered
// at all: at least one SevError diagnostic was recorded. The bag it
// wraps also carries every SevWarning the builder fell back on along
// the way, even on a run that ultimately fails, so the caller can show
// both in one report.
type BuildError struct {
	Bag *diag.Bag
}

func (e *BuildError) Error() string {
	if e.Bag == nil || e.Bag.Len() == 0 {
		return "pss: build failed"
	}
	items := e.Bag.Items()
	for _, d := range items {
		if d.Severity >= diag.SevError {
			return "pss: " + d.Message
		}
	}
	return "pss: build failed"
}
