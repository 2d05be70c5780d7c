package diag

import (
	"fmt"
	"sort"
)

// Bag collects diagnostics produced during a build, capped at a fixed
// capacity so a pathological input can't make the builder buffer an
// unbounded amount of output before it even gets to print anything.
type Bag struct {
	items []Diagnostic
	max   int
}

func NewBag(max int) *Bag {
	return &Bag{items: make([]Diagnostic, 0, max), max: max}
}

// Add appends a diagnostic, respecting the bag's capacity. It returns
// false when the cap has already been reached and the diagnostic was
// dropped.
func (b *Bag) Add(d Diagnostic) bool {
	if len(b.items) >= b.max {
		return false
	}
	b.items = append(b.items, d)
	return true
}

func (b *Bag) Errorf(at Location, code Code, format string, args ...any) bool {
	return b.Add(Diagnostic{Severity: SevError, Code: code, Message: fmt.Sprintf(format, args...), At: at})
}

func (b *Bag) Warnf(at Location, code Code, format string, args ...any) bool {
	return b.Add(Diagnostic{Severity: SevWarning, Code: code, Message: fmt.Sprintf(format, args...), At: at})
}

func (b *Bag) Infof(at Location, code Code, format string, args ...any) bool {
	return b.Add(Diagnostic{Severity: SevInfo, Code: code, Message: fmt.Sprintf(format, args...), At: at})
}

// HasErrors reports whether any diagnostic is at or above SevError.
func (b *Bag) HasErrors() bool {
	for _, d := range b.items {
		if d.Severity >= SevError {
			return true
		}
	}
	return false
}

// HasWarnings reports whether any diagnostic is at or above SevWarning.
func (b *Bag) HasWarnings() bool {
	for _, d := range b.items {
		if d.Severity >= SevWarning {
			return true
		}
	}
	return false
}

func (b *Bag) Len() int { return len(b.items) }

// Items returns the bag's diagnostics. The caller must not mutate the
// returned slice; it aliases the bag's backing array.
func (b *Bag) Items() []Diagnostic { return b.items }

// Sort orders diagnostics by function, then severity (descending), then
// code, giving stable, deterministic output across repeated builds of
// the same module.
func (b *Bag) Sort() {
	sort.SliceStable(b.items, func(i, j int) bool {
		di, dj := b.items[i], b.items[j]
		if di.At.Function != dj.At.Function {
			return di.At.Function < dj.At.Function
		}
		if di.Severity != dj.Severity {
			return di.Severity > dj.Severity
		}
		return di.Code < dj.Code
	})
}
