package crawler

import (
	"context"
	"strings"

	"github.com/ecomlytics/bestbuy-review-scraper/internal/fetch"
)

// nextState classifies the "next page" control of a paginated view.
type nextState int

const (
	// nextAbsent: no pagination control at all.
	nextAbsent nextState = iota
	// nextDisabled: control present but in its terminal visual state.
	nextDisabled
	// nextEnabled: control present and clickable.
	nextEnabled
)

func (s nextState) String() string {
	switch s {
	case nextAbsent:
		return "absent"
	case nextDisabled:
		return "disabled"
	default:
		return "enabled"
	}
}

// nextControlState probes a pagination control via the fetch capability.
// Disabled is signalled either by aria-disabled or by a disabled class on
// the control; both the listing and review paginations use this shape.
func nextControlState(ctx context.Context, f fetch.Fetcher, h fetch.DocumentHandle, s fetch.Schema) (nextState, error) {
	rows, err := f.Extract(ctx, h, s)
	if err != nil {
		return nextAbsent, err
	}

	if len(rows) == 0 {
		return nextAbsent, nil
	}

	row := rows[0]
	if row["disabled"] == "true" || strings.Contains(row["class"], "disabled") {
		return nextDisabled, nil
	}

	return nextEnabled, nil
}
