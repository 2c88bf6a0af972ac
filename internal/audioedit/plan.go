package audioedit

import (
	"fmt"

	"podsnip/internal/adscan"
	"podsnip/internal/services"
)

// Item is one slice of the output timeline. A tone item replaces a removed
// ad range; a keep item passes source audio through.
type Item struct {
	Tone  bool
	Start float64
	End   float64
}

// Seconds returns the source-time width of the item.
func (i Item) Seconds() float64 {
	return i.End - i.Start
}

// Plan is the ordered output timeline for one edit.
type Plan struct {
	Items          []Item
	RemovedSeconds float64
	ToneInserts    int
}

// BuildPlan converts normalized ad ranges into an output timeline. Ranges
// must be sorted and non-overlapping; NormalizeRanges output satisfies this.
func BuildPlan(duration float64, ranges []adscan.Range) (Plan, error) {
	var plan Plan
	if duration <= 0 {
		return plan, services.Wrap(services.ErrAudioEdit, "audioedit", "plan",
			fmt.Sprintf("invalid episode duration %.2f", duration), nil)
	}

	cursor := 0.0
	for i, r := range ranges {
		if r.Start < cursor || r.End <= r.Start || r.End > duration {
			return plan, services.Wrap(services.ErrAudioEdit, "audioedit", "plan",
				fmt.Sprintf("range %d [%.2f, %.2f] is not normalized against duration %.2f", i, r.Start, r.End, duration), nil)
		}
		if r.Start > cursor {
			plan.Items = append(plan.Items, Item{Start: cursor, End: r.Start})
		}
		plan.Items = append(plan.Items, Item{Tone: true, Start: r.Start, End: r.End})
		plan.RemovedSeconds += r.Seconds()
		plan.ToneInserts++
		cursor = r.End
	}
	if cursor < duration {
		plan.Items = append(plan.Items, Item{Start: cursor, End: duration})
	}

	if plan.keepCount() == 0 {
		return plan, services.Wrap(services.ErrAudioEdit, "audioedit", "plan",
			"ad ranges cover the entire episode", nil)
	}
	return plan, nil
}

func (p Plan) keepCount() int {
	count := 0
	for _, item := range p.Items {
		if !item.Tone {
			count++
		}
	}
	return count
}
