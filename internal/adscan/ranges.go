package adscan

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Range marks a span of advertisement audio in seconds from episode start.
type Range struct {
	Start  float64 `json:"start"`
	End    float64 `json:"end"`
	Reason string  `json:"reason,omitempty"`
}

// Seconds returns the width of the range.
func (r Range) Seconds() float64 {
	return r.End - r.Start
}

// TotalSeconds sums the width of all ranges.
func TotalSeconds(ranges []Range) float64 {
	var total float64
	for _, r := range ranges {
		total += r.Seconds()
	}
	return total
}

// EncodeRanges serializes ranges for persistence.
func EncodeRanges(ranges []Range) (string, error) {
	if ranges == nil {
		ranges = []Range{}
	}
	encoded, err := json.Marshal(ranges)
	if err != nil {
		return "", fmt.Errorf("encode ad ranges: %w", err)
	}
	return string(encoded), nil
}

// DecodeRanges deserializes persisted ranges. An empty payload yields nil.
func DecodeRanges(payload string) ([]Range, error) {
	if payload == "" {
		return nil, nil
	}
	var ranges []Range
	if err := json.Unmarshal([]byte(payload), &ranges); err != nil {
		return nil, fmt.Errorf("decode ad ranges: %w", err)
	}
	return ranges, nil
}

// NormalizeRanges sorts, clamps, and coalesces detected ranges. Ranges whose
// gap is smaller than mergeGap seconds collapse into one, matching the
// detection prompt's merging rules. duration <= 0 skips the upper clamp.
func NormalizeRanges(ranges []Range, mergeGap, duration float64) []Range {
	if len(ranges) == 0 {
		return nil
	}

	cleaned := make([]Range, 0, len(ranges))
	for _, r := range ranges {
		if r.Start < 0 {
			r.Start = 0
		}
		if duration > 0 && r.End > duration {
			r.End = duration
		}
		if r.End <= r.Start {
			continue
		}
		cleaned = append(cleaned, r)
	}
	if len(cleaned) == 0 {
		return nil
	}

	sort.Slice(cleaned, func(i, j int) bool {
		if cleaned[i].Start == cleaned[j].Start {
			return cleaned[i].End < cleaned[j].End
		}
		return cleaned[i].Start < cleaned[j].Start
	})

	merged := cleaned[:1]
	for _, r := range cleaned[1:] {
		last := &merged[len(merged)-1]
		if r.Start <= last.End+mergeGap {
			if r.End > last.End {
				last.End = r.End
			}
			if last.Reason == "" {
				last.Reason = r.Reason
			}
			continue
		}
		merged = append(merged, r)
	}

	out := make([]Range, len(merged))
	copy(out, merged)
	return out
}
