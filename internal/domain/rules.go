package domain

import (
	"strconv"
	"time"
)

// Reason names the validation rule that flagged a record.
type Reason string

const (
	ReasonNullFields      Reason = "null_fields"
	ReasonBadTimestamps   Reason = "bad_timestamps"
	ReasonDuplicateFields Reason = "duplicate_fields"
	ReasonBadDatatypes    Reason = "bad_datatypes"
)

// RuleOrder is the canonical evaluation order. Outputs are unioned, so the
// order never changes which rows come out invalid — only which reason tags
// a row that several rules flagged.
var RuleOrder = []Reason{
	ReasonNullFields,
	ReasonBadTimestamps,
	ReasonDuplicateFields,
	ReasonBadDatatypes,
}

// epochFloor is the oldest timestamp accepted as plausible weather data.
var epochFloor = time.Date(1900, time.January, 1, 0, 0, 0, 0, time.UTC)

// timestampLayouts covers the formats the upstream API emits. The API
// normally sends "2006-01-02 15:04"; the others show up in backfills.
var timestampLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

func parseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// timestampOK is the shared floor predicate: present, parses, and after
// the epoch floor. Both the bad_timestamps rule and the positive valid-row
// check use it, so the two can never disagree about a row.
func timestampOK(s *string) bool {
	if s == nil {
		return false
	}
	t, ok := parseTimestamp(*s)
	return ok && t.After(epochFloor)
}

func parsesFloat(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func parsesInt(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// InvalidObservation pairs a record with every reason that flagged it.
type InvalidObservation struct {
	Observation Observation
	Reasons     []Reason
}

// Reason returns the tag stored in quarantine: the first matching rule in
// canonical order.
func (iv InvalidObservation) Reason() Reason {
	return iv.Reasons[0]
}

// Partition is the classifier output. Every input row appears in exactly
// one of Valid or Invalid; a row flagged by several rules appears once in
// Invalid with its full reason set.
type Partition struct {
	Valid   []Observation
	Invalid []InvalidObservation
	Total   int
}

// Passed reports whether the batch cleared the quality gate.
func (p Partition) Passed() bool {
	return len(p.Invalid) == 0
}

// ReasonCounts tallies how many rows each rule flagged, counting every
// matching reason rather than just the stored quarantine tag.
func (p Partition) ReasonCounts() map[Reason]int {
	if len(p.Invalid) == 0 {
		return nil
	}
	counts := make(map[Reason]int)
	for _, iv := range p.Invalid {
		for _, r := range iv.Reasons {
			counts[r]++
		}
	}
	return counts
}

// Classify evaluates every rule against the full row set and unions the
// results into a Partition. Rules are independent; none short-circuits
// another. The valid side is additionally re-checked against the shared
// timestamp floor predicate — with the unified bad_timestamps rule that
// check cannot disagree with the rule outputs, it stands as a guard on the
// partition invariant.
func Classify(rows []Observation) Partition {
	duplicated := duplicateRows(rows)

	p := Partition{Total: len(rows)}
	for i, row := range rows {
		var reasons []Reason
		if hasNullFields(row) {
			reasons = append(reasons, ReasonNullFields)
		}
		if hasBadTimestamps(row) {
			reasons = append(reasons, ReasonBadTimestamps)
		}
		if duplicated[i] {
			reasons = append(reasons, ReasonDuplicateFields)
		}
		if hasBadDatatypes(row) {
			reasons = append(reasons, ReasonBadDatatypes)
		}

		if len(reasons) > 0 {
			p.Invalid = append(p.Invalid, InvalidObservation{Observation: row, Reasons: reasons})
			continue
		}
		if !timestampOK(row.LocalTime) || !timestampOK(row.LastUpdated) {
			p.Invalid = append(p.Invalid, InvalidObservation{Observation: row, Reasons: []Reason{ReasonBadTimestamps}})
			continue
		}
		p.Valid = append(p.Valid, row)
	}
	return p
}

// hasNullFields reports whether any required field is absent.
func hasNullFields(o Observation) bool {
	for _, f := range o.Fields() {
		if f == nil {
			return true
		}
	}
	return false
}

// hasBadTimestamps applies the shared floor predicate to both timestamps.
// Absent, unparseable, and pre-1900 values all count.
func hasBadTimestamps(o Observation) bool {
	return !timestampOK(o.LocalTime) || !timestampOK(o.LastUpdated)
}

// hasBadDatatypes flags values that are present but fail to parse as their
// expected type. Absent values are left to the null_fields rule.
func hasBadDatatypes(o Observation) bool {
	floats := []*string{
		o.TemperatureC, o.WindKPH, o.PressureMB, o.PrecipMM,
		o.FeelslikeC, o.WindchillC, o.DewpointC, o.GustKPH,
	}
	for _, f := range floats {
		if f != nil && !parsesFloat(*f) {
			return true
		}
	}
	if o.Humidity != nil && !parsesInt(*o.Humidity) {
		return true
	}
	if o.LocalTime != nil {
		if _, ok := parseTimestamp(*o.LocalTime); !ok {
			return true
		}
	}
	if o.LastUpdated != nil {
		if _, ok := parseTimestamp(*o.LastUpdated); !ok {
			return true
		}
	}
	return false
}

// duplicateRows marks every row whose required fields match at least one
// other row in the batch.
func duplicateRows(rows []Observation) []bool {
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Key()]++
	}
	dup := make([]bool, len(rows))
	for i, r := range rows {
		dup[i] = counts[r.Key()] > 1
	}
	return dup
}
