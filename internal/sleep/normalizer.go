// Package sleep turns Oura sleep session records into the flat attribute set
// published alongside the sleep score.
package sleep

import (
	"errors"
	"fmt"
	"math"

	"ouraring/internal/oura"
)

// LongSleepType tags the primary nighttime session; naps use other types.
const LongSleepType = "long_sleep"

// Attribute keys, as published to Home Assistant.
const (
	AttrDate               = "date"
	AttrBedtimeStartHour   = "bedtime_start_hour"
	AttrBedtimeEndHour     = "bedtime_end_hour"
	AttrBreathAverage      = "breath_average"
	AttrTemperatureDelta   = "temperature_delta"
	AttrLowestHeartRate    = "lowest_heart_rate"
	AttrHeartRateAverage   = "heart_rate_average"
	AttrDeepSleepDuration  = "deep_sleep_duration"
	AttrREMSleepDuration   = "rem_sleep_duration"
	AttrLightSleepDuration = "light_sleep_duration"
	AttrTotalSleepDuration = "total_sleep_duration"
	AttrAwakeDuration      = "awake_duration"
	AttrInBedDuration      = "in_bed_duration"
)

// Attributes is the normalized view of one long sleep session.
type Attributes map[string]any

// Clone returns a shallow copy.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// FieldPolicy decides what happens when a session lacks an expected field.
type FieldPolicy int

const (
	// FieldPolicyAbort fails the whole normalization on the first bad field.
	FieldPolicyAbort FieldPolicy = iota
	// FieldPolicyOmit drops the affected attribute and keeps the rest.
	FieldPolicyOmit
)

// ParseFieldPolicy maps the config spelling to a FieldPolicy.
func ParseFieldPolicy(s string) (FieldPolicy, error) {
	switch s {
	case "", "abort":
		return FieldPolicyAbort, nil
	case "omit":
		return FieldPolicyOmit, nil
	default:
		return FieldPolicyAbort, fmt.Errorf("unknown missing field policy %q", s)
	}
}

func (p FieldPolicy) String() string {
	if p == FieldPolicyOmit {
		return "omit"
	}
	return "abort"
}

// Result is a successful normalization.
type Result struct {
	Attributes Attributes
	// Omitted holds one error per dropped attribute under FieldPolicyOmit.
	Omitted []error
}

// Normalizer maps a day's sessions to Attributes.
type Normalizer struct {
	Policy FieldPolicy
}

type fieldSpec struct {
	key     string
	path    string
	convert func(rec oura.Record, path string) (any, error)
}

var fields = []fieldSpec{
	{AttrDate, "day", passThrough},
	{AttrBedtimeStartHour, "bedtime_start", clockTime},
	{AttrBedtimeEndHour, "bedtime_end", clockTime},
	{AttrBreathAverage, "average_breath", passThrough},
	{AttrTemperatureDelta, "readiness.temperature_deviation", passThrough},
	{AttrLowestHeartRate, "lowest_heart_rate", passThrough},
	{AttrHeartRateAverage, "average_heart_rate", passThrough},
	{AttrDeepSleepDuration, "deep_sleep_duration", hours},
	{AttrREMSleepDuration, "rem_sleep_duration", hours},
	{AttrLightSleepDuration, "light_sleep_duration", hours},
	{AttrTotalSleepDuration, "total_sleep_duration", hours},
	{AttrAwakeDuration, "awake_time", hours},
	{AttrInBedDuration, "time_in_bed", hours},
}

// Normalize selects the first long sleep session and converts it.
// It returns nil, nil when sessions holds no long sleep.
func (n Normalizer) Normalize(sessions []oura.Record) (*Result, error) {
	session, ok := selectLongSleep(sessions)
	if !ok {
		return nil, nil
	}

	result := &Result{Attributes: make(Attributes, len(fields))}
	for _, f := range fields {
		value, err := f.convert(session, f.path)
		if err != nil {
			if n.Policy == FieldPolicyOmit {
				result.Omitted = append(result.Omitted, err)
				continue
			}
			return nil, err
		}
		result.Attributes[f.key] = value
	}

	return result, nil
}

// selectLongSleep scans in received order. Records without a string type are
// skipped, matching how non-long sessions are ignored.
func selectLongSleep(sessions []oura.Record) (oura.Record, bool) {
	for _, session := range sessions {
		kind, err := session.String("type")
		if err != nil {
			continue
		}
		if kind == LongSleepType {
			return session, true
		}
	}
	return nil, false
}

func passThrough(rec oura.Record, path string) (any, error) {
	return rec.Lookup(path)
}

// clockTime formats a timestamp as HH:MM in its own offset.
func clockTime(rec oura.Record, path string) (any, error) {
	t, err := rec.Time(path)
	if err != nil {
		return nil, err
	}
	return t.Format("15:04"), nil
}

func hours(rec oura.Record, path string) (any, error) {
	seconds, err := rec.Number(path)
	if err != nil {
		return nil, err
	}
	return SecondsToHours(seconds), nil
}

// SecondsToHours truncates seconds to a whole number, converts to hours and
// rounds half away from zero to two decimals. Rounding applies to the binary
// product hours*100: exact ties such as 54s (1.5) give 0.02, while 3618s
// (100.4999...) gives 1.0.
func SecondsToHours(seconds float64) float64 {
	h := math.Trunc(seconds) / 3600
	return math.Round(h*100) / 100
}

// OmittedPaths lists the field paths recorded in r.Omitted.
func (r *Result) OmittedPaths() []string {
	paths := make([]string, 0, len(r.Omitted))
	for _, err := range r.Omitted {
		var missing *oura.MissingFieldError
		var format *oura.FieldFormatError
		switch {
		case errors.As(err, &missing):
			paths = append(paths, missing.Path)
		case errors.As(err, &format):
			paths = append(paths, format.Path)
		}
	}
	return paths
}
