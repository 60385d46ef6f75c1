// Package model contains domain models passed between layers.
package model

import (
	"sort"
	"strings"
	"time"
)

// MetricType identifies a category of health observation.
// Known types are listed below; anything else from an export lives under the
// raw: namespace.
type MetricType string

// Known metric types.
const (
	StepCount              MetricType = "step_count"
	HeartRate              MetricType = "heart_rate"
	RestingHeartRate       MetricType = "resting_heart_rate"
	HeartRateVariability   MetricType = "heart_rate_variability"
	SleepDuration          MetricType = "sleep_duration"
	BodyMass               MetricType = "body_mass"
	ActiveEnergy           MetricType = "active_energy"
	DistanceWalkingRunning MetricType = "distance_walking_running"
	RespiratoryRate        MetricType = "respiratory_rate"
	OxygenSaturation       MetricType = "oxygen_saturation"
	ExerciseTime           MetricType = "exercise_time"
	BodyTemperature        MetricType = "body_temperature"
)

// RawPrefix namespaces export types the registry does not know.
const RawPrefix = "raw:"

// RawMetricType wraps an unrecognized export type name.
func RawMetricType(name string) MetricType {
	return MetricType(RawPrefix + name)
}

// IsRaw reports whether t is a pass-through type.
func (t MetricType) IsRaw() bool {
	return strings.HasPrefix(string(t), RawPrefix)
}

// Known reports whether t is in the registry.
func (t MetricType) Known() bool {
	_, ok := registry[t]
	return ok
}

func (t MetricType) String() string { return string(t) }

// Aggregation is the rule used to collapse samples into one bucket value.
type Aggregation int

const (
	// AggregateMean averages instantaneous readings (heart rate, weight).
	AggregateMean Aggregation = iota
	// AggregateSum adds cumulative quantities (steps, energy, sleep).
	AggregateSum
)

func (a Aggregation) String() string {
	if a == AggregateSum {
		return "sum"
	}
	return "mean"
}

// Default granularities.
const (
	Hourly = time.Hour
	Daily  = 24 * time.Hour
)

// MetricInfo describes one registered metric type.
type MetricInfo struct {
	Type        MetricType
	Label       string
	Unit        Unit
	Aggregation Aggregation
	// Granularity is the natural sampling interval used when picking a
	// correlation bucket.
	Granularity time.Duration
	// DurationValued metrics take their value from the record's time span
	// rather than its value attribute.
	DurationValued bool
	// HealthKit lists the export identifiers that map to this type.
	HealthKit []string
}

var registry = map[MetricType]MetricInfo{
	StepCount: {
		Type: StepCount, Label: "Steps", Unit: UnitCount, Aggregation: AggregateSum, Granularity: Hourly,
		HealthKit: []string{"HKQuantityTypeIdentifierStepCount"},
	},
	HeartRate: {
		Type: HeartRate, Label: "Heart rate", Unit: UnitPerMinute, Aggregation: AggregateMean, Granularity: Hourly,
		HealthKit: []string{"HKQuantityTypeIdentifierHeartRate"},
	},
	RestingHeartRate: {
		Type: RestingHeartRate, Label: "Resting heart rate", Unit: UnitPerMinute, Aggregation: AggregateMean, Granularity: Daily,
		HealthKit: []string{"HKQuantityTypeIdentifierRestingHeartRate"},
	},
	HeartRateVariability: {
		Type: HeartRateVariability, Label: "Heart rate variability", Unit: UnitMillisecond, Aggregation: AggregateMean, Granularity: Daily,
		HealthKit: []string{"HKQuantityTypeIdentifierHeartRateVariabilitySDNN"},
	},
	SleepDuration: {
		Type: SleepDuration, Label: "Sleep", Unit: UnitHour, Aggregation: AggregateSum, Granularity: Daily,
		DurationValued: true,
		HealthKit:      []string{"HKCategoryTypeIdentifierSleepAnalysis"},
	},
	BodyMass: {
		Type: BodyMass, Label: "Weight", Unit: UnitKilogram, Aggregation: AggregateMean, Granularity: Daily,
		HealthKit: []string{"HKQuantityTypeIdentifierBodyMass"},
	},
	ActiveEnergy: {
		Type: ActiveEnergy, Label: "Active energy", Unit: UnitKilocalorie, Aggregation: AggregateSum, Granularity: Hourly,
		HealthKit: []string{"HKQuantityTypeIdentifierActiveEnergyBurned"},
	},
	DistanceWalkingRunning: {
		Type: DistanceWalkingRunning, Label: "Walking + running distance", Unit: UnitKilometer, Aggregation: AggregateSum, Granularity: Hourly,
		HealthKit: []string{"HKQuantityTypeIdentifierDistanceWalkingRunning"},
	},
	RespiratoryRate: {
		Type: RespiratoryRate, Label: "Respiratory rate", Unit: UnitPerMinute, Aggregation: AggregateMean, Granularity: Daily,
		HealthKit: []string{"HKQuantityTypeIdentifierRespiratoryRate"},
	},
	OxygenSaturation: {
		Type: OxygenSaturation, Label: "Blood oxygen", Unit: UnitPercent, Aggregation: AggregateMean, Granularity: Daily,
		HealthKit: []string{"HKQuantityTypeIdentifierOxygenSaturation"},
	},
	ExerciseTime: {
		Type: ExerciseTime, Label: "Exercise minutes", Unit: UnitMinute, Aggregation: AggregateSum, Granularity: Daily,
		HealthKit: []string{"HKQuantityTypeIdentifierAppleExerciseTime"},
	},
	BodyTemperature: {
		Type: BodyTemperature, Label: "Body temperature", Unit: UnitCelsius, Aggregation: AggregateMean, Granularity: Daily,
		HealthKit: []string{"HKQuantityTypeIdentifierBodyTemperature"},
	},
}

// healthKitIndex maps export identifiers back to metric types.
var healthKitIndex = func() map[string]MetricType {
	idx := make(map[string]MetricType, len(registry))
	for t, info := range registry {
		for _, id := range info.HealthKit {
			idx[id] = t
		}
	}
	return idx
}()

// Info returns the registry entry for t. Raw types get a synthetic entry
// that averages per day and keeps whatever unit the export used.
func Info(t MetricType) (MetricInfo, bool) {
	if info, ok := registry[t]; ok {
		return info, true
	}
	if t.IsRaw() {
		return MetricInfo{
			Type:        t,
			Label:       strings.TrimPrefix(string(t), RawPrefix),
			Aggregation: AggregateMean,
			Granularity: Daily,
		}, true
	}
	return MetricInfo{}, false
}

// AggregationFor returns the bucket aggregation rule for t.
func AggregationFor(t MetricType) Aggregation {
	info, _ := Info(t)
	return info.Aggregation
}

// GranularityFor returns the natural sampling granularity for t.
func GranularityFor(t MetricType) time.Duration {
	if info, ok := Info(t); ok && info.Granularity > 0 {
		return info.Granularity
	}
	return Daily
}

// LookupType resolves an export type name. Both HealthKit identifiers and
// canonical names are accepted; raw: names round-trip.
func LookupType(name string) (MetricType, bool) {
	name = strings.TrimSpace(name)
	if t, ok := healthKitIndex[name]; ok {
		return t, true
	}
	t := MetricType(name)
	if t.Known() {
		return t, true
	}
	if t.IsRaw() && len(name) > len(RawPrefix) {
		return t, true
	}
	return "", false
}

// KnownTypes returns the registered types in stable order.
func KnownTypes() []MetricType {
	out := make([]MetricType, 0, len(registry))
	for t := range registry {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MetricSet is a filter over metric types. A nil or empty set accepts
// everything, including raw pass-through types.
type MetricSet map[MetricType]struct{}

// NewMetricSet builds a set from names. "all" (or no names) yields nil.
func NewMetricSet(names ...string) (MetricSet, []string) {
	set := MetricSet{}
	var unknown []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if strings.EqualFold(n, "all") {
			return nil, nil
		}
		t, ok := LookupType(n)
		if !ok {
			unknown = append(unknown, n)
			continue
		}
		set[t] = struct{}{}
	}
	if len(set) == 0 {
		return nil, unknown
	}
	return set, unknown
}

// All reports whether the set is unrestricted.
func (s MetricSet) All() bool { return len(s) == 0 }

// Allows reports whether t passes the filter.
func (s MetricSet) Allows(t MetricType) bool {
	if s.All() {
		return true
	}
	_, ok := s[t]
	return ok
}
