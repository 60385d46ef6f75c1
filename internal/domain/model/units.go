package model

import "strings"

// Unit is a semantic unit tag as it appears in exports.
type Unit string

// Canonical units.
const (
	UnitCount       Unit = "count"
	UnitPerMinute   Unit = "count/min"
	UnitMillisecond Unit = "ms"
	UnitHour        Unit = "h"
	UnitMinute      Unit = "min"
	UnitKilogram    Unit = "kg"
	UnitKilocalorie Unit = "kcal"
	UnitKilometer   Unit = "km"
	UnitPercent     Unit = "%"
	UnitCelsius     Unit = "degC"
)

// converter maps a value in one unit to the canonical unit.
type converter func(float64) float64

func scale(f float64) converter { return func(v float64) float64 { return v * f } }

var identity = scale(1)

// conversions is keyed by canonical unit, then by source unit.
var conversions = map[Unit]map[Unit]converter{
	UnitCount: {
		"count": identity,
	},
	UnitPerMinute: {
		"count/min": identity,
		"bpm":       identity,
		"beats/min": identity,
		"count/s":   scale(60),
	},
	UnitMillisecond: {
		"ms": identity,
		"s":  scale(1000),
	},
	UnitHour: {
		"h":   identity,
		"hr":  identity,
		"min": scale(1.0 / 60),
		"s":   scale(1.0 / 3600),
	},
	UnitMinute: {
		"min": identity,
		"h":   scale(60),
		"hr":  scale(60),
		"s":   scale(1.0 / 60),
	},
	UnitKilogram: {
		"kg": identity,
		"g":  scale(0.001),
		"lb": scale(0.45359237),
		"oz": scale(0.028349523125),
		"st": scale(6.35029318),
	},
	UnitKilocalorie: {
		"kcal": identity,
		"Cal":  identity,
		"kJ":   scale(1 / 4.184),
	},
	UnitKilometer: {
		"km": identity,
		"m":  scale(0.001),
		"mi": scale(1.609344),
		"ft": scale(0.0003048),
	},
	UnitPercent: {
		"%": identity,
	},
	UnitCelsius: {
		"degC": identity,
		"degF": func(v float64) float64 { return (v - 32) * 5 / 9 },
	},
}

// ConvertToCanonical converts value from unit to the canonical unit of t.
// It reports false when the conversion table has no entry.
func ConvertToCanonical(t MetricType, value float64, from Unit) (float64, Unit, bool) {
	info, ok := registry[t]
	if !ok {
		return 0, "", false
	}
	table := conversions[info.Unit]
	conv, ok := table[Unit(strings.TrimSpace(string(from)))]
	if !ok {
		return 0, info.Unit, false
	}
	return conv(value), info.Unit, true
}

// CanonicalUnit returns the unit every sample of t carries after import.
// Raw types have no canonical unit.
func CanonicalUnit(t MetricType) Unit {
	return registry[t].Unit
}
