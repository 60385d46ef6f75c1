// Package exportgen produces synthetic Apple Health exports with planted
// correlations, for demos, load tests and end-to-end checks.
package exportgen

import (
	"math"
	"math/rand/v2"
	"strconv"
	"time"
)

// Apple Health identifiers written by the generator.
const (
	TypeStepCount        = "HKQuantityTypeIdentifierStepCount"
	TypeRestingHeartRate = "HKQuantityTypeIdentifierRestingHeartRate"
	TypeHRV              = "HKQuantityTypeIdentifierHeartRateVariabilitySDNN"
	TypeBodyMass         = "HKQuantityTypeIdentifierBodyMass"
	TypeSleep            = "HKCategoryTypeIdentifierSleepAnalysis"

	sleepAsleep = "HKCategoryValueSleepAnalysisAsleepCore"
	timeLayout  = "2006-01-02 15:04:05 -0700"
)

// Signal shape constants.
const (
	stepsBase      = 8000.0
	stepsPerUnit   = 3000.0
	stepsNoise     = 400.0
	stepChunks     = 4
	restingBase    = 62.0
	restingPerUnit = -3.0
	restingNoise   = 0.8
	sleepBase      = 7.0
	sleepSpread    = 0.8
	hrvBase        = 45.0
	hrvPerHour     = 8.0
	hrvNoise       = 2.0
	massBase       = 72.0
	massDrift      = -0.02
	massNoise      = 0.3
	kgPerPound     = 0.45359237
)

// Generate builds a deterministic export for cfg. Daily steps move against
// resting heart rate, and nightly sleep moves with heart rate variability.
func Generate(cfg Config) Export {
	if cfg.Days <= 0 {
		return Export{Records: []Record{}}
	}
	if cfg.SourceName == "" {
		cfg.SourceName = "Apple Watch"
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	day0 := cfg.Start.UTC().Truncate(24 * time.Hour)

	recs := make([]Record, 0, cfg.Days*(stepChunks+4)+cfg.Duplicates+cfg.BadRecords)
	add := func(typ, unit, value string, start, end time.Time) {
		recs = append(recs, Record{
			Type:       typ,
			Unit:       unit,
			Value:      value,
			SourceName: cfg.SourceName,
			StartDate:  start.Format(timeLayout),
			EndDate:    end.Format(timeLayout),
		})
	}

	for d := 0; d < cfg.Days; d++ {
		day := day0.AddDate(0, 0, d)
		activity := rng.NormFloat64()

		steps := math.Max(0, stepsBase+stepsPerUnit*activity+stepsNoise*rng.NormFloat64())
		chunk := math.Round(steps / stepChunks)
		for c := 0; c < stepChunks; c++ {
			start := day.Add(time.Duration(9+3*c) * time.Hour)
			add(TypeStepCount, "count", formatFloat(chunk, 0), start, start.Add(30*time.Minute))
		}

		resting := restingBase + restingPerUnit*activity + restingNoise*rng.NormFloat64()
		at := day.Add(7 * time.Hour)
		add(TypeRestingHeartRate, "count/min", formatFloat(resting, 1), at, at)

		hours := math.Max(3, sleepBase+sleepSpread*rng.NormFloat64())
		sleepStart := day.Add(30 * time.Minute)
		sleepEnd := sleepStart.Add(time.Duration(hours * float64(time.Hour))).Truncate(time.Minute)
		add(TypeSleep, "", sleepAsleep, sleepStart, sleepEnd)

		hrv := hrvBase + hrvPerHour*(sleepEnd.Sub(sleepStart).Hours()-sleepBase) + hrvNoise*rng.NormFloat64()
		at = day.Add(7*time.Hour + 5*time.Minute)
		add(TypeHRV, "ms", formatFloat(hrv, 1), at, at)

		mass := massBase + massDrift*float64(d) + massNoise*rng.NormFloat64()
		at = day.Add(7*time.Hour + 10*time.Minute)
		if cfg.PoundsMass {
			add(TypeBodyMass, "lb", formatFloat(mass/kgPerPound, 2), at, at)
		} else {
			add(TypeBodyMass, "kg", formatFloat(mass, 2), at, at)
		}
	}
	valid := len(recs)

	for i := 0; i < cfg.Duplicates && i < valid; i++ {
		recs = append(recs, recs[i])
	}
	for i := 0; i < cfg.BadRecords; i++ {
		at := day0.Add(time.Duration(i) * time.Minute)
		switch i % 3 {
		case 0:
			add(TypeStepCount, "count", "lots", at, at)
		case 1:
			add(TypeRestingHeartRate, "count/min", "60", at, at.Add(-time.Hour))
		default:
			add(TypeBodyMass, "stone", "11", at, at)
		}
	}

	return Export{Records: recs, Valid: valid}
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
