// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package compression

import "github.com/relabs-tech/cpr_assist/internal/config"

const (
	rateTolerance  = 20.0 // compressions/min either side of the band for partial credit
	depthTolerance = 1.0  // cm either side of the band for partial credit
)

// Bands holds the clinical target ranges. All bounds are inclusive.
type Bands struct {
	MinDepth float64
	MaxDepth float64
	MinRate  float64
	MaxRate  float64
}

// BandsFrom reads the target ranges from cfg.
func BandsFrom(cfg *config.Config) Bands {
	return Bands{
		MinDepth: cfg.MinCompressionDepth,
		MaxDepth: cfg.MaxCompressionDepth,
		MinRate:  cfg.IdealCompressionRateMin,
		MaxRate:  cfg.IdealCompressionRateMax,
	}
}

func (b Bands) DepthInBand(depth float64) bool {
	return depth >= b.MinDepth && depth <= b.MaxDepth
}

func (b Bands) RateInBand(rate float64) bool {
	return rate >= b.MinRate && rate <= b.MaxRate
}

// Classify reports whether a cycle is in the target band. A cycle without a
// defined rate (the first of a series) is classified on depth alone.
func (b Bands) Classify(depth, rate float64, rateValid bool) bool {
	if !rateValid {
		return b.DepthInBand(depth)
	}
	return b.DepthInBand(depth) && b.RateInBand(rate)
}

// Score grades a cycle from 0 to 1: each of depth and rate scores 1.0 inside
// its band, 0.7 within tolerance of it and 0.3 otherwise; the result is their mean.
func (b Bands) Score(depth, rate float64, rateValid bool) float64 {
	depthScore := subScore(depth, b.MinDepth, b.MaxDepth, depthTolerance)
	if !rateValid {
		return depthScore
	}
	return (depthScore + subScore(rate, b.MinRate, b.MaxRate, rateTolerance)) / 2
}

func subScore(v, lo, hi, tolerance float64) float64 {
	switch {
	case v <= 0:
		return 0
	case v >= lo && v <= hi:
		return 1.0
	case v >= lo-tolerance && v <= hi+tolerance:
		return 0.7
	}
	return 0.3
}

// Stats summarises the compressions seen since start.
type Stats struct {
	Total       int     `json:"total_compressions"`
	InBand      int     `json:"in_band"`
	Discarded   int     `json:"discarded"`
	AvgRate     float64 `json:"average_rate"`
	AvgDepth    float64 `json:"average_depth"`
	AvgQuality  float64 `json:"quality_score"`
	ratedCycles int
}

func (s *Stats) add(ev Event) {
	s.Total++
	if ev.InTargetBand {
		s.InBand++
	}
	n := float64(s.Total)
	s.AvgDepth += (ev.Depth - s.AvgDepth) / n
	s.AvgQuality += (ev.Quality - s.AvgQuality) / n
	if ev.RateValid {
		s.ratedCycles++
		s.AvgRate += (ev.Rate - s.AvgRate) / float64(s.ratedCycles)
	}
}
