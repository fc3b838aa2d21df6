package model

import (
	"math"
	"strconv"
	"strings"
)

// ParseMoney parses an optional money amount. Empty, malformed, non-finite or
// negative input yields nil so it never reaches a price comparison.
func ParseMoney(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.ReplaceAll(raw, ",", ".")
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return NormalizeMoney(v)
}

// NormalizeMoney applies the ParseMoney rules to an already numeric amount.
func NormalizeMoney(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return nil
	}
	r := RoundMoney(v)
	return &r
}

// RoundMoney rounds to cents.
func RoundMoney(v float64) float64 {
	return math.Round(v*100) / 100
}

// Money returns a pointer to a rounded amount.
func Money(v float64) *float64 {
	r := RoundMoney(v)
	return &r
}
