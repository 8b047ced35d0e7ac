// internal/rules/order.go
package rules

import "sort"

/*
 * Check ordering.
 *
 * Every check carries a phase; a value plan runs its checks in ascending
 * phase order. The sort is stable so checks of the same phase keep the order
 * in which the compiler emitted them (lt/lte before gt/gte, in before
 * not_in, declared custom rules in declaration order).
 *
 * Phase order for a single value:
 *   const, bounds, membership, length, substring, pattern, format,
 *   defined, finite, time, unique, custom
 *
 * A const check decides validity alone: when present, every other check of
 * the same value is dropped, custom rules included.
 */

type phase int

const (
	phaseConst phase = iota
	phaseBounds
	phaseMembership
	phaseLength
	phaseSubstring
	phasePattern
	phaseFormat
	phaseDefined
	phaseFinite
	phaseTime
	phaseUnique
	phaseCustom
)

// arrange orders checks by phase and applies the const short-circuit.
func arrange(checks []check) []check {
	for _, c := range checks {
		if c.phase == phaseConst {
			return []check{c}
		}
	}
	// Stable sort: equal phases keep emission order (deterministic output)
	sort.SliceStable(checks, func(i, j int) bool {
		return checks[i].phase < checks[j].phase
	})
	return checks
}
