// Package scenario turns declarative intervention policies into fully
// parameterized simulation scenarios.
//
// A scenario is built from three pure pieces:
//   - BuildMeasures composes the time-windowed measure list for a horizon.
//   - BuildOverlay returns a function that merges policy-derived fields onto
//     a copy of the calibrated baseline.
//   - ID derives a stable, injective identifier from the policy.
//
// Builder.Make combines them into an immutable models.Scenario. Nothing in
// this package draws random numbers, so identical inputs always produce
// identical scenarios.
package scenario
