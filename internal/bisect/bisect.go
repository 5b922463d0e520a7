// Package bisect implements the process-or-split retry combinator shared by
// the planner and the batcher: attempt an operation over a unit slice and, on
// a splittable failure, recursively bisect the slice and retry each half,
// aborting once a subset would shrink below the minimum viable size.
package bisect

import (
	"context"
	"fmt"
)

const minimumViableSizeTemplateConstant = "cannot split further: %d unit(s) at or below minimum viable size %d: %w"

// ProcessFunction attempts the operation over a subset of units.
type ProcessFunction[Unit any, Result any] func(executionContext context.Context, units []Unit) ([]Result, error)

// SplitPredicate reports whether the failure can be recovered by bisection.
type SplitPredicate func(failure error) bool

// ProcessOrSplit runs process over units, bisecting on splittable failures.
// Results from recovered halves are concatenated in order. A failure that the
// predicate rejects, or one occurring at or below minimumUnits, is returned.
func ProcessOrSplit[Unit any, Result any](
	executionContext context.Context,
	units []Unit,
	minimumUnits int,
	process ProcessFunction[Unit, Result],
	shouldSplit SplitPredicate,
) ([]Result, error) {
	if minimumUnits < 1 {
		minimumUnits = 1
	}

	results, processError := process(executionContext, units)
	if processError == nil {
		return results, nil
	}
	if !shouldSplit(processError) {
		return nil, processError
	}
	if len(units) <= minimumUnits {
		return nil, fmt.Errorf(minimumViableSizeTemplateConstant, len(units), minimumUnits, processError)
	}

	midpoint := len(units) / 2
	firstHalfResults, firstError := ProcessOrSplit(executionContext, units[:midpoint], minimumUnits, process, shouldSplit)
	if firstError != nil {
		return nil, firstError
	}
	secondHalfResults, secondError := ProcessOrSplit(executionContext, units[midpoint:], minimumUnits, process, shouldSplit)
	if secondError != nil {
		return nil, secondError
	}
	return append(firstHalfResults, secondHalfResults...), nil
}
