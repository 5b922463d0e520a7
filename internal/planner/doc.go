// Package planner turns the scanned file inventory, local grep signal, and
// project classification into a ranked, budget-bounded file plan via the
// inference service, with recursive bisection on unparseable ranking output
// and a heuristic path fallback when ranking yields nothing.
package planner
