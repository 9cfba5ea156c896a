// Package plan defines the in-process construction parameters an operator
// is built from (spec.md §6: "a protobuf plan node as construction
// parameter"). The actual wire format is out of scope (spec.md §1); these
// structs are what that out-of-scope decode step would hand to
// operator.New*, so the operator constructors in this repository have a
// concrete, typed parameter to take instead of an untyped blob.
/*
 * Copyright (c) 2024, Flowcore authors.
 */
package plan

// AggField names one aggregate column to compute, keyed by the kind of
// aggregate and the input column it reads (empty InputCol for RowCount,
// which reads no column).
type AggField struct {
	Name     string
	Kind     AggKind
	InputCol int
}

type AggKind uint8

const (
	RowCount AggKind = iota
	Sum
	Min
	Max
	Avg
)

func (k AggKind) String() string {
	switch k {
	case RowCount:
		return "RowCount"
	case Sum:
		return "Sum"
	case Min:
		return "Min"
	case Max:
		return "Max"
	case Avg:
		return "Avg"
	default:
		return "?"
	}
}

// AggregationNode is the construction contract for a Simple Aggregation
// operator (spec.md §4.5): group by GroupCols (empty means one global
// group), emit Fields, tie-break Min/Max retraction via TieBreakCols (the
// primary-key columns appended so a retracted extremum can be identified
// unambiguously -- spec.md §9 / original_source/ global_simple_agg.rs).
type AggregationNode struct {
	Name         string
	GroupCols    []int
	Fields       []AggField
	TieBreakCols []int
	StateTable   string
}

// MaterializeNode is the construction contract for a Materialize (tap)
// operator (spec.md §4.6): forwards every chunk unchanged while also
// durably applying it to StateTable at each barrier's Prev epoch.
type MaterializeNode struct {
	Name       string
	PKCols     []int
	StateTable string
}

// HashDispatchNode is the construction contract for wiring a dispatch.Hash
// in front of an actor's outputs (spec.md §4.3).
type HashDispatchNode struct {
	Name           string
	KeyCols        []int
	VirtualNodes   int
	InitialMapping []string
}
