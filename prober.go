package main

import (
	"context"
	"fmt"
	"iter"
)

// ExistsFunc reports whether the source behind index exists
type ExistsFunc func(ctx context.Context, index int) (bool, error)

// ProbeRequest describes one discovery pass over an indexed source
type ProbeRequest struct {
	Start    int // first index, defaults to 1
	MaxIndex int // hard cap on attempted indices
	Count    int // explicit count; 0 probes until the first miss
	Validate bool // with Count set, every index must exist
}

// ProbeError reports that checking an index failed before a hit or miss was known
type ProbeError struct {
	Index int
	Err   error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probing index %d: %v", e.Index, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Indices yields start..last in ascending order. Every range over the returned
// sequence starts again from start.
func Indices(start, last int) iter.Seq[int] {
	return func(yield func(int) bool) {
		for i := start; i <= last; i++ {
			if !yield(i) {
				return
			}
		}
	}
}

// Confirmed yields indices of seq while exists reports a hit. The first miss
// ends the sequence; a failed check is yielded once with its error and ends it too.
func Confirmed(ctx context.Context, seq iter.Seq[int], exists ExistsFunc) iter.Seq2[int, error] {
	return func(yield func(int, error) bool) {
		for i := range seq {
			if err := ctx.Err(); err != nil {
				yield(i, err)
				return
			}
			ok, err := exists(ctx, i)
			if err != nil {
				yield(i, err)
				return
			}
			if !ok || !yield(i, nil) {
				return
			}
		}
	}
}

// Probe returns the confirmed indices for req in ascending order.
//
// Without an explicit count it probes from Start until the first miss; a miss at
// the first index is an empty result, not an error. With a count and no
// validation the range is trusted without probing. With validation a miss
// anywhere in the range fails with ErrNotFound. No mode attempts more than
// MaxIndex indices.
func Probe(ctx context.Context, exists ExistsFunc, req ProbeRequest) ([]int, error) {
	start := req.Start
	if start < 1 {
		start = 1
	}
	if req.MaxIndex < start {
		return nil, validationErrorf("max index %d is below start index %d", req.MaxIndex, start)
	}

	if req.Count > 0 {
		last := min(start+req.Count-1, req.MaxIndex)
		if !req.Validate {
			return collect(Indices(start, last)), nil
		}
		var out []int
		for i := range Indices(start, last) {
			ok, err := exists(ctx, i)
			if err != nil {
				return nil, &ProbeError{Index: i, Err: transient(err)}
			}
			if !ok {
				return nil, fmt.Errorf("%w: index %d of %d is missing", ErrNotFound, i, last)
			}
			out = append(out, i)
		}
		return out, nil
	}

	var out []int
	for i, err := range Confirmed(ctx, Indices(start, req.MaxIndex), exists) {
		if err != nil {
			return out, &ProbeError{Index: i, Err: transient(err)}
		}
		out = append(out, i)
	}
	return out, nil
}

func collect(seq iter.Seq[int]) []int {
	var out []int
	for i := range seq {
		out = append(out, i)
	}
	return out
}
