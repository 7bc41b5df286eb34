// Package result provides a success/failure value for positional collection
// of independent outcomes.
package result

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// ErrUnwrapFailure is the panic value used when a failed Result is read as a value.
var ErrUnwrapFailure = errors.New("result: value read from a failed result")

// Result holds either a value or an error, never both.
// The zero Result is a success holding the zero value.
type Result[T any] struct {
	value T
	err   error
}

// Ok returns a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{value: v}
}

// Err returns a failed Result. A nil err is replaced with ErrUnwrapFailure
// so that the failure is never lost.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = ErrUnwrapFailure
	}
	return Result[T]{err: err}
}

// Of builds a Result from a conventional (value, error) pair.
func Of[T any](v T, err error) Result[T] {
	if err != nil {
		return Err[T](err)
	}
	return Ok(v)
}

// IsOk reports whether the result holds a value.
func (r Result[T]) IsOk() bool { return r.err == nil }

// IsErr reports whether the result holds an error.
func (r Result[T]) IsErr() bool { return r.err != nil }

// Unwrap returns the result as a conventional (value, error) pair.
func (r Result[T]) Unwrap() (T, error) { return r.value, r.err }

// Error returns the failure, or nil.
func (r Result[T]) Error() error { return r.err }

// Value returns the held value. Reading the value of a failed result is a
// programming error and panics.
func (r Result[T]) Value() T {
	if r.err != nil {
		panic(fmt.Errorf("%w: %v", ErrUnwrapFailure, r.err))
	}
	return r.value
}

// ValueOr returns the held value, or fallback for a failed result.
func (r Result[T]) ValueOr(fallback T) T {
	if r.err != nil {
		return fallback
	}
	return r.value
}

// Gather runs fn for every index in [0, n) concurrently, at most limit at a
// time (limit <= 0 means unbounded), and returns the outcomes in index order.
// A failing call does not cancel the others. A panic inside fn is recovered
// into that call's Result.
func Gather[T any](ctx context.Context, n, limit int, fn func(ctx context.Context, i int) (T, error)) []Result[T] {
	out := make([]Result[T], n)
	if n == 0 {
		return out
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					out[i] = Err[T](fmt.Errorf("panic in gathered call %d: %v", i, p))
				}
			}()
			if err := ctx.Err(); err != nil {
				out[i] = Err[T](err)
				return nil
			}
			out[i] = Of(fn(ctx, i))
			return nil
		})
	}

	_ = g.Wait()
	return out
}

// Partition splits results into successful values and failures, preserving order.
func Partition[T any](results []Result[T]) ([]T, []error) {
	var values []T
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		values = append(values, r.value)
	}
	return values, errs
}
