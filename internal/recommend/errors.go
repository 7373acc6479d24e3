// KGRec - Explainable Knowledge-Graph Dish Recommendation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/kgrec

package recommend

import (
	"errors"
	"fmt"
)

// ErrorKind classifies engine failures so transports can map them.
type ErrorKind int

const (
	// KindInternal is any failure not covered below.
	KindInternal ErrorKind = iota
	// KindConfiguration means the engine cannot serve, e.g. no model loaded.
	KindConfiguration
	// KindValidation means the request was rejected.
	KindValidation
	// KindDataIncomplete means the graph or model lacked the data needed.
	KindDataIncomplete
	// KindDependencyUnavailable means a backing store could not be reached.
	KindDependencyUnavailable
)

// String returns the kind name used in logs and API error codes.
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindValidation:
		return "validation"
	case KindDataIncomplete:
		return "data_incomplete"
	case KindDependencyUnavailable:
		return "dependency_unavailable"
	default:
		return "internal"
	}
}

var (
	// ErrModelNotLoaded is returned before the first snapshot is installed.
	ErrModelNotLoaded = errors.New("embedding model not loaded")

	// ErrUserOutOfRange is returned for user ids outside the model's user block.
	ErrUserOutOfRange = errors.New("user id out of range")

	// ErrInsufficientResults is returned when fewer than MinResults items
	// survive filtering.
	ErrInsufficientResults = errors.New("insufficient recommendation results")

	// ErrDishNotFound is returned by Detail for unknown dishes.
	ErrDishNotFound = errors.New("dish not found")
)

// Error carries the kind and failing operation of an engine error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
