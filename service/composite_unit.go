/*
Copyright © 2025 Bigschom.

Released under MIT license.
*/

package service

import (
	"errors"
	"strings"

	"golang.org/x/sync/errgroup"
)

// CompositeUnit runs several units as a single one.
// The portal cache uses it to combine the HTTP server with its background workers.
type CompositeUnit struct {
	Units []Unit
}

var _ Unit = (*CompositeUnit)(nil)
var _ MetricsRegisterer = (*CompositeUnit)(nil)

// NewCompositeUnit creates a new composite unit.
func NewCompositeUnit(units ...Unit) *CompositeUnit {
	return &CompositeUnit{Units: units}
}

// Start runs every unit in its own goroutine.
// It returns when all of them have started, or as soon as one of them fails.
// In the latter case all units are stopped non-gracefully and one *CompositeUnitError
// holding the start error followed by the stop errors is sent to fatalError.
func (cu *CompositeUnit) Start(fatalError chan<- error) {
	startErrs := make(chan error, len(cu.Units))
	var g errgroup.Group
	for _, unit := range cu.Units {
		unit := unit
		g.Go(func() error {
			unitFatalError := make(chan error, 1)
			unit.Start(unitFatalError)
			select {
			case err := <-unitFatalError:
				startErrs <- err
			default:
			}
			return nil
		})
	}
	started := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(started)
	}()

	var firstErr error
	select {
	case firstErr = <-startErrs:
	case <-started:
		select {
		case firstErr = <-startErrs:
		default:
			return
		}
	}

	errs := []error{firstErr}
	stopErr := cu.Stop(false)
	for len(startErrs) > 0 {
		errs = append(errs, <-startErrs)
	}
	var stopUnitErr *CompositeUnitError
	if errors.As(stopErr, &stopUnitErr) {
		errs = append(errs, stopUnitErr.UnitErrors...)
	}
	fatalError <- &CompositeUnitError{UnitErrors: errs}
}

// Stop stops all units concurrently. Errors are reported in the order of the units.
func (cu *CompositeUnit) Stop(gracefully bool) error {
	stopErrs := make([]error, len(cu.Units))
	var g errgroup.Group
	for i, unit := range cu.Units {
		i, unit := i, unit
		g.Go(func() error {
			stopErrs[i] = unit.Stop(gracefully)
			return nil
		})
	}
	_ = g.Wait()

	var errs []error
	for _, err := range stopErrs {
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &CompositeUnitError{UnitErrors: errs}
}

func (cu *CompositeUnit) eachMetricsRegisterer(fn func(mr MetricsRegisterer)) {
	for _, unit := range cu.Units {
		if mr, ok := unit.(MetricsRegisterer); ok {
			fn(mr)
		}
	}
}

// MustRegisterMetrics implements MetricsRegisterer.
func (cu *CompositeUnit) MustRegisterMetrics() {
	cu.eachMetricsRegisterer(MetricsRegisterer.MustRegisterMetrics)
}

// UnregisterMetrics implements MetricsRegisterer.
func (cu *CompositeUnit) UnregisterMetrics() {
	cu.eachMetricsRegisterer(MetricsRegisterer.UnregisterMetrics)
}

// CompositeUnitError is returned by CompositeUnit when one or more units fail.
type CompositeUnitError struct {
	UnitErrors []error
}

// Error joins the messages of the unit errors with "; ".
func (cue *CompositeUnitError) Error() string {
	var sb strings.Builder
	for i, err := range cue.UnitErrors {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(err.Error())
	}
	return sb.String()
}

// Unwrap lets errors.Is and errors.As match any of the unit errors.
func (cue *CompositeUnitError) Unwrap() []error {
	return cue.UnitErrors
}
