package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTenant is returned when a report is requested without a tenant scope.
	ErrMissingTenant = errors.New("analytics: tenant id required")
	// ErrInvalidDateRange is returned for unparsable or inverted windows.
	ErrInvalidDateRange = errors.New("analytics: invalid date range")
	// ErrInvalidParams is returned when request parameters fail validation.
	ErrInvalidParams = errors.New("analytics: invalid parameters")
	// ErrUpstreamQuery marks a record store failure while building a report.
	ErrUpstreamQuery = errors.New("analytics: upstream query failed")
)

// ReportError carries enough context to diagnose a failed report.
type ReportError struct {
	Report   string
	TenantID string
	Window   Window
	Err      error
}

func (e *ReportError) Error() string {
	return fmt.Sprintf("analytics: report %s for tenant %s [%s, %s): %v",
		e.Report, e.TenantID, e.Window.Start.Format("2006-01-02T15:04:05Z07:00"),
		e.Window.End.Format("2006-01-02T15:04:05Z07:00"), e.Err)
}

// Unwrap exposes both the upstream marker and the cause to errors.Is/As.
func (e *ReportError) Unwrap() []error {
	return []error{ErrUpstreamQuery, e.Err}
}

// IsValidation reports whether err was raised before any query was issued.
func IsValidation(err error) bool {
	return errors.Is(err, ErrMissingTenant) || errors.Is(err, ErrInvalidDateRange) || errors.Is(err, ErrInvalidParams)
}

func reportError(report string, scope Scope, window Window, err error) error {
	if err == nil {
		return nil
	}
	var existing *ReportError
	if errors.As(err, &existing) {
		return err
	}
	return &ReportError{Report: report, TenantID: scope.TenantID, Window: window, Err: err}
}
