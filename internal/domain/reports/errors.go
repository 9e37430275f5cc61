package reports

import "errors"

// ErrReportNotFound is returned when the report to update no longer exists.
var ErrReportNotFound = errors.New("report not found")

// ErrNoImage means a report has no photo reference to analyze.
var ErrNoImage = errors.New("report has no analyzable image")
