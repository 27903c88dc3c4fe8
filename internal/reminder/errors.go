package reminder

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrPartialScan matches every *PartialScanError via errors.Is.
var ErrPartialScan = errors.New("partial scan")

// PartialScanError reports that a read timeout or the aggregation deadline
// cut a scan short. Results returned alongside it cover only the patients
// that were fully read.
type PartialScanError struct {
	Operation string
	Scanned   int
	Total     int
	Err       error
}

func (e *PartialScanError) Error() string {
	return fmt.Sprintf("%s: partial scan, %d of %d patients read: %v", e.Operation, e.Scanned, e.Total, e.Err)
}

func (e *PartialScanError) Unwrap() error {
	return e.Err
}

func (e *PartialScanError) Is(target error) bool {
	return target == ErrPartialScan
}

// AsPartial extracts the PartialScanError from err's chain.
func AsPartial(err error) (*PartialScanError, bool) {
	var p *PartialScanError
	if errors.As(err, &p) {
		return p, true
	}
	return nil, false
}

// isTimeout reports whether a read ended because its time ran out rather
// than because the backend failed.
func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
