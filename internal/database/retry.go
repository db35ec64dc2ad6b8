package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"winbridge/internal/constants"
	"winbridge/internal/retry"
)

var dbBackoff = retry.NewBackoff(retry.BackoffConfig{
	InitialDelay: time.Duration(constants.DefaultRetryBackoffMs) * time.Millisecond / 10,
	MaxDelay:     2 * time.Second,
	Multiplier:   2,
	MaxAttempts:  constants.DefaultDatabaseRetryAttempts,
	Jitter:       true,
})

// retryableDBOperation runs operation, retrying transient SQLite failures such as a locked database
func retryableDBOperation(ctx context.Context, operationName string, operation func(ctx context.Context) error) error {
	if err := dbBackoff.RetryWithPredicate(ctx, operation, isRetryableDBError); err != nil {
		return fmt.Errorf("%s failed: %w", operationName, err)
	}
	return nil
}

// isRetryableDBError determines if a database error is worth retrying
func isRetryableDBError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	errStr := err.Error()
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "disk I/O error")
}
