package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/weaving_backend/config"
	"github.com/sirupsen/logrus"
)

const DateLayout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date, expected YYYY-MM-DD")

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// ValidateStruct checks `binding` tags, the same tags gin validates request bodies with,
// so inputs built outside HTTP (cmd tools, tests) go through identical rules.
func ValidateStruct(s interface{}) error {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.SetTagName("binding")
	})
	return validate.Struct(s)
}

// ProcessValidationErrors flattens validator errors to field -> failed tag.
func ProcessValidationErrors(err error) map[string]string {
	errorResponse := make(map[string]string)

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return errorResponse
	}
	for _, ve := range validationErrors {
		errorResponse[ve.Field()] = ve.Tag()
	}

	return errorResponse
}

func UniqueSlice[T comparable](slice []T) []T {
	seen := make(map[T]struct{}, len(slice))
	result := make([]T, 0, len(slice))
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}

// ParseDate parses a YYYY-MM-DD value as a UTC date.
func ParseDate(value string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, strings.TrimSpace(value), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return d, nil
}

// LedgerLock obtains a redis lock on lockKey and returns its release func.
// Redis is an extra guard around the database transaction, never a requirement:
// when the lock client is missing, contended or failing, the caller proceeds unlocked.
func LedgerLock(ctx context.Context, lockKey string, moduleName string, functionName string) func() {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		return func() {}
	}

	lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(100*time.Millisecond), 50),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		logger.WithFields(logrus.Fields{
			"field":    functionName,
			"module":   moduleName,
			"lock_key": lockKey,
		}).Warn("could not obtain redis lock; proceeding without redis lock")
		return func() {}
	} else if err != nil {
		config.LogError(logger, moduleName, functionName, "Error obtaining redis lock", lockKey, err)
		return func() {}
	}

	return func() {
		if releaseErr := lock.Release(context.Background()); releaseErr != nil && !errors.Is(releaseErr, redislock.ErrLockNotHeld) {
			config.LogError(logger, moduleName, functionName, "Error releasing redis lock", lockKey, releaseErr)
		}
	}
}
