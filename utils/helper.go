package utils

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carteiralab/carteira_backend/config"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

func DereferencePtr[T any](ptr *T, defaults ...T) T {
	if ptr != nil {
		return *ptr
	}
	if len(defaults) > 0 {
		return defaults[0]
	}
	var zero T
	return zero
}

func NilIfEmpty[T comparable](ptr T) *T {
	var zero T
	if ptr == zero {
		return nil
	}
	return &ptr
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

// ConvertToDate truncates a timestamp to midnight in the given timezone
// (defaults to America/Sao_Paulo), returned in that location.
func ConvertToDate(t time.Time, timezone string) (time.Time, error) {
	if timezone == "" {
		timezone = "America/Sao_Paulo"
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, err
	}
	local := t.In(location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, location), nil
}

// FirstOfMonth normalizes a date to day 1 of its month, midnight UTC.
// EvolucaoPatrimonial rows are always keyed by this value.
func FirstOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthRange returns the [start, end) bounds of the calendar month containing t.
func MonthRange(t time.Time) (time.Time, time.Time) {
	start := FirstOfMonth(t)
	return start, start.AddDate(0, 1, 0)
}

// MonthsBetween lists first-of-month boundaries from fromMonth to toMonth inclusive.
func MonthsBetween(fromMonth, toMonth time.Time) []time.Time {
	from := FirstOfMonth(fromMonth)
	to := FirstOfMonth(toMonth)
	months := make([]time.Time, 0)
	for m := from; !m.After(to); m = m.AddDate(0, 1, 0) {
		months = append(months, m)
	}
	return months
}

func ParseDecimal(value string) (decimal.Decimal, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero, nil
	}
	dec, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal %q: %w", value, err)
	}
	return dec, nil
}

func ProcessValidationErrors(err error) map[string]string {
	fieldErrors := make(map[string]string)
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		for _, fieldError := range validationErrors {
			fieldErrors[fieldError.Field()] = fieldError.Tag()
		}
	}
	return fieldErrors
}

// OwnerLock obtains a best-effort redis lock for the owner. Returns a release
// function; lock unavailability is logged and tolerated, the caller proceeds.
func OwnerLock(moduleName string, functionName string, lockType string, ownerId string, ttl time.Duration) func() {
	logger := config.GetLogger()
	locker := config.GetRedisLock()
	if locker == nil {
		config.LogWarn(logger, moduleName, functionName, "redis lock not ready; proceeding without lock", ownerId, "lock skipped")
		return func() {}
	}
	lockKey := fmt.Sprintf("%s:%s", lockType, ownerId)
	lock, err := locker.Obtain(config.GetRedisContext(), lockKey, ttl, nil)
	if err != nil {
		config.LogWarn(logger, moduleName, functionName, "could not obtain redis lock; proceeding without lock", ownerId, err.Error())
		return func() {}
	}
	return func() {
		_ = lock.Release(config.GetRedisContext())
	}
}
