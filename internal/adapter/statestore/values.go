package statestore

import (
	"context"
	"strconv"
	"strings"

	"cinemate/internal/domain"
)

// GetFloat reads key as a number, returning def when the key is missing,
// unreadable or malformed.
func GetFloat(ctx context.Context, store domain.StateStore, key string, def float64) float64 {
	v, err := store.Get(ctx, key)
	if err != nil {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return def
	}
	return f
}

// GetBool reads key as the "1"/"0" flags the camera process publishes.
func GetBool(ctx context.Context, store domain.StateStore, key string) bool {
	v, err := store.Get(ctx, key)
	if err != nil {
		return false
	}
	switch strings.TrimSpace(strings.ToLower(v)) {
	case "1", "true":
		return true
	}
	return false
}

// FormatFloat renders a number without a trailing ".0" for whole values, so
// integral frame rates read back as "24" like the camera process writes them.
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetBool writes a flag as "1" or "0".
func SetBool(ctx context.Context, store domain.StateStore, key string, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return store.Set(ctx, key, v)
}
