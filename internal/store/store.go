// Package store is the local key-value persistence used by the ledger and its
// collaborators. Each key holds one JSON document that is rewritten whole on
// every mutation.
package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/logger"
)

// Persisted keys.
const (
	KeyTickets         = "tombolaTickets"
	KeyPrizes          = "tombolaPrizes"
	KeyAdminUser       = "adminUser"
	KeyAdminToken      = "adminToken"
	KeyAdminActivities = "adminActivities"
	KeyAdminConfig     = "adminConfig"
	KeyTirageTime      = "tirageTime"
)

var ErrEmptyKey = errors.New("store: empty key")

// Store is a blob store. Get reports ok=false for a missing key.
type Store interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
}

// LoadJSON decodes the document at key into dst and reports whether one was
// found. A missing or corrupt document reports false with a nil error and the
// caller treats it as empty. A failed read is returned as an error so callers
// never mistake it for an empty document and write over it.
func LoadJSON(s Store, key string, dst any) (bool, error) {
	raw, ok, err := s.Get(key)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", key, err)
	}
	if !ok || len(raw) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Warningf("store: %s is not valid JSON, treating as empty: %v", key, err)
		return false, nil
	}
	return true, nil
}

// SaveJSON replaces the document at key with v.
func SaveJSON(s Store, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.Set(key, raw); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}
