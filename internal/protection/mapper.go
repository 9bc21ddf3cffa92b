// Package protection splits participant records into a clear public part and
// a protected part whose sensitive fields are sealed.
package protection

import (
	"fmt"
	"reflect"
	"time"

	"github.com/google/logger"

	"tombola/internal/clock"
)

// Marker keys added to protected records.
const (
	MarkerProtected   = "_protected"
	MarkerProtectedAt = "_protectedAt"
)

// SensitiveFields is the fixed set of keys the mapper seals. Any other key
// is copied through untouched.
var SensitiveFields = []string{"name", "email", "phone", "address", "paymentInfo"}

// Record is a participant record as persisted: JSON object semantics.
type Record map[string]any

// Sealer is the reversible transform applied to sensitive values.
type Sealer interface {
	Seal(v any) (string, error)
	Open(ciphertext string) (any, error)
}

// FieldError reports a sensitive field that could not be recovered.
type FieldError struct {
	Field string
	Err   error
}

func (e FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e FieldError) Unwrap() error { return e.Err }

// Mapper is stateless apart from its sealer and clock.
type Mapper struct {
	sealer Sealer
	clock  clock.Clock
}

// NewMapper creates a Mapper.
func NewMapper(sealer Sealer, clk clock.Clock) *Mapper {
	return &Mapper{sealer: sealer, clock: clk}
}

// Protect seals every truthy sensitive field and tags the result. A field
// that fails to seal is kept in clear and logged.
func (m *Mapper) Protect(r Record) Record {
	out, _ := m.protect(r, false)
	return out
}

// ProtectStrict is Protect that refuses to store anything in clear.
func (m *Mapper) ProtectStrict(r Record) (Record, error) {
	return m.protect(r, true)
}

func (m *Mapper) protect(r Record, strict bool) (Record, error) {
	out := r.clone()
	for _, field := range SensitiveFields {
		v, ok := r[field]
		if !ok || !truthy(v) {
			continue
		}
		sealed, err := m.sealer.Seal(v)
		if err != nil {
			if strict {
				return nil, FieldError{Field: field, Err: err}
			}
			logger.Errorf("protect %s: %v (kept in clear)", field, err)
			continue
		}
		out[field] = sealed
	}
	out[MarkerProtected] = true
	out[MarkerProtectedAt] = m.clock.Now().Format(time.RFC3339Nano)
	return out, nil
}

// Unprotect opens every sensitive field it can and drops the markers.
func (m *Mapper) Unprotect(r Record) Record {
	out, errs := m.UnprotectReport(r)
	for _, err := range errs {
		logger.Warningf("unprotect: %v", err)
	}
	return out
}

// UnprotectReport is Unprotect with the per-field failures returned instead
// of logged. A failing field keeps its stored value; the others are still
// recovered.
func (m *Mapper) UnprotectReport(r Record) (Record, []FieldError) {
	out := r.clone()
	var errs []FieldError
	for _, field := range SensitiveFields {
		v, ok := r[field]
		if !ok || !truthy(v) {
			continue
		}
		ciphertext, isString := v.(string)
		if !isString {
			continue
		}
		opened, err := m.sealer.Open(ciphertext)
		if err != nil {
			errs = append(errs, FieldError{Field: field, Err: err})
			continue
		}
		if !reflect.DeepEqual(opened, v) {
			out[field] = opened
		}
	}
	delete(out, MarkerProtected)
	delete(out, MarkerProtectedAt)
	return out, errs
}

// ProtectAll protects every record not already marked. Applying it twice is
// the same as applying it once.
func (m *Mapper) ProtectAll(records []Record) []Record {
	out := make([]Record, len(records))
	for i, r := range records {
		if IsProtected(r) {
			out[i] = r
			continue
		}
		out[i] = m.Protect(r)
	}
	return out
}

// SelfTest protects and unprotects a sample participant.
func (m *Mapper) SelfTest() bool {
	sample := Record{
		"name":  "Jean Dupont",
		"email": "jean.dupont@example.com",
		"phone": "+33612345678",
	}
	return reflect.DeepEqual(sample, m.Unprotect(m.Protect(sample)))
}

// IsProtected reports whether r carries the protected marker.
func IsProtected(r Record) bool {
	v, ok := r[MarkerProtected].(bool)
	return ok && v
}

func (r Record) clone() Record {
	out := make(Record, len(r)+2)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String returns the string value at key, or "" when absent or not a string.
func (r Record) String(key string) string {
	s, _ := r[key].(string)
	return s
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case int64:
		return val != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice:
		return !rv.IsNil()
	case reflect.Pointer:
		return !rv.IsNil()
	}
	return true
}
