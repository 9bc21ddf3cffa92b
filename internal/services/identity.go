package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/logger"

	"tombola/internal/crypto"
	"tombola/internal/models"
	"tombola/internal/protection"
)

// Identity storage modes.
const (
	ModeEncrypted = "encrypted"
	ModeClear     = "clear"
)

// ParticipantIdentity decides how a ticket's identity is stored and read
// back. The ledger logic is the same for every implementation.
type ParticipantIdentity interface {
	Mode() string
	// Attach stores id on t.
	Attach(t *models.Ticket, id models.Identity) error
	// Resolve reads the identity back. It returns ErrNoIdentity when the
	// ticket has nothing this mode can read and ErrUndecryptable when the
	// stored identity is unrecoverable.
	Resolve(t models.Ticket) (models.Identity, error)
	// EncryptionWorking reports whether the mode's transform round-trips.
	EncryptionWorking() bool
}

// EncryptedIdentity keeps name, email and phone sealed in ProtectedData.
type EncryptedIdentity struct {
	mapper     *protection.Mapper
	failClosed bool
}

// NewEncryptedIdentity stores identities through mapper. With failClosed a
// seal failure rejects the ticket instead of storing the identity in clear.
func NewEncryptedIdentity(mapper *protection.Mapper, failClosed bool) *EncryptedIdentity {
	return &EncryptedIdentity{mapper: mapper, failClosed: failClosed}
}

func (e *EncryptedIdentity) Mode() string { return ModeEncrypted }

func (e *EncryptedIdentity) Attach(t *models.Ticket, id models.Identity) error {
	rec := protection.Record{"name": id.Name, "email": id.Email, "phone": id.Phone}
	if e.failClosed {
		sealed, err := e.mapper.ProtectStrict(rec)
		if err != nil {
			return fmt.Errorf("protect ticket identity: %w", err)
		}
		t.ProtectedData = sealed
		return nil
	}
	t.ProtectedData = e.mapper.Protect(rec)
	return nil
}

func (e *EncryptedIdentity) Resolve(t models.Ticket) (models.Identity, error) {
	if t.ProtectedData == nil {
		return models.Identity{}, ErrNoIdentity
	}

	rec, errs := e.mapper.UnprotectReport(t.ProtectedData)
	// A value that is not ciphertext at all was stored in clear when sealing
	// failed; UnprotectReport leaves it as-is. Only fields that fail to
	// authenticate are unrecoverable.
	var lost []protection.FieldError
	for _, fe := range errs {
		if errors.Is(fe, crypto.ErrMalformedCiphertext) {
			continue
		}
		lost = append(lost, fe)
	}
	if len(lost) > 0 && len(lost) == countTruthyStrings(t.ProtectedData) {
		return models.Identity{}, fmt.Errorf("%w: %v", ErrUndecryptable, lost[0])
	}
	for _, fe := range lost {
		logger.Warningf("ticket %s: %v", t.ID, fe)
		delete(rec, fe.Field)
	}

	return models.Identity{
		Name:  rec.String("name"),
		Email: rec.String("email"),
		Phone: rec.String("phone"),
	}, nil
}

func (e *EncryptedIdentity) EncryptionWorking() bool { return e.mapper.SelfTest() }

func countTruthyStrings(r protection.Record) int {
	n := 0
	for _, f := range protection.SensitiveFields {
		if s, ok := r[f].(string); ok && s != "" {
			n++
		}
	}
	return n
}

// ClearIdentity keeps identity fields in clear on the ticket.
type ClearIdentity struct{}

func (ClearIdentity) Mode() string { return ModeClear }

func (ClearIdentity) Attach(t *models.Ticket, id models.Identity) error {
	t.Participant = id.Name
	t.Email = id.Email
	t.Phone = id.Phone
	return nil
}

func (ClearIdentity) Resolve(t models.Ticket) (models.Identity, error) {
	if t.Participant == "" && t.Email == "" && t.Phone == "" {
		if t.ProtectedData != nil {
			return models.Identity{}, fmt.Errorf("%w: ticket was stored encrypted", ErrUndecryptable)
		}
		return models.Identity{}, ErrNoIdentity
	}
	return models.Identity{Name: t.Participant, Email: t.Email, Phone: t.Phone}, nil
}

func (ClearIdentity) EncryptionWorking() bool { return false }

// identityKey is the deduplication key: the normalised email.
func identityKey(id models.Identity) string {
	return strings.ToLower(strings.TrimSpace(id.Email))
}
