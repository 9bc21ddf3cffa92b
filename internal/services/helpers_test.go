package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tombola/internal/clock"
	"tombola/internal/crypto"
	"tombola/internal/protection"
	"tombola/internal/store"
)

var testNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	tickets      []int
	participants []int
	resets       []string
}

func (r *recordingNotifier) TicketsUpdated(total int)        { r.tickets = append(r.tickets, total) }
func (r *recordingNotifier) ParticipantsUpdated(unique int)  { r.participants = append(r.participants, unique) }
func (r *recordingNotifier) ParticipantsReset(reason string) { r.resets = append(r.resets, reason) }

type staticAccess bool

func (a staticAccess) HasAdminAccess(context.Context) bool { return bool(a) }

type failingSealer struct{}

func (failingSealer) Seal(any) (string, error) { return "", errors.New("sealer down") }
func (failingSealer) Open(string) (any, error) { return nil, errors.New("sealer down") }

// flakyStore fails reads or writes of one key on demand.
type flakyStore struct {
	store.Store
	key      string
	failGets bool
	failSets bool
}

var errTimeout = errors.New("i/o timeout")

func (f *flakyStore) Get(key string) ([]byte, bool, error) {
	if f.failGets && key == f.key {
		return nil, false, errTimeout
	}
	return f.Store.Get(key)
}

func (f *flakyStore) Set(key string, value []byte) error {
	if f.failSets && key == f.key {
		return errTimeout
	}
	return f.Store.Set(key, value)
}

// sealFailing refuses to seal but opens with a real cipher.
type sealFailing struct{ *crypto.Cipher }

func (sealFailing) Seal(any) (string, error) { return "", crypto.ErrEncryptionFailed }

type ledgerFixture struct {
	svc      *TicketService
	store    *store.Memory
	clock    *clock.Manual
	notifier *recordingNotifier
}

func encryptedIdentity(t *testing.T, key string, clk clock.Clock) *EncryptedIdentity {
	t.Helper()
	c, err := crypto.NewCipher(key)
	if err != nil {
		t.Fatalf("new cipher: %v", err)
	}
	return NewEncryptedIdentity(protection.NewMapper(c, clk), false)
}

func newLedger(t *testing.T, mode string, access bool) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		store:    store.NewMemory(),
		clock:    clock.NewManual(testNow),
		notifier: &recordingNotifier{},
	}
	f.svc = f.ledgerOver(t, mode, "test-key", access)
	return f
}

// ledgerOver builds another ledger sharing the fixture's store and clock.
func (f *ledgerFixture) ledgerOver(t *testing.T, mode, key string, access bool) *TicketService {
	t.Helper()
	var identity ParticipantIdentity = ClearIdentity{}
	if mode == ModeEncrypted {
		identity = encryptedIdentity(t, key, f.clock)
	}
	return NewTicketService(TicketServiceConfig{
		Store:    f.store,
		Identity: identity,
		Notifier: f.notifier,
		Access:   staticAccess(access),
		Clock:    f.clock,
	})
}
