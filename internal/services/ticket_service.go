package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"

	"tombola/internal/clock"
	"tombola/internal/models"
	"tombola/internal/notify"
	"tombola/internal/store"
)

// ProtectedPlaceholder replaces identity fields an admin view cannot decrypt.
const ProtectedPlaceholder = "[protected]"

const recentWindow = 24 * time.Hour

var (
	testFirstNames = []string{"Jean", "Marie", "Pierre", "Sophie", "Paul", "Julie", "Marc", "Laura"}
	testLastNames  = []string{"Dupont", "Martin", "Bernard", "Thomas", "Robert", "Richard", "Petit", "Moreau"}
)

// AccessChecker answers whether the caller behind ctx holds admin rights.
type AccessChecker interface {
	HasAdminAccess(ctx context.Context) bool
}

type denyAll struct{}

func (denyAll) HasAdminAccess(context.Context) bool { return false }

// TicketServiceConfig wires a TicketService. Nil collaborators get safe
// defaults: no notifications, no admin access, system clock.
type TicketServiceConfig struct {
	Store    store.Store
	Identity ParticipantIdentity
	Notifier notify.Notifier
	Access   AccessChecker
	Clock    clock.Clock
}

// TicketService is the participant ledger. It owns the tombolaTickets
// document and rewrites it whole on every mutation. The mutex serialises
// mutations inside this process; another process writing the same store
// wins or loses by last write.
type TicketService struct {
	mu       sync.Mutex
	store    store.Store
	identity ParticipantIdentity
	notifier notify.Notifier
	access   AccessChecker
	clock    clock.Clock
}

// NewTicketService creates the ledger.
func NewTicketService(cfg TicketServiceConfig) *TicketService {
	s := &TicketService{
		store:    cfg.Store,
		identity: cfg.Identity,
		notifier: cfg.Notifier,
		access:   cfg.Access,
		clock:    cfg.Clock,
	}
	if s.identity == nil {
		s.identity = ClearIdentity{}
	}
	if s.notifier == nil {
		s.notifier = notify.Nop{}
	}
	if s.access == nil {
		s.access = denyAll{}
	}
	if s.clock == nil {
		s.clock = clock.NewSystem()
	}
	return s
}

// IdentityMode reports the configured identity storage.
func (s *TicketService) IdentityMode() string { return s.identity.Mode() }

// GetTickets returns every stored ticket. A missing or corrupt document
// reads as an empty ledger, and so does a failed read, which is logged.
func (s *TicketService) GetTickets() []models.Ticket {
	tickets, err := s.load()
	if err != nil {
		logger.Warningf("ledger: %v", err)
		return []models.Ticket{}
	}
	return tickets
}

// load is the read used before a write: a failed read is an error, never an
// empty ledger to write over.
func (s *TicketService) load() ([]models.Ticket, error) {
	var tickets []models.Ticket
	found, err := store.LoadJSON(s.store, store.KeyTickets, &tickets)
	if err != nil {
		return nil, err
	}
	if !found {
		return []models.Ticket{}, nil
	}
	return tickets, nil
}

func (s *TicketService) save(tickets []models.Ticket) error {
	return store.SaveJSON(s.store, store.KeyTickets, tickets)
}

func newTicketID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (s *TicketService) newTicket(in models.TicketInput, purchasedAt time.Time) (models.Ticket, error) {
	source := strings.TrimSpace(in.Source)
	if source == "" {
		source = models.SourcePurchase
	}
	name := strings.TrimSpace(in.ParticipantName)
	if name == "" {
		name = models.AnonymousName
	}

	t := models.Ticket{
		ID:           newTicketID(),
		Number:       in.Number,
		PurchaseDate: purchasedAt,
		Price:        in.Price,
		Source:       source,
	}
	id := models.Identity{
		Name:  name,
		Email: strings.TrimSpace(in.Email),
		Phone: strings.TrimSpace(in.Phone),
	}
	if err := s.identity.Attach(&t, id); err != nil {
		return models.Ticket{}, err
	}
	t.SyncPublic()
	return t, nil
}

// AddTicket records one purchase and returns its public projection.
func (s *TicketService) AddTicket(in models.TicketInput) (models.TicketView, error) {
	if in.Number < 0 {
		return models.TicketView{}, ErrInvalidTicketNumber
	}
	if in.Price < 0 || math.IsNaN(in.Price) || math.IsInf(in.Price, 0) {
		return models.TicketView{}, ErrInvalidPrice
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, err := s.newTicket(in, s.clock.Now())
	if err != nil {
		return models.TicketView{}, err
	}

	tickets, err := s.load()
	if err != nil {
		return models.TicketView{}, fmt.Errorf("add ticket: %w", err)
	}
	tickets = append(tickets, t)
	if err := s.save(tickets); err != nil {
		return models.TicketView{}, fmt.Errorf("add ticket: %w", err)
	}
	s.notifyCounts(tickets)

	logger.Infof("ticket #%d added (%s)", t.Number, t.Source)
	return models.TicketView{PublicTicket: t.PublicData, ID: t.ID}, nil
}

func (s *TicketService) notifyCounts(tickets []models.Ticket) {
	s.notifier.TicketsUpdated(len(tickets))
	s.notifier.ParticipantsUpdated(len(s.aggregate(tickets, false).Participants))
}

// MarkAsDrawn attaches result to every undrawn ticket carrying number and
// returns how many tickets changed. A ticket keeps its first draw result.
// An unknown number is a no-op.
func (s *TicketService) MarkAsDrawn(number int, result any) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.load()
	if err != nil {
		return 0, fmt.Errorf("mark ticket %d drawn: %w", number, err)
	}
	now := s.clock.Now()
	updated := 0
	for i := range tickets {
		t := &tickets[i]
		if t.Number != number || t.IsDrawn {
			continue
		}
		t.IsDrawn = true
		t.DrawResult = result
		t.DrawDate = &now
		t.SyncPublic()
		updated++
	}
	if updated == 0 {
		return 0, nil
	}

	if err := s.save(tickets); err != nil {
		return 0, fmt.Errorf("mark ticket %d drawn: %w", number, err)
	}
	s.notifier.TicketsUpdated(len(tickets))
	logger.Infof("ticket #%d drawn (%d record(s))", number, updated)
	return updated, nil
}

// ReportOptions narrows participant aggregation.
type ReportOptions struct {
	// ExcludeTestData leaves generated tickets out.
	ExcludeTestData bool
}

// GetParticipantReport groups tickets by identity key. Every ticket either
// contributes to a participant or appears in Skipped with a reason; one bad
// ticket never aborts the pass.
func (s *TicketService) GetParticipantReport(opts ReportOptions) models.ParticipantReport {
	return s.aggregate(s.GetTickets(), opts.ExcludeTestData)
}

// GetAllParticipants returns the deduplicated participants.
func (s *TicketService) GetAllParticipants() []models.Participant {
	return s.GetParticipantReport(ReportOptions{}).Participants
}

// UniqueParticipantCount is the participant count driving progression.
func (s *TicketService) UniqueParticipantCount() int {
	return len(s.GetAllParticipants())
}

func (s *TicketService) aggregate(tickets []models.Ticket, excludeTest bool) models.ParticipantReport {
	report := models.ParticipantReport{
		Participants: []models.Participant{},
		Skipped:      []models.SkippedTicket{},
	}
	index := make(map[string]int)

	skip := func(t models.Ticket, reason, detail string) {
		report.Skipped = append(report.Skipped, models.SkippedTicket{
			TicketID: t.ID,
			Number:   t.Number,
			Reason:   reason,
			Detail:   detail,
		})
	}

	for _, t := range tickets {
		if excludeTest && t.Source == models.SourceTestGeneration {
			skip(t, models.SkipTestData, "")
			continue
		}

		id, err := s.identity.Resolve(t)
		switch {
		case errors.Is(err, ErrNoIdentity):
			skip(t, models.SkipNoIdentity, "")
			continue
		case err != nil:
			logger.Warningf("ticket %s skipped: %v", t.ID, err)
			skip(t, models.SkipUndecryptable, err.Error())
			continue
		}

		name := strings.TrimSpace(id.Name)
		if name == "" || name == models.AnonymousName {
			skip(t, models.SkipAnonymous, "")
			continue
		}
		key := identityKey(id)
		if key == "" {
			skip(t, models.SkipNoEmail, "")
			continue
		}

		i, seen := index[key]
		if !seen {
			index[key] = len(report.Participants)
			report.Participants = append(report.Participants, models.Participant{
				ID:            t.ID,
				Name:          name,
				Email:         id.Email,
				Phone:         id.Phone,
				Tickets:       1,
				TicketNumbers: []int{t.Number},
				FirstPurchase: t.PurchaseDate,
				LastPurchase:  t.PurchaseDate,
				TotalSpent:    t.Price,
				Source:        t.Source,
			})
			continue
		}

		p := &report.Participants[i]
		p.Tickets++
		p.TicketNumbers = append(p.TicketNumbers, t.Number)
		p.TotalSpent += t.Price
		if t.PurchaseDate.Before(p.FirstPurchase) {
			p.FirstPurchase = t.PurchaseDate
		}
		if !t.PurchaseDate.Before(p.LastPurchase) {
			p.LastPurchase = t.PurchaseDate
			if t.Source != "" {
				p.Source = t.Source
			}
		}
	}
	return report
}

// GetParticipantDetails returns the decrypted participant behind the first
// ticket carrying number.
func (s *TicketService) GetParticipantDetails(number int) (models.ParticipantDetails, bool) {
	for _, t := range s.GetTickets() {
		if t.PublicData.TicketNumber != number {
			continue
		}
		id, err := s.identity.Resolve(t)
		if err != nil {
			if !errors.Is(err, ErrNoIdentity) {
				logger.Warningf("participant details for #%d: %v", number, err)
			}
			return models.ParticipantDetails{}, false
		}
		return models.ParticipantDetails{
			Identity:     id,
			TicketNumber: t.Number,
			PurchaseDate: t.PurchaseDate,
			Price:        t.Price,
			Source:       t.Source,
		}, true
	}
	return models.ParticipantDetails{}, false
}

// GetPublicTickets returns every ticket's public projection.
func (s *TicketService) GetPublicTickets() []models.PublicTicket {
	tickets := s.GetTickets()
	out := make([]models.PublicTicket, len(tickets))
	for i, t := range tickets {
		out[i] = t.PublicData
	}
	return out
}

// GetTicketsWithAccess returns tickets projected for level. An admin request
// that fails the access check silently gets the public projection.
func (s *TicketService) GetTicketsWithAccess(ctx context.Context, level models.AccessLevel) []models.TicketView {
	tickets := s.GetTickets()
	out := make([]models.TicketView, len(tickets))

	if level != models.AccessAdmin || !s.access.HasAdminAccess(ctx) {
		for i, t := range tickets {
			out[i] = models.TicketView{PublicTicket: t.PublicData}
		}
		return out
	}

	for i, t := range tickets {
		v := models.TicketView{PublicTicket: t.PublicData, ID: t.ID}
		id, err := s.identity.Resolve(t)
		switch {
		case err == nil:
			v.Participant, v.Email, v.Phone = id.Name, id.Email, id.Phone
		case errors.Is(err, ErrNoIdentity):
			v.Participant = models.AnonymousName
		default:
			v.Participant, v.Email, v.Phone = ProtectedPlaceholder, ProtectedPlaceholder, ProtectedPlaceholder
		}
		out[i] = v
	}
	return out
}

// GetLiveStats aggregates public projections; it never decrypts.
func (s *TicketService) GetLiveStats() models.LiveStats {
	now := s.clock.Now()
	stats := models.LiveStats{
		TicketsBySource: make(map[string]int),
		RevenueBySource: make(map[string]float64),
	}

	for _, t := range s.GetTickets() {
		p := t.PublicData
		source := p.Source
		if source == "" {
			source = models.SourcePurchase
		}

		stats.TotalTickets++
		stats.TotalRevenue += p.TicketPrice
		stats.TicketsBySource[source]++
		stats.RevenueBySource[source] += p.TicketPrice
		if source != models.SourceTestGeneration {
			stats.OrganicTickets++
			stats.OrganicRevenue += p.TicketPrice
		}
		if now.Sub(p.PurchaseDate) < recentWindow {
			stats.RecentTickets++
			stats.RecentRevenue += p.TicketPrice
		}
		if p.IsDrawn {
			stats.DrawnTickets++
		}
	}
	return stats
}

// ClearAllTickets wipes the ledger.
func (s *TicketService) ClearAllTickets() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(store.KeyTickets); err != nil {
		return fmt.Errorf("clear tickets: %w", err)
	}
	s.notifier.TicketsUpdated(0)
	s.notifier.ParticipantsUpdated(0)
	s.notifier.ParticipantsReset("manual_clear")

	logger.Info("all tickets cleared")
	return nil
}

// GenerateTestTickets appends count synthetic tickets tagged
// test_generation. Generated numbers avoid numbers already in the ledger.
func (s *TicketService) GenerateTestTickets(count int) ([]models.PublicTicket, error) {
	if count <= 0 {
		return nil, ErrInvalidCount
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("generate test tickets: %w", err)
	}
	used := make(map[int]bool, len(tickets)+count)
	for _, t := range tickets {
		used[t.Number] = true
	}

	now := s.clock.Now()
	generated := make([]models.PublicTicket, 0, count)
	for range count {
		first := testFirstNames[rand.IntN(len(testFirstNames))]
		last := testLastNames[rand.IntN(len(testLastNames))]
		in := models.TicketInput{
			Number:          freeTicketNumber(used),
			ParticipantName: first + " " + last,
			Email:           strings.ToLower(first) + "." + strings.ToLower(last) + "@email.com",
			Phone:           fmt.Sprintf("+33%d", 600000000+rand.IntN(9999999)),
			Price:           float64(5 * (rand.IntN(3) + 1)),
			Source:          models.SourceTestGeneration,
		}
		purchasedAt := now.Add(-time.Duration(rand.Int64N(int64(7 * 24 * time.Hour))))

		t, err := s.newTicket(in, purchasedAt)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
		generated = append(generated, t.PublicData)
	}

	if err := s.save(tickets); err != nil {
		return nil, fmt.Errorf("generate test tickets: %w", err)
	}
	s.notifyCounts(tickets)

	logger.Infof("%d test tickets generated (%s)", count, s.identity.Mode())
	return generated, nil
}

// freeTicketNumber picks a random four-digit number not in used and marks
// it. When the range is exhausted it falls back to the next number above it.
func freeTicketNumber(used map[int]bool) int {
	for range 64 {
		n := 1000 + rand.IntN(9000)
		if !used[n] {
			used[n] = true
			return n
		}
	}
	n := 10000
	for used[n] {
		n++
	}
	used[n] = true
	return n
}

// ProtectionStatus reports how many tickets carry a protected identity.
func (s *TicketService) ProtectionStatus() models.ProtectionStatus {
	tickets := s.GetTickets()
	status := models.ProtectionStatus{
		EncryptionWorking: s.identity.EncryptionWorking(),
		IdentityMode:      s.identity.Mode(),
		TotalTickets:      len(tickets),
	}
	for _, t := range tickets {
		if t.ProtectedData != nil {
			status.ProtectedTickets++
		}
	}
	if status.TotalTickets > 0 {
		status.ProtectionRate = int(math.Round(100 * float64(status.ProtectedTickets) / float64(status.TotalTickets)))
	}
	return status
}

// MigrateToProtected moves clear identities into ProtectedData. It only
// runs in encrypted mode and returns how many tickets were migrated.
func (s *TicketService) MigrateToProtected() (int, error) {
	enc, ok := s.identity.(*EncryptedIdentity)
	if !ok {
		return 0, ErrMigrationUnsupported
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tickets, err := s.load()
	if err != nil {
		return 0, fmt.Errorf("migrate tickets: %w", err)
	}
	migrated := 0
	for i := range tickets {
		t := &tickets[i]
		if t.ProtectedData != nil || (t.Email == "" && t.Phone == "") {
			continue
		}
		name := t.Participant
		if name == "" {
			name = models.AnonymousName
		}
		if err := enc.Attach(t, models.Identity{Name: name, Email: t.Email, Phone: t.Phone}); err != nil {
			return 0, err
		}
		t.Participant, t.Email, t.Phone = "", "", ""
		t.SyncPublic()
		migrated++
	}
	if migrated == 0 {
		return 0, nil
	}

	if err := s.save(tickets); err != nil {
		return 0, fmt.Errorf("migrate tickets: %w", err)
	}
	logger.Infof("%d participants migrated to protected storage", migrated)
	return migrated, nil
}

// Debug logs a summary of the ledger for operators.
func (s *TicketService) Debug() {
	tickets := s.GetTickets()
	report := s.aggregate(tickets, false)
	stats := s.GetLiveStats()

	logger.Infof("ledger: %d tickets, %d participants, %d skipped, revenue %.2f",
		len(tickets), len(report.Participants), len(report.Skipped), stats.TotalRevenue)
	logger.Infof("ledger: tickets by source %v, revenue by source %v", stats.TicketsBySource, stats.RevenueBySource)
	if len(tickets) > 0 {
		sample := tickets[0]
		logger.Infof("ledger: sample public %+v, protected=%t", sample.PublicData, sample.ProtectedData != nil)
	}
}
