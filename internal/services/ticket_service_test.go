package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"tombola/internal/clock"
	"tombola/internal/crypto"
	"tombola/internal/models"
	"tombola/internal/protection"
	"tombola/internal/store"
)

func TestTicketService_EndToEnd(t *testing.T) {
	for _, mode := range []string{ModeEncrypted, ModeClear} {
		t.Run(mode, func(t *testing.T) {
			f := newLedger(t, mode, true)
			svc := f.svc

			view, err := svc.AddTicket(models.TicketInput{Number: 42, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})
			if err != nil {
				t.Fatalf("Expected no error, but got %v", err)
			}
			if view.ID == "" || view.TicketNumber != 42 || view.TicketPrice != 5 || view.Source != models.SourcePurchase {
				t.Errorf("unexpected receipt %+v", view)
			}
			if view.Email != "" || view.Participant != "" {
				t.Errorf("receipt must not carry identity: %+v", view)
			}

			if got := len(svc.GetTickets()); got != 1 {
				t.Fatalf("Expected 1 ticket, but got %d", got)
			}
			participants := svc.GetAllParticipants()
			if len(participants) != 1 {
				t.Fatalf("Expected 1 participant, but got %d", len(participants))
			}
			if participants[0].Name != "Jean Dupont" || participants[0].TotalSpent != 5 {
				t.Errorf("unexpected participant %+v", participants[0])
			}

			n, err := svc.MarkAsDrawn(42, map[string]any{"prize": "A"})
			if err != nil || n != 1 {
				t.Fatalf("MarkAsDrawn = %d, %v", n, err)
			}
			ticket := svc.GetTickets()[0]
			if !ticket.IsDrawn || !ticket.PublicData.IsDrawn {
				t.Errorf("Expected ticket and projection drawn, got %+v", ticket)
			}
			if ticket.DrawDate == nil || !ticket.DrawDate.Equal(testNow) {
				t.Errorf("unexpected draw date %v", ticket.DrawDate)
			}
			if res, ok := ticket.DrawResult.(map[string]any); !ok || res["prize"] != "A" {
				t.Errorf("unexpected draw result %#v", ticket.DrawResult)
			}
		})
	}
}

func TestTicketService_Deduplication(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	svc := f.svc

	mustAdd(t, svc, models.TicketInput{Number: 7, ParticipantName: "Marie Martin", Email: "marie@x.com", Price: 5})
	f.clock.Advance(time.Hour)
	mustAdd(t, svc, models.TicketInput{Number: 8, ParticipantName: "Marie Martin", Email: " Marie@X.com ", Price: 10, Source: "referral"})
	mustAdd(t, svc, models.TicketInput{Number: 9, ParticipantName: "Paul Petit", Email: "paul@x.com", Price: 5})

	participants := svc.GetAllParticipants()
	if len(participants) != 2 {
		t.Fatalf("Expected 2 participants, but got %d", len(participants))
	}
	marie := participants[0]
	if marie.Tickets != 2 || marie.TotalSpent != 15 {
		t.Errorf("unexpected merge %+v", marie)
	}
	if len(marie.TicketNumbers) != 2 || marie.TicketNumbers[0] != 7 || marie.TicketNumbers[1] != 8 {
		t.Errorf("unexpected ticket numbers %v", marie.TicketNumbers)
	}
	if !marie.FirstPurchase.Equal(testNow) || !marie.LastPurchase.Equal(testNow.Add(time.Hour)) {
		t.Errorf("unexpected purchase window %v .. %v", marie.FirstPurchase, marie.LastPurchase)
	}
	if marie.Source != "referral" {
		t.Errorf("Expected most recent source, got %q", marie.Source)
	}
	if svc.UniqueParticipantCount() != 2 {
		t.Errorf("UniqueParticipantCount = %d", svc.UniqueParticipantCount())
	}
}

func TestTicketService_AnonymousTicketsCountOnlyInTotals(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	svc := f.svc

	mustAdd(t, svc, models.TicketInput{Number: 1, Price: 5})
	mustAdd(t, svc, models.TicketInput{Number: 2, ParticipantName: "Sans Mail", Price: 5})
	mustAdd(t, svc, models.TicketInput{Number: 3, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})

	report := svc.GetParticipantReport(ReportOptions{})
	if len(report.Participants) != 1 {
		t.Fatalf("Expected 1 participant, got %d", len(report.Participants))
	}
	reasons := map[int]string{}
	for _, s := range report.Skipped {
		reasons[s.Number] = s.Reason
	}
	if reasons[1] != models.SkipAnonymous || reasons[2] != models.SkipNoEmail {
		t.Errorf("unexpected skip reasons %v", reasons)
	}

	stats := svc.GetLiveStats()
	if stats.TotalTickets != 3 || stats.TotalRevenue != 15 {
		t.Errorf("unexpected totals %+v", stats)
	}
}

func TestTicketService_LiveStatsMatchTickets(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	svc := f.svc

	mustAdd(t, svc, models.TicketInput{Number: 1, ParticipantName: "A", Email: "a@x.com", Price: 5})
	mustAdd(t, svc, models.TicketInput{Number: 2, ParticipantName: "B", Email: "b@x.com", Price: 12.5, Source: "facebook"})
	f.clock.Advance(48 * time.Hour)
	plain := f.ledgerOver(t, ModeClear, "", false)
	mustAdd(t, plain, models.TicketInput{Number: 3, ParticipantName: "C", Email: "c@x.com", Price: 2.5})
	if _, err := svc.MarkAsDrawn(2, "lot"); err != nil {
		t.Fatal(err)
	}

	stats := svc.GetLiveStats()
	var sum float64
	for _, tk := range svc.GetTickets() {
		sum += tk.Price
	}
	if stats.TotalTickets != len(svc.GetTickets()) || stats.TotalRevenue != sum {
		t.Errorf("stats %+v do not match tickets (sum %v)", stats, sum)
	}
	if stats.RecentTickets != 1 || stats.RecentRevenue != 2.5 {
		t.Errorf("unexpected recent figures %+v", stats)
	}
	if stats.TicketsBySource["purchase"] != 2 || stats.TicketsBySource["facebook"] != 1 {
		t.Errorf("unexpected source breakdown %v", stats.TicketsBySource)
	}
	if stats.RevenueBySource["facebook"] != 12.5 {
		t.Errorf("unexpected revenue breakdown %v", stats.RevenueBySource)
	}
	if stats.DrawnTickets != 1 {
		t.Errorf("Expected 1 drawn ticket, got %d", stats.DrawnTickets)
	}
}

func TestTicketService_CorruptStoreReadsEmpty(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	if err := f.store.Set(store.KeyTickets, []byte("{definitely not json")); err != nil {
		t.Fatal(err)
	}

	if got := f.svc.GetTickets(); len(got) != 0 {
		t.Fatalf("Expected empty ledger, got %d tickets", len(got))
	}
	if got := f.svc.GetAllParticipants(); len(got) != 0 {
		t.Errorf("Expected no participants, got %d", len(got))
	}
	if stats := f.svc.GetLiveStats(); stats.TotalTickets != 0 {
		t.Errorf("Expected zero stats, got %+v", stats)
	}
}

func TestTicketService_GenerateTestTickets(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	svc := f.svc

	mustAdd(t, svc, models.TicketInput{Number: 1234, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})
	before := svc.GetTickets()[0]
	total := svc.GetLiveStats().TotalTickets

	generated, err := svc.GenerateTestTickets(10)
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if len(generated) != 10 {
		t.Fatalf("Expected 10 generated tickets, got %d", len(generated))
	}
	if got := svc.GetLiveStats().TotalTickets; got != total+10 {
		t.Errorf("Expected %d tickets, got %d", total+10, got)
	}

	tickets := svc.GetTickets()
	if tickets[0].ID != before.ID || tickets[0].Number != before.Number || tickets[0].Price != before.Price {
		t.Errorf("existing ticket disturbed: %+v", tickets[0])
	}

	numbers := map[int]bool{}
	for _, tk := range tickets {
		if numbers[tk.Number] {
			t.Errorf("duplicate generated number %d", tk.Number)
		}
		numbers[tk.Number] = true
	}
	for _, g := range generated {
		if g.Source != models.SourceTestGeneration {
			t.Errorf("unexpected source %q", g.Source)
		}
		if g.PurchaseDate.After(testNow) || testNow.Sub(g.PurchaseDate) > 7*24*time.Hour {
			t.Errorf("purchase date %v outside the last week", g.PurchaseDate)
		}
	}

	organic := svc.GetParticipantReport(ReportOptions{ExcludeTestData: true})
	if len(organic.Participants) != 1 {
		t.Errorf("Expected only the organic participant, got %d", len(organic.Participants))
	}
	if stats := svc.GetLiveStats(); stats.OrganicTickets != 1 {
		t.Errorf("Expected 1 organic ticket, got %d", stats.OrganicTickets)
	}

	if _, err := svc.GenerateTestTickets(0); !errors.Is(err, ErrInvalidCount) {
		t.Errorf("Expected ErrInvalidCount, got %v", err)
	}
}

func TestTicketService_AccessLevels(t *testing.T) {
	f := newLedger(t, ModeEncrypted, true)
	mustAdd(t, f.svc, models.TicketInput{Number: 5, ParticipantName: "Jean Dupont", Email: "jean@x.com", Phone: "0612345678", Price: 5})
	mustAdd(t, f.svc, models.TicketInput{Number: 6, Price: 5})
	ctx := context.Background()

	t.Run("public strips identity", func(t *testing.T) {
		for _, v := range f.svc.GetTicketsWithAccess(ctx, models.AccessPublic) {
			if v.ID != "" || v.Participant != "" || v.Email != "" || v.Phone != "" {
				t.Errorf("public view leaks identity: %+v", v)
			}
		}
	})

	t.Run("admin sees identity", func(t *testing.T) {
		views := f.svc.GetTicketsWithAccess(ctx, models.AccessAdmin)
		if views[0].Participant != "Jean Dupont" || views[0].Email != "jean@x.com" || views[0].Phone != "0612345678" {
			t.Errorf("unexpected admin view %+v", views[0])
		}
		if views[1].Participant != models.AnonymousName {
			t.Errorf("unexpected anonymous view %+v", views[1])
		}
	})

	t.Run("failed check falls back to public", func(t *testing.T) {
		denied := f.ledgerOver(t, ModeEncrypted, "test-key", false)
		for _, v := range denied.GetTicketsWithAccess(ctx, models.AccessAdmin) {
			if v.Participant != "" || v.Email != "" {
				t.Errorf("denied admin view leaks identity: %+v", v)
			}
		}
	})
}

func TestTicketService_EncryptedStorageHidesIdentity(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	mustAdd(t, f.svc, models.TicketInput{Number: 5, ParticipantName: "Jean Dupont", Email: "jean@x.com", Phone: "0612345678", Price: 5})

	raw, _, _ := f.store.Get(store.KeyTickets)
	for _, secret := range []string{"Jean Dupont", "jean@x.com", "0612345678"} {
		if strings.Contains(string(raw), secret) {
			t.Errorf("stored document contains %q in clear", secret)
		}
	}
	tk := f.svc.GetTickets()[0]
	if !protection.IsProtected(tk.ProtectedData) || tk.Email != "" {
		t.Errorf("unexpected stored ticket %+v", tk)
	}
}

func TestTicketService_UndecryptableTicketsAreSkipped(t *testing.T) {
	f := newLedger(t, ModeEncrypted, true)
	mustAdd(t, f.svc, models.TicketInput{Number: 1, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})

	rotated := f.ledgerOver(t, ModeEncrypted, "rotated-key", true)
	mustAdd(t, rotated, models.TicketInput{Number: 2, ParticipantName: "Marie Martin", Email: "marie@x.com", Price: 5})

	report := rotated.GetParticipantReport(ReportOptions{})
	if len(report.Participants) != 1 || report.Participants[0].Name != "Marie Martin" {
		t.Fatalf("unexpected participants %+v", report.Participants)
	}
	if len(report.Skipped) != 1 || report.Skipped[0].Reason != models.SkipUndecryptable || report.Skipped[0].Number != 1 {
		t.Errorf("unexpected skipped %+v", report.Skipped)
	}

	views := rotated.GetTicketsWithAccess(context.Background(), models.AccessAdmin)
	if views[0].Email != ProtectedPlaceholder {
		t.Errorf("Expected placeholder, got %+v", views[0])
	}
	if _, ok := rotated.GetParticipantDetails(1); ok {
		t.Error("Expected no details for an undecryptable ticket")
	}
}

func TestTicketService_MarkAsDrawn(t *testing.T) {
	f := newLedger(t, ModeClear, false)
	svc := f.svc
	mustAdd(t, svc, models.TicketInput{Number: 10, ParticipantName: "A", Email: "a@x.com", Price: 5})
	mustAdd(t, svc, models.TicketInput{Number: 10, ParticipantName: "B", Email: "b@x.com", Price: 5})
	mustAdd(t, svc, models.TicketInput{Number: 11, ParticipantName: "C", Email: "c@x.com", Price: 5})

	t.Run("unknown number is a no-op", func(t *testing.T) {
		n, err := svc.MarkAsDrawn(999, "x")
		if err != nil || n != 0 {
			t.Fatalf("MarkAsDrawn(999) = %d, %v", n, err)
		}
	})

	t.Run("shared numbers move together", func(t *testing.T) {
		n, err := svc.MarkAsDrawn(10, "first")
		if err != nil || n != 2 {
			t.Fatalf("MarkAsDrawn(10) = %d, %v", n, err)
		}
		for _, tk := range svc.GetTickets() {
			drawn := tk.Number == 10
			if tk.IsDrawn != drawn || tk.PublicData.IsDrawn != drawn {
				t.Errorf("ticket %d: isDrawn=%v publicData.isDrawn=%v", tk.Number, tk.IsDrawn, tk.PublicData.IsDrawn)
			}
		}
	})

	t.Run("first result is kept", func(t *testing.T) {
		n, err := svc.MarkAsDrawn(10, "second")
		if err != nil || n != 0 {
			t.Fatalf("MarkAsDrawn(10) again = %d, %v", n, err)
		}
		if got := svc.GetTickets()[0].DrawResult; got != "first" {
			t.Errorf("Expected first result kept, got %v", got)
		}
	})
}

func TestTicketService_ParticipantDetails(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	mustAdd(t, f.svc, models.TicketInput{Number: 42, ParticipantName: "Jean Dupont", Email: "jean@x.com", Phone: "0612345678", Price: 5, Source: "instagram"})

	d, ok := f.svc.GetParticipantDetails(42)
	if !ok {
		t.Fatal("Expected details for ticket 42")
	}
	if d.Name != "Jean Dupont" || d.Email != "jean@x.com" || d.Phone != "0612345678" || d.Price != 5 || d.Source != "instagram" {
		t.Errorf("unexpected details %+v", d)
	}
	if _, ok := f.svc.GetParticipantDetails(43); ok {
		t.Error("Expected nothing for an unknown ticket")
	}
}

func TestTicketService_Notifications(t *testing.T) {
	f := newLedger(t, ModeEncrypted, false)
	mustAdd(t, f.svc, models.TicketInput{Number: 1, ParticipantName: "A", Email: "a@x.com", Price: 5})
	mustAdd(t, f.svc, models.TicketInput{Number: 2, ParticipantName: "A", Email: "a@x.com", Price: 5})

	if got := f.notifier.tickets; len(got) != 2 || got[1] != 2 {
		t.Errorf("unexpected ticket events %v", got)
	}
	if got := f.notifier.participants; len(got) != 2 || got[1] != 1 {
		t.Errorf("unexpected participant events %v", got)
	}

	if err := f.svc.ClearAllTickets(); err != nil {
		t.Fatal(err)
	}
	if len(f.svc.GetTickets()) != 0 {
		t.Error("Expected empty ledger after clear")
	}
	if len(f.notifier.resets) != 1 || f.notifier.resets[0] != "manual_clear" {
		t.Errorf("unexpected reset events %v", f.notifier.resets)
	}
	if last := f.notifier.tickets[len(f.notifier.tickets)-1]; last != 0 {
		t.Errorf("Expected a zero ticket event, got %d", last)
	}
}

func TestTicketService_FailClosed(t *testing.T) {
	clk := clock.NewManual(testNow)
	st := store.NewMemory()
	svc := NewTicketService(TicketServiceConfig{
		Store:    st,
		Identity: NewEncryptedIdentity(protection.NewMapper(failingSealer{}, clk), true),
		Clock:    clk,
	})

	_, err := svc.AddTicket(models.TicketInput{Number: 1, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})
	if err == nil {
		t.Fatal("Expected the write to be rejected")
	}
	if len(svc.GetTickets()) != 0 {
		t.Error("Expected nothing persisted")
	}

	lenient := NewTicketService(TicketServiceConfig{
		Store:    st,
		Identity: NewEncryptedIdentity(protection.NewMapper(failingSealer{}, clk), false),
		Clock:    clk,
	})
	if _, err := lenient.AddTicket(models.TicketInput{Number: 1, ParticipantName: "Jean Dupont", Price: 5}); err != nil {
		t.Fatalf("Expected lenient mode to accept the ticket, got %v", err)
	}
}

func TestTicketService_RejectsInvalidInput(t *testing.T) {
	f := newLedger(t, ModeClear, false)
	if _, err := f.svc.AddTicket(models.TicketInput{Number: -1}); !errors.Is(err, ErrInvalidTicketNumber) {
		t.Errorf("Expected ErrInvalidTicketNumber, got %v", err)
	}
	if _, err := f.svc.AddTicket(models.TicketInput{Number: 1, Price: -5}); !errors.Is(err, ErrInvalidPrice) {
		t.Errorf("Expected ErrInvalidPrice, got %v", err)
	}
}

func TestTicketService_ProtectionStatusAndMigration(t *testing.T) {
	f := newLedger(t, ModeClear, false)
	mustAdd(t, f.svc, models.TicketInput{Number: 1, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})
	mustAdd(t, f.svc, models.TicketInput{Number: 2, ParticipantName: "Marie Martin", Phone: "0612345678", Price: 5})

	if _, err := f.svc.MigrateToProtected(); !errors.Is(err, ErrMigrationUnsupported) {
		t.Fatalf("Expected ErrMigrationUnsupported, got %v", err)
	}

	enc := f.ledgerOver(t, ModeEncrypted, "test-key", false)
	status := enc.ProtectionStatus()
	if !status.EncryptionWorking || status.ProtectedTickets != 0 || status.TotalTickets != 2 || status.ProtectionRate != 0 {
		t.Errorf("unexpected status before migration %+v", status)
	}
	if got := enc.GetAllParticipants(); len(got) != 0 {
		t.Errorf("clear tickets should not resolve in encrypted mode, got %d", len(got))
	}

	n, err := enc.MigrateToProtected()
	if err != nil || n != 2 {
		t.Fatalf("MigrateToProtected = %d, %v", n, err)
	}
	if status := enc.ProtectionStatus(); status.ProtectedTickets != 2 || status.ProtectionRate != 100 {
		t.Errorf("unexpected status after migration %+v", status)
	}
	participants := enc.GetAllParticipants()
	if len(participants) != 1 || participants[0].Email != "jean@x.com" {
		t.Errorf("unexpected participants after migration %+v", participants)
	}
	if n, _ := enc.MigrateToProtected(); n != 0 {
		t.Errorf("second migration should be a no-op, got %d", n)
	}
}

func mustAdd(t *testing.T, svc *TicketService, in models.TicketInput) models.TicketView {
	t.Helper()
	v, err := svc.AddTicket(in)
	if err != nil {
		t.Fatalf("add ticket %d: %v", in.Number, err)
	}
	return v
}

func TestTicketService_ReadErrorNeverOverwritesLedger(t *testing.T) {
	clk := clock.NewManual(testNow)
	st := &flakyStore{Store: store.NewMemory(), key: store.KeyTickets}
	svc := NewTicketService(TicketServiceConfig{
		Store:    st,
		Identity: encryptedIdentity(t, "test-key", clk),
		Clock:    clk,
	})
	for n := 1; n <= 5; n++ {
		mustAdd(t, svc, models.TicketInput{Number: n, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})
	}

	st.failGets = true
	if _, err := svc.AddTicket(models.TicketInput{Number: 6, ParticipantName: "Marie Martin", Email: "marie@x.com", Price: 5}); !errors.Is(err, errTimeout) {
		t.Errorf("AddTicket: expected the read error, got %v", err)
	}
	if _, err := svc.GenerateTestTickets(3); !errors.Is(err, errTimeout) {
		t.Errorf("GenerateTestTickets: expected the read error, got %v", err)
	}
	if _, err := svc.MarkAsDrawn(1, "lot"); !errors.Is(err, errTimeout) {
		t.Errorf("MarkAsDrawn: expected the read error, got %v", err)
	}
	if _, err := svc.MigrateToProtected(); !errors.Is(err, errTimeout) {
		t.Errorf("MigrateToProtected: expected the read error, got %v", err)
	}
	if got := svc.GetTickets(); len(got) != 0 {
		t.Errorf("Expected reads to degrade to empty, got %d tickets", len(got))
	}

	st.failGets = false
	tickets := svc.GetTickets()
	if len(tickets) != 5 {
		t.Fatalf("Expected the 5 stored tickets to survive, got %d", len(tickets))
	}
	for _, tk := range tickets {
		if tk.IsDrawn {
			t.Errorf("ticket %d marked drawn during a failed read", tk.Number)
		}
	}
	mustAdd(t, svc, models.TicketInput{Number: 6, ParticipantName: "Marie Martin", Email: "marie@x.com", Price: 5})
	if got := len(svc.GetTickets()); got != 6 {
		t.Errorf("Expected 6 tickets, got %d", got)
	}
}

func TestTicketService_ClearFallbackIdentityStaysReadable(t *testing.T) {
	clk := clock.NewManual(testNow)
	c, err := crypto.NewCipher("test-key")
	if err != nil {
		t.Fatal(err)
	}
	st := store.NewMemory()
	lenient := NewTicketService(TicketServiceConfig{
		Store:    st,
		Identity: NewEncryptedIdentity(protection.NewMapper(sealFailing{c}, clk), false),
		Access:   staticAccess(true),
		Clock:    clk,
	})
	mustAdd(t, lenient, models.TicketInput{Number: 42, ParticipantName: "Jean Dupont", Email: "jean@x.com", Phone: "0612345678", Price: 5})

	// a healthy cipher reading the same ledger recovers the clear values
	healthy := NewTicketService(TicketServiceConfig{
		Store:    st,
		Identity: NewEncryptedIdentity(protection.NewMapper(c, clk), false),
		Access:   staticAccess(true),
		Clock:    clk,
	})
	for name, svc := range map[string]*TicketService{"seal failing": lenient, "healthy": healthy} {
		t.Run(name, func(t *testing.T) {
			report := svc.GetParticipantReport(ReportOptions{})
			if len(report.Participants) != 1 || len(report.Skipped) != 0 {
				t.Fatalf("Expected 1 participant and no skips, got %+v", report)
			}
			if p := report.Participants[0]; p.Name != "Jean Dupont" || p.Email != "jean@x.com" || p.Phone != "0612345678" {
				t.Errorf("unexpected participant %+v", p)
			}

			d, ok := svc.GetParticipantDetails(42)
			if !ok || d.Email != "jean@x.com" {
				t.Errorf("GetParticipantDetails = %+v, %v", d, ok)
			}

			views := svc.GetTicketsWithAccess(context.Background(), models.AccessAdmin)
			if views[0].Email != "jean@x.com" || views[0].Participant != "Jean Dupont" {
				t.Errorf("unexpected admin view %+v", views[0])
			}
		})
	}
}

func TestTicketService_PartiallyUndecryptableKeepsReadableFields(t *testing.T) {
	other, err := crypto.NewCipher("other-key")
	if err != nil {
		t.Fatal(err)
	}
	sealed, err := other.Seal("0612345678")
	if err != nil {
		t.Fatal(err)
	}

	f := newLedger(t, ModeEncrypted, true)
	mustAdd(t, f.svc, models.TicketInput{Number: 7, ParticipantName: "Jean Dupont", Email: "jean@x.com", Price: 5})
	tickets := f.svc.GetTickets()
	tickets[0].ProtectedData["phone"] = sealed
	if err := store.SaveJSON(f.store, store.KeyTickets, tickets); err != nil {
		t.Fatal(err)
	}

	d, ok := f.svc.GetParticipantDetails(7)
	if !ok {
		t.Fatal("Expected details despite one unreadable field")
	}
	if d.Email != "jean@x.com" || d.Phone != "" {
		t.Errorf("Expected the foreign-key phone dropped, got %+v", d)
	}
}
