package models

import (
	"time"

	"tombola/internal/protection"
)

// Ticket sources.
const (
	SourcePurchase       = "purchase"
	SourceTestGeneration = "test_generation"
)

// AnonymousName is stored as the participant name when none is given.
const AnonymousName = "Anonyme"

// AccessLevel selects the ticket projection returned to a caller.
type AccessLevel string

const (
	AccessPublic AccessLevel = "public"
	AccessAdmin  AccessLevel = "admin"
)

// PublicTicket is the read-only projection of a ticket that any visitor may
// see. It never carries identity.
type PublicTicket struct {
	TicketNumber int       `json:"ticketNumber"`
	PurchaseDate time.Time `json:"purchaseDate"`
	TicketPrice  float64   `json:"ticketPrice"`
	IsDrawn      bool      `json:"isDrawn"`
	Source       string    `json:"source"`
}

// Ticket is one purchase (or generated entry) as persisted.
// ProtectedData is set by the encrypted identity; Participant, Email and
// Phone by the clear identity.
type Ticket struct {
	ID            string            `json:"id"`
	Number        int               `json:"number"`
	PurchaseDate  time.Time         `json:"purchaseDate"`
	Price         float64           `json:"price"`
	IsDrawn       bool              `json:"isDrawn"`
	DrawResult    any               `json:"drawResult"`
	DrawDate      *time.Time        `json:"drawDate,omitempty"`
	Source        string            `json:"source"`
	PublicData    PublicTicket      `json:"publicData"`
	ProtectedData protection.Record `json:"protectedData,omitempty"`
	Participant   string            `json:"participant,omitempty"`
	Email         string            `json:"email,omitempty"`
	Phone         string            `json:"phone,omitempty"`
}

// SyncPublic rebuilds PublicData from the canonical fields. Every mutation
// of a ticket ends with a call to it.
func (t *Ticket) SyncPublic() {
	t.PublicData = PublicTicket{
		TicketNumber: t.Number,
		PurchaseDate: t.PurchaseDate,
		TicketPrice:  t.Price,
		IsDrawn:      t.IsDrawn,
		Source:       t.Source,
	}
}

// TicketInput is what a purchase (or generator) supplies.
type TicketInput struct {
	Number          int     `json:"number"`
	ParticipantName string  `json:"participant"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	Price           float64 `json:"price"`
	Source          string  `json:"source"`
}

// Identity is the sensitive part of a ticket.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// TicketView is a ticket as returned to a caller. Identity fields are only
// filled for admin access.
type TicketView struct {
	PublicTicket
	ID          string `json:"id,omitempty"`
	Participant string `json:"participant,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
}

// Participant is derived from every ticket sharing an identity key.
type Participant struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	Tickets       int       `json:"tickets"`
	TicketNumbers []int     `json:"ticketNumbers"`
	FirstPurchase time.Time `json:"firstPurchase"`
	LastPurchase  time.Time `json:"lastPurchase"`
	TotalSpent    float64   `json:"totalSpent"`
	Source        string    `json:"source"`
}

// Reasons a ticket is left out of participant aggregation.
const (
	SkipAnonymous     = "anonymous"
	SkipNoEmail       = "no_email"
	SkipUndecryptable = "undecryptable"
	SkipNoIdentity    = "no_identity"
	SkipTestData      = "test_data"
)

// SkippedTicket records a ticket that produced no participant.
type SkippedTicket struct {
	TicketID string `json:"ticketId"`
	Number   int    `json:"number"`
	Reason   string `json:"reason"`
	Detail   string `json:"detail,omitempty"`
}

// ParticipantReport is the outcome of one aggregation pass.
type ParticipantReport struct {
	Participants []Participant   `json:"participants"`
	Skipped      []SkippedTicket `json:"skipped"`
}

// ParticipantDetails is one decrypted participant bound to a ticket.
type ParticipantDetails struct {
	Identity
	TicketNumber int       `json:"ticketNumber"`
	PurchaseDate time.Time `json:"purchaseDate"`
	Price        float64   `json:"price"`
	Source       string    `json:"source"`
}

// LiveStats is computed from public projections only.
type LiveStats struct {
	TotalTickets    int                `json:"totalTickets"`
	TotalRevenue    float64            `json:"totalRevenue"`
	RecentTickets   int                `json:"recentTickets"`
	RecentRevenue   float64            `json:"recentRevenue"`
	OrganicTickets  int                `json:"organicTickets"`
	OrganicRevenue  float64            `json:"organicRevenue"`
	TicketsBySource map[string]int     `json:"ticketsBySource"`
	RevenueBySource map[string]float64 `json:"revenueBySource"`
	DrawnTickets    int                `json:"drawnTickets"`
}

// ProtectionStatus summarises how much of the ledger is protected.
type ProtectionStatus struct {
	EncryptionWorking bool   `json:"encryptionWorking"`
	IdentityMode      string `json:"identityMode"`
	TotalTickets      int    `json:"totalTickets"`
	ProtectedTickets  int    `json:"protectedTickets"`
	ProtectionRate    int    `json:"protectionRate"`
}

// Prize is one lot on offer.
type Prize struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Value       string `json:"value"`
	Emoji       string `json:"emoji"`
	Order       int    `json:"order"`
	Image       string `json:"image"`
	IsActive    bool   `json:"isActive"`
	Winner      string `json:"winner,omitempty"`
}

// PrizePatch carries the fields an update changes; nil means unchanged.
type PrizePatch struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Value       *string `json:"value"`
	Emoji       *string `json:"emoji"`
	Image       *string `json:"image"`
	IsActive    *bool   `json:"isActive"`
	Winner      *string `json:"winner"`
}

// DrawResult stores the outcome of a single draw, linking a winning ticket
// to a prize.
type DrawResult struct {
	PrizeID      int       `json:"prizeId"`
	PrizeName    string    `json:"prizeName"`
	TicketNumber int       `json:"ticketNumber"`
	WinnerName   string    `json:"winnerName,omitempty"`
	DrawnAt      time.Time `json:"drawnAt"`
}
