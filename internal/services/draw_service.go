package services

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/logger"

	"tombola/internal/clock"
	"tombola/internal/models"
)

// DrawService performs draws: it picks a random undrawn ticket for a prize,
// records the result on every ticket sharing that number and marks the
// prize as won.
type DrawService struct {
	mu      sync.Mutex
	tickets *TicketService
	prizes  *PrizeService
	clock   clock.Clock
	results []models.DrawResult
}

// NewDrawService creates a DrawService.
func NewDrawService(tickets *TicketService, prizes *PrizeService, clk clock.Clock) *DrawService {
	return &DrawService{tickets: tickets, prizes: prizes, clock: clk}
}

// EligibleNumbers returns the distinct ticket numbers that have not won yet.
func (s *DrawService) EligibleNumbers() []int {
	seen := make(map[int]bool)
	var numbers []int
	for _, t := range s.tickets.GetPublicTickets() {
		if t.IsDrawn || seen[t.TicketNumber] {
			continue
		}
		seen[t.TicketNumber] = true
		numbers = append(numbers, t.TicketNumber)
	}
	return numbers
}

// Draw picks the winner of prizeID. A ticket number wins at most once.
func (s *DrawService) Draw(prizeID int) (models.DrawResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prize, err := s.prizes.Get(prizeID)
	if err != nil {
		return models.DrawResult{}, err
	}
	if !prize.IsActive {
		return models.DrawResult{}, ErrPrizeInactive
	}
	if prize.Winner != "" {
		return models.DrawResult{}, ErrPrizeAlreadyWon
	}

	eligible := s.EligibleNumbers()
	if len(eligible) == 0 {
		return models.DrawResult{}, ErrNoEligibleTickets
	}
	number := eligible[rand.IntN(len(eligible))]

	result := models.DrawResult{
		PrizeID:      prize.ID,
		PrizeName:    prize.Name,
		TicketNumber: number,
		DrawnAt:      s.clock.Now(),
	}
	if details, ok := s.tickets.GetParticipantDetails(number); ok {
		result.WinnerName = details.Name
	}

	// Claim the prize first; a failed ticket write clears the winner again.
	winner := fmt.Sprintf("#%d", number)
	if _, err := s.prizes.Update(prize.ID, models.PrizePatch{Winner: &winner}); err != nil {
		return models.DrawResult{}, fmt.Errorf("draw prize %d: %w", prize.ID, err)
	}
	if _, err := s.tickets.MarkAsDrawn(number, map[string]any{"prize": prize.Name, "prizeId": prize.ID}); err != nil {
		none := ""
		if _, rbErr := s.prizes.Update(prize.ID, models.PrizePatch{Winner: &none}); rbErr != nil {
			logger.Errorf("draw prize %d: ticket #%d not marked and winner not cleared: %v", prize.ID, number, rbErr)
		}
		return models.DrawResult{}, fmt.Errorf("draw prize %d: %w", prize.ID, err)
	}

	s.results = append(s.results, result)
	logger.Infof("prize %q won by ticket #%d", prize.Name, number)
	return result, nil
}

// Results returns the draws performed by this process, oldest first.
func (s *DrawService) Results() []models.DrawResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.DrawResult, len(s.results))
	copy(out, s.results)
	return out
}
