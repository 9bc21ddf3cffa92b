// Package progression maps a participant count onto the prize-unlock tiers
// and the draw threshold.
package progression

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// DefaultMinimum is the participant count that triggers the draw countdown.
const DefaultMinimum = 150

// DefaultDeadline triggers the countdown regardless of participant count.
var DefaultDeadline = time.Date(2025, time.December, 31, 23, 59, 59, 0, time.UTC)

var ErrInvalidTiers = errors.New("invalid tier table")

// Tier is one progression level.
type Tier struct {
	Level           int    `json:"level"`
	MinParticipants int    `json:"participants"`
	LotCount        int    `json:"lots"`
	Label           string `json:"label"`
	Description     string `json:"description"`
}

// DefaultTiers is the prize-unlock schedule.
var DefaultTiers = []Tier{
	{Level: 1, MinParticipants: 0, LotCount: 3, Label: "Démarrage", Description: "3 lots principaux"},
	{Level: 2, MinParticipants: 50, LotCount: 3, Label: "Croissance", Description: "+2 lots secondaires"},
	{Level: 3, MinParticipants: 100, LotCount: 5, Label: "Popularité", Description: "+2 lots surprises"},
	{Level: 4, MinParticipants: 150, LotCount: 5, Label: "Succès", Description: "+3 lots premium"},
	{Level: 5, MinParticipants: 200, LotCount: 7, Label: "Exceptionnel", Description: "+2 lots exclusifs"},
	{Level: 6, MinParticipants: 300, LotCount: 10, Label: "Prestige", Description: "+3 lots prestige"},
}

// Progress is the distance to the next tier.
type Progress struct {
	ProgressPercent float64 `json:"progress"`
	Remaining       int     `json:"remaining"`
	NextTier        *Tier   `json:"nextLevel,omitempty"`
}

// Status is the draw status shown on the countdown.
type Status struct {
	ThresholdReached  bool     `json:"seuilAtteint"`
	ParticipantCount  int      `json:"participantCount"`
	CurrentTier       Tier     `json:"currentLevel"`
	NextTierProgress  Progress `json:"nextLevelProgress"`
	MissingForMinimum int      `json:"missingForSeuil"`
	DaysUntilDeadline int      `json:"daysUntilDeadline"`
}

// Calculator holds the tier table, the minimum and the deadline. It has no
// other state; every method is a pure function of its arguments.
type Calculator struct {
	tiers    []Tier
	minimum  int
	deadline time.Time
}

// NewCalculator validates the table: the first tier must start at zero and
// both MinParticipants and LotCount must be non-decreasing.
func NewCalculator(tiers []Tier, minimum int, deadline time.Time) (*Calculator, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrInvalidTiers)
	}
	if tiers[0].MinParticipants != 0 {
		return nil, fmt.Errorf("%w: first tier must start at 0 participants", ErrInvalidTiers)
	}
	for i := 1; i < len(tiers); i++ {
		if tiers[i].MinParticipants <= tiers[i-1].MinParticipants {
			return nil, fmt.Errorf("%w: tier %d threshold not increasing", ErrInvalidTiers, tiers[i].Level)
		}
		if tiers[i].LotCount < tiers[i-1].LotCount {
			return nil, fmt.Errorf("%w: tier %d lot count decreases", ErrInvalidTiers, tiers[i].Level)
		}
	}
	if minimum < 0 {
		return nil, fmt.Errorf("%w: negative minimum", ErrInvalidTiers)
	}

	owned := make([]Tier, len(tiers))
	copy(owned, tiers)
	return &Calculator{tiers: owned, minimum: minimum, deadline: deadline}, nil
}

// NewDefault returns the calculator for the default schedule.
func NewDefault(deadline time.Time) *Calculator {
	c, err := NewCalculator(DefaultTiers, DefaultMinimum, deadline)
	if err != nil {
		panic(err)
	}
	return c
}

// Tiers returns a copy of the table.
func (c *Calculator) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Minimum returns the participant threshold.
func (c *Calculator) Minimum() int { return c.minimum }

// Deadline returns the fallback trigger time.
func (c *Calculator) Deadline() time.Time { return c.deadline }

func (c *Calculator) currentIndex(count int) int {
	idx := 0
	for i, t := range c.tiers {
		if count >= t.MinParticipants {
			idx = i
		}
	}
	return idx
}

// CurrentTier is the highest tier whose lower bound is <= count. Negative
// counts are treated as zero.
func (c *Calculator) CurrentTier(count int) Tier {
	return c.tiers[c.currentIndex(count)]
}

// NextTier returns the tier above the current one; ok is false at the top.
func (c *Calculator) NextTier(count int) (Tier, bool) {
	idx := c.currentIndex(count) + 1
	if idx >= len(c.tiers) {
		return Tier{}, false
	}
	return c.tiers[idx], true
}

// ProgressToNext reports progress toward the next tier.
func (c *Calculator) ProgressToNext(count int) Progress {
	next, ok := c.NextTier(count)
	if !ok {
		return Progress{ProgressPercent: 100, Remaining: 0}
	}
	pct := 100 * float64(count) / float64(next.MinParticipants)
	return Progress{
		ProgressPercent: math.Max(0, math.Min(100, pct)),
		Remaining:       max(0, next.MinParticipants-count),
		NextTier:        &next,
	}
}

// ThresholdReached is true once count reaches the minimum or now reaches the
// deadline. Callers latch the first true result and stop asking.
func (c *Calculator) ThresholdReached(count int, now time.Time) bool {
	return count >= c.minimum || !now.Before(c.deadline)
}

// LotCountFor is the number of prizes unlocked at count.
func (c *Calculator) LotCountFor(count int) int {
	return c.CurrentTier(count).LotCount
}

// Status assembles the countdown view for count at now.
func (c *Calculator) Status(count int, now time.Time) Status {
	return Status{
		ThresholdReached:  c.ThresholdReached(count, now),
		ParticipantCount:  count,
		CurrentTier:       c.CurrentTier(count),
		NextTierProgress:  c.ProgressToNext(count),
		MissingForMinimum: max(0, c.minimum-count),
		DaysUntilDeadline: int(math.Ceil(c.deadline.Sub(now).Hours() / 24)),
	}
}
