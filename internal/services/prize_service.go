package services

import (
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/logger"

	"tombola/internal/models"
	"tombola/internal/progression"
	"tombola/internal/store"
)

const defaultPrizeEmoji = "🎁"

var defaultPrizes = []models.Prize{
	{ID: 1, Name: "Voyage en Italie", Description: "Weekend romantique à Venise pour 2 personnes", Value: "€1,500", Emoji: "🇮🇹", Order: 1, IsActive: true,
		Image: "https://images.unsplash.com/photo-1515542622106-78bda8ba0e5b?w=300&h=200&fit=crop"},
	{ID: 2, Name: "iPhone 15 Pro", Description: "Dernier modèle 256GB", Value: "€1,200", Emoji: "📱", Order: 2, IsActive: true,
		Image: "https://images.unsplash.com/photo-1592750475338-74b7b21085ab?w=300&h=200&fit=crop"},
	{ID: 3, Name: "Bon d'achat Amazon", Description: "Dépensez-le comme vous voulez !", Value: "€500", Emoji: "📦", Order: 3, IsActive: true,
		Image: "https://images.unsplash.com/photo-1523474253046-8cd2748b5fd2?w=300&h=200&fit=crop"},
}

var samplePrizes = []models.Prize{
	{Name: "Dîner pour deux", Description: "Menu découverte dans un restaurant étoilé", Value: "€250", Emoji: "🍽️"},
	{Name: "Enceinte Bluetooth", Description: "Son 360° étanche", Value: "€150", Emoji: "🔊"},
	{Name: "Coffret gourmand", Description: "Produits du terroir", Value: "€80", Emoji: "🧺"},
	{Name: "Carte cadeau librairie", Description: "À valoir sur tout le magasin", Value: "€50", Emoji: "📚"},
	{Name: "Montre connectée", Description: "Suivi d'activité et notifications", Value: "€300", Emoji: "⌚"},
}

// ParticipantCounter supplies the participant count that caps the catalog.
type ParticipantCounter interface {
	UniqueParticipantCount() int
}

// PrizeService manages the prize catalog stored under tombolaPrizes. The
// number of prizes is capped by the lot count of the current tier.
type PrizeService struct {
	mu      sync.Mutex
	store   store.Store
	calc    *progression.Calculator
	counter ParticipantCounter
}

// NewPrizeService creates the catalog.
func NewPrizeService(s store.Store, calc *progression.Calculator, counter ParticipantCounter) *PrizeService {
	return &PrizeService{store: s, calc: calc, counter: counter}
}

// load returns the stored prizes, seeding the defaults when the document is
// missing. A corrupt document reads as empty and is left in place; a failed
// read is an error.
func (s *PrizeService) load() ([]models.Prize, error) {
	var prizes []models.Prize
	found, err := store.LoadJSON(s.store, store.KeyPrizes, &prizes)
	if err != nil {
		return nil, fmt.Errorf("load prizes: %w", err)
	}
	if found {
		return prizes, nil
	}

	_, exists, err := s.store.Get(store.KeyPrizes)
	if err != nil {
		return nil, fmt.Errorf("load prizes: %w", err)
	}
	if exists {
		return []models.Prize{}, nil
	}
	prizes = slices.Clone(defaultPrizes)
	if err := store.SaveJSON(s.store, store.KeyPrizes, prizes); err != nil {
		logger.Warningf("prizes: seed defaults: %v", err)
	}
	return prizes, nil
}

func (s *PrizeService) save(prizes []models.Prize) error {
	return store.SaveJSON(s.store, store.KeyPrizes, prizes)
}

func sortByOrder(prizes []models.Prize) {
	sort.SliceStable(prizes, func(i, j int) bool { return prizes[i].Order < prizes[j].Order })
}

// List returns the prizes sorted by display order.
func (s *PrizeService) List() []models.Prize {
	s.mu.Lock()
	defer s.mu.Unlock()

	prizes, err := s.load()
	if err != nil {
		logger.Warningf("prizes: %v", err)
		return []models.Prize{}
	}
	sortByOrder(prizes)
	return prizes
}

// Get returns one prize.
func (s *PrizeService) Get(id int) (models.Prize, error) {
	s.mu.Lock()
	prizes, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return models.Prize{}, err
	}
	for _, p := range prizes {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Prize{}, ErrPrizeNotFound
}

// MaxLots is how many prizes the current participant count unlocks.
func (s *PrizeService) MaxLots() int {
	return s.calc.LotCountFor(s.counter.UniqueParticipantCount())
}

func nextPrizeID(prizes []models.Prize) int {
	id := 0
	for _, p := range prizes {
		id = max(id, p.ID)
	}
	return id + 1
}

func (s *PrizeService) addLocked(prizes []models.Prize, p models.Prize) ([]models.Prize, models.Prize) {
	p.ID = nextPrizeID(prizes)
	p.Order = len(prizes) + 1
	p.IsActive = true
	if p.Emoji == "" {
		p.Emoji = defaultPrizeEmoji
	}
	return append(prizes, p), p
}

// Add appends a prize at the end of the display order.
func (s *PrizeService) Add(p models.Prize) (models.Prize, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Value = strings.TrimSpace(p.Value)
	if p.Name == "" || p.Value == "" {
		return models.Prize{}, ErrPrizeFieldsRequired
	}
	maxLots := s.MaxLots()

	s.mu.Lock()
	defer s.mu.Unlock()

	prizes, err := s.load()
	if err != nil {
		return models.Prize{}, err
	}
	if len(prizes) >= maxLots {
		return models.Prize{}, ErrPrizeLimitReached
	}
	prizes, added := s.addLocked(prizes, p)
	if err := s.save(prizes); err != nil {
		return models.Prize{}, err
	}
	logger.Infof("prize %d added: %s", added.ID, added.Name)
	return added, nil
}

// AddSamples fills the free slots with sample prizes and returns what was
// added.
func (s *PrizeService) AddSamples() ([]models.Prize, error) {
	maxLots := s.MaxLots()

	s.mu.Lock()
	defer s.mu.Unlock()

	prizes, err := s.load()
	if err != nil {
		return nil, err
	}
	free := min(maxLots-len(prizes), len(samplePrizes))
	if free <= 0 {
		return nil, ErrPrizeLimitReached
	}

	added := make([]models.Prize, 0, free)
	for _, sample := range samplePrizes[:free] {
		var p models.Prize
		prizes, p = s.addLocked(prizes, sample)
		added = append(added, p)
	}
	if err := s.save(prizes); err != nil {
		return nil, err
	}
	return added, nil
}

// Update applies patch to the prize with id.
func (s *PrizeService) Update(id int, patch models.PrizePatch) (models.Prize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prizes, err := s.load()
	if err != nil {
		return models.Prize{}, err
	}
	i := slices.IndexFunc(prizes, func(p models.Prize) bool { return p.ID == id })
	if i < 0 {
		return models.Prize{}, ErrPrizeNotFound
	}

	p := &prizes[i]
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return models.Prize{}, ErrPrizeFieldsRequired
		}
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Value != nil {
		if strings.TrimSpace(*patch.Value) == "" {
			return models.Prize{}, ErrPrizeFieldsRequired
		}
		p.Value = strings.TrimSpace(*patch.Value)
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Emoji != nil {
		p.Emoji = *patch.Emoji
	}
	if patch.Image != nil {
		p.Image = *patch.Image
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	if patch.Winner != nil {
		p.Winner = *patch.Winner
	}

	if err := s.save(prizes); err != nil {
		return models.Prize{}, err
	}
	return *p, nil
}

// SetActive toggles whether a prize is offered.
func (s *PrizeService) SetActive(id int, active bool) (models.Prize, error) {
	return s.Update(id, models.PrizePatch{IsActive: &active})
}

// Delete removes a prize and closes the gap in the display order.
func (s *PrizeService) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prizes, err := s.load()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(prizes, func(p models.Prize) bool { return p.ID == id })
	if i < 0 {
		return ErrPrizeNotFound
	}
	prizes = slices.Delete(prizes, i, i+1)
	sortByOrder(prizes)
	for j := range prizes {
		prizes[j].Order = j + 1
	}
	return s.save(prizes)
}

// Reorder sets the display order to ids, which must name every prize once.
func (s *PrizeService) Reorder(ids []int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prizes, err := s.load()
	if err != nil {
		return err
	}
	if len(ids) != len(prizes) {
		return ErrInvalidPrizeOrder
	}
	position := make(map[int]int, len(ids))
	for i, id := range ids {
		if _, dup := position[id]; dup {
			return ErrInvalidPrizeOrder
		}
		position[id] = i + 1
	}
	for i := range prizes {
		order, ok := position[prizes[i].ID]
		if !ok {
			return ErrInvalidPrizeOrder
		}
		prizes[i].Order = order
	}
	sortByOrder(prizes)
	return s.save(prizes)
}
