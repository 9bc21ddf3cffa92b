package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tombola/internal/models"
	"tombola/internal/progression"
	"tombola/internal/store"
)

type fixedCount int

func (c fixedCount) UniqueParticipantCount() int { return int(c) }

func newCatalog(t *testing.T, participants int) (*PrizeService, *store.Memory) {
	t.Helper()
	st := store.NewMemory()
	return NewPrizeService(st, progression.NewDefault(testNow.AddDate(0, 6, 0)), fixedCount(participants)), st
}

func prizeIDs(prizes []models.Prize) []int {
	ids := make([]int, len(prizes))
	for i, p := range prizes {
		ids[i] = p.ID
	}
	return ids
}

func TestPrizeService_SeedsDefaults(t *testing.T) {
	svc, st := newCatalog(t, 0)

	prizes := svc.List()
	require.Len(t, prizes, 3)
	assert.Equal(t, []int{1, 2, 3}, prizeIDs(prizes))
	assert.Equal(t, "Voyage en Italie", prizes[0].Name)

	_, ok, err := st.Get(store.KeyPrizes)
	require.NoError(t, err)
	assert.True(t, ok, "defaults should be persisted")
}

func TestPrizeService_CorruptDocumentIsNotOverwritten(t *testing.T) {
	svc, st := newCatalog(t, 0)
	require.NoError(t, st.Set(store.KeyPrizes, []byte("[{")))

	assert.Empty(t, svc.List())
	raw, _, _ := st.Get(store.KeyPrizes)
	assert.Equal(t, "[{", string(raw))
}

func TestPrizeService_AddIsCappedByTier(t *testing.T) {
	t.Run("starting tier is full", func(t *testing.T) {
		svc, _ := newCatalog(t, 10)
		assert.Equal(t, 3, svc.MaxLots())
		_, err := svc.Add(models.Prize{Name: "Vélo", Value: "€400"})
		assert.ErrorIs(t, err, ErrPrizeLimitReached)
	})

	t.Run("popularity tier unlocks two more", func(t *testing.T) {
		svc, _ := newCatalog(t, 120)
		assert.Equal(t, 5, svc.MaxLots())

		p, err := svc.Add(models.Prize{Name: " Vélo ", Value: "€400"})
		require.NoError(t, err)
		assert.Equal(t, 4, p.ID)
		assert.Equal(t, 4, p.Order)
		assert.Equal(t, "Vélo", p.Name)
		assert.True(t, p.IsActive)
		assert.Equal(t, defaultPrizeEmoji, p.Emoji)

		_, err = svc.Add(models.Prize{Name: "Casque", Value: "€90", Emoji: "🎧"})
		require.NoError(t, err)
		_, err = svc.Add(models.Prize{Name: "Tablette", Value: "€300"})
		assert.ErrorIs(t, err, ErrPrizeLimitReached)
		assert.Len(t, svc.List(), 5)
	})

	t.Run("name and value required", func(t *testing.T) {
		svc, _ := newCatalog(t, 300)
		_, err := svc.Add(models.Prize{Name: "Sans valeur"})
		assert.ErrorIs(t, err, ErrPrizeFieldsRequired)
	})
}

func TestPrizeService_AddSamplesFillsFreeSlots(t *testing.T) {
	svc, _ := newCatalog(t, 200)

	added, err := svc.AddSamples()
	require.NoError(t, err)
	assert.Len(t, added, 4)
	assert.Len(t, svc.List(), 7)

	_, err = svc.AddSamples()
	assert.ErrorIs(t, err, ErrPrizeLimitReached)
}

func TestPrizeService_UpdateAndSetActive(t *testing.T) {
	svc, _ := newCatalog(t, 0)

	name := "Voyage en Grèce"
	p, err := svc.Update(1, models.PrizePatch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, p.Name)
	assert.Equal(t, "€1,500", p.Value)

	blank := "  "
	_, err = svc.Update(1, models.PrizePatch{Value: &blank})
	assert.ErrorIs(t, err, ErrPrizeFieldsRequired)

	p, err = svc.SetActive(2, false)
	require.NoError(t, err)
	assert.False(t, p.IsActive)

	_, err = svc.Update(99, models.PrizePatch{Name: &name})
	assert.ErrorIs(t, err, ErrPrizeNotFound)
}

func TestPrizeService_DeleteAndReorder(t *testing.T) {
	svc, _ := newCatalog(t, 0)

	require.NoError(t, svc.Reorder([]int{3, 1, 2}))
	prizes := svc.List()
	assert.Equal(t, []int{3, 1, 2}, prizeIDs(prizes))
	assert.Equal(t, 1, prizes[0].Order)

	require.NoError(t, svc.Delete(1))
	prizes = svc.List()
	assert.Equal(t, []int{3, 2}, prizeIDs(prizes))
	assert.Equal(t, 2, prizes[1].Order)

	assert.ErrorIs(t, svc.Delete(1), ErrPrizeNotFound)
	assert.ErrorIs(t, svc.Reorder([]int{3}), ErrInvalidPrizeOrder)
	assert.ErrorIs(t, svc.Reorder([]int{3, 3}), ErrInvalidPrizeOrder)
	assert.ErrorIs(t, svc.Reorder([]int{3, 7}), ErrInvalidPrizeOrder)
}

func TestPrizeService_ReadErrorLeavesCatalogAlone(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory(), key: store.KeyPrizes}
	svc := NewPrizeService(st, progression.NewDefault(testNow.AddDate(0, 6, 0)), fixedCount(200))
	_, err := svc.Add(models.Prize{Name: "Vélo", Value: "€400"})
	require.NoError(t, err)
	before, _, err := st.Store.Get(store.KeyPrizes)
	require.NoError(t, err)

	st.failGets = true
	_, err = svc.Add(models.Prize{Name: "Tablette", Value: "€300"})
	assert.ErrorIs(t, err, errTimeout)
	_, err = svc.Get(1)
	assert.ErrorIs(t, err, errTimeout)
	assert.ErrorIs(t, svc.Delete(1), errTimeout)
	assert.ErrorIs(t, svc.Reorder([]int{4, 3, 2, 1}), errTimeout)
	assert.Empty(t, svc.List())

	after, _, err := st.Store.Get(store.KeyPrizes)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after), "a failed read must not reseed or rewrite")

	st.failGets = false
	assert.Equal(t, []int{1, 2, 3, 4}, prizeIDs(svc.List()))
}

func TestPrizeService_ReadErrorOnFirstUseDoesNotSeed(t *testing.T) {
	st := &flakyStore{Store: store.NewMemory(), key: store.KeyPrizes, failGets: true}
	svc := NewPrizeService(st, progression.NewDefault(testNow.AddDate(0, 6, 0)), fixedCount(0))

	assert.Empty(t, svc.List())
	_, ok, err := st.Store.Get(store.KeyPrizes)
	require.NoError(t, err)
	assert.False(t, ok)
}
