package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"patientmon/internal/models"
	"patientmon/internal/state"
)

// countingStore records how often the backing store is consulted.
type countingStore struct {
	Store
	gets int
}

func (c *countingStore) GetByID(ctx context.Context, id string) (models.PatientInfo, error) {
	c.gets++
	return c.Store.GetByID(ctx, id)
}

func setupCached(t *testing.T) (*miniredis.Miniredis, *countingStore, *Cached) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := state.NewRedisStoreWithClient(client, "test:", time.Minute)

	backing := &countingStore{Store: NewMemory()}
	return mr, backing, NewCached(backing, cache)
}

func TestCached_ReadThrough(t *testing.T) {
	_, backing, repo := setupCached(t)
	ctx := context.Background()

	_, err := backing.Add(ctx, testPatient("1"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		p, err := repo.GetByID(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, "Ivan", p.FirstName)
		assert.Equal(t, "36.6", p.HealthInfo.NormalTemperature.String())
	}
	assert.Equal(t, 1, backing.gets)
}

func TestCached_NotFoundIsNotCached(t *testing.T) {
	mr, backing, repo := setupCached(t)
	ctx := context.Background()

	_, err := repo.GetByID(ctx, "1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("test:patient:1"))

	_, err = backing.Add(ctx, testPatient("1"))
	require.NoError(t, err)

	_, err = repo.GetByID(ctx, "1")
	assert.NoError(t, err)
}

func TestCached_WritesRefreshEntry(t *testing.T) {
	mr, backing, repo := setupCached(t)
	ctx := context.Background()

	id, err := repo.Add(ctx, testPatient(""))
	require.NoError(t, err)
	assert.True(t, mr.Exists("test:patient:"+id))

	p := testPatient(id)
	p.HealthInfo.BloodPressure = models.BloodPressure{High: 135, Low: 85}
	require.NoError(t, repo.Update(ctx, p))

	got, err := repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 135, got.HealthInfo.BloodPressure.High)
	assert.Equal(t, 0, backing.gets)
}

func TestCached_FallsThroughWhenCacheDown(t *testing.T) {
	mr, backing, repo := setupCached(t)
	ctx := context.Background()

	_, err := backing.Add(ctx, testPatient("1"))
	require.NoError(t, err)
	mr.Close()

	p, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, 1, backing.gets)
}

func TestCached_DiscardsCorruptEntry(t *testing.T) {
	mr, backing, repo := setupCached(t)
	ctx := context.Background()

	_, err := backing.Add(ctx, testPatient("1"))
	require.NoError(t, err)
	require.NoError(t, mr.Set("test:patient:1", "{broken"))

	p, err := repo.GetByID(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "1", p.ID)
	assert.Equal(t, 1, backing.gets)
}
