package repository

import (
	"context"
	"encoding/json"

	"patientmon/internal/logger"
	"patientmon/internal/metrics"
	"patientmon/internal/models"
	"patientmon/internal/state"
)

// Cached is a read-through cache in front of another Store.
// Cache failures never fail a request; the backing store stays authoritative.
type Cached struct {
	next  Store
	cache state.StateStore
}

// NewCached wraps next with cache.
func NewCached(next Store, cache state.StateStore) *Cached {
	return &Cached{next: next, cache: cache}
}

func cacheKey(id string) string { return "patient:" + id }

func (c *Cached) GetByID(ctx context.Context, id string) (models.PatientInfo, error) {
	log := logger.WithComponent("patient_cache")

	data, err := c.cache.Get(ctx, cacheKey(id))
	switch {
	case err != nil:
		log.Warn().Err(err).Str("patient_id", id).Msg("cache read failed")
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
	case data != nil:
		var p models.PatientInfo
		if err := json.Unmarshal(data, &p); err == nil {
			metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
			return p, nil
		}
		log.Warn().Str("patient_id", id).Msg("discarding undecodable cache entry")
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
	default:
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return models.PatientInfo{}, err
	}
	c.store(ctx, p)
	return p, nil
}

func (c *Cached) Add(ctx context.Context, patient models.PatientInfo) (string, error) {
	id, err := c.next.Add(ctx, patient)
	if err != nil {
		return "", err
	}
	patient.ID = id
	c.store(ctx, patient)
	return id, nil
}

func (c *Cached) Update(ctx context.Context, patient models.PatientInfo) error {
	if err := c.next.Update(ctx, patient); err != nil {
		return err
	}
	c.store(ctx, patient)
	return nil
}

// Close closes the backing store and the cache.
func (c *Cached) Close() error {
	err := c.next.Close()
	if cerr := c.cache.Close(); err == nil {
		err = cerr
	}
	return err
}

func (c *Cached) store(ctx context.Context, p models.PatientInfo) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, cacheKey(p.ID), data); err != nil {
		log := logger.WithComponent("patient_cache")
		log.Warn().
			Err(err).
			Str("patient_id", p.ID).
			Msg("cache write failed")
	}
}
