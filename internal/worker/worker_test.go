package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"patientmon/internal/models"
)

// fakeChecker fails readings for patient "bad" and panics for "panic".
type fakeChecker struct {
	mu      sync.Mutex
	checked []string
}

func (c *fakeChecker) Check(ctx context.Context, r *models.Reading) error {
	c.mu.Lock()
	c.checked = append(c.checked, r.PatientID)
	c.mu.Unlock()

	switch r.PatientID {
	case "bad":
		return errors.New("patient not found")
	case "panic":
		panic("boom")
	}
	return nil
}

func (c *fakeChecker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.checked)
}

func reading(patientID string) *models.Reading {
	return &models.Reading{PatientID: patientID, Kind: models.ReadingTemperature, TakenAt: time.Now()}
}

func TestPool_ProcessReadings(t *testing.T) {
	ch := make(chan *models.Reading, 100)
	checker := &fakeChecker{}

	pool := NewPool(Config{Checker: checker, ReadingChan: ch, Workers: 3})
	pool.Start()
	defer pool.Stop()

	for i := 0; i < 25; i++ {
		ch <- reading("1")
	}

	assert.Eventually(t, func() bool { return pool.Stats().Processed == 25 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, uint64(0), pool.Stats().Failed)
	assert.Equal(t, 25, checker.count())
}

func TestPool_FailuresAndPanics(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	checker := &fakeChecker{}

	pool := NewPool(Config{Checker: checker, ReadingChan: ch, Workers: 1})
	pool.Start()
	defer pool.Stop()

	ch <- reading("bad")
	ch <- reading("panic")
	ch <- reading("1")

	assert.Eventually(t, func() bool {
		s := pool.Stats()
		return s.Processed == 1 && s.Failed == 2
	}, 2*time.Second, 10*time.Millisecond, "the worker survives a panic")
}

func TestPool_DrainsOnClose(t *testing.T) {
	ch := make(chan *models.Reading, 10)
	checker := &fakeChecker{}

	for i := 0; i < 5; i++ {
		ch <- reading("1")
	}
	close(ch)

	pool := NewPool(Config{Checker: checker, ReadingChan: ch, Workers: 2})
	pool.Start()

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not exit after channel close")
	}
	assert.Equal(t, uint64(5), pool.Stats().Processed)
}

func TestPool_Defaults(t *testing.T) {
	pool := NewPool(Config{Checker: &fakeChecker{}, ReadingChan: make(chan *models.Reading)})
	assert.Equal(t, 4, pool.workers)
	assert.Equal(t, 10*time.Second, pool.checkTimeout)
}
