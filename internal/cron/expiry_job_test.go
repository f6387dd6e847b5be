package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facetcraft/nyp-backend/pkg/logger"
)

type fakeSweeper struct {
	limits   []int
	released int
	err      error
}

func (f *fakeSweeper) ExpireDue(_ context.Context, limit int) (int, error) {
	f.limits = append(f.limits, limit)
	return f.released, f.err
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}})
}

func TestCommitmentExpiryJobSweepsWithLimit(t *testing.T) {
	sweeper := &fakeSweeper{released: 3}
	job, err := NewCommitmentExpiryJob(CommitmentExpiryJobParams{Logger: testLogger(), Commitments: sweeper, Limit: 50})
	require.NoError(t, err)

	assert.Equal(t, "commitment_expiry", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int{50}, sweeper.limits)
}

func TestCommitmentExpiryJobDefaultsLimit(t *testing.T) {
	sweeper := &fakeSweeper{}
	job, err := NewCommitmentExpiryJob(CommitmentExpiryJobParams{Logger: testLogger(), Commitments: sweeper})
	require.NoError(t, err)
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []int{defaultSweepLimit}, sweeper.limits)
}

func TestCommitmentExpiryJobSurfacesSweepErrors(t *testing.T) {
	sweeper := &fakeSweeper{released: 1, err: errors.New("one row failed")}
	job, err := NewCommitmentExpiryJob(CommitmentExpiryJobParams{Logger: testLogger(), Commitments: sweeper})
	require.NoError(t, err)
	assert.ErrorContains(t, job.Run(context.Background()), "one row failed")
}

func TestCommitmentExpiryJobValidatesParams(t *testing.T) {
	_, err := NewCommitmentExpiryJob(CommitmentExpiryJobParams{Commitments: &fakeSweeper{}})
	assert.Error(t, err)
	_, err = NewCommitmentExpiryJob(CommitmentExpiryJobParams{Logger: testLogger()})
	assert.Error(t, err)
}
