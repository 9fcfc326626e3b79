package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_Terminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusDiscussing.Terminal())
	assert.True(t, StatusConcluded.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusCancelled.Terminal())
}

func TestStatus_CanTransitionTo(t *testing.T) {
	// Forward edges of the lifecycle DAG.
	assert.True(t, StatusPending.CanTransitionTo(StatusDiscussing))
	assert.True(t, StatusDiscussing.CanTransitionTo(StatusConcluded))
	assert.True(t, StatusDiscussing.CanTransitionTo(StatusError))
	assert.True(t, StatusDiscussing.CanTransitionTo(StatusCancelled))

	// A pending topic can be terminated directly (shutdown before start).
	assert.True(t, StatusPending.CanTransitionTo(StatusError))
	assert.True(t, StatusPending.CanTransitionTo(StatusCancelled))

	// No transitions backwards or out of a terminal state.
	assert.False(t, StatusDiscussing.CanTransitionTo(StatusPending))
	assert.False(t, StatusConcluded.CanTransitionTo(StatusDiscussing))
	assert.False(t, StatusConcluded.CanTransitionTo(StatusError))
	assert.False(t, StatusError.CanTransitionTo(StatusConcluded))
	assert.False(t, StatusCancelled.CanTransitionTo(StatusDiscussing))
}
