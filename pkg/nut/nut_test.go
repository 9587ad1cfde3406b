package nut

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	now := time.Now()
	payload := "hello"
	n := New("id1", &payload, now)

	assert.Equal(t, "id1", n.ID)
	assert.Equal(t, uint64(0), n.Version)
	assert.Equal(t, now, n.Timestamp)
	assert.False(t, n.Tombstone())
}

func TestNext(t *testing.T) {
	now := time.Now()
	payload := "v0"
	n0 := New("id1", &payload, now)

	next := "v1"
	later := now.Add(time.Second)
	n1 := n0.Next(&next, later)

	assert.Equal(t, uint64(1), n1.Version)
	assert.Equal(t, later, n1.Timestamp)
	assert.Equal(t, "id1", n1.ID)
	assert.Equal(t, "v1", *n1.Payload)
}

func TestTombstone(t *testing.T) {
	n := Nut[string]{ID: "id1"}
	assert.True(t, n.Tombstone())

	payload := "x"
	n.Payload = &payload
	assert.False(t, n.Tombstone())
}

func TestExpired(t *testing.T) {
	now := time.Now()

	n := Nut[string]{}
	assert.False(t, n.Expired(now), "nil ExpiresAt never expires")

	past := now.Add(-time.Second)
	n.ExpiresAt = &past
	assert.True(t, n.Expired(now))

	future := now.Add(time.Second)
	n.ExpiresAt = &future
	assert.False(t, n.Expired(now))
}
