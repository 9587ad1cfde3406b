package judge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/acorndb/pkg/nut"
)

func mkNut(ts time.Time, version uint64) nut.Nut[string] {
	payload := "p"
	return nut.Nut[string]{ID: "k", Payload: &payload, Timestamp: ts, Version: version}
}

func TestTimestamp(t *testing.T) {
	t0 := time.Now()
	local := mkNut(t0, 1)
	newer := mkNut(t0.Add(time.Second), 1)
	older := mkNut(t0.Add(-time.Second), 1)

	assert.Equal(t, newer, Timestamp(local, newer))
	assert.Equal(t, local, Timestamp(local, older))
	assert.Equal(t, local, Timestamp(local, local), "ties keep local")
}

func TestVersion(t *testing.T) {
	t0 := time.Now()
	local := mkNut(t0, 2)
	higher := mkNut(t0.Add(-time.Hour), 3)
	lower := mkNut(t0.Add(time.Hour), 1)
	tied := mkNut(t0.Add(time.Second), 2)

	assert.Equal(t, higher, Version(local, higher))
	assert.Equal(t, local, Version(local, lower))
	assert.Equal(t, tied, Version(local, tied), "version tie falls through to Timestamp")
}

func TestLocalAndRemoteWins(t *testing.T) {
	local := mkNut(time.Now(), 1)
	incoming := mkNut(time.Now().Add(time.Hour), 5)

	assert.Equal(t, local, LocalWins(local, incoming))
	assert.Equal(t, incoming, RemoteWins(local, incoming))
}

func TestDeterministicAndTotal(t *testing.T) {
	local := mkNut(time.Now(), 1)
	incoming := mkNut(time.Now().Add(time.Minute), 2)

	first := Version(local, incoming)
	second := Version(local, incoming)
	assert.Equal(t, first, second)

	assert.Equal(t, local, Version(local, local), "judge(a, a) == a")
}
