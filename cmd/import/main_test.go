package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fekuna/qurban-engine/internal/animal/listener"
)

type fakePublisher struct {
	keys   []string
	values [][]byte
	failAt int
}

func (p *fakePublisher) Publish(_ context.Context, key, value []byte) error {
	if p.failAt > 0 && len(p.keys)+1 == p.failAt {
		return errors.New("broker unavailable")
	}
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, value)
	return nil
}

func TestParseRegistrations(t *testing.T) {
	in := strings.NewReader("animal_type_id,quantity,is_collective,buyer_name,note\n" +
		"type-cow, 3, true, Pak Ahmad, masjid\n" +
		"type-goat,1\n")

	rows, err := ParseRegistrations(in)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "type-cow", rows[0].AnimalTypeID)
	assert.Equal(t, 3, rows[0].Quantity)
	assert.True(t, rows[0].IsCollective)
	assert.Equal(t, "Pak Ahmad", rows[0].Metadata.BuyerName)
	assert.Equal(t, "masjid", rows[0].Metadata.Note)

	assert.Equal(t, "type-goat", rows[1].AnimalTypeID)
	assert.False(t, rows[1].IsCollective)
}

func TestParseRegistrations_Rejects(t *testing.T) {
	_, err := ParseRegistrations(strings.NewReader("type-cow,1\ntype-cow,many\n"))
	assert.ErrorContains(t, err, "line 2")

	_, err = ParseRegistrations(strings.NewReader("type-cow\n"))
	assert.ErrorContains(t, err, "line 1")

	_, err = ParseRegistrations(strings.NewReader("type-cow,1,maybe\n"))
	assert.ErrorContains(t, err, "is_collective")
}

func TestPublish(t *testing.T) {
	rows, err := ParseRegistrations(strings.NewReader("type-cow,2,true\ntype-goat,1\n"))
	require.NoError(t, err)
	events := BuildEvents(rows, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))

	p := &fakePublisher{}
	n, err := Publish(context.Background(), p, events)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"type-cow", "type-goat"}, p.keys)

	var got listener.RegistrationRequested
	require.NoError(t, json.Unmarshal(p.values[0], &got))
	assert.Equal(t, listener.EventTypeRegistrationRequested, got.EventType)
	assert.Equal(t, 2, got.Payload.Quantity)
	assert.NotEmpty(t, got.EventID)

	failing := &fakePublisher{failAt: 2}
	n, err = Publish(context.Background(), failing, events)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
