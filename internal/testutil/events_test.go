package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBuilder(t *testing.T) {
	b := NewEvent(1000).
		Interpretation("Create").
		Actor("app://x").
		Subject("file:///a", WithMimetype("text/plain"), WithStorage("usb"))

	ev := b.Build()
	assert.Equal(t, int64(1000), ev.Timestamp)
	assert.Equal(t, "Create", ev.Interpretation.Value)
	require.Len(t, ev.Subjects, 1)
	assert.Equal(t, "text/plain", ev.Subjects[0].Mimetype.Value)
	assert.Equal(t, "usb", ev.Subjects[0].Storage.Value)

	// Builds are independent copies.
	b.Subject("file:///b")
	assert.Len(t, ev.Subjects, 1)
	assert.Len(t, b.Build().Subjects, 2)
}

func TestValues_IgnoresIDs(t *testing.T) {
	a := NewEvent(1).Actor("x").Subject("u").Build()
	b := NewEvent(1).Actor("x").Subject("u").Build()
	b.ID = 99
	b.Actor.ID = 7
	assert.Equal(t, Values(a), Values(b))
}
