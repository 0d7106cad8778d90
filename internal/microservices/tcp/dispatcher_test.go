package tcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDispatcher_RoutesByType(t *testing.T) {
	d := NewDispatcher(nil)
	var got []string
	d.Register("a", func(m Message) { got = append(got, "a:"+m.Type) })
	d.Register("b", func(m Message) { got = append(got, "b:"+m.Type) })

	assert.True(t, d.Dispatch(NewMessage("b")))
	assert.True(t, d.Dispatch(NewMessage("a")))
	assert.Equal(t, []string{"b:b", "a:a"}, got)
}

func TestDispatcher_UnknownTypeIgnored(t *testing.T) {
	d := NewDispatcher(nil)
	assert.False(t, d.Dispatch(NewMessage("nope")))
}

func TestDispatcher_LastRegistrationWins(t *testing.T) {
	d := NewDispatcher(nil)
	calls := ""
	d.Register("x", func(Message) { calls += "first" })
	d.Register("x", func(Message) { calls += "second" })

	d.Dispatch(NewMessage("x"))
	assert.Equal(t, "second", calls)
	assert.Equal(t, 1, d.Len())
}

func TestDispatcher_Reset(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("x", func(Message) { t.Fatal("handler must be gone") })
	d.Reset()

	assert.False(t, d.Registered("x"))
	assert.Zero(t, d.Len())
	assert.False(t, d.Dispatch(NewMessage("x")))
}

func TestDispatcher_HandlerPanicContained(t *testing.T) {
	d := NewDispatcher(nil)
	d.Register("boom", func(Message) { panic("bad handler") })
	assert.NotPanics(t, func() { d.Dispatch(NewMessage("boom")) })
}
