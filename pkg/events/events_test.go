package events

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusOrdering(t *testing.T) {
	b := NewBus()
	var order []string

	b.Register(TagLaunchAllComponents, PhaseBefore, func(*Context) error {
		order = append(order, "before1")
		return nil
	})
	b.Register(TagLaunchAllComponents, PhaseBefore, func(*Context) error {
		order = append(order, "before2")
		return nil
	})
	b.Register(TagLaunchAllComponents, PhaseAfter, func(*Context) error {
		order = append(order, "after1")
		return nil
	})
	b.Register(TagLaunchAllComponents, PhaseAfter, func(*Context) error {
		order = append(order, "after2")
		return nil
	})

	require.NoError(t, b.Before(TagLaunchAllComponents, &Context{}))
	require.NoError(t, b.After(TagLaunchAllComponents, &Context{}))

	assert.Equal(t, []string{"before1", "before2", "after2", "after1"}, order)
}

func TestBusStopsOnFirstError(t *testing.T) {
	b := NewBus()
	calls := 0
	boom := errors.New("boom")

	b.Register(TagDecideVerificationTask, PhaseBefore, func(*Context) error {
		calls++
		return boom
	})
	b.Register(TagDecideVerificationTask, PhaseBefore, func(*Context) error {
		calls++
		return nil
	})

	err := b.Before(TagDecideVerificationTask, &Context{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestBusUnregisteredTagIsNoop(t *testing.T) {
	b := NewBus()
	assert.NoError(t, b.Before(Tag("nothing registered"), &Context{}))
}
