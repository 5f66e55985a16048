package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parkingo-client/internal/model"
)

var (
	slotA = model.Slot{ID: 1, Name: "A1", Status: model.SlotAvailable}
	slotB = model.Slot{ID: 2, Name: "A2", Status: model.SlotAvailable}
)

func TestState_Transitions(t *testing.T) {
	var s State
	assert.False(t, s.FormVisible())

	assert.Equal(t, Selected, s.Select(slotA))
	assert.True(t, s.FormVisible())

	assert.Equal(t, Replaced, s.Select(slotB))
	got, ok := s.Selected()
	require.True(t, ok)
	assert.Equal(t, int64(2), got.ID)

	assert.Equal(t, Deselected, s.Select(slotB))
	assert.False(t, s.FormVisible())
	_, ok = s.Selected()
	assert.False(t, ok)
}

func TestState_ToggleTwice(t *testing.T) {
	var s State
	s.Select(slotA)

	assert.Equal(t, Deselected, s.Select(slotA))
	assert.Equal(t, Selected, s.Select(slotA))
	assert.Equal(t, Deselected, s.Select(slotA))
	assert.False(t, s.FormVisible())
}

func TestState_NonAvailableIsNoop(t *testing.T) {
	for _, status := range []model.SlotStatus{model.SlotBooked, model.SlotNotAvailable, ""} {
		t.Run(string(status), func(t *testing.T) {
			blocked := model.Slot{ID: 9, Status: status}

			var empty State
			assert.Equal(t, Ignored, empty.Select(blocked))
			assert.False(t, empty.FormVisible())

			var held State
			held.Select(slotA)
			assert.Equal(t, Ignored, held.Select(blocked))
			got, ok := held.Selected()
			require.True(t, ok)
			assert.Equal(t, slotA, got)

			// A stale copy of the selected slot that is now booked does not toggle it off.
			stale := slotA
			stale.Status = status
			assert.Equal(t, Ignored, held.Select(stale))
			assert.True(t, held.FormVisible())
		})
	}
}

func TestState_Reset(t *testing.T) {
	var s State
	s.Select(slotA)
	s.Reset()
	assert.False(t, s.FormVisible())
	s.Reset()
	assert.False(t, s.FormVisible())
}

func TestState_Reconcile(t *testing.T) {
	t.Run("keeps and refreshes an available slot", func(t *testing.T) {
		var s State
		s.Select(slotA)

		fresh := slotA
		fresh.Fee = 7000
		dropped := s.Reconcile([]model.Slot{slotB, fresh})

		assert.False(t, dropped)
		got, _ := s.Selected()
		assert.Equal(t, int64(7000), got.Fee)
	})

	t.Run("drops a slot that became booked", func(t *testing.T) {
		var s State
		s.Select(slotA)

		booked := slotA
		booked.Status = model.SlotBooked
		assert.True(t, s.Reconcile([]model.Slot{booked}))
		assert.False(t, s.FormVisible())
	})

	t.Run("drops a slot that disappeared", func(t *testing.T) {
		var s State
		s.Select(slotA)
		assert.True(t, s.Reconcile([]model.Slot{slotB}))
	})

	t.Run("nothing selected", func(t *testing.T) {
		var s State
		assert.False(t, s.Reconcile(nil))
	})
}

func TestState_MachineStates(t *testing.T) {
	var s State
	assert.Equal(t, StateUnselected, s.Current())

	s.Select(slotA)
	assert.Equal(t, StateSelected, s.Current())

	// Replacing re-enters Selected, so the form stays shown.
	s.Select(slotB)
	assert.Equal(t, StateSelected, s.Current())
	assert.True(t, s.FormVisible())

	s.Select(model.Slot{ID: 3, Status: model.SlotBooked})
	assert.Equal(t, StateSelected, s.Current())

	s.Reset()
	assert.Equal(t, StateUnselected, s.Current())
	assert.False(t, s.FormVisible())
}

func TestState_Independent(t *testing.T) {
	var a, b State
	a.Select(slotA)

	assert.True(t, a.FormVisible())
	assert.False(t, b.FormVisible())
	assert.Equal(t, StateUnselected, b.Current())
}
