package game

import (
	"testing"
)

func TestHistory_PushEvictsOldest(t *testing.T) {
	h := NewHistory(0)

	for id := int64(1); id <= 45; id++ {
		h.Push(&Round{ID: id, Phase: PhaseEnded})
		if h.Len() > HISTORY_SIZE {
			t.Fatalf("Len() = %v after %d pushes, want <= %d", h.Len(), id, HISTORY_SIZE)
		}
	}

	rounds := h.Rounds()
	if len(rounds) != HISTORY_SIZE {
		t.Fatalf("len(Rounds()) = %v, want %v", len(rounds), HISTORY_SIZE)
	}
	if rounds[0].ID != 45 {
		t.Errorf("newest = %v, want 45", rounds[0].ID)
	}
	if rounds[HISTORY_SIZE-1].ID != 6 {
		t.Errorf("oldest = %v, want 6", rounds[HISTORY_SIZE-1].ID)
	}
	for i := 1; i < len(rounds); i++ {
		if rounds[i].ID != rounds[i-1].ID-1 {
			t.Fatalf("rounds out of order at %d: %v after %v", i, rounds[i].ID, rounds[i-1].ID)
		}
	}
}

func TestHistory_Reset(t *testing.T) {
	h := NewHistory(3)
	h.Push(&Round{ID: 99})

	h.Reset([]*Round{{ID: 10}, {ID: 9}, {ID: 8}, {ID: 7}})
	rounds := h.Rounds()
	if len(rounds) != 3 || rounds[0].ID != 10 || rounds[2].ID != 8 {
		t.Errorf("Reset() kept %v", rounds)
	}

	h.Push(&Round{ID: 11})
	rounds = h.Rounds()
	if rounds[0].ID != 11 || rounds[2].ID != 9 {
		t.Errorf("Push() after Reset() = [%d %d %d], want [11 10 9]", rounds[0].ID, rounds[1].ID, rounds[2].ID)
	}

	latest, ok := h.Latest()
	if !ok || latest.ID != 11 {
		t.Errorf("Latest() = %v, %v", latest, ok)
	}
}

func TestHistory_RoundsIsCopy(t *testing.T) {
	h := NewHistory(2)
	h.Push(&Round{ID: 1})

	rounds := h.Rounds()
	rounds[0] = &Round{ID: 42}

	if latest, _ := h.Latest(); latest.ID != 1 {
		t.Errorf("history modified through Rounds(): %v", latest.ID)
	}
}
