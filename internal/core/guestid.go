package core

import (
	"math/rand"
	"strings"

	"github.com/AydenGen/podcast-together/internal/domain"
)

// guestIDAlphabet leaves out visually ambiguous glyphs (l, 0, x, O...).
const (
	guestIDAlphabet = "abcdefghijkmnopqrstuvwyz123456789"
	guestIDLength   = 11
	guestIDAttempts = 15
)

// GuestIDAllocator draws collision-free display ids for one room. The rand
// source is injectable so tests can force collisions.
type GuestIDAllocator struct {
	intn func(n int) int
}

func NewGuestIDAllocator() *GuestIDAllocator {
	return &GuestIDAllocator{intn: rand.Intn}
}

func NewGuestIDAllocatorWithSource(r *rand.Rand) *GuestIDAllocator {
	return &GuestIDAllocator{intn: r.Intn}
}

// Allocate draws a candidate id and redraws on collision with any taken id,
// bounded to a fixed attempt budget. Exhaustion is an explicit error the
// caller must handle, it never yields an empty id.
func (a *GuestIDAllocator) Allocate(taken []domain.GuestID) (domain.GuestID, error) {
	for attempt := 0; attempt < guestIDAttempts; attempt++ {
		id := a.draw()
		if !containsGuestID(taken, id) {
			return id, nil
		}
	}
	return "", ErrGuestIDExhausted
}

func (a *GuestIDAllocator) draw() domain.GuestID {
	var b strings.Builder
	b.Grow(guestIDLength)
	for i := 0; i < guestIDLength; i++ {
		b.WriteByte(guestIDAlphabet[a.intn(len(guestIDAlphabet))])
	}
	return domain.GuestID(b.String())
}

func containsGuestID(ids []domain.GuestID, id domain.GuestID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
