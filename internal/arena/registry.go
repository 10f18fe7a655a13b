package arena

import (
	"crypto/rand"
	"math/big"
	"strings"
	"sync"

	"github.com/park285/cheese-arena/internal/rules"
)

const roomCapacity = 2

type Participant struct {
	ConnID string      `json:"socketId"`
	UserID string      `json:"userId"`
	Color  rules.Color `json:"color"`
}

type JoinResult struct {
	RoomID string
	Joined Participant
	// Occupants is the room after the join, in arrival order.
	Occupants []Participant
}

func (r JoinResult) Full() bool { return len(r.Occupants) == roomCapacity }

// Others returns every occupant except the joining connection.
func (r JoinResult) Others() []Participant { return without(r.Occupants, r.Joined.ConnID) }

// Registry maps room ids to at most two occupants. Rooms exist only while occupied.
type Registry struct {
	mu     sync.Mutex
	rooms  map[string][]Participant
	conns  map[string]string
	random func() rules.Color
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string][]Participant),
		conns:  make(map[string]string),
		random: randomColor,
	}
}

// Join adds a connection to a room. requested may be empty, "random", "white" or "black".
func (r *Registry) Join(roomID, userID, connID, requested string) (JoinResult, error) {
	roomID, userID, connID = strings.TrimSpace(roomID), strings.TrimSpace(userID), strings.TrimSpace(connID)
	want, random, err := parseRequested(requested)
	if err != nil {
		return JoinResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, busy := r.conns[connID]; busy {
		return JoinResult{}, ErrAlreadyJoined
	}
	occupants := r.rooms[roomID]
	for _, p := range occupants {
		if p.UserID == userID {
			return JoinResult{}, ErrAlreadyJoined
		}
	}
	if len(occupants) >= roomCapacity {
		return JoinResult{}, ErrRoomFull
	}

	var taken rules.Color
	if len(occupants) == 1 {
		taken = occupants[0].Color
	}
	switch {
	case random && taken == "":
		want = r.random()
	case random:
		want = taken.Other()
	case want == taken:
		return JoinResult{}, &ColorTakenError{Color: want}
	}

	p := Participant{ConnID: connID, UserID: userID, Color: want}
	next := append(append([]Participant(nil), occupants...), p)
	r.rooms[roomID] = next
	r.conns[connID] = roomID
	return JoinResult{RoomID: roomID, Joined: p, Occupants: clone(next)}, nil
}

// Leave removes a connection and returns the room it left and who remains there.
func (r *Registry) Leave(connID string) (roomID string, left Participant, remaining []Participant, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok = r.conns[connID]
	if !ok {
		return "", Participant{}, nil, false
	}
	delete(r.conns, connID)

	occupants := r.rooms[roomID]
	for _, p := range occupants {
		if p.ConnID == connID {
			left = p
		}
	}
	remaining = without(occupants, connID)
	if len(remaining) == 0 {
		delete(r.rooms, roomID)
	} else {
		r.rooms[roomID] = remaining
	}
	return roomID, left, clone(remaining), true
}

func (r *Registry) Occupants(roomID string) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	return clone(r.rooms[roomID])
}

func (r *Registry) RoomOf(connID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.conns[connID]
	return id, ok
}

func (r *Registry) Participant(connID string) (Participant, string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	roomID, ok := r.conns[connID]
	if !ok {
		return Participant{}, "", false
	}
	for _, p := range r.rooms[roomID] {
		if p.ConnID == connID {
			return p, roomID, true
		}
	}
	return Participant{}, "", false
}

// Reassign sets colours by user id. It is applied only if the result keeps colours disjoint.
func (r *Registry) Reassign(roomID string, colors map[string]rules.Color) []Participant {
	r.mu.Lock()
	defer r.mu.Unlock()
	occupants := clone(r.rooms[roomID])
	seen := make(map[rules.Color]bool, len(occupants))
	for i := range occupants {
		if c, ok := colors[occupants[i].UserID]; ok {
			occupants[i].Color = c
		}
		if seen[occupants[i].Color] {
			return clone(r.rooms[roomID])
		}
		seen[occupants[i].Color] = true
	}
	if len(occupants) > 0 {
		r.rooms[roomID] = occupants
	}
	return clone(occupants)
}

func (r *Registry) RoomCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

func parseRequested(s string) (rules.Color, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "random") {
		return "", true, nil
	}
	c, ok := rules.ParseColor(s)
	if !ok {
		return "", false, &InvalidColorError{Value: s}
	}
	return c, false, nil
}

func randomColor() rules.Color {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil || n.Int64() == 0 {
		return rules.White
	}
	return rules.Black
}

func without(list []Participant, connID string) []Participant {
	out := make([]Participant, 0, len(list))
	for _, p := range list {
		if p.ConnID != connID {
			out = append(out, p)
		}
	}
	return out
}

func clone(list []Participant) []Participant {
	if len(list) == 0 {
		return nil
	}
	return append([]Participant(nil), list...)
}
