package coordinator

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"sync"
)

const roomIDLength = 6

// maxRoomID is 36^roomIDLength, the number of distinct room ids.
var maxRoomID = new(big.Int).Exp(big.NewInt(36), big.NewInt(roomIDLength), nil)

// Registry holds every live room, keyed by id. Rooms are created here and
// removed when their last member leaves.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
	}
}

// Create makes a new room of the given kind under a fresh random id.
//
// Postcondition: The returned room is resolvable through Get until its last
// member leaves.
func (reg *Registry) Create(kind Kind) (*Room, error) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	for {
		id, err := newRoomID()
		if err != nil {
			return nil, fmt.Errorf("generating room id: %w", err)
		}
		if _, taken := reg.rooms[id]; taken {
			continue
		}
		room := newRoom(id, kind)
		reg.rooms[id] = room
		return room, nil
	}
}

// Get resolves a room by id.
func (reg *Registry) Get(id string) (*Room, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	room, ok := reg.rooms[id]
	return room, ok
}

// Remove drops a room from the registry. Resolving its id afterwards fails.
func (reg *Registry) Remove(id string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.rooms, id)
}

// Count returns the number of live rooms.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

// newRoomID returns a random 6-character lowercase base-36 string.
func newRoomID() (string, error) {
	n, err := rand.Int(rand.Reader, maxRoomID)
	if err != nil {
		return "", err
	}
	id := strconv.FormatInt(n.Int64(), 36)
	for len(id) < roomIDLength {
		id = "0" + id
	}
	return id, nil
}
