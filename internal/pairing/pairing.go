// Package pairing holds the canonical ordering of a direct conversation's
// two parties and the room name derived from a conversation id. The
// conversation resolver and the call-credential issuer must agree on both,
// so neither re-implements them.
package pairing

import (
	"strconv"
	"strings"

	"github.com/Vasu1712/scenyx-connect/internal/apperr"
)

// RoomPrefix is prepended to a conversation id to form its call room.
const RoomPrefix = "conversation_"

// Pair is an unordered pair of universe ids stored in canonical order.
type Pair struct {
	Low  string
	High string
}

// Canonicalize orders a and b byte-wise. Every process must use this
// ordering or the (low, high) unique key stops identifying a pair.
func Canonicalize(a, b string) (Pair, error) {
	if a == "" || b == "" {
		return Pair{}, apperr.InvalidInput("both universe ids are required")
	}
	if a == b {
		return Pair{}, apperr.InvalidInput("a universe cannot start a conversation with itself")
	}
	if a > b {
		a, b = b, a
	}
	return Pair{Low: a, High: b}, nil
}

// Contains reports whether id is one side of the pair.
func (p Pair) Contains(id string) bool {
	return id == p.Low || id == p.High
}

// Other returns the side of the pair that is not id.
func (p Pair) Other(id string) string {
	if id == p.Low {
		return p.High
	}
	return p.Low
}

// Key is a stable, unambiguous string form of the pair used for cache
// keys. Low is length-prefixed so ids containing ':' cannot collide.
func (p Pair) Key() string {
	return strconv.Itoa(len(p.Low)) + ":" + p.Low + ":" + p.High
}

// RoomName derives the call room for a conversation.
func RoomName(conversationID string) string {
	return RoomPrefix + conversationID
}

// ConversationFromRoom inverts RoomName.
func ConversationFromRoom(room string) (string, bool) {
	id, ok := strings.CutPrefix(room, RoomPrefix)
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
