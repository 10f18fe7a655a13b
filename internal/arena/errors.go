package arena

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/park285/cheese-arena/internal/msgcat"
	"github.com/park285/cheese-arena/internal/rules"
	"github.com/park285/cheese-arena/internal/store"
)

var (
	ErrAlreadyJoined    = errors.New("already joined")
	ErrRoomFull         = errors.New("room is full")
	ErrColorTaken       = errors.New("color already taken")
	ErrInvalidColor     = errors.New("invalid color")
	ErrNotInRoom        = errors.New("connection is not in a room")
	ErrNotYourTurn      = errors.New("not your turn")
	ErrIdentityMismatch = errors.New("user id does not match the connection")
	ErrInvalidRequest   = errors.New("invalid request")
)

// ColorTakenError names the side that was requested.
type ColorTakenError struct {
	Color rules.Color
}

func (e *ColorTakenError) Error() string { return fmt.Sprintf("color %s already taken", e.Color) }

func (e *ColorTakenError) Is(target error) bool { return target == ErrColorTaken }

type InvalidColorError struct {
	Value string
}

func (e *InvalidColorError) Error() string { return fmt.Sprintf("invalid color %q", e.Value) }

func (e *InvalidColorError) Is(target error) bool { return target == ErrInvalidColor }

// fallback texts match the embedded catalog and are used when a catalog entry is missing.
var notices = []struct {
	err      error
	key      string
	fallback string
}{
	{ErrRoomFull, "arena.room_full", "Room is full."},
	{ErrAlreadyJoined, "arena.already_joined", "You have already joined this room."},
	{ErrInvalidColor, "arena.invalid_color", "Invalid color."},
	{ErrNotInRoom, "arena.not_in_room", "Join a room first."},
	{ErrNotYourTurn, "arena.not_your_turn", "Not your turn!"},
	{rules.ErrIllegalMove, "arena.illegal_move", "Illegal move!"},
	{store.ErrGameNotFound, "arena.game_not_found", "Game not found."},
	{store.ErrGameOver, "arena.game_over", "Game is already over."},
	{store.ErrNotParticipant, "arena.not_participant", "You are not a player in this game."},
	{ErrIdentityMismatch, "arena.identity_mismatch", "You can only act as yourself."},
}

const serverErrorText = "Server error."

// notice converts an operation error into the text shown to the player.
func notice(cat *msgcat.Catalog, err error) string {
	var taken *ColorTakenError
	if errors.As(err, &taken) {
		return cat.Text("arena.color_taken", map[string]any{"Color": string(taken.Color)},
			fmt.Sprintf("Color %s already taken.", taken.Color))
	}
	var badColor *InvalidColorError
	if errors.As(err, &badColor) {
		return cat.Text("arena.invalid_color", map[string]any{"Color": badColor.Value}, "Invalid color.")
	}
	if errors.Is(err, ErrInvalidRequest) {
		reason := "malformed payload"
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			reason = fmt.Sprintf("%s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return cat.Text("arena.invalid_request", map[string]any{"Reason": reason}, "Invalid request.")
	}
	for _, n := range notices {
		if errors.Is(err, n.err) {
			return cat.Text(n.key, nil, n.fallback)
		}
	}
	return cat.Text("arena.server_error", nil, serverErrorText)
}

// expected reports whether err is a validation or lookup failure rather than a fault.
func expected(err error) bool {
	if errors.Is(err, ErrColorTaken) || errors.Is(err, ErrInvalidRequest) {
		return true
	}
	for _, n := range notices {
		if errors.Is(err, n.err) {
			return true
		}
	}
	return false
}
