package arena

import (
	"encoding/json"

	"github.com/park285/cheese-arena/internal/rules"
)

// Inbound event names.
const (
	EventJoinRoom      = "joinRoom"
	EventSendMove      = "SendMove"
	EventResign        = "Resign"
	EventDraw          = "Draw"
	EventDrawAccepted  = "DrawAccepted"
	EventDrawDeclined  = "DrawDeclined"
	EventSendMessage   = "SendMessage"
	EventCallUser      = "call-user"
	EventAnswerCall    = "answer-call"
	EventIceCandidate  = "ice-candidate"
	EventReconnectCall = "reconnect-call"
	EventEndCall       = "end-call"
)

// Outbound event names.
const (
	OutConnected            = "connected"
	OutAssignedColor        = "assignedColor"
	OutPlayerJoined         = "playerJoined"
	OutBothPlayersJoined    = "bothPlayersJoined"
	OutErrorMessage         = "errorMessage"
	OutReceiveMove          = "receiveMove"
	OutMoveRejected         = "moveRejected"
	OutOpponentResign       = "Opponent Resign"
	OutOpponentDraw         = "Opponent Draw"
	OutDrawAccepted         = "DrawAccepted"
	OutDrawDeclined         = "DrawDeclined"
	OutReceiveMessage       = "ReceiveMessage"
	OutIncomingCall         = "incoming-call"
	OutCallAnswered         = "call-answered"
	OutIceCandidate         = "ice-candidate"
	OutCallReconnect        = "call-reconnect"
	OutCallEnded            = "call-ended"
	OutOpponentDisconnected = "opponentDisconnected"
)

type JoinRequest struct {
	UserID string `json:"userId" validate:"required,max=128"`
	RoomID string `json:"roomId" validate:"required,max=128"`
	Color  string `json:"color" validate:"omitempty,max=16"`
}

type MoveRequest struct {
	Move   json.RawMessage `json:"move" validate:"required"`
	GameID string          `json:"gameId" validate:"required"`
	UserID string          `json:"userId" validate:"required"`
	RoomID string          `json:"roomId"`
}

type ResignRequest struct {
	RoomID string `json:"roomId"`
	GameID string `json:"gameId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type DrawAcceptRequest struct {
	RoomID string `json:"roomId"`
	GameID string `json:"gameId" validate:"required"`
}

type MessageRequest struct {
	Message string `json:"message" validate:"required,max=2000"`
	RoomID  string `json:"roomId"`
}

// RelayRequest carries an opaque call-signaling payload for one target connection.
type RelayRequest struct {
	TargetSocketID string          `json:"targetSocketId" validate:"required"`
	Offer          json.RawMessage `json:"offer,omitempty"`
	Answer         json.RawMessage `json:"answer,omitempty"`
	Candidate      json.RawMessage `json:"candidate,omitempty"`
}

type PlayerJoinedPayload struct {
	Message  string      `json:"message"`
	UserID   string      `json:"userId"`
	SocketID string      `json:"socketId"`
	Color    rules.Color `json:"color"`
}

type BothPlayersJoinedPayload struct {
	GameID           string      `json:"gameId"`
	Moves            []string    `json:"moves"`
	FEN              string      `json:"fen"`
	Color            rules.Color `json:"color"`
	OpponentSocketID string      `json:"opponentSocketId"`
	OpponentUserID   string      `json:"opponentUserId"`
	OpponentColor    rules.Color `json:"opponentColor"`
	InitiateCall     bool        `json:"initiateCall"`
}

// MovePayload mirrors the move object browser chess clients produce.
type MovePayload struct {
	Color     string `json:"color"`
	From      string `json:"from"`
	To        string `json:"to"`
	SAN       string `json:"san"`
	LAN       string `json:"lan"`
	Promotion string `json:"promotion,omitempty"`
	Before    string `json:"before"`
	After     string `json:"after"`
}

type ReceiveMovePayload struct {
	Move       MovePayload `json:"move"`
	FEN        string      `json:"fen"`
	GameStatus string      `json:"gameStatus"`
	Winner     *string     `json:"winner"`
	AllMoves   []string    `json:"allMoves"`
}

type MoveRejectedPayload struct {
	Error string `json:"error"`
}

type ResignPayload struct {
	GameID string `json:"gameId"`
	Winner string `json:"winner"`
}

type ChatPayload struct {
	Message string `json:"message"`
	Time    string `json:"time"`
}

type RelayPayload struct {
	From      string          `json:"from"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

type DisconnectPayload struct {
	SocketID string `json:"socketId"`
	UserID   string `json:"userId"`
}

func movePayload(a rules.Applied) MovePayload {
	color := "w"
	if a.Color == rules.Black {
		color = "b"
	}
	return MovePayload{
		Color:     color,
		From:      a.From,
		To:        a.To,
		SAN:       a.SAN,
		LAN:       a.UCI,
		Promotion: a.Promotion,
		Before:    a.Before,
		After:     a.After,
	}
}
