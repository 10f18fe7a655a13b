package arena

import (
	"encoding/json"

	"go.uber.org/zap"
)

// relayEvents maps inbound call-signaling events to the event the target receives.
var relayEvents = map[string]string{
	EventCallUser:      OutIncomingCall,
	EventAnswerCall:    OutCallAnswered,
	EventIceCandidate:  OutIceCandidate,
	EventReconnectCall: OutCallReconnect,
	EventEndCall:       OutCallEnded,
}

// Relay forwards an opaque signaling payload to another occupant of the sender's room.
func (c *Coordinator) Relay(connID, event string, req RelayRequest) error {
	out, ok := relayEvents[event]
	if !ok {
		return ErrInvalidRequest
	}
	_, roomID, err := c.participant(connID, "")
	if err != nil {
		return err
	}
	target, targetRoom, ok := c.registry.Participant(req.TargetSocketID)
	if !ok || target.ConnID == connID || targetRoom != roomID {
		return ErrNotInRoom
	}

	payload := RelayPayload{From: connID}
	switch event {
	case EventCallUser, EventReconnectCall:
		payload.Offer = nonNull(req.Offer)
	case EventAnswerCall:
		payload.Answer = nonNull(req.Answer)
	case EventIceCandidate:
		payload.Candidate = nonNull(req.Candidate)
	}
	c.log.Debug("arena_relay", zap.String("event", event), zap.String("from", connID), zap.String("to", target.ConnID))
	c.notify.Emit(target.ConnID, out, payload)
	return nil
}

func nonNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}
