package arena

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handle runs one inbound event for a connection. Failures are reported back to the
// sender as moveRejected for moves and errorMessage for everything else.
func (c *Coordinator) Handle(ctx context.Context, connID, event string, data json.RawMessage) {
	err := c.safeDispatch(ctx, connID, event, data)
	if err == nil {
		return
	}
	text := notice(c.catalog, err)
	if expected(err) {
		c.log.Debug("arena_event_rejected", zap.String("event", event), zap.String("conn_id", connID), zap.Error(err))
	} else {
		c.log.Error("arena_event_failed", zap.String("event", event), zap.String("conn_id", connID), zap.Error(err))
	}
	if event == EventSendMove {
		c.notify.Emit(connID, OutMoveRejected, MoveRejectedPayload{Error: text})
		return
	}
	c.notify.Emit(connID, OutErrorMessage, text)
}

func (c *Coordinator) safeDispatch(ctx context.Context, connID, event string, data json.RawMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("arena_handler_panic", zap.String("event", event), zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return c.dispatch(ctx, connID, event, data)
}

func (c *Coordinator) dispatch(ctx context.Context, connID, event string, data json.RawMessage) error {
	switch event {
	case EventJoinRoom:
		var req JoinRequest
		if err := c.decode(data, &req); err != nil {
			return err
		}
		req.Color = strings.ToLower(strings.TrimSpace(req.Color))
		return c.Join(ctx, connID, req)
	case EventSendMove:
		var req MoveRequest
		if err := c.decode(data, &req); err != nil {
			return err
		}
		return c.SubmitMove(ctx, connID, req)
	case EventResign:
		var req ResignRequest
		if err := c.decode(data, &req); err != nil {
			return err
		}
		return c.Resign(ctx, connID, req)
	case EventDraw:
		return c.OfferDraw(connID)
	case EventDrawDeclined:
		return c.DeclineDraw(connID)
	case EventDrawAccepted:
		var req DrawAcceptRequest
		if err := c.decode(data, &req); err != nil {
			return err
		}
		return c.AcceptDraw(ctx, connID, req)
	case EventSendMessage:
		var req MessageRequest
		if err := c.decode(data, &req); err != nil {
			return err
		}
		return c.SendMessage(connID, req)
	case EventCallUser, EventAnswerCall, EventIceCandidate, EventReconnectCall, EventEndCall:
		var req RelayRequest
		if err := c.decode(data, &req); err != nil {
			return err
		}
		return c.Relay(connID, event, req)
	default:
		c.log.Debug("arena_unknown_event", zap.String("event", event), zap.String("conn_id", connID))
		return nil
	}
}

// decode unmarshals and validates a request payload.
func (c *Coordinator) decode(data json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := c.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("%w: %w", ErrInvalidRequest, verrs)
		}
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}
