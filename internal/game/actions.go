package game

import (
	"encoding/json"
	"errors"
)

// ActionName identifies a client-facing action on the wire.
type ActionName string

const (
	ActionClickCard        ActionName = "click-card"
	ActionDrawFromStack    ActionName = "draw-from-stack"
	ActionClickDiscardPile ActionName = "click-discard-pile"
	ActionPlaceCard        ActionName = "place-card"
	ActionNextRound        ActionName = "next-round"
)

func (a ActionName) String() string { return string(a) }

// Payload is the closed set of decoded action payloads. Shapes are
// validated here at the boundary; range checks against the live grid
// happen in the phase handlers.
type Payload interface {
	isPayload()
}

// ClickCard selects a cell in the acting player's own grid, either to
// reveal it or (during placement) to swap the cached card into it.
type ClickCard struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// PlaceCard places the cached card at a cell in the acting player's grid.
type PlaceCard struct {
	Column int `json:"column"`
	Row    int `json:"row"`
}

// DrawFromStack, ClickDiscardPile and NextRound carry no data.
type (
	DrawFromStack    struct{}
	ClickDiscardPile struct{}
	NextRound        struct{}
)

func (ClickCard) isPayload()        {}
func (PlaceCard) isPayload()        {}
func (DrawFromStack) isPayload()    {}
func (ClickDiscardPile) isPayload() {}
func (NextRound) isPayload()        {}

// DecodePayload turns raw wire data into the typed payload for the action.
func DecodePayload(name ActionName, raw json.RawMessage) (Payload, error) {
	switch name {
	case ActionClickCard:
		var p ClickCard
		if err := decodeCell(raw, &p.Column, &p.Row); err != nil {
			return nil, &MalformedPayloadError{Action: name, Err: err}
		}
		return p, nil
	case ActionPlaceCard:
		var p PlaceCard
		if err := decodeCell(raw, &p.Column, &p.Row); err != nil {
			return nil, &MalformedPayloadError{Action: name, Err: err}
		}
		return p, nil
	case ActionDrawFromStack:
		return DrawFromStack{}, nil
	case ActionClickDiscardPile:
		return ClickDiscardPile{}, nil
	case ActionNextRound:
		return NextRound{}, nil
	default:
		return nil, &MalformedPayloadError{Action: name, Err: errors.New("unknown action")}
	}
}

func decodeCell(raw json.RawMessage, col, row *int) error {
	if len(raw) == 0 {
		return errors.New("empty payload")
	}
	var cell struct {
		Column *int `json:"column"`
		Row    *int `json:"row"`
	}
	if err := json.Unmarshal(raw, &cell); err != nil {
		return err
	}
	if cell.Column == nil || cell.Row == nil {
		return errors.New("column and row are required")
	}
	*col, *row = *cell.Column, *cell.Row
	return nil
}
