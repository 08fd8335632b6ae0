package strategy

import (
	"encoding/json"
	"fmt"
)

// Snapshot is the serializable form of a State, tagged by kind.
type Snapshot struct {
	Kind  Kind            `json:"kind"`
	State json.RawMessage `json:"state"`
}

func EncodeState(st State) (Snapshot, error) {
	data, err := json.Marshal(st)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode %s state: %w", st.Kind(), err)
	}
	return Snapshot{Kind: st.Kind(), State: data}, nil
}

func DecodeState(snap Snapshot) (State, error) {
	var st State
	switch snap.Kind {
	case KindOpeningRangeBreakout:
		st = &BreakoutState{}
	case KindSMACrossover:
		st = &CrossoverState{}
	case KindBuyAndHold:
		st = &BuyAndHoldState{}
	default:
		return nil, fmt.Errorf("unknown state kind %q", snap.Kind)
	}
	if len(snap.State) > 0 {
		if err := json.Unmarshal(snap.State, st); err != nil {
			return nil, fmt.Errorf("decode %s state: %w", snap.Kind, err)
		}
	}
	if b, ok := st.(*BreakoutState); ok && b.Range != nil && b.Range.High < b.Range.Low {
		return nil, fmt.Errorf("decode %s state: range high below low", snap.Kind)
	}
	return st, nil
}
