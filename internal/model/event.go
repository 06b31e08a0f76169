package model

import (
	"encoding/json"
	"time"
)

// TransferEventName is the only event name the engine replays.
const TransferEventName = "Transfer"

// Positions of the decoded Transfer arguments inside ParsedData.
const (
	ParsedFrom   = 0
	ParsedTo     = 1
	ParsedAmount = 2
)

// Event is one decoded log row from the append-only event store. Rows are
// written by the external indexer and never updated or deleted; the pair
// (TxHash, LogIndex) identifies an event uniquely.
type Event struct {
	EventName       string    `json:"event_name"`
	BlockNumber     uint64    `json:"block_number"`
	TxHash          string    `json:"tx_hash"`
	LogIndex        uint64    `json:"log_index"`
	ParsedData      []string  `json:"parsed_data"`
	ContractAddress string    `json:"contract_address"`
	AppName         string    `json:"app_name"`
	CreatedAt       time.Time `json:"created_at"`
}

// MarshalJSON ensures Event is encoded with stable field names.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(Alias(e))
}

// UnmarshalJSON decodes an Event from JSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Event(a)
	return nil
}

// From returns the decoded sender argument, or "" when absent.
func (e Event) From() string {
	if len(e.ParsedData) > ParsedFrom {
		return e.ParsedData[ParsedFrom]
	}
	return ""
}

// To returns the decoded receiver argument, or "" when absent.
func (e Event) To() string {
	if len(e.ParsedData) > ParsedTo {
		return e.ParsedData[ParsedTo]
	}
	return ""
}

// RawAmount returns the decimal-string integer amount in the asset's
// smallest unit, or "" when absent.
func (e Event) RawAmount() string {
	if len(e.ParsedData) > ParsedAmount {
		return e.ParsedData[ParsedAmount]
	}
	return ""
}
