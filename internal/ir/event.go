package ir

// Entity is an interned (id, value) pair. Value is unique within the table
// that owns the entity and Id is stable for the lifetime of the value.
//
// The zero Entity represents an absent field (a NULL foreign key).
type Entity struct {
	ID    int64  `json:"id,omitempty"`
	Value string `json:"value"`
}

// IsZero reports whether the entity represents an absent field.
func (e Entity) IsZero() bool {
	return e.ID == 0 && e.Value == ""
}

// String returns the entity value.
func (e Entity) String() string {
	return e.Value
}

// E builds an Entity carrying only a value, as callers do when composing
// events for insertion.
func E(value string) Entity {
	return Entity{Value: value}
}

// StatefulEntity is an Entity with a mutable integer state. The only
// stateful table is storage, where State is a StorageState.
type StatefulEntity struct {
	ID    int64  `json:"id,omitempty"`
	Value string `json:"value"`
	State int32  `json:"state"`
}

// StorageState describes whether the medium holding a subject is reachable.
// Values match the persisted storage.state column.
type StorageState int32

const (
	// StorageNotAvailable marks an unmounted or unreachable medium.
	StorageNotAvailable StorageState = 0

	// StorageAvailable marks a medium that is currently reachable.
	StorageAvailable StorageState = 1
)

// String returns the lower-case name of the storage state.
func (s StorageState) String() string {
	switch s {
	case StorageNotAvailable:
		return "not-available"
	case StorageAvailable:
		return "available"
	default:
		return "unknown"
	}
}

// ParseStorageState parses the names produced by StorageState.String.
func ParseStorageState(s string) (StorageState, error) {
	switch s {
	case "available":
		return StorageAvailable, nil
	case "not-available", "unavailable":
		return StorageNotAvailable, nil
	default:
		return 0, NewInvalidArgument("parse storage state", "unknown storage state %q", s)
	}
}

// Subject is a resource referenced by an event.
//
// On insert only the Value of each Entity is read. Storage names the medium
// holding the subject; StorageState is filled in on reconstruction from the
// current state of that medium.
type Subject struct {
	URI            Entity       `json:"uri"`
	Interpretation Entity       `json:"interpretation"`
	Manifestation  Entity       `json:"manifestation"`
	Mimetype       Entity       `json:"mimetype"`
	Origin         Entity       `json:"origin"`
	Text           Entity       `json:"text"`
	Storage        Entity       `json:"storage"`
	StorageState   StorageState `json:"storage_state"`
}

// Event is one logical activity record: an actor doing something to one or
// more subjects at a point in time.
//
// Events are assembled from fact rows and never persisted directly. ID is
// assigned by the store on insert; an input ID is ignored.
type Event struct {
	ID             int64     `json:"id"`
	Timestamp      int64     `json:"timestamp"`
	Interpretation Entity    `json:"interpretation"`
	Manifestation  Entity    `json:"manifestation"`
	Actor          Entity    `json:"actor"`
	Origin         Entity    `json:"origin"`
	Payload        []byte    `json:"payload,omitempty"`
	Subjects       []Subject `json:"subjects"`

	// PayloadID references the payload blob. It is set on reconstruction
	// even when the payload bytes were not requested.
	PayloadID int64 `json:"payload_id,omitempty"`
}

// HasPayload reports whether the event references a payload blob.
func (e *Event) HasPayload() bool {
	return e.PayloadID != 0 || len(e.Payload) > 0
}
