package metadata

import (
	"encoding/json"
	"time"
)

// Record is the local bookkeeping entry for a single stored object. The
// object's id is the key it is stored under in a Snapshot, not a field.
type Record struct {
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mimetype"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// UnmarshalJSON accepts documents written by older deployments, which stored
// the creation time under "uploadedAt".
func (r *Record) UnmarshalJSON(data []byte) error {
	type plain Record
	var aux struct {
		plain
		UploadedAt time.Time `json:"uploadedAt"`
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	*r = Record(aux.plain)
	if r.CreatedAt.IsZero() {
		r.CreatedAt = aux.UploadedAt
	}
	return nil
}

// Snapshot is the complete id -> Record mapping at a point in time.
type Snapshot map[string]Record

// Clone returns a copy of s that can be mutated independently.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for id, rec := range s {
		out[id] = rec
	}
	return out
}
