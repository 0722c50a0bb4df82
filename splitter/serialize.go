package splitter

import (
	"encoding/binary"
	"fmt"
	"math"
)

const (
	rosterHeaderSize = 12 // total_shares(8) + num_entries(4)
	rosterEntrySize  = 28 // address(20) + shares(8)
)

// SerializeRoster encodes a roster to its fixed binary layout.
func SerializeRoster(r *Roster) ([]byte, error) {
	if len(r.Payees) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d entries", ErrInvalidRosterData, len(r.Payees))
	}
	buf := make([]byte, rosterHeaderSize+rosterEntrySize*len(r.Payees))
	binary.BigEndian.PutUint64(buf[0:8], r.TotalShares)
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(r.Payees)))

	offset := rosterHeaderSize
	for _, p := range r.Payees {
		copy(buf[offset:offset+20], p.Address[:])
		binary.BigEndian.PutUint64(buf[offset+20:offset+28], p.Shares)
		offset += rosterEntrySize
	}
	return buf, nil
}

// DeserializeRoster decodes bytes written by SerializeRoster.
func DeserializeRoster(data []byte) (*Roster, error) {
	if len(data) < rosterHeaderSize {
		return nil, fmt.Errorf("%w: too short (%d bytes)", ErrInvalidRosterData, len(data))
	}
	r := &Roster{TotalShares: binary.BigEndian.Uint64(data[0:8])}
	n := int(binary.BigEndian.Uint32(data[8:12]))

	if want := rosterHeaderSize + rosterEntrySize*n; len(data) != want {
		return nil, fmt.Errorf("%w: expected %d bytes for %d entries, got %d",
			ErrInvalidRosterData, want, n, len(data))
	}

	r.Payees = make([]Payee, n)
	offset := rosterHeaderSize
	for i := 0; i < n; i++ {
		copy(r.Payees[i].Address[:], data[offset:offset+20])
		r.Payees[i].Shares = binary.BigEndian.Uint64(data[offset+20 : offset+28])
		offset += rosterEntrySize
	}
	return r, nil
}
