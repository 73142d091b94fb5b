package witness

import (
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/storage"
	"github.com/coniks-sys/keywitness/utils/codec"
)

var stateKey = []byte{'W'}

// State is what a witness persists: the last certified root, the
// epoch it expects next, the first root the publisher signed for that
// epoch, its vote if any, and whether it saw two roots for that epoch.
type State struct {
	Root      []byte
	NextEpoch uint64
	Seen      []byte
	Lock      *protocol.Vote
	Conflict  bool
}

func (s *State) clone() State {
	c := *s
	if s.Lock != nil {
		v := *s.Lock
		c.Lock = &v
	}
	return c
}

func (s *State) encode() []byte {
	b := codec.WriteBytes(nil, s.Root)
	b = codec.WriteInt(b, s.NextEpoch)
	b = codec.WriteBool(b, s.Lock != nil)
	if s.Lock != nil {
		b = codec.WriteBytes(b, s.Lock.Encode())
	}
	b = codec.WriteBool(b, s.Conflict)
	return codec.WriteBytes(b, s.Seen)
}

func decodeState(b []byte) (*State, error) {
	r := codec.NewReader(b)
	s := &State{Root: r.Bytes(), NextEpoch: r.Int()}
	var lock []byte
	if r.Bool() {
		lock = r.Bytes()
	}
	s.Conflict = r.Bool()
	if seen := r.Bytes(); len(seen) > 0 {
		s.Seen = seen
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	if lock != nil {
		v, err := protocol.DecodeVote(lock)
		if err != nil {
			return nil, err
		}
		s.Lock = v
	}
	return s, nil
}

func loadState(store *storage.Store) (*State, error) {
	b, err := store.Get(stateKey)
	if err != nil {
		return nil, err
	}
	return decodeState(b)
}
