package protocol

import (
	"github.com/coniks-sys/keywitness/utils/codec"
)

// A Certificate proves that witnesses holding a quorum of the voting
// power signed (Epoch, Root). Aggregate is the scheme's aggregate of
// the signers' votes, in Signers order.
type Certificate struct {
	Epoch     uint64
	Root      []byte
	Signers   []string
	Aggregate []byte
}

// Verify checks c against the committee: signers are distinct and
// enrolled, their power reaches the quorum, and the aggregate verifies
// for (Epoch, Root).
func (c *Certificate) Verify(com *Committee) error {
	seen := make(map[string]bool, len(c.Signers))
	pks := make([][]byte, 0, len(c.Signers))
	var weight uint64
	for _, name := range c.Signers {
		if seen[name] {
			return ErrWitnessReuse
		}
		seen[name] = true
		w, ok := com.Witness(name)
		if !ok {
			return ErrUnknownWitness
		}
		weight += w.Power
		pks = append(pks, w.PublicKey)
	}
	if weight < com.QuorumThreshold() {
		return ErrQuorumNotReached
	}
	if !com.Scheme().VerifyAggregate(pks, VoteMessage(c.Epoch, c.Root), c.Aggregate) {
		return ErrBadSignature
	}
	return nil
}

// Encode serializes c.
func (c *Certificate) Encode() []byte {
	b := codec.WriteInt(nil, c.Epoch)
	b = codec.WriteBytes(b, c.Root)
	b = codec.WriteSlice(b, c.Signers, func(b []byte, s string) []byte {
		return codec.WriteBytes(b, []byte(s))
	})
	return codec.WriteBytes(b, c.Aggregate)
}

// DecodeCertificate parses an encoded certificate.
func DecodeCertificate(b []byte) (*Certificate, error) {
	r := codec.NewReader(b)
	c := &Certificate{Epoch: r.Int(), Root: r.Bytes()}
	n := r.Len()
	for i := 0; i < n; i++ {
		c.Signers = append(c.Signers, string(r.Bytes()))
	}
	c.Aggregate = r.Bytes()
	if err := r.Done(); err != nil {
		return nil, err
	}
	return c, nil
}
