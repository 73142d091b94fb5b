package protocol

import (
	"fmt"

	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/hasher/shake"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/multisig/naive"
)

// NewTestCommittee returns a committee of n witnesses named w0..w{n-1}
// with unit power, static keys of the given scheme, and the
// publisher keys from crypto.NewStaticTest*Key, for _tests_.
func NewTestCommittee(n int, schemeID string) (*Committee, map[string]multisig.Signer) {
	if schemeID == "" {
		schemeID = naive.ID
	}
	scheme, err := multisig.Get(schemeID)
	if err != nil {
		panic(err)
	}
	pk, _ := crypto.NewStaticTestSigningKey().Public()
	vrfPk := crypto.NewStaticTestVRFKey().Public()
	conf := &CommitteeConfig{
		PublisherKey: pk,
		VRFKey:       vrfPk[:],
		HashID:       shake.ID,
		Scheme:       schemeID,
	}
	signers := make(map[string]multisig.Signer, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("w%d", i)
		s, err := scheme.GenerateKey(crypto.NewStaticTestSeed(name))
		if err != nil {
			panic(err)
		}
		signers[name] = s
		conf.Witnesses = append(conf.Witnesses, WitnessInfo{
			Name:      name,
			Address:   name,
			Power:     1,
			PublicKey: s.Public(),
		})
	}
	c, err := NewCommittee(conf)
	if err != nil {
		panic(err)
	}
	return c, signers
}

// NewTestCertificate certifies (epoch, root) with the votes of the
// named witnesses, for _tests_.
func NewTestCertificate(c *Committee, signers map[string]multisig.Signer,
	epoch uint64, root []byte, names ...string) *Certificate {
	cert := &Certificate{Epoch: epoch, Root: root}
	var shares []multisig.Share
	for _, name := range names {
		s := signers[name]
		cert.Signers = append(cert.Signers, name)
		shares = append(shares, multisig.Share{
			PublicKey: s.Public(),
			Signature: s.Sign(VoteMessage(epoch, root)),
		})
	}
	agg, err := c.Scheme().Aggregate(shares)
	if err != nil {
		panic(err)
	}
	cert.Aggregate = agg
	return cert
}
