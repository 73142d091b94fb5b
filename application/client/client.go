// Package client talks to a publisher over its socket interface and
// verifies every answer before handing it to the caller. It follows
// the certified epochs with audits, so the publisher cannot show it
// two diverging histories.
package client

import (
	"bytes"
	"context"
	"errors"

	"github.com/coniks-sys/keywitness/application"
	"github.com/coniks-sys/keywitness/protocol"
	"github.com/coniks-sys/keywitness/protocol/verifier"
)

// ErrNoPublishAddress is returned by Publish if the config has no
// address at all.
var ErrNoPublishAddress = errors.New("[client] No address to publish to")

// A Client holds the latest certified root it has verified.
type Client struct {
	conf    *Config
	env     *verifier.Env
	checker *verifier.Client
}

// New returns a client trusting only the genesis root.
func New(conf *Config) *Client {
	env := &verifier.Env{Committee: conf.Committee()}
	return &Client{
		conf:    conf,
		env:     env,
		checker: verifier.NewClient(env),
	}
}

// Epoch returns the latest epoch the client verified and its root.
func (c *Client) Epoch() (uint64, []byte) {
	return c.checker.Epoch()
}

func (c *Client) exchange(ctx context.Context, d *application.DialConfig,
	reqType int, req interface{}) (*protocol.Response, error) {
	msg, err := application.MarshalRequest(reqType, req)
	if err != nil {
		return nil, err
	}
	b, err := d.Exchange(ctx, msg)
	if err != nil {
		return nil, err
	}
	res := application.UnmarshalResponse(reqType, b)
	if protocol.Errors[res.Error] {
		return nil, res.Error
	}
	return res, nil
}

// Sync advances the client to the latest certified epoch.
func (c *Client) Sync(ctx context.Context) (uint64, error) {
	res, err := c.exchange(ctx, c.conf.Address, protocol.CertificateQueryType, &protocol.CertificateQuery{})
	if err != nil {
		return 0, err
	}
	cert := res.DirectoryResponse.(*protocol.Certificate)
	if err := verifier.VerifyCertificate(cert, c.env); err != nil {
		return 0, err
	}
	if err := c.advance(ctx, cert.Epoch); err != nil {
		return 0, err
	}
	epoch, _ := c.checker.Epoch()
	return epoch, nil
}

// advance audits the history from the trusted epoch up to epoch.
func (c *Client) advance(ctx context.Context, epoch uint64) error {
	from, _ := c.checker.Epoch()
	if epoch <= from {
		return nil
	}
	res, err := c.exchange(ctx, c.conf.Address, protocol.AuditType,
		&protocol.AuditRequest{From: from, To: epoch})
	if err != nil {
		return err
	}
	return c.checker.Advance(res.DirectoryResponse.(*protocol.Audit))
}

// Lookup returns the verified value of identity at the latest
// certified epoch, or nil if the identity has none.
func (c *Client) Lookup(ctx context.Context, identity string) ([]byte, *protocol.LookupProof, error) {
	res, err := c.exchange(ctx, c.conf.Address, protocol.LookupType,
		&protocol.LookupRequest{Identity: identity})
	if err != nil {
		return nil, nil, err
	}
	p := res.DirectoryResponse.(*protocol.LookupProof)
	if p.Identity != identity {
		return nil, nil, protocol.CheckBadBinding
	}
	if err := verifier.VerifyLookup(p, c.env); err != nil {
		return nil, nil, err
	}
	if err := c.advance(ctx, p.Epoch); err != nil {
		return nil, nil, err
	}
	if err := c.checker.CheckLookup(p); err != nil {
		return nil, nil, err
	}
	if p.Membership == nil {
		return nil, p, nil
	}
	return p.Membership.Entry.Value, p, nil
}

// KeyHistory returns every verified version of identity's value, the
// oldest first.
func (c *Client) KeyHistory(ctx context.Context, identity string) (*protocol.KeyHistory, error) {
	res, err := c.exchange(ctx, c.conf.Address, protocol.KeyHistoryType,
		&protocol.KeyHistoryRequest{Identity: identity})
	if err != nil {
		return nil, err
	}
	h := res.DirectoryResponse.(*protocol.KeyHistory)
	if h.Identity != identity {
		return nil, protocol.CheckBadBinding
	}
	if err := verifier.VerifyKeyHistory(h, c.env); err != nil {
		return nil, err
	}
	if err := c.advance(ctx, h.Epoch); err != nil {
		return nil, err
	}
	if err := c.checker.CheckKeyHistory(h); err != nil {
		return nil, err
	}
	return h, nil
}

// Publish submits updates and returns the publisher's signed
// notification of the new epoch. The epoch is not certified yet.
func (c *Client) Publish(ctx context.Context, updates []protocol.Update) (*protocol.Notification, error) {
	d := c.conf.PublishAddress
	if d == nil {
		d = c.conf.Address
	}
	if d == nil {
		return nil, ErrNoPublishAddress
	}
	res, err := c.exchange(ctx, d, protocol.PublishType, &protocol.PublishRequest{Updates: updates})
	if err != nil {
		return nil, err
	}
	n := res.DirectoryResponse.(*protocol.Published).Notification
	if n == nil || !n.VerifySignature(c.env.Committee.PublisherKey()) {
		return nil, protocol.ErrBadSignature
	}
	return n, nil
}

// CrossCheck asks every configured witness for its certificate of the
// client's trusted epoch. A witness holding a valid certificate for
// another root proves the publisher equivocated. Witnesses that do
// not answer are skipped; CrossCheck returns how many agreed.
func (c *Client) CrossCheck(ctx context.Context) (int, error) {
	epoch, root := c.checker.Epoch()
	if epoch == 0 {
		return 0, nil
	}
	agreed := 0
	for _, d := range c.conf.Witnesses {
		res, err := c.exchange(ctx, d, protocol.CertificateQueryType,
			&protocol.CertificateQuery{Epoch: epoch})
		if err != nil {
			continue
		}
		cert := res.DirectoryResponse.(*protocol.Certificate)
		if cert.Epoch != epoch || verifier.VerifyCertificate(cert, c.env) != nil {
			continue
		}
		if !bytes.Equal(cert.Root, root) {
			return agreed, protocol.ErrCertificateMismatch
		}
		agreed++
	}
	return agreed, nil
}
