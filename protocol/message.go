// Defines the messages exchanged by the publisher, the witnesses
// and clients, and the constructors for the response messages.

package protocol

import (
	"bytes"

	"github.com/coniks-sys/keywitness/crypto"
	"github.com/coniks-sys/keywitness/crypto/multisig"
	"github.com/coniks-sys/keywitness/crypto/sign"
	"github.com/coniks-sys/keywitness/merkletree"
	"github.com/coniks-sys/keywitness/utils/codec"
)

// An Update binds Identity to Value in the next epoch.
type Update struct {
	Identity string
	Value    []byte
}

// A Notification announces a newly published epoch to the witnesses.
// Proof shows that Root extends PrevRoot, the root of Epoch-1.
type Notification struct {
	Epoch     uint64
	Root      []byte
	PrevRoot  []byte
	Proof     *merkletree.HistoryProof
	Signature []byte
}

// ID identifies the notification's (epoch, root) pair. It is also the
// message the publisher signs.
func (n *Notification) ID() []byte {
	return crypto.EpochDigest("notification", n.Epoch, n.Root)
}

// SignNotification signs n with the publisher's key.
func SignNotification(sk sign.PrivateKey, n *Notification) {
	n.Signature = sk.Sign(n.ID())
}

// VerifySignature checks the publisher's signature on n.
func (n *Notification) VerifySignature(pk sign.PublicKey) bool {
	return pk.Verify(n.ID(), n.Signature)
}

// A Vote is a witness's signature on (Epoch, Root).
type Vote struct {
	Epoch     uint64
	Root      []byte
	Witness   string
	Signature []byte
}

// VoteMessage is the message witnesses sign for (epoch, root).
func VoteMessage(epoch uint64, root []byte) []byte {
	return crypto.EpochDigest("vote", epoch, root)
}

// NewVote signs (epoch, root) on behalf of the witness name.
func NewVote(s multisig.Signer, name string, epoch uint64, root []byte) *Vote {
	return &Vote{
		Epoch:     epoch,
		Root:      append([]byte{}, root...),
		Witness:   name,
		Signature: s.Sign(VoteMessage(epoch, root)),
	}
}

// Equal reports whether v and o are the same vote.
func (v *Vote) Equal(o *Vote) bool {
	return v.Epoch == o.Epoch && v.Witness == o.Witness &&
		bytes.Equal(v.Root, o.Root) && bytes.Equal(v.Signature, o.Signature)
}

// Encode serializes v.
func (v *Vote) Encode() []byte {
	b := codec.WriteInt(nil, v.Epoch)
	b = codec.WriteBytes(b, v.Root)
	b = codec.WriteBytes(b, []byte(v.Witness))
	return codec.WriteBytes(b, v.Signature)
}

func readVote(r *codec.Reader) *Vote {
	return &Vote{
		Epoch:     r.Int(),
		Root:      r.Bytes(),
		Witness:   string(r.Bytes()),
		Signature: r.Bytes(),
	}
}

// DecodeVote parses an encoded vote.
func DecodeVote(b []byte) (*Vote, error) {
	r := codec.NewReader(b)
	v := readVote(r)
	if err := r.Done(); err != nil {
		return nil, err
	}
	return v, nil
}

// Message types exchanged between the publisher and witnesses.
const (
	NotificationType = iota
	VoteType
	CertificateType
	CertificateRequestType
	ErrorType
)

// A Message is the envelope of the consensus protocol. Exactly one
// payload field is set, according to Type. Error replies carry the
// code and, for ErrMissingEarlierCertificates, the first epoch the
// sender lacks.
type Message struct {
	From         string
	Type         int
	Notification *Notification `json:",omitempty"`
	Vote         *Vote         `json:",omitempty"`
	Certificate  *Certificate  `json:",omitempty"`
	Epoch        uint64        `json:",omitempty"`
	Error        ErrorCode     `json:",omitempty"`
}

// NewNotificationMessage wraps a notification.
func NewNotificationMessage(from string, n *Notification) *Message {
	return &Message{From: from, Type: NotificationType, Notification: n, Epoch: n.Epoch}
}

// NewVoteMessage wraps a vote.
func NewVoteMessage(from string, v *Vote) *Message {
	return &Message{From: from, Type: VoteType, Vote: v, Epoch: v.Epoch}
}

// NewCertificateMessage wraps a certificate.
func NewCertificateMessage(from string, c *Certificate) *Message {
	return &Message{From: from, Type: CertificateType, Certificate: c, Epoch: c.Epoch}
}

// NewCertificateRequest asks for the certificate of epoch.
func NewCertificateRequest(from string, epoch uint64) *Message {
	return &Message{From: from, Type: CertificateRequestType, Epoch: epoch}
}

// NewErrorMessage reports that the sender refused a message for epoch.
func NewErrorMessage(from string, epoch uint64, e ErrorCode) *Message {
	return &Message{From: from, Type: ErrorType, Epoch: epoch, Error: e}
}

// The types of requests clients send to the directory.
const (
	LookupType = iota
	KeyHistoryType
	CertificateQueryType
	AuditType
	PublishType
)

// A Request message defines the data a client sends to the directory.
type Request struct {
	Type    int
	Request interface{}
}

// A LookupRequest asks for the value of Identity at Epoch. Epoch 0
// selects the latest certified epoch.
type LookupRequest struct {
	Identity string
	Epoch    uint64 `json:",omitempty"`
}

// A KeyHistoryRequest asks for every version of Identity up to Epoch.
type KeyHistoryRequest struct {
	Identity string
	Epoch    uint64 `json:",omitempty"`
}

// A CertificateQuery asks for the certificate of Epoch, or the latest
// one if Epoch is 0.
type CertificateQuery struct {
	Epoch uint64 `json:",omitempty"`
}

// An AuditRequest asks for a proof that the root of To extends the
// root of From.
type AuditRequest struct {
	From uint64
	To   uint64
}

// A PublishRequest submits a batch of updates.
type PublishRequest struct {
	Updates []Update
}

// A Response message carries the result of a request and the proofs
// the client verifies.
type Response struct {
	Error             ErrorCode
	DirectoryResponse `json:",omitempty"`
}

// A DirectoryResponse is the payload of a successful response.
type DirectoryResponse interface{}

// A LookupProof answers a LookupRequest. Exactly one of Membership and
// NonMembership is set. Certificate anchors the proof's root.
type LookupProof struct {
	Identity      string
	Label         []byte
	VRFProof      []byte
	Epoch         uint64
	Membership    *merkletree.MembershipProof    `json:",omitempty"`
	NonMembership *merkletree.NonMembershipProof `json:",omitempty"`
	Certificate   *Certificate
}

// A KeyHistory answers a KeyHistoryRequest.
type KeyHistory struct {
	Identity    string
	Label       []byte
	VRFProof    []byte
	Epoch       uint64
	History     *merkletree.KeyHistoryProof
	Certificate *Certificate
}

// An Audit answers an AuditRequest with the history proof between two
// certified epochs and the certificate of the later one.
type Audit struct {
	Proof       *merkletree.HistoryProof
	Certificate *Certificate
}

// A Published answers a PublishRequest.
type Published struct {
	Notification *Notification
}

// NewErrorResponse creates a response carrying only an error code.
func NewErrorResponse(e ErrorCode) *Response {
	return &Response{Error: e}
}

// NewLookupResponse wraps a lookup proof.
func NewLookupResponse(p *LookupProof) *Response {
	e := ReqSuccess
	if p.Membership == nil {
		e = ReqNameNotFound
	}
	return &Response{Error: e, DirectoryResponse: p}
}

// NewResponse wraps a successful payload.
func NewResponse(d DirectoryResponse) *Response {
	return &Response{Error: ReqSuccess, DirectoryResponse: d}
}

// Validate returns the response's error code if it reports a failure,
// or ErrMalformedMessage if a successful response has no payload.
func (msg *Response) Validate() error {
	if Errors[msg.Error] {
		return msg.Error
	}
	if msg.DirectoryResponse == nil {
		return ErrMalformedMessage
	}
	return nil
}

var _ DirectoryResponse = (*LookupProof)(nil)
var _ DirectoryResponse = (*KeyHistory)(nil)
var _ DirectoryResponse = (*Certificate)(nil)
var _ DirectoryResponse = (*Audit)(nil)
var _ DirectoryResponse = (*Published)(nil)
