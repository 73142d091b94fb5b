// Defines constants representing the types of errors that the
// directory, the witnesses and the verifier return, both over the
// wire and to local callers.

package protocol

import "errors"

// An ErrorCode is a message/error code, used on the wire and as an
// error value by the protocol packages.
type ErrorCode int

// Directory and witness response codes.
const (
	ReqSuccess ErrorCode = iota + 100
	ReqNameNotFound

	ErrDirectory
	ErrMalformedMessage
	ErrMalformedUpdate
	ErrEpochNotCertified
	ErrNotFound

	ErrBadSignature
	ErrUnexpectedEpoch
	ErrMissingEarlierCertificates
	ErrConflictingNotification
	ErrConflictingCertificate
	ErrInvalidProof

	ErrUnexpectedVote
	ErrUnknownWitness
	ErrWitnessReuse
	ErrInvalidVote
	ErrQuorumNotReached

	ErrOutOfOrder
	ErrTimeout
	ErrCertificateMismatch
)

// Client-side verification results.
const (
	CheckPassed ErrorCode = iota + 200
	CheckBadVRFProof
	CheckBadBinding
	CheckStaleEpoch
)

// Errors contains the codes that indicate a failure. The others
// are successful results.
var Errors = map[ErrorCode]bool{
	ErrDirectory:                  true,
	ErrMalformedMessage:           true,
	ErrMalformedUpdate:            true,
	ErrEpochNotCertified:          true,
	ErrNotFound:                   true,
	ErrBadSignature:               true,
	ErrUnexpectedEpoch:            true,
	ErrMissingEarlierCertificates: true,
	ErrConflictingNotification:    true,
	ErrConflictingCertificate:     true,
	ErrInvalidProof:               true,
	ErrUnexpectedVote:             true,
	ErrUnknownWitness:             true,
	ErrWitnessReuse:               true,
	ErrInvalidVote:                true,
	ErrQuorumNotReached:           true,
	ErrOutOfOrder:                 true,
	ErrTimeout:                    true,
	ErrCertificateMismatch:        true,
	CheckBadVRFProof:              true,
	CheckBadBinding:               true,
	CheckStaleEpoch:               true,
}

var errorMessages = map[ErrorCode]string{
	ReqSuccess:      "[keywitness] Successful request",
	ReqNameNotFound: "[keywitness] Identity not found",

	ErrDirectory:         "[keywitness] Directory error",
	ErrMalformedMessage:  "[keywitness] Malformed message",
	ErrMalformedUpdate:   "[keywitness] Malformed update in batch",
	ErrEpochNotCertified: "[keywitness] Epoch is not certified",
	ErrNotFound:          "[keywitness] Not found",

	ErrBadSignature:               "[keywitness] Bad signature",
	ErrUnexpectedEpoch:            "[keywitness] Unexpected epoch",
	ErrMissingEarlierCertificates: "[keywitness] Missing earlier certificates",
	ErrConflictingNotification:    "[keywitness] Conflicting notification",
	ErrConflictingCertificate:     "[keywitness] Conflicting certificate",
	ErrInvalidProof:               "[keywitness] Invalid history proof",

	ErrUnexpectedVote:   "[keywitness] Vote for another epoch or root",
	ErrUnknownWitness:   "[keywitness] Unknown witness",
	ErrWitnessReuse:     "[keywitness] Witness voted twice",
	ErrInvalidVote:      "[keywitness] Invalid vote signature",
	ErrQuorumNotReached: "[keywitness] Signers do not reach the quorum",

	ErrOutOfOrder:          "[keywitness] Epoch certified out of order",
	ErrTimeout:             "[keywitness] Certification timed out",
	ErrCertificateMismatch: "[keywitness] Certificate does not match the root",

	CheckPassed:      "[keywitness] Consistency checks passed",
	CheckBadVRFProof: "[keywitness] Returned label does not verify against the VRF proof",
	CheckBadBinding:  "[keywitness] Returned value does not match the identity's binding",
	CheckStaleEpoch:  "[keywitness] Response does not follow the trusted epoch",
}

func (e ErrorCode) Error() string {
	if msg, ok := errorMessages[e]; ok {
		return msg
	}
	return "[keywitness] Unknown error code"
}

// An ErrorKind groups codes by what went wrong.
type ErrorKind int

// Error kinds.
const (
	KindNone ErrorKind = iota
	KindMalformed
	KindNotFound
	KindConsistency
	KindTimeout
	KindInternal
)

// Kind classifies e.
func (e ErrorCode) Kind() ErrorKind {
	switch e {
	case ReqSuccess, ReqNameNotFound, CheckPassed:
		return KindNone
	case ErrNotFound, ErrEpochNotCertified:
		return KindNotFound
	case ErrConflictingNotification, ErrConflictingCertificate, ErrCertificateMismatch:
		return KindConsistency
	case ErrTimeout:
		return KindTimeout
	case ErrDirectory:
		return KindInternal
	}
	return KindMalformed
}

// KindOf classifies err. Errors that are not an ErrorCode are
// internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var code ErrorCode
	if errors.As(err, &code) {
		return code.Kind()
	}
	return KindInternal
}
