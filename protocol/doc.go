/*
Package protocol defines the messages and the shared configuration of
the keywitness protocols.

# Committee

A Committee is the explicit configuration every party agrees on: the
publisher's signing and VRF keys, the tree hash, the witnesses'
signature scheme, and the enrolled witnesses with their voting power.
A certificate needs the signatures of witnesses holding more than two
thirds of the total power.

# Messages

The publisher sends a signed Notification for every epoch it
finalizes, carrying a history proof from the previous root. Witnesses
answer with a Vote or an error message; once enough votes are
gathered the publisher broadcasts a Certificate. Clients talk to the
directory with Request and Response messages.

# Error

ErrorCode values are both the codes on the wire and the errors the
protocol packages return.

The subpackages implement the directory (directory), the witness state
machine (witness), vote aggregation (aggregator), the certification
round driver (consensus), the certificate log (certlog) and the client
verifier (verifier).
*/
package protocol
