/*
Package merkletree implements the authenticated history tree of the
key directory.

The tree is a compressed binary prefix tree over 256-bit labels.
Interior nodes sit at the longest common prefix of their two
children; the root sits at the empty prefix and may have empty
slots. A leaf holds the head of its label's version chain

	chain_v = H('V' || chain_{v-1} || v || epoch || H(value))

so a single leaf digest commits to the label's entire history.

Every epoch is persisted, never overwritten: a node's versions are
stored under (prefix, epoch) and a read at epoch E returns the latest
version not newer than E. The published root of epoch E is

	root(E) = H('R' || E || root(E-1) || treeDigest(E))

chaining every epoch to its predecessor.

Proofs come in four kinds: membership and non-membership of a label
at an epoch, the complete version history of a label, and the history
proof that root(E) extends root(E-1) by exactly the epoch's updates.
*/
package merkletree
