package room

// Key returns the canonical room key for a two-party conversation.
// It is commutative: Key(a, b) == Key(b, a). Equal inputs yield the
// degenerate self-chat room. Room keys are always recomputed from the
// participant IDs, never trusted from a remote party.
func Key(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "-" + b
}
