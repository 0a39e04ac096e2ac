package match

import "github.com/park285/Cheese-Arena/internal/domain"

// Durability decides when the durable record sees accepted moves.
type Durability string

const (
	ReconcileAtEnd Durability = "reconcile"
	ImmediateWrite Durability = "immediate"
)

// ParseDurability accepts the config spelling; unknown values fall back to ReconcileAtEnd.
func ParseDurability(s string) Durability {
	if Durability(s) == ImmediateWrite {
		return ImmediateWrite
	}
	return ReconcileAtEnd
}

// Policy is the per-kind behaviour of one state machine.
type Policy struct {
	Rated      bool
	Durability Durability
}

// PolicyFor picks the policy of a session kind. Guest sessions never touch the
// durable store before the end and never carry ratings.
func PolicyFor(kind domain.Kind, rated Durability) Policy {
	if kind == domain.KindRated {
		return Policy{Rated: true, Durability: rated}
	}
	return Policy{Rated: false, Durability: ReconcileAtEnd}
}
