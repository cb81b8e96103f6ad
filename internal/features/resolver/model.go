package resolver

import (
	"slices"

	"go-approval/internal/features/workflow"
)

// MaxChainDepth bounds manager walks for ANY_MANAGER and delegation
// substitution chains.
const MaxChainDepth = 5

// Subject is the request an approver set is resolved for.
type Subject struct {
	RequestID   string
	RequestType workflow.RequestType
	RequesterID string
	// GroupID overrides the requester's primary group when set.
	GroupID string
}

// Substitution records an actor replaced by a delegate. DelegationIDs
// lists every hop when the delegate had delegated onward.
type Substitution struct {
	OnBehalfOf    string   `bson:"on_behalf_of" json:"on_behalf_of"`
	ActorID       string   `bson:"actor_id" json:"actor_id"`
	DelegationIDs []string `bson:"delegation_ids" json:"delegation_ids"`
}

// Resolution is the eligible set for a step. Original holds the actors the
// approver spec resolved to; Actors holds who may act after delegation.
type Resolution struct {
	Actors        []string       `bson:"actors" json:"actors"`
	Original      []string       `bson:"original" json:"original"`
	Substitutions []Substitution `bson:"substitutions,omitempty" json:"substitutions,omitempty"`
}

func (r *Resolution) Eligible(actorID string) bool {
	return r != nil && slices.Contains(r.Actors, actorID)
}

// Delegated reports whether any original actor was replaced.
func (r *Resolution) Delegated() bool {
	return r != nil && len(r.Substitutions) > 0
}

// Represents lists the original actors actorID decides for: itself when it
// was resolved and not delegated away, plus everyone it substitutes.
func (r *Resolution) Represents(actorID string) []string {
	if r == nil {
		return nil
	}
	var out []string
	replaced := false
	for _, s := range r.Substitutions {
		if s.OnBehalfOf == actorID {
			replaced = true
		}
		if s.ActorID == actorID {
			out = append(out, s.OnBehalfOf)
		}
	}
	if !replaced && slices.Contains(r.Original, actorID) {
		out = append(out, actorID)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// SubstitutionFor returns the substitution through which actorID acts for
// principal, if any.
func (r *Resolution) SubstitutionFor(actorID, principal string) (*Substitution, bool) {
	if r == nil {
		return nil, false
	}
	for i := range r.Substitutions {
		if r.Substitutions[i].ActorID == actorID && r.Substitutions[i].OnBehalfOf == principal {
			return &r.Substitutions[i], true
		}
	}
	return nil, false
}

// Only reports whether the eligible set is exactly {actorID}.
func (r *Resolution) Only(actorID string) bool {
	return r != nil && len(r.Actors) == 1 && r.Actors[0] == actorID
}

func (r *Resolution) Clone() *Resolution {
	if r == nil {
		return nil
	}
	out := &Resolution{
		Actors:   slices.Clone(r.Actors),
		Original: slices.Clone(r.Original),
	}
	for _, s := range r.Substitutions {
		s.DelegationIDs = slices.Clone(s.DelegationIDs)
		out.Substitutions = append(out.Substitutions, s)
	}
	return out
}
