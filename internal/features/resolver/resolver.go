package resolver

import (
	"context"
	"errors"
	"slices"
	"time"

	"go-approval/internal/features/delegation"
	"go-approval/internal/features/org"
	"go-approval/internal/features/workflow"

	"go.uber.org/zap"
)

// DelegationLookup finds the delegation an actor's authority passes through.
type DelegationLookup interface {
	FindActiveDelegation(ctx context.Context, delegatorID string, requestType workflow.RequestType, requestID string, at time.Time) (*delegation.Delegation, error)
}

type Resolver interface {
	// Resolve computes the eligible set for step. Delegation substitution
	// applies only when allowDelegation is set and the step is delegable.
	Resolve(ctx context.Context, step *workflow.ApprovalStep, allowDelegation bool, subject Subject, at time.Time) (*Resolution, error)
	// ResolveEscalation computes who a step escalates to under rule. level
	// is the 1-based escalation count for the request.
	ResolveEscalation(ctx context.Context, rule *workflow.EscalationRule, step *workflow.ApprovalStep, allowDelegation bool, subject Subject, level int, at time.Time) (*Resolution, error)
	// Refresh recomputes substitution for res's original actors at at.
	Refresh(ctx context.Context, res *Resolution, substitute bool, subject Subject, at time.Time) (*Resolution, error)
}

type ResolverImpl struct {
	directory   org.Directory
	delegations DelegationLookup
	logger      *zap.Logger
}

func NewResolver(directory org.Directory, delegations DelegationLookup, logger *zap.Logger) Resolver {
	return &ResolverImpl{
		directory:   directory,
		delegations: delegations,
		logger:      logger.Named("resolver"),
	}
}

func (r *ResolverImpl) Resolve(ctx context.Context, step *workflow.ApprovalStep, allowDelegation bool, subject Subject, at time.Time) (*Resolution, error) {
	actors, err := r.resolveSpec(ctx, step.Approver, subject)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, step.Approver.Kind, actors, allowDelegation && step.Delegable, subject, at)
}

func (r *ResolverImpl) ResolveEscalation(ctx context.Context, rule *workflow.EscalationRule, step *workflow.ApprovalStep, allowDelegation bool, subject Subject, level int, at time.Time) (*Resolution, error) {
	if level < 1 {
		level = 1
	}
	kind := step.Approver.Kind
	var (
		actors []string
		err    error
	)
	switch rule.Type {
	case workflow.EscalateSpecificUser:
		actors, err = r.specific(ctx, kind, []string{rule.TargetUserID})
	case workflow.EscalateAdmin:
		actors, err = r.admins(ctx, kind)
	case workflow.EscalateGroupLeader:
		actors, err = r.escalateGroupLeader(ctx, kind, subject, level)
	case workflow.EscalateNextLevel, "":
		actors, err = r.nextLevel(ctx, step.Approver, subject, level)
	default:
		return nil, resolutionError(kind, nil, "unknown escalation type %q", rule.Type)
	}
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, kind, actors, allowDelegation && step.Delegable, subject, at)
}

func (r *ResolverImpl) Refresh(ctx context.Context, res *Resolution, substitute bool, subject Subject, at time.Time) (*Resolution, error) {
	out := &Resolution{Original: slices.Clone(res.Original), Actors: slices.Clone(res.Original)}
	if substitute {
		if err := r.substitute(ctx, out, subject, at); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *ResolverImpl) finish(ctx context.Context, kind workflow.ApproverKind, actors []string, substitute bool, subject Subject, at time.Time) (*Resolution, error) {
	actors = dedupe(actors)
	if len(actors) == 0 {
		return nil, resolutionError(kind, nil, "no eligible approver")
	}
	res := &Resolution{Original: actors, Actors: slices.Clone(actors)}
	if substitute {
		if err := r.substitute(ctx, res, subject, at); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func (r *ResolverImpl) resolveSpec(ctx context.Context, spec workflow.ApproverSpec, subject Subject) ([]string, error) {
	switch spec.Kind {
	case workflow.ApproverSpecific:
		return r.specific(ctx, spec.Kind, spec.UserIDs)
	case workflow.ApproverRole:
		users, err := r.directory.UsersWithRoles(ctx, spec.Roles)
		if err != nil {
			return nil, err
		}
		var ids []string
		for _, u := range users {
			if u.IsActive() {
				ids = append(ids, u.ID)
			}
		}
		return ids, nil
	case workflow.ApproverGroup:
		var ids []string
		for _, gid := range spec.GroupIDs {
			g, err := r.directory.GetGroup(ctx, gid)
			if err != nil {
				return nil, r.orgError(spec.Kind, err, "group %s", gid)
			}
			if id, ok := r.activeUser(ctx, g.LeaderID); ok {
				ids = append(ids, id)
			}
		}
		return ids, nil
	case workflow.ApproverManager:
		return r.managerAt(ctx, spec.Kind, subject.RequesterID, 1)
	case workflow.ApproverUpperManager:
		return r.managerAt(ctx, spec.Kind, subject.RequesterID, 2)
	case workflow.ApproverGroupLeader, workflow.ApproverUpperGroupLeader, workflow.ApproverTopGroupLeader:
		chain, err := r.requesterGroupChain(ctx, spec.Kind, subject)
		if err != nil {
			return nil, err
		}
		return r.leaderAt(ctx, chain, leaderDepth(spec.Kind, len(chain))), nil
	case workflow.ApproverAdmin:
		return r.admins(ctx, spec.Kind)
	case workflow.ApproverAnyLeader:
		user, err := r.requester(ctx, spec.Kind, subject)
		if err != nil {
			return nil, err
		}
		groups := user.Groups
		if slices.Contains(groups, subject.GroupID) {
			groups = append([]string{subject.GroupID}, slices.DeleteFunc(slices.Clone(groups), func(g string) bool {
				return g == subject.GroupID
			})...)
		}
		var ids []string
		for _, gid := range groups {
			g, err := r.directory.GetGroup(ctx, gid)
			if err != nil {
				return nil, r.orgError(spec.Kind, err, "group %s", gid)
			}
			if id, ok := r.activeUser(ctx, g.LeaderID); ok {
				ids = append(ids, id)
			}
		}
		return ids, nil
	case workflow.ApproverAnyManager:
		chain, err := org.ManagerChain(ctx, r.directory, subject.RequesterID, MaxChainDepth)
		if err != nil {
			return nil, r.orgError(spec.Kind, err, "requester %s", subject.RequesterID)
		}
		if len(chain) == 0 {
			return nil, resolutionError(spec.Kind, ErrNoManagerFound, "requester %s has no manager", subject.RequesterID)
		}
		var ids []string
		for _, m := range chain {
			if m.IsActive() {
				ids = append(ids, m.ID)
			}
		}
		return ids, nil
	default:
		return nil, resolutionError(spec.Kind, nil, "unknown approver kind")
	}
}

// specific fails on any missing or inactive user.
func (r *ResolverImpl) specific(ctx context.Context, kind workflow.ApproverKind, userIDs []string) ([]string, error) {
	var ids []string
	for _, id := range userIDs {
		u, err := r.directory.GetUser(ctx, id)
		if err != nil {
			return nil, r.orgError(kind, err, "user %q", id)
		}
		if !u.IsActive() {
			return nil, resolutionError(kind, nil, "user %s is %s", id, u.Status)
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func (r *ResolverImpl) admins(ctx context.Context, kind workflow.ApproverKind) ([]string, error) {
	ids, err := org.ActiveAdmins(ctx, r.directory)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, resolutionError(kind, nil, "no active admin")
	}
	return ids, nil
}

func (r *ResolverImpl) managerAt(ctx context.Context, kind workflow.ApproverKind, requesterID string, depth int) ([]string, error) {
	chain, err := org.ManagerChain(ctx, r.directory, requesterID, depth)
	if err != nil {
		return nil, r.orgError(kind, err, "requester %s", requesterID)
	}
	if len(chain) < depth {
		return nil, resolutionError(kind, ErrNoManagerFound, "requester %s has no manager at depth %d", requesterID, depth)
	}
	m := chain[depth-1]
	if !m.IsActive() {
		return nil, resolutionError(kind, nil, "manager %s is %s", m.ID, m.Status)
	}
	return []string{m.ID}, nil
}

func (r *ResolverImpl) requester(ctx context.Context, kind workflow.ApproverKind, subject Subject) (*org.User, error) {
	user, err := r.directory.GetUser(ctx, subject.RequesterID)
	if err != nil {
		return nil, r.orgError(kind, err, "requester %s", subject.RequesterID)
	}
	return user, nil
}

func (r *ResolverImpl) requesterGroupChain(ctx context.Context, kind workflow.ApproverKind, subject Subject) ([]org.Group, error) {
	user, err := r.requester(ctx, kind, subject)
	if err != nil {
		return nil, err
	}
	// A group override only counts when the requester belongs to it.
	groupID := user.PrimaryGroup()
	if slices.Contains(user.Groups, subject.GroupID) {
		groupID = subject.GroupID
	}
	if groupID == "" {
		return nil, resolutionError(kind, nil, "requester %s belongs to no group", subject.RequesterID)
	}
	chain, err := org.GroupChain(ctx, r.directory, groupID)
	if err != nil {
		return nil, r.orgError(kind, err, "group %s", groupID)
	}
	return chain, nil
}

// leaderDepth maps a leader kind to an index into the requester's group
// chain. UPPER_GROUP_LEADER stops at the root group.
func leaderDepth(kind workflow.ApproverKind, chainLen int) int {
	switch kind {
	case workflow.ApproverUpperGroupLeader:
		return min(1, chainLen-1)
	case workflow.ApproverTopGroupLeader:
		return chainLen - 1
	default:
		return 0
	}
}

func (r *ResolverImpl) leaderAt(ctx context.Context, chain []org.Group, depth int) []string {
	if depth < 0 || depth >= len(chain) {
		return nil
	}
	if id, ok := r.activeUser(ctx, chain[depth].LeaderID); ok {
		return []string{id}
	}
	return nil
}

// nextLevel moves one level up the hierarchy the step's approver kind walks
// per escalation. Kinds outside a hierarchy, and exhausted hierarchies, go
// to the admins.
func (r *ResolverImpl) nextLevel(ctx context.Context, spec workflow.ApproverSpec, subject Subject, level int) ([]string, error) {
	switch spec.Kind {
	case workflow.ApproverManager, workflow.ApproverUpperManager:
		depth := level + 1
		if spec.Kind == workflow.ApproverUpperManager {
			depth++
		}
		chain, err := org.ManagerChain(ctx, r.directory, subject.RequesterID, depth)
		if err != nil {
			return nil, r.orgError(spec.Kind, err, "requester %s", subject.RequesterID)
		}
		if len(chain) == depth && chain[depth-1].IsActive() {
			return []string{chain[depth-1].ID}, nil
		}
	case workflow.ApproverGroupLeader, workflow.ApproverUpperGroupLeader:
		chain, err := r.requesterGroupChain(ctx, spec.Kind, subject)
		if err != nil {
			return nil, err
		}
		if ids := r.leaderAt(ctx, chain, leaderDepth(spec.Kind, len(chain))+level); len(ids) > 0 {
			return ids, nil
		}
	}
	return r.admins(ctx, spec.Kind)
}

// escalateGroupLeader walks the requester's group ancestry one group per
// escalation, staying at the root once reached.
func (r *ResolverImpl) escalateGroupLeader(ctx context.Context, kind workflow.ApproverKind, subject Subject, level int) ([]string, error) {
	chain, err := r.requesterGroupChain(ctx, kind, subject)
	if err != nil {
		return nil, err
	}
	for depth := min(level, len(chain)-1); depth < len(chain); depth++ {
		ids := r.leaderAt(ctx, chain, depth)
		if len(ids) > 0 && ids[0] != subject.RequesterID {
			return ids, nil
		}
	}
	return r.admins(ctx, kind)
}

// substitute replaces each original actor holding an active outgoing
// delegation by its delegate, following onward delegations. A chain that
// loops back leaves the original actor in place.
func (r *ResolverImpl) substitute(ctx context.Context, res *Resolution, subject Subject, at time.Time) error {
	var actors []string
	for _, original := range res.Original {
		current := original
		var hops []string
		seen := map[string]bool{original: true}
		looped := false
		for len(hops) < MaxChainDepth {
			d, err := r.delegations.FindActiveDelegation(ctx, current, subject.RequestType, subject.RequestID, at)
			if err != nil {
				return err
			}
			if d == nil {
				break
			}
			if seen[d.DelegateID] {
				looped = true
				break
			}
			if _, ok := r.activeUser(ctx, d.DelegateID); !ok {
				break
			}
			seen[d.DelegateID] = true
			hops = append(hops, d.ID)
			current = d.DelegateID
		}
		if looped {
			r.logger.Warn("Delegation cycle ignored",
				zap.String("request_id", subject.RequestID),
				zap.String("actor_id", original),
				zap.Strings("delegation_ids", hops))
			current, hops = original, nil
		}
		if len(hops) > 0 {
			res.Substitutions = append(res.Substitutions, Substitution{
				OnBehalfOf:    original,
				ActorID:       current,
				DelegationIDs: hops,
			})
		}
		actors = append(actors, current)
	}
	res.Actors = dedupe(actors)
	return nil
}

func (r *ResolverImpl) activeUser(ctx context.Context, id string) (string, bool) {
	if id == "" {
		return "", false
	}
	u, err := r.directory.GetUser(ctx, id)
	if err != nil || !u.IsActive() {
		return "", false
	}
	return u.ID, true
}

// orgError turns directory lookup failures into resolution errors. Other
// failures pass through unchanged.
func (r *ResolverImpl) orgError(kind workflow.ApproverKind, err error, format string, args ...any) error {
	if errors.Is(err, org.ErrUserNotFound) || errors.Is(err, org.ErrGroupNotFound) || errors.Is(err, org.ErrHierarchy) {
		return resolutionError(kind, err, format, args...)
	}
	return err
}

func dedupe(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" && !slices.Contains(out, id) {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return out
}
