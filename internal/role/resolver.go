package role

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"helpmarq/client/internal/api"
	"helpmarq/client/internal/state"
)

// ErrSelectionRequired means no role could be determined from any source and
// the caller must navigate to the role-selection flow. It is a routing
// decision, not a failure to show the user.
var ErrSelectionRequired = errors.New("role: selection required")

// DefaultLookupTimeout bounds the backend role lookup so a slow call cannot
// hang resolution.
const DefaultLookupTimeout = 4 * time.Second

// Resolution is the outcome of a successful resolve. ReviewerID is set iff
// Role is Reviewer.
type Resolution struct {
	Role       Role
	ReviewerID string
}

// Resolver reconciles the three role sources. Overlapping calls share one
// in-flight resolution; durable writes are last-write-wins.
type Resolver struct {
	api           *api.Client
	durable       state.Store
	ephemeral     state.Store
	lookupTimeout time.Duration
	log           zerolog.Logger

	flight singleflight.Group
}

// NewResolver wires a resolver. A non-positive timeout selects the default.
func NewResolver(client *api.Client, durable, ephemeral state.Store, lookupTimeout time.Duration, log zerolog.Logger) *Resolver {
	if lookupTimeout <= 0 {
		lookupTimeout = DefaultLookupTimeout
	}
	return &Resolver{
		api:           client,
		durable:       durable,
		ephemeral:     ephemeral,
		lookupTimeout: lookupTimeout,
		log:           log,
	}
}

// Resolve determines the current role.
//
// Priority: a role selected this navigation is trusted without a network call
// (the server write may not have propagated yet); otherwise the backend is
// authoritative and overwrites the local copy; otherwise the durable then
// ephemeral local value bridges backend unavailability; otherwise local
// identity state is purged and ErrSelectionRequired is returned.
func (r *Resolver) Resolve(ctx context.Context) (Resolution, error) {
	value, err, _ := r.flight.Do("resolve", func() (any, error) {
		return r.resolve(ctx)
	})
	if err != nil {
		return Resolution{}, err
	}
	return value.(Resolution), nil
}

func (r *Resolver) resolve(ctx context.Context) (Resolution, error) {
	justSelected := state.TakeFlag(ctx, r.ephemeral, state.KeyRoleJustSelected)
	if justSelected {
		if resolution, ok := r.localRole(ctx, r.durable); ok {
			return resolution, nil
		}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	identity, err := r.api.Me(lookupCtx)
	cancel()
	switch {
	case err != nil:
		r.log.Debug().Err(err).Msg("role lookup failed, falling back to local state")
	case Normalize(identity.Role) != Unset:
		return r.adoptBackend(ctx, identity)
	case state.TakeFlag(ctx, r.ephemeral, state.KeyIdentityVerified):
		// Account exists, role not chosen: the first-time flow, not a failure.
		return Resolution{}, ErrSelectionRequired
	}

	if resolution, ok := r.localRole(ctx, r.durable); ok {
		return resolution, nil
	}
	if resolution, ok := r.localRole(ctx, r.ephemeral); ok {
		return resolution, nil
	}

	// A full cycle found nothing anywhere; the local cache is untrustworthy.
	r.purge(ctx)
	return Resolution{}, ErrSelectionRequired
}

// adoptBackend persists an authoritative backend answer over any stale local
// value.
func (r *Resolver) adoptBackend(ctx context.Context, identity *api.Identity) (Resolution, error) {
	resolved := Normalize(identity.Role)
	if resolved == Reviewer && identity.ReviewerID == "" {
		// A reviewer role is never valid without a reviewer id; treat the
		// answer as non-authoritative.
		r.log.Warn().Msg("backend reported reviewer role without reviewer id")
		if resolution, ok := r.localRole(ctx, r.durable); ok {
			return resolution, nil
		}
		r.purge(ctx)
		return Resolution{}, ErrSelectionRequired
	}
	if err := r.durable.Set(ctx, state.KeyRole, string(resolved)); err != nil {
		r.log.Warn().Err(err).Msg("persist role")
	}
	if resolved == Reviewer {
		if err := r.durable.Set(ctx, state.KeyReviewerID, identity.ReviewerID); err != nil {
			r.log.Warn().Err(err).Msg("persist reviewer id")
		}
		return Resolution{Role: Reviewer, ReviewerID: identity.ReviewerID}, nil
	}
	_ = r.durable.Delete(ctx, state.KeyReviewerID)
	return Resolution{Role: resolved}, nil
}

// localRole reads a role from one store. A reviewer value without a reviewer
// id is treated as absent.
func (r *Resolver) localRole(ctx context.Context, store state.Store) (Resolution, bool) {
	value, err := store.Get(ctx, state.KeyRole)
	if err != nil {
		return Resolution{}, false
	}
	resolved := Normalize(value)
	switch resolved {
	case Owner:
		return Resolution{Role: Owner}, true
	case Reviewer:
		reviewerID, err := store.Get(ctx, state.KeyReviewerID)
		if err != nil || reviewerID == "" {
			return Resolution{}, false
		}
		return Resolution{Role: Reviewer, ReviewerID: reviewerID}, true
	default:
		return Resolution{}, false
	}
}

// SelectRole records an explicit role choice: persists it durably and sets the
// single-use just-selected flag so the next resolution trusts it even if the
// server write has not propagated yet.
func (r *Resolver) SelectRole(ctx context.Context, selected Role, reviewerID string) error {
	selected = Normalize(string(selected))
	if selected == Unset {
		return errors.New("role: cannot select unset")
	}
	if selected == Reviewer && reviewerID == "" {
		return errors.New("role: reviewer requires a reviewer id")
	}
	if err := r.durable.Set(ctx, state.KeyRole, string(selected)); err != nil {
		return err
	}
	if selected == Reviewer {
		if err := r.durable.Set(ctx, state.KeyReviewerID, reviewerID); err != nil {
			return err
		}
	} else {
		_ = r.durable.Delete(ctx, state.KeyReviewerID)
	}
	return r.ephemeral.Set(ctx, state.KeyRoleJustSelected, "1")
}

// purge drops all local role state after a resolution cycle found nothing.
func (r *Resolver) purge(ctx context.Context) {
	_ = r.durable.Delete(ctx, state.KeyRole)
	_ = r.durable.Delete(ctx, state.KeyReviewerID)
	_ = r.ephemeral.Delete(ctx, state.KeyRole)
	_ = r.ephemeral.Delete(ctx, state.KeyReviewerID)
	_ = r.ephemeral.Delete(ctx, state.KeyRoleJustSelected)
	_ = r.ephemeral.Delete(ctx, state.KeyIdentityVerified)
}
