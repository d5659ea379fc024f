package cart

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/betza-storefront/internal/identity"
	"github.com/angelmondragon/betza-storefront/internal/notifications"
	pkgerrors "github.com/angelmondragon/betza-storefront/pkg/errors"
	"github.com/angelmondragon/betza-storefront/pkg/logger"
	"github.com/angelmondragon/betza-storefront/pkg/metrics"
	"go.uber.org/multierr"
)

// MergeReport summarizes one local-to-account merge.
type MergeReport struct {
	UserID string   `json:"user_id"`
	Merged []string `json:"merged"`
	Failed []string `json:"failed,omitempty"`
}

// ReconcilerParams groups the dependencies of a Reconciler.
type ReconcilerParams struct {
	Store    *Store
	Notifier notifications.Sink
	Logger   *logger.Logger
	Metrics  *metrics.CartMetrics
	Now      func() time.Time
}

// Reconciler moves the Store between local and account carts as the identity
// changes, merging the local cart exactly once per sign-in.
type Reconciler struct {
	store    *Store
	notifier notifications.Sink
	logg     *logger.Logger
	metrics  *metrics.CartMetrics
	now      func() time.Time

	mu           sync.Mutex
	pendingOwner string
	pending      []Line
}

func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart store is required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "logger is required")
	}
	notifier := params.Notifier
	if notifier == nil {
		notifier = notifications.Discard
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Reconciler{
		store:    params.Store,
		notifier: notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// OnIdentityChange adapts HandleTransition to an identity.Listener.
func (r *Reconciler) OnIdentityChange(ctx context.Context, change identity.Change) {
	if _, err := r.HandleTransition(ctx, change.Prev, change.Next); err != nil {
		r.logg.Warn(ctx, "cart reconciliation incomplete: "+err.Error())
	}
}

// HandleTransition applies one identity change to the store. Transitions are
// handled one at a time. A report is returned only for sign-ins.
func (r *Reconciler) HandleTransition(ctx context.Context, prev, next identity.State) (*MergeReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	change := identity.Change{Prev: prev, Next: next}
	ctx = r.logg.WithFields(ctx, map[string]any{
		"transition": change.Kind().String(),
		"user_id":    next.UserID,
	})

	switch change.Kind() {
	case identity.SignedIn:
		captured, gen := r.store.bindUser(next.UserID, true)
		r.pendingOwner, r.pending = "", nil
		return r.merge(ctx, next.UserID, gen, captured)
	case identity.SwitchedUser:
		_, gen := r.store.bindUser(next.UserID, false)
		r.pendingOwner, r.pending = "", nil
		if err := r.store.refresh(ctx, next.UserID, gen); err != nil {
			r.logg.Warn(ctx, "account cart load failed: "+err.Error())
		}
		return nil, nil
	case identity.SignedOut:
		r.store.resetAnonymous()
		r.pendingOwner, r.pending = "", nil
		r.logg.Info(ctx, "cart reset after sign out")
		return nil, nil
	default:
		return nil, nil
	}
}

// RetryFailed resubmits the lines that failed the last merge, if the store is
// still bound to the same user.
func (r *Reconciler) RetryFailed(ctx context.Context) (*MergeReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, gen := r.store.binding()
	if len(r.pending) == 0 || owner == "" || owner != r.pendingOwner {
		return &MergeReport{UserID: owner, Merged: []string{}}, nil
	}
	lines := r.pending
	r.pendingOwner, r.pending = "", nil
	return r.merge(r.logg.WithUserID(ctx, owner), owner, gen, lines)
}

// Pending returns the lines awaiting a retry.
func (r *Reconciler) Pending() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	return copyLines(r.pending)
}

// merge submits lines one by one, keeps going past failures, then refreshes once.
// Callers hold r.mu.
func (r *Reconciler) merge(ctx context.Context, owner string, gen uint64, lines []Line) (*MergeReport, error) {
	started := r.now()
	report := &MergeReport{UserID: owner, Merged: []string{}}
	var (
		combined error
		failed   []Line
	)
	for _, line := range lines {
		if err := r.store.mergeLine(ctx, owner, line); err != nil {
			combined = multierr.Append(combined, pkgerrors.Wrap(pkgerrors.CodeCartPersistence, err, "merge "+line.ProductID))
			failed = append(failed, line)
			report.Failed = append(report.Failed, line.ProductID)
			r.logg.Error(r.logg.WithProductID(ctx, line.ProductID), "cart line merge failed", err)
			continue
		}
		report.Merged = append(report.Merged, line.ProductID)
	}

	if err := r.store.refresh(ctx, owner, gen); err != nil {
		r.logg.Warn(ctx, "account cart refresh after merge failed: "+err.Error())
	}
	r.metrics.ObserveMerge(len(report.Merged), len(report.Failed), r.now().Sub(started))

	if combined == nil {
		if len(lines) > 0 {
			r.logg.Info(ctx, "local cart merged into account cart")
		}
		return report, nil
	}

	r.pendingOwner = owner
	r.pending = failed
	mergeErr := pkgerrors.Wrap(pkgerrors.CodeCartMerge, combined, "local cart partially merged").
		WithDetails(map[string]any{"failed_product_ids": report.Failed})
	r.notifier.Notify(ctx, notifications.Error(pkgerrors.PublicMessage(mergeErr)))
	return report, mergeErr
}
