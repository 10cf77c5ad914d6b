package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pavel8512/hhpilot/pkg/auth"
	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/notify"
	"github.com/pavel8512/hhpilot/pkg/response"
	"github.com/pavel8512/hhpilot/pkg/search"
)

// stateToStatus maps platform negotiation state ids to local statuses.
// Unknown states are ignored.
var stateToStatus = map[string]response.Status{
	"viewed":     response.StatusViewed,
	"invitation": response.StatusInvited,
	"rejection":  response.StatusRejected,
}

const reconcilePerPage = 100

// maxNegotiationPages bounds one reconciliation pass per user; older
// negotiations past this window are picked up by later passes once newer
// records resolve.
const maxNegotiationPages = 10

// Reconciler pulls application states back from the platform and advances
// local records — forward only, never regressing a resolved response.
type Reconciler struct {
	responses response.Repository
	searches  search.Repository
	users     auth.UserRepository
	platform  hh.Client
	notifier  notify.Notifier
	log       *zap.Logger
	now       func() time.Time
}

func NewReconciler(
	responses response.Repository,
	searches search.Repository,
	users auth.UserRepository,
	platform hh.Client,
	notifier notify.Notifier,
	log *zap.Logger,
	now func() time.Time,
) *Reconciler {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		responses: responses,
		searches:  searches,
		users:     users,
		platform:  platform,
		notifier:  notifier,
		log:       log.Named("reconcile"),
		now:       now,
	}
}

// Run syncs every user that has open (sent/viewed) responses. Per-user
// failures are contained; one credential's expired token must not stop the
// pass for everyone else.
func (r *Reconciler) Run(ctx context.Context) {
	owners, err := r.responses.OwnersWithOpenResponses(ctx)
	if err != nil {
		r.log.Error("list owners with open responses", zap.Error(err))
		return
	}
	for _, ownerID := range owners {
		if err := r.SyncUser(ctx, ownerID); err != nil {
			r.log.Warn("sync user", zap.String("user_id", ownerID.String()), zap.Error(err))
		}
	}
}

// SyncUser reconciles one user's open responses against the platform. It is
// also the entry point for the manual sync endpoint. Returns the number of
// records advanced.
func (r *Reconciler) SyncUser(ctx context.Context, ownerID uuid.UUID) error {
	_, err := r.syncUser(ctx, ownerID)
	return err
}

// SyncUserCount is SyncUser with the advanced-record count exposed.
func (r *Reconciler) SyncUserCount(ctx context.Context, ownerID uuid.UUID) (int, error) {
	return r.syncUser(ctx, ownerID)
}

func (r *Reconciler) syncUser(ctx context.Context, ownerID uuid.UUID) (int, error) {
	user, err := r.users.GetByID(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if user.AccessToken == "" {
		return 0, nil
	}
	open, err := r.responses.ListOpenByOwner(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if len(open) == 0 {
		return 0, nil
	}

	states, err := r.fetchStates(ctx, user.AccessToken)
	if err != nil {
		return 0, err
	}

	synced := 0
	for _, rec := range open {
		stateID, ok := states[rec.Vacancy.ExternalID]
		if !ok {
			continue
		}
		target, ok := stateToStatus[stateID]
		if !ok {
			continue
		}
		if target == rec.Status || !response.IsTransitionAllowed(rec.Status, target) {
			continue
		}
		if err := r.responses.Advance(ctx, rec.ID, target, r.now()); err != nil {
			r.log.Warn("advance response",
				zap.String("response_id", rec.ID.String()),
				zap.String("to", string(target)),
				zap.Error(err))
			continue
		}
		synced++
		switch target {
		case response.StatusInvited:
			if err := r.searches.IncrementOutcome(ctx, rec.SearchID, true); err != nil {
				r.log.Warn("increment invitations", zap.String("search_id", rec.SearchID.String()), zap.Error(err))
			}
			r.notifier.InvitationReceived(ctx, user, rec)
		case response.StatusRejected:
			if err := r.searches.IncrementOutcome(ctx, rec.SearchID, false); err != nil {
				r.log.Warn("increment rejections", zap.String("search_id", rec.SearchID.String()), zap.Error(err))
			}
		}
	}
	if synced > 0 {
		r.log.Info("reconciled", zap.String("user_id", ownerID.String()), zap.Int("synced", synced))
	}
	return synced, nil
}

func (r *Reconciler) fetchStates(ctx context.Context, token string) (map[string]string, error) {
	states := make(map[string]string)
	for page := 0; page < maxNegotiationPages; page++ {
		batch, err := r.platform.ListNegotiations(ctx, token, page, reconcilePerPage)
		if err != nil {
			return nil, err
		}
		for _, n := range batch.Items {
			states[n.VacancyID] = n.StateID
		}
		if page+1 >= batch.Pages || len(batch.Items) == 0 {
			break
		}
	}
	return states, nil
}
