// Package notify is the outcome-notification port. Delivery transports
// (email, telegram, push) live outside this service; the scheduler only
// needs a best-effort sink whose failures never affect persisted state.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/pavel8512/hhpilot/pkg/auth"
	"github.com/pavel8512/hhpilot/pkg/response"
	"github.com/pavel8512/hhpilot/pkg/search"
)

// Notifier receives user-visible events. Implementations must be
// fire-and-forget: swallow and log their own errors.
type Notifier interface {
	ResponseSent(ctx context.Context, user auth.User, r response.Response)
	InvitationReceived(ctx context.Context, user auth.User, r response.Response)
	SearchFailed(ctx context.Context, user auth.User, s search.Search, reason string)
}

// LogNotifier writes events to the structured log. It stands in for real
// delivery channels in deployments that have none configured.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log.Named("notify")}
}

func (n *LogNotifier) ResponseSent(ctx context.Context, user auth.User, r response.Response) {
	n.log.Info("response sent",
		zap.String("user_id", user.ID.String()),
		zap.String("vacancy_id", r.Vacancy.ExternalID),
		zap.String("vacancy", r.Vacancy.Title),
		zap.String("employer", r.Vacancy.Employer.Name))
}

func (n *LogNotifier) InvitationReceived(ctx context.Context, user auth.User, r response.Response) {
	n.log.Info("invitation received",
		zap.String("user_id", user.ID.String()),
		zap.String("vacancy_id", r.Vacancy.ExternalID),
		zap.String("vacancy", r.Vacancy.Title))
}

func (n *LogNotifier) SearchFailed(ctx context.Context, user auth.User, s search.Search, reason string) {
	n.log.Warn("search disabled after repeated failures",
		zap.String("user_id", user.ID.String()),
		zap.String("search_id", s.ID.String()),
		zap.String("search", s.Name),
		zap.String("reason", reason))
}
