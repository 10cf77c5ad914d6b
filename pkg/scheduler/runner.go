// Package scheduler drives saved searches toward their submission limits on a
// recurring cadence: it selects due searches, checks budgets, finds new
// vacancies, deduplicates against prior responses, submits applications and
// reschedules — containing every failure inside the unit of work it belongs
// to (one search, one submission).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/pavel8512/hhpilot/pkg/auth"
	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/notify"
	"github.com/pavel8512/hhpilot/pkg/quota"
	"github.com/pavel8512/hhpilot/pkg/resume"
	"github.com/pavel8512/hhpilot/pkg/response"
	"github.com/pavel8512/hhpilot/pkg/search"
)

// BudgetGuard decides how many applications a search may still send.
type BudgetGuard interface {
	Allowance(ctx context.Context, user auth.User, s search.Search) (quota.Allowance, error)
}

// LetterProducer resolves cover-letter text per the search's letter mode.
type LetterProducer interface {
	Produce(ctx context.Context, s search.Search, vac hh.VacancyDetail, res resume.Resume) (string, search.LetterMode, error)
}

// Locker serializes processing per credential across ticks and instances.
// TryLock returns acquired=false when another holder is active; unlock is
// nil in that case.
type Locker interface {
	TryLock(ctx context.Context, userID uuid.UUID) (unlock func(), acquired bool, err error)
}

// Options tune the runner. Zero values fall back to the source defaults.
type Options struct {
	SubmitDelay     time.Duration // spacing between submissions per credential
	QuotaBackoff    time.Duration // reschedule delay when no budget remains
	MaxConsecutive  int           // search-level failures before status=error
	UserParallelism int           // distinct users processed concurrently
	CallTimeout     time.Duration // bound on each external call
	SearchPerPage   int
}

func (o Options) withDefaults() Options {
	if o.QuotaBackoff <= 0 {
		o.QuotaBackoff = time.Hour
	}
	if o.MaxConsecutive <= 0 {
		o.MaxConsecutive = 5
	}
	if o.UserParallelism <= 0 {
		o.UserParallelism = 1
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.SearchPerPage <= 0 {
		o.SearchPerPage = 50
	}
	return o
}

// Runner holds the per-tick processing logic with all dependencies injected.
// The clock is a field so tests drive time instead of waiting on it.
type Runner struct {
	searches  search.Repository
	responses response.Repository
	users     auth.UserRepository
	resumes   resume.Repository
	platform  hh.Client
	letters   LetterProducer
	guard     BudgetGuard
	notifier  notify.Notifier
	locks     Locker
	log       *zap.Logger
	opts      Options
	now       func() time.Time

	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

func NewRunner(
	searches search.Repository,
	responses response.Repository,
	users auth.UserRepository,
	resumes resume.Repository,
	platform hh.Client,
	letters LetterProducer,
	guard BudgetGuard,
	notifier notify.Notifier,
	locks Locker,
	log *zap.Logger,
	opts Options,
	now func() time.Time,
) *Runner {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Runner{
		searches:  searches,
		responses: responses,
		users:     users,
		resumes:   resumes,
		platform:  platform,
		letters:   letters,
		guard:     guard,
		notifier:  notifier,
		locks:     locks,
		log:       log.Named("scheduler"),
		opts:      opts.withDefaults(),
		now:       now,
		limiters:  make(map[uuid.UUID]*rate.Limiter),
	}
}

// limiterFor paces submissions on one credential. The platform throttles
// per-credential, so distinct users never share a limiter.
func (r *Runner) limiterFor(userID uuid.UUID) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.limiters[userID]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(r.opts.SubmitDelay), 1)
	r.limiters[userID] = l
	return l
}

// Tick processes every due active search once. Searches of distinct users run
// in parallel up to UserParallelism; one user's searches stay strictly serial
// because the platform rate-limits per credential.
func (r *Runner) Tick(ctx context.Context) {
	due, err := r.searches.DueForRun(ctx, r.now())
	if err != nil {
		r.log.Error("select due searches", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}
	r.log.Info("tick started", zap.Int("due", len(due)))

	byUser := make(map[uuid.UUID][]search.Search)
	var order []uuid.UUID
	for _, s := range due {
		if _, ok := byUser[s.UserID]; !ok {
			order = append(order, s.UserID)
		}
		byUser[s.UserID] = append(byUser[s.UserID], s)
	}

	g := new(errgroup.Group)
	g.SetLimit(r.opts.UserParallelism)
	for _, uid := range order {
		uid := uid
		batch := byUser[uid]
		g.Go(func() error {
			r.runUserBatch(ctx, uid, batch)
			return nil
		})
	}
	_ = g.Wait()
}

func (r *Runner) runUserBatch(ctx context.Context, userID uuid.UUID, batch []search.Search) {
	unlock, acquired, err := r.locks.TryLock(ctx, userID)
	if err != nil {
		r.log.Warn("credential lock", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}
	if !acquired {
		// Another tick or instance is already working on this credential.
		r.log.Debug("credential busy, skipping", zap.String("user_id", userID.String()))
		return
	}
	defer unlock()

	for _, s := range batch {
		r.RunSearch(ctx, s)
	}
}

// RunSearch executes one search's cycle with search-level error containment.
// It is also the entry point for the user-triggered manual run.
func (r *Runner) RunSearch(ctx context.Context, s search.Search) {
	err := r.processSearch(ctx, s)
	if err == nil {
		return
	}
	r.log.Warn("search cycle failed",
		zap.String("search_id", s.ID.String()), zap.Error(err))

	escalated, recErr := r.searches.RecordRunError(ctx, s.ID, err.Error(), r.now(), r.opts.MaxConsecutive)
	if recErr != nil {
		r.log.Error("record search error", zap.String("search_id", s.ID.String()), zap.Error(recErr))
	}
	// Normal cadence even on failure: the cause is usually user-fixable and
	// re-checking it every cycle is cheap, a tight retry loop is not.
	if err := r.searches.SetNextRun(ctx, s.ID, r.nextRunAt(s)); err != nil {
		r.log.Error("reschedule failed search", zap.String("search_id", s.ID.String()), zap.Error(err))
	}
	if escalated {
		if user, uerr := r.users.GetByID(ctx, s.UserID); uerr == nil {
			r.notifier.SearchFailed(ctx, user, s, err.Error())
		}
	}
}

func (r *Runner) nextRunAt(s search.Search) time.Time {
	interval := s.RunInterval
	if interval <= 0 {
		interval = 60
	}
	return r.now().Add(time.Duration(interval) * time.Minute)
}

func (r *Runner) processSearch(ctx context.Context, s search.Search) error {
	user, err := r.users.GetByID(ctx, s.UserID)
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	if user.AccessToken == "" {
		return fmt.Errorf("user %s has no platform credential", user.ID)
	}

	allowance, err := r.guard.Allowance(ctx, user, s)
	if err != nil {
		// Fail closed: unknown budget is treated as none. Not a fault.
		r.log.Warn("budget check failed, backing off",
			zap.String("search_id", s.ID.String()), zap.Error(err))
		return r.searches.SetNextRun(ctx, s.ID, r.now().Add(r.opts.QuotaBackoff))
	}
	if !allowance.CanSend {
		if allowance.TotalReached {
			r.log.Info("search reached its total limit",
				zap.String("search_id", s.ID.String()))
			return r.searches.MarkCompleted(ctx, s.ID)
		}
		// Throttling is a normal condition, no error is recorded.
		r.log.Info("no budget remaining, backing off",
			zap.String("search_id", s.ID.String()), zap.String("reason", allowance.Reason))
		return r.searches.SetNextRun(ctx, s.ID, r.now().Add(r.opts.QuotaBackoff))
	}

	res, err := r.resolveResume(ctx, s)
	if err != nil {
		return fmt.Errorf("resolve resume: %w", err)
	}

	candidates, err := r.findNewVacancies(ctx, s, user.AccessToken)
	if err != nil {
		return fmt.Errorf("find vacancies: %w", err)
	}

	var stats search.RunStats
	limiter := r.limiterFor(user.ID)
	for _, vac := range candidates {
		if stats.Sent >= allowance.Remaining {
			break
		}
		// Spacing between submissions on this credential only; unrelated
		// users are paced by their own limiters.
		if err := limiter.Wait(ctx); err != nil {
			break
		}
		if err := r.sendOneResponse(ctx, s, vac, res, user); err != nil {
			// Contained: a failed submission never blocks its siblings.
			stats.Failed++
			r.log.Warn("submission failed",
				zap.String("search_id", s.ID.String()),
				zap.String("vacancy_id", vac.ID),
				zap.Error(err))
			continue
		}
		stats.Sent++
	}

	now := r.now()
	if err := r.searches.RecordRunSuccess(ctx, s.ID, stats, now, r.nextRunAt(s)); err != nil {
		return fmt.Errorf("record run stats: %w", err)
	}
	if s.TotalLimit > 0 && s.ResponsesCount+stats.Sent >= s.TotalLimit {
		if err := r.searches.MarkCompleted(ctx, s.ID); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
	}
	r.log.Info("search cycle done",
		zap.String("search_id", s.ID.String()),
		zap.Int("sent", stats.Sent),
		zap.Int("failed", stats.Failed))
	return nil
}

func (r *Runner) resolveResume(ctx context.Context, s search.Search) (resume.Resume, error) {
	if s.ResumeID != uuid.Nil {
		return r.resumes.GetByIDForOwner(ctx, s.UserID, s.ResumeID)
	}
	return r.resumes.GetPrimary(ctx, s.UserID)
}

// findNewVacancies queries the platform (most recent first) and drops every
// vacancy that already has a response under this (user, search) pair. This
// set difference plus the storage-level unique constraint is the idempotency
// boundary: at most one application per vacancy per search.
func (r *Runner) findNewVacancies(ctx context.Context, s search.Search, token string) ([]hh.Vacancy, error) {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	defer cancel()
	result, err := r.platform.SearchVacancies(callCtx, searchParams(s.Criteria, r.opts.SearchPerPage), token)
	if err != nil {
		return nil, err
	}
	if len(result.Items) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(result.Items))
	for _, v := range result.Items {
		ids = append(ids, v.ID)
	}
	seen, err := r.responses.ExistingVacancyIDs(ctx, s.UserID, s.ID, ids)
	if err != nil {
		return nil, err
	}
	fresh := result.Items[:0:0]
	for _, v := range result.Items {
		if _, ok := seen[v.ID]; !ok {
			fresh = append(fresh, v)
		}
	}
	return fresh, nil
}

func searchParams(c search.Criteria, perPage int) hh.SearchParams {
	return hh.SearchParams{
		Text:            c.Keywords,
		ExcludeKeywords: c.ExcludeKeywords,
		AreaIDs:         c.AreaIDs,
		SalaryFrom:      c.Salary.From,
		Currency:        c.Salary.Currency,
		Experience:      c.Experience,
		Schedule:        c.Schedule,
		Employment:      c.Employment,
		Specializations: c.Specializations,
		Industries:      c.Industries,
		Page:            0,
		PerPage:         perPage,
	}
}

// sendOneResponse performs one submission end to end. A response record is
// written on every outcome, success or failure — an unrecorded vacancy would
// be re-attempted forever.
func (r *Runner) sendOneResponse(ctx context.Context, s search.Search, vac hh.Vacancy, res resume.Resume, user auth.User) error {
	callCtx, cancel := context.WithTimeout(ctx, r.opts.CallTimeout)
	detail, err := r.platform.GetVacancy(callCtx, vac.ID, user.AccessToken)
	cancel()
	if err != nil {
		r.recordFailure(ctx, s, vac, res, err)
		return err
	}

	text, mode, err := r.letters.Produce(ctx, s, detail, res)
	if err != nil {
		r.recordFailure(ctx, s, vac, res, err)
		return err
	}

	// Consume the subscription quota before touching the platform so two
	// concurrent paths cannot both spend the last unit.
	if err := r.users.ConsumeResponseQuota(ctx, user.ID); err != nil {
		r.recordFailure(ctx, s, vac, res, err)
		return err
	}

	callCtx, cancel = context.WithTimeout(ctx, r.opts.CallTimeout)
	externalRef, err := r.platform.SubmitApplication(callCtx, vac.ID, res.ExternalID, text, user.AccessToken)
	cancel()
	if err != nil {
		// The platform never saw this application; give the quota unit back.
		if rerr := r.users.RefundResponseQuota(ctx, user.ID); rerr != nil {
			r.log.Error("refund quota", zap.String("user_id", user.ID.String()), zap.Error(rerr))
		}
		r.recordFailure(ctx, s, vac, res, err)
		return err
	}

	now := r.now()
	rec := response.Response{
		ID:          uuid.New(),
		UserID:      user.ID,
		SearchID:    s.ID,
		ResumeID:    res.ID,
		Vacancy:     snapshot(detail),
		Letter:      response.Letter{Text: text, Mode: string(mode)},
		Status:      response.StatusSent,
		ExternalRef: externalRef,
		CreatedAt:   now,
		SentAt:      now,
	}
	if err := r.responses.Create(ctx, rec); err != nil {
		if errors.Is(err, response.ErrDuplicate) {
			// A concurrent tick got here first; the platform deduplicates
			// repeated negotiations on its side, nothing to roll back.
			return nil
		}
		return err
	}

	// Best-effort: a notification failure must never affect the record.
	r.notifier.ResponseSent(ctx, user, rec)
	return nil
}

// recordFailure writes an error response so the vacancy is not re-attempted
// endlessly against a permanently failing target.
func (r *Runner) recordFailure(ctx context.Context, s search.Search, vac hh.Vacancy, res resume.Resume, cause error) {
	rec := response.Response{
		ID:       uuid.New(),
		UserID:   s.UserID,
		SearchID: s.ID,
		ResumeID: res.ID,
		Vacancy: response.VacancySnapshot{
			ExternalID: vac.ID,
			Title:      vac.Title,
			Employer:   response.Employer{Name: vac.Employer, ExternalID: vac.EmployerID},
			URL:        vac.URL,
		},
		Status:    response.StatusError,
		CreatedAt: r.now(),
		Error:     &response.ErrorInfo{Message: cause.Error(), At: r.now()},
	}
	if err := r.responses.Create(ctx, rec); err != nil && !errors.Is(err, response.ErrDuplicate) {
		r.log.Error("record failed submission",
			zap.String("search_id", s.ID.String()),
			zap.String("vacancy_id", vac.ID),
			zap.Error(err))
	}
}

func snapshot(d hh.VacancyDetail) response.VacancySnapshot {
	return response.VacancySnapshot{
		ExternalID: d.ID,
		Title:      d.Title,
		Employer: response.Employer{
			Name:       d.Employer,
			ExternalID: d.EmployerID,
			URL:        d.EmployerURL,
		},
		Area: response.Area{Name: d.Area, ID: d.AreaID},
		Salary: response.Salary{
			From:     d.Salary.From,
			To:       d.Salary.To,
			Currency: d.Salary.Currency,
			Gross:    d.Salary.Gross,
		},
		Experience:  d.Experience,
		Schedule:    d.Schedule,
		Employment:  d.Employment,
		Description: d.Description,
		URL:         d.URL,
		PublishedAt: d.PublishedAt,
	}
}
