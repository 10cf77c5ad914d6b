package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavel8512/hhpilot/pkg/auth"
	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/quota"
	"github.com/pavel8512/hhpilot/pkg/resume"
	"github.com/pavel8512/hhpilot/pkg/response"
	"github.com/pavel8512/hhpilot/pkg/search"
)

// ── search repository ──────────────────────────────────────────────────────

type fakeSearchRepo struct {
	mu       sync.Mutex
	searches map[uuid.UUID]*search.Search
}

func newFakeSearchRepo(items ...search.Search) *fakeSearchRepo {
	r := &fakeSearchRepo{searches: make(map[uuid.UUID]*search.Search)}
	for i := range items {
		s := items[i]
		r.searches[s.ID] = &s
	}
	return r
}

func (r *fakeSearchRepo) get(id uuid.UUID) search.Search {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.searches[id]
}

func (r *fakeSearchRepo) Create(ctx context.Context, s search.Search) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[s.ID] = &s
	return nil
}

func (r *fakeSearchRepo) GetByID(ctx context.Context, id uuid.UUID) (search.Search, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.searches[id]; ok {
		return *s, nil
	}
	return search.Search{}, search.ErrNotFound
}

func (r *fakeSearchRepo) GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (search.Search, error) {
	s, err := r.GetByID(ctx, id)
	if err != nil || s.UserID != ownerID {
		return search.Search{}, search.ErrNotFound
	}
	return s, nil
}

func (r *fakeSearchRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]search.Search, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []search.Search
	for _, s := range r.searches {
		if s.UserID == ownerID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeSearchRepo) Update(ctx context.Context, s search.Search) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[s.ID] = &s
	return nil
}

func (r *fakeSearchRepo) Delete(ctx context.Context, ownerID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.searches, id)
	return nil
}

func (r *fakeSearchRepo) DueForRun(ctx context.Context, now time.Time) ([]search.Search, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var due []search.Search
	for _, s := range r.searches {
		if s.Status != search.StatusActive {
			continue
		}
		if s.NextRunAt.IsZero() || !s.NextRunAt.After(now) {
			due = append(due, *s)
		}
	}
	return due, nil
}

func (r *fakeSearchRepo) SetNextRun(ctx context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[id].NextRunAt = at
	return nil
}

func (r *fakeSearchRepo) RecordRunSuccess(ctx context.Context, id uuid.UUID, stats search.RunStats, lastRun, nextRun time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.searches[id]
	s.ResponsesCount += stats.Sent
	s.LastRunAt = lastRun
	s.NextRunAt = nextRun
	s.ErrorCount = 0
	s.LastError = nil
	return nil
}

func (r *fakeSearchRepo) RecordRunError(ctx context.Context, id uuid.UUID, msg string, at time.Time, threshold int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.searches[id]
	s.ErrorCount++
	s.LastError = &search.LastError{Message: msg, At: at}
	if s.ErrorCount >= threshold && s.Status == search.StatusActive {
		s.Status = search.StatusError
		return true, nil
	}
	return false, nil
}

func (r *fakeSearchRepo) MarkCompleted(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[id].Status = search.StatusCompleted
	return nil
}

func (r *fakeSearchRepo) SetStatus(ctx context.Context, ownerID, id uuid.UUID, st search.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.searches[id].Status = st
	return nil
}

func (r *fakeSearchRepo) IncrementOutcome(ctx context.Context, id uuid.UUID, invited bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if invited {
		r.searches[id].InvitationsCount++
	} else {
		r.searches[id].RejectionsCount++
	}
	return nil
}

// ── response repository ────────────────────────────────────────────────────

type dedupKey struct {
	user, search uuid.UUID
	vacancy      string
}

type fakeResponseRepo struct {
	mu      sync.Mutex
	records map[uuid.UUID]*response.Response
	byKey   map[dedupKey]uuid.UUID
}

func newFakeResponseRepo() *fakeResponseRepo {
	return &fakeResponseRepo{
		records: make(map[uuid.UUID]*response.Response),
		byKey:   make(map[dedupKey]uuid.UUID),
	}
}

func (r *fakeResponseRepo) all() []response.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []response.Response
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	return out
}

func (r *fakeResponseRepo) get(id uuid.UUID) response.Response {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.records[id]
}

func (r *fakeResponseRepo) Create(ctx context.Context, rec response.Response) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := dedupKey{user: rec.UserID, search: rec.SearchID, vacancy: rec.Vacancy.ExternalID}
	if _, exists := r.byKey[key]; exists {
		return response.ErrDuplicate
	}
	r.byKey[key] = rec.ID
	r.records[rec.ID] = &rec
	return nil
}

func (r *fakeResponseRepo) GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (response.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok || rec.UserID != ownerID {
		return response.Response{}, response.ErrNotFound
	}
	return *rec, nil
}

func (r *fakeResponseRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]response.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []response.Response
	for _, rec := range r.records {
		if rec.UserID == ownerID {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeResponseRepo) ExistingVacancyIDs(ctx context.Context, ownerID, searchID uuid.UUID, vacancyIDs []string) (map[string]struct{}, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{})
	for _, id := range vacancyIDs {
		if _, ok := r.byKey[dedupKey{user: ownerID, search: searchID, vacancy: id}]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func (r *fakeResponseRepo) CountSentSince(ctx context.Context, searchID uuid.UUID, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.SearchID == searchID && !rec.SentAt.IsZero() && !rec.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *fakeResponseRepo) ExistsForSearch(ctx context.Context, searchID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.SearchID == searchID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeResponseRepo) ListOpenByOwner(ctx context.Context, ownerID uuid.UUID) ([]response.Response, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []response.Response
	for _, rec := range r.records {
		if rec.UserID == ownerID && (rec.Status == response.StatusSent || rec.Status == response.StatusViewed) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeResponseRepo) OwnersWithOpenResponses(ctx context.Context) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[uuid.UUID]struct{})
	var out []uuid.UUID
	for _, rec := range r.records {
		if rec.Status != response.StatusSent && rec.Status != response.StatusViewed {
			continue
		}
		if _, ok := seen[rec.UserID]; !ok {
			seen[rec.UserID] = struct{}{}
			out = append(out, rec.UserID)
		}
	}
	return out, nil
}

func (r *fakeResponseRepo) Advance(ctx context.Context, id uuid.UUID, to response.Status, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return response.ErrNotFound
	}
	if !response.IsTransitionAllowed(rec.Status, to) {
		return errors.New("transition not allowed")
	}
	rec.Status = to
	switch to {
	case response.StatusViewed:
		if rec.ViewedAt.IsZero() {
			rec.ViewedAt = at
		}
	case response.StatusInvited, response.StatusRejected:
		if rec.RespondedAt.IsZero() {
			rec.RespondedAt = at
			if to == response.StatusInvited {
				rec.Result = response.ResultInvitation
			} else {
				rec.Result = response.ResultRejection
			}
		}
	}
	return nil
}

func (r *fakeResponseRepo) CountsByOwner(ctx context.Context, ownerID uuid.UUID) (response.StatusCounts, error) {
	return response.StatusCounts{}, nil
}

// ── user repository ────────────────────────────────────────────────────────

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*auth.User
	err   error // forced failure for GetByID
}

func newFakeUserRepo(users ...auth.User) *fakeUserRepo {
	r := &fakeUserRepo{users: make(map[uuid.UUID]*auth.User)}
	for i := range users {
		u := users[i]
		r.users[u.ID] = &u
	}
	return r
}

func (r *fakeUserRepo) get(id uuid.UUID) auth.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.users[id]
}

func (r *fakeUserRepo) Create(ctx context.Context, u auth.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[u.ID] = &u
	return nil
}

func (r *fakeUserRepo) GetByEmail(ctx context.Context, email string) (auth.User, error) {
	return auth.User{}, auth.ErrNotFound
}

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (auth.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return auth.User{}, r.err
	}
	if u, ok := r.users[id]; ok {
		return *u, nil
	}
	return auth.User{}, auth.ErrNotFound
}

func (r *fakeUserRepo) SetAccessToken(ctx context.Context, id uuid.UUID, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[id].AccessToken = token
	return nil
}

func (r *fakeUserRepo) ConsumeResponseQuota(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[id]
	if u.Subscription.ResponsesUsed >= u.Subscription.ResponsesLimit {
		return auth.ErrQuotaExhausted
	}
	u.Subscription.ResponsesUsed++
	return nil
}

func (r *fakeUserRepo) RefundResponseQuota(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.users[id]
	if u.Subscription.ResponsesUsed > 0 {
		u.Subscription.ResponsesUsed--
	}
	return nil
}

// ── resume repository ──────────────────────────────────────────────────────

type fakeResumeRepo struct {
	primary map[uuid.UUID]resume.Resume
	byID    map[uuid.UUID]resume.Resume
}

func newFakeResumeRepo() *fakeResumeRepo {
	return &fakeResumeRepo{
		primary: make(map[uuid.UUID]resume.Resume),
		byID:    make(map[uuid.UUID]resume.Resume),
	}
}

func (r *fakeResumeRepo) add(res resume.Resume) {
	r.byID[res.ID] = res
	if res.IsPrimary {
		r.primary[res.UserID] = res
	}
}

func (r *fakeResumeRepo) Create(ctx context.Context, res resume.Resume) error {
	r.add(res)
	return nil
}

func (r *fakeResumeRepo) GetByIDForOwner(ctx context.Context, ownerID, id uuid.UUID) (resume.Resume, error) {
	if res, ok := r.byID[id]; ok && res.UserID == ownerID {
		return res, nil
	}
	return resume.Resume{}, resume.ErrNotFound
}

func (r *fakeResumeRepo) GetPrimary(ctx context.Context, ownerID uuid.UUID) (resume.Resume, error) {
	if res, ok := r.primary[ownerID]; ok {
		return res, nil
	}
	return resume.Resume{}, resume.ErrNotFound
}

func (r *fakeResumeRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]resume.Resume, error) {
	return nil, nil
}

func (r *fakeResumeRepo) SetPrimary(ctx context.Context, ownerID, id uuid.UUID) error { return nil }

func (r *fakeResumeRepo) DeleteForOwner(ctx context.Context, ownerID, id uuid.UUID) error {
	return nil
}

// ── platform client ────────────────────────────────────────────────────────

type fakePlatform struct {
	mu sync.Mutex

	searchResult hh.SearchResult
	searchErr    error

	details   map[string]hh.VacancyDetail
	detailErr map[string]error

	submitErr map[string]error
	submitted []string

	usage    hh.UsageLimits
	usageErr error

	negotiations []hh.Negotiation
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		details:   make(map[string]hh.VacancyDetail),
		detailErr: make(map[string]error),
		submitErr: make(map[string]error),
		usage:     hh.UsageLimits{DailyLimit: 200},
	}
}

func (p *fakePlatform) addVacancy(id, title, employer string) {
	v := hh.Vacancy{ID: id, Title: title, Employer: employer}
	p.searchResult.Items = append(p.searchResult.Items, v)
	p.searchResult.Found = len(p.searchResult.Items)
	p.details[id] = hh.VacancyDetail{Vacancy: v, Description: "detail of " + title}
}

func (p *fakePlatform) submittedIDs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.submitted...)
}

func (p *fakePlatform) SearchVacancies(ctx context.Context, params hh.SearchParams, token string) (hh.SearchResult, error) {
	if p.searchErr != nil {
		return hh.SearchResult{}, p.searchErr
	}
	return p.searchResult, nil
}

func (p *fakePlatform) GetVacancy(ctx context.Context, vacancyID, token string) (hh.VacancyDetail, error) {
	if err := p.detailErr[vacancyID]; err != nil {
		return hh.VacancyDetail{}, err
	}
	d, ok := p.details[vacancyID]
	if !ok {
		return hh.VacancyDetail{}, errors.New("vacancy not found")
	}
	return d, nil
}

func (p *fakePlatform) SubmitApplication(ctx context.Context, vacancyID, resumeID, message, token string) (string, error) {
	if err := p.submitErr[vacancyID]; err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.submitted = append(p.submitted, vacancyID)
	return "neg-" + vacancyID, nil
}

func (p *fakePlatform) GetUsageLimits(ctx context.Context, token string) (hh.UsageLimits, error) {
	if p.usageErr != nil {
		return hh.UsageLimits{}, p.usageErr
	}
	return p.usage, nil
}

func (p *fakePlatform) ListNegotiations(ctx context.Context, token string, page, perPage int) (hh.NegotiationPage, error) {
	if page > 0 {
		return hh.NegotiationPage{Pages: 1, Page: page}, nil
	}
	return hh.NegotiationPage{Items: p.negotiations, Found: len(p.negotiations), Pages: 1}, nil
}

// ── letters, notifier, locker ──────────────────────────────────────────────

type fakeLetters struct {
	err error
}

func (f fakeLetters) Produce(ctx context.Context, s search.Search, vac hh.VacancyDetail, res resume.Resume) (string, search.LetterMode, error) {
	if f.err != nil {
		return "", "", f.err
	}
	return "letter for " + vac.Title, search.LetterModeDefault, nil
}

type fakeNotifier struct {
	mu          sync.Mutex
	sent        int
	invitations int
	failures    int
}

func (n *fakeNotifier) ResponseSent(ctx context.Context, u auth.User, r response.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent++
}

func (n *fakeNotifier) InvitationReceived(ctx context.Context, u auth.User, r response.Response) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.invitations++
}

func (n *fakeNotifier) SearchFailed(ctx context.Context, u auth.User, s search.Search, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures++
}

type fakeLocker struct {
	mu     sync.Mutex
	denied bool
	calls  int
}

func (l *fakeLocker) TryLock(ctx context.Context, userID uuid.UUID) (func(), bool, error) {
	l.mu.Lock()
	l.calls++
	denied := l.denied
	l.mu.Unlock()
	if denied {
		return nil, false, nil
	}
	return func() {}, true, nil
}

// guardFromFakes builds the real quota guard over the fakes so runner tests
// exercise the genuine budget arithmetic.
func guardFromFakes(p *fakePlatform, r *fakeResponseRepo, now func() time.Time) *quota.Guard {
	return quota.NewGuard(p, r, now)
}
