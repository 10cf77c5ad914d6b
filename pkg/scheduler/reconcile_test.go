package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pavel8512/hhpilot/pkg/auth"
	"github.com/pavel8512/hhpilot/pkg/hh"
	"github.com/pavel8512/hhpilot/pkg/response"
	"github.com/pavel8512/hhpilot/pkg/search"
)

type reconcileEnv struct {
	searches   *fakeSearchRepo
	responses  *fakeResponseRepo
	users      *fakeUserRepo
	platform   *fakePlatform
	notifier   *fakeNotifier
	reconciler *Reconciler
}

func newReconcileEnv(users []auth.User, searches ...search.Search) *reconcileEnv {
	env := &reconcileEnv{
		searches:  newFakeSearchRepo(searches...),
		responses: newFakeResponseRepo(),
		users:     newFakeUserRepo(users...),
		platform:  newFakePlatform(),
		notifier:  &fakeNotifier{},
	}
	env.reconciler = NewReconciler(
		env.responses,
		env.searches,
		env.users,
		env.platform,
		env.notifier,
		zap.NewNop(),
		func() time.Time { return testNow },
	)
	return env
}

func sentRecord(userID, searchID uuid.UUID, vacancyID string) response.Response {
	return response.Response{
		ID:       uuid.New(),
		UserID:   userID,
		SearchID: searchID,
		Vacancy:  response.VacancySnapshot{ExternalID: vacancyID, Title: "Go Developer"},
		Status:   response.StatusSent,
		SentAt:   testNow.Add(-2 * time.Hour),
	}
}

func TestSyncUser_AdvancesSentToInvited(t *testing.T) {
	user := testUser()
	s := testSearch(user.ID, 10, 200)
	env := newReconcileEnv([]auth.User{user}, s)

	rec := sentRecord(user.ID, s.ID, "vac-1")
	require.NoError(t, env.responses.Create(context.Background(), rec))
	env.platform.negotiations = []hh.Negotiation{
		{ID: "neg-1", VacancyID: "vac-1", StateID: "invitation"},
	}

	synced, err := env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	got := env.responses.get(rec.ID)
	assert.Equal(t, response.StatusInvited, got.Status)
	assert.Equal(t, response.ResultInvitation, got.Result)
	assert.Equal(t, testNow, got.RespondedAt)
	assert.Equal(t, 1, env.searches.get(s.ID).InvitationsCount)
	assert.Equal(t, 1, env.notifier.invitations)
}

func TestSyncUser_SecondPassIsNoop(t *testing.T) {
	user := testUser()
	s := testSearch(user.ID, 10, 200)
	env := newReconcileEnv([]auth.User{user}, s)

	rec := sentRecord(user.ID, s.ID, "vac-1")
	require.NoError(t, env.responses.Create(context.Background(), rec))
	env.platform.negotiations = []hh.Negotiation{
		{ID: "neg-1", VacancyID: "vac-1", StateID: "invitation"},
	}

	_, err := env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	firstRespondedAt := env.responses.get(rec.ID).RespondedAt

	synced, err := env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, synced)

	got := env.responses.get(rec.ID)
	assert.Equal(t, response.StatusInvited, got.Status)
	assert.Equal(t, firstRespondedAt, got.RespondedAt)
	assert.Equal(t, 1, env.searches.get(s.ID).InvitationsCount)
	assert.Equal(t, 1, env.notifier.invitations)
}

func TestSyncUser_ResolvedResponseNeverRegresses(t *testing.T) {
	user := testUser()
	s := testSearch(user.ID, 10, 200)
	env := newReconcileEnv([]auth.User{user}, s)

	rec := sentRecord(user.ID, s.ID, "vac-1")
	require.NoError(t, env.responses.Create(context.Background(), rec))
	require.NoError(t, env.responses.Advance(context.Background(), rec.ID, response.StatusInvited, testNow.Add(-time.Hour)))

	// The platform still reports the older "viewed" state for this negotiation.
	env.platform.negotiations = []hh.Negotiation{
		{ID: "neg-1", VacancyID: "vac-1", StateID: "viewed"},
	}

	synced, err := env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, synced)
	assert.Equal(t, response.StatusInvited, env.responses.get(rec.ID).Status)
}

func TestSyncUser_RejectionCountsAgainstSearch(t *testing.T) {
	user := testUser()
	s := testSearch(user.ID, 10, 200)
	env := newReconcileEnv([]auth.User{user}, s)

	rec := sentRecord(user.ID, s.ID, "vac-1")
	require.NoError(t, env.responses.Create(context.Background(), rec))
	env.platform.negotiations = []hh.Negotiation{
		{ID: "neg-1", VacancyID: "vac-1", StateID: "rejection"},
	}

	synced, err := env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	got := env.responses.get(rec.ID)
	assert.Equal(t, response.StatusRejected, got.Status)
	assert.Equal(t, response.ResultRejection, got.Result)
	assert.Equal(t, 1, env.searches.get(s.ID).RejectionsCount)
	assert.Zero(t, env.notifier.invitations)
}

func TestSyncUser_UnknownStateIsIgnored(t *testing.T) {
	user := testUser()
	s := testSearch(user.ID, 10, 200)
	env := newReconcileEnv([]auth.User{user}, s)

	rec := sentRecord(user.ID, s.ID, "vac-1")
	require.NoError(t, env.responses.Create(context.Background(), rec))
	env.platform.negotiations = []hh.Negotiation{
		{ID: "neg-1", VacancyID: "vac-1", StateID: "response"},
	}

	synced, err := env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Zero(t, synced)
	assert.Equal(t, response.StatusSent, env.responses.get(rec.ID).Status)
}

func TestSyncUser_ViewedThenInvitedOverTwoPasses(t *testing.T) {
	user := testUser()
	s := testSearch(user.ID, 10, 200)
	env := newReconcileEnv([]auth.User{user}, s)

	rec := sentRecord(user.ID, s.ID, "vac-1")
	require.NoError(t, env.responses.Create(context.Background(), rec))

	env.platform.negotiations = []hh.Negotiation{
		{ID: "neg-1", VacancyID: "vac-1", StateID: "viewed"},
	}
	_, err := env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	got := env.responses.get(rec.ID)
	assert.Equal(t, response.StatusViewed, got.Status)
	assert.Equal(t, testNow, got.ViewedAt)
	assert.True(t, got.RespondedAt.IsZero())

	env.platform.negotiations[0].StateID = "invitation"
	_, err = env.reconciler.SyncUserCount(context.Background(), user.ID)
	require.NoError(t, err)
	got = env.responses.get(rec.ID)
	assert.Equal(t, response.StatusInvited, got.Status)
	assert.Equal(t, testNow, got.RespondedAt)
}

func TestRun_UserWithoutTokenIsSkipped(t *testing.T) {
	user := testUser()
	user.AccessToken = ""
	s := testSearch(user.ID, 10, 200)
	env := newReconcileEnv([]auth.User{user}, s)

	rec := sentRecord(user.ID, s.ID, "vac-1")
	require.NoError(t, env.responses.Create(context.Background(), rec))
	env.platform.negotiations = []hh.Negotiation{
		{ID: "neg-1", VacancyID: "vac-1", StateID: "invitation"},
	}

	env.reconciler.Run(context.Background())

	assert.Equal(t, response.StatusSent, env.responses.get(rec.ID).Status)
}
