package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jouyai/dashboard-kel/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	st, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func TestCreateAndGetSession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	created, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)
	assert.Equal(t, models.StateBot, created.State)
	assert.Nil(t, created.Owner)
	assert.Equal(t, "Siti", created.CitizenName)
	assert.False(t, created.CreatedAt.IsZero())

	got, err := st.GetSession(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetSessionNotFound(t *testing.T) {
	st := newTestStore(t)

	_, err := st.GetSession(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEscalateSessionOnlyFromBot(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)

	moved, err := st.EscalateSession(ctx, session.ID)
	require.NoError(t, err)
	assert.True(t, moved)

	// Already live: the conditional update must not fire again.
	moved, err = st.EscalateSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, moved)

	_, err = st.EscalateSession(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClaimSessionConditionalUpdate(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)

	// Bot sessions are not claimable.
	won, err := st.ClaimSession(ctx, session.ID, "andi@kel.go.id")
	require.NoError(t, err)
	assert.False(t, won)

	_, err = st.EscalateSession(ctx, session.ID)
	require.NoError(t, err)

	won, err = st.ClaimSession(ctx, session.ID, "andi@kel.go.id")
	require.NoError(t, err)
	assert.True(t, won)

	// The second claim loses: the state is no longer unclaimed.
	won, err = st.ClaimSession(ctx, session.ID, "budi@kel.go.id")
	require.NoError(t, err)
	assert.False(t, won)

	got, err := st.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateLiveClaimed, got.State)
	require.NotNil(t, got.Owner)
	assert.Equal(t, "andi@kel.go.id", *got.Owner)

	_, err = st.ClaimSession(ctx, uuid.New(), "andi@kel.go.id")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseSessionClearsOwner(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)
	_, err = st.EscalateSession(ctx, session.ID)
	require.NoError(t, err)
	_, err = st.ClaimSession(ctx, session.ID, "andi@kel.go.id")
	require.NoError(t, err)

	require.NoError(t, st.ReleaseSession(ctx, session.ID))

	got, err := st.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateBot, got.State)
	assert.Nil(t, got.Owner)

	assert.ErrorIs(t, st.ReleaseSession(ctx, uuid.New()), ErrNotFound)
}

func TestAppendMessageOrderingAndActivityBump(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)

	bodies := []string{"satu", "dua", "tiga", "empat"}
	for _, body := range bodies {
		_, err := st.AppendMessage(ctx, session.ID, models.SenderCitizen, body)
		require.NoError(t, err)
	}

	msgs, err := st.ListMessages(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, msgs, len(bodies))
	for i, m := range msgs {
		assert.Equal(t, bodies[i], m.Body)
		assert.Equal(t, models.SenderCitizen, m.Sender)
		assert.Equal(t, session.ID, m.SessionID)
	}

	got, err := st.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.False(t, got.LastActivityAt.Before(session.LastActivityAt))

	_, err = st.AppendMessage(ctx, uuid.New(), models.SenderCitizen, "halo")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListSessionsMostRecentFirst(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	first, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	second, err := st.CreateSession(ctx, "Budi")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = st.AppendMessage(ctx, first.ID, models.SenderCitizen, "halo lagi")
	require.NoError(t, err)

	sessions, err := st.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first.ID, sessions[0].ID)
	assert.Equal(t, second.ID, sessions[1].ID)
}

func TestGreetingBodiesReturnsEarliestMatchPerSession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, session.ID, models.SenderCitizen, GreetingPrefix+"Perekaman KTP.")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, session.ID, models.SenderCitizen, GreetingPrefix+"Surat Domisili.")
	require.NoError(t, err)

	// Non-greeting and non-citizen rows never match.
	plain, err := st.CreateSession(ctx, "Budi")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, plain.ID, models.SenderCitizen, "Kantor buka jam berapa?")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, plain.ID, models.SenderSystem, GreetingPrefix+"bukan dari warga")
	require.NoError(t, err)

	greetings, err := st.GreetingBodies(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{
		session.ID: GreetingPrefix + "Perekaman KTP.",
	}, greetings)
}

func TestGreetingBodySingleSession(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	session, err := st.CreateSession(ctx, "Siti")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, session.ID, models.SenderCitizen, GreetingPrefix+"Perekaman KTP.")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, session.ID, models.SenderCitizen, GreetingPrefix+"Surat Domisili.")
	require.NoError(t, err)

	body, err := st.GreetingBody(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, GreetingPrefix+"Perekaman KTP.", body)

	plain, err := st.CreateSession(ctx, "Budi")
	require.NoError(t, err)
	_, err = st.AppendMessage(ctx, plain.ID, models.SenderCitizen, "Kantor buka jam berapa?")
	require.NoError(t, err)

	body, err = st.GreetingBody(ctx, plain.ID)
	require.NoError(t, err)
	assert.Equal(t, "", body)
}

func TestOperatorAccountsAndTokens(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	count, err := st.CountOperators(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	op, err := st.CreateOperator(ctx, "andi@kel.go.id", "Andi", "hash")
	require.NoError(t, err)

	got, err := st.GetOperatorByEmail(ctx, "andi@kel.go.id")
	require.NoError(t, err)
	assert.Equal(t, op.ID, got.ID)
	assert.Equal(t, "Andi", got.Name)

	_, err = st.GetOperatorByEmail(ctx, "nobody@kel.go.id")
	assert.ErrorIs(t, err, ErrNotFound)

	count, err = st.CountOperators(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	require.NoError(t, st.SaveToken(ctx, "tok-live", op.ID, time.Now().Add(time.Hour)))
	require.NoError(t, st.SaveToken(ctx, "tok-dead", op.ID, time.Now().Add(-time.Hour)))

	resolved, err := st.GetOperatorByToken(ctx, "tok-live")
	require.NoError(t, err)
	assert.Equal(t, op.ID, resolved.ID)

	_, err = st.GetOperatorByToken(ctx, "tok-dead")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.GetOperatorByToken(ctx, "tok-unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListOperators(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	ops, err := st.ListOperators(ctx)
	require.NoError(t, err)
	assert.Empty(t, ops)

	_, err = st.CreateOperator(ctx, "andi@kel.go.id", "Andi", "hash-a")
	require.NoError(t, err)
	_, err = st.CreateOperator(ctx, "budi@kel.go.id", "Budi", "hash-b")
	require.NoError(t, err)

	ops, err = st.ListOperators(ctx)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "andi@kel.go.id", ops[0].Email)
	assert.Equal(t, "budi@kel.go.id", ops[1].Email)
}

func TestNewsCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	post, err := st.CreateNews(ctx, "Jadwal Posyandu", "Posyandu bulan ini digelar hari Kamis.")
	require.NoError(t, err)

	posts, err := st.ListNews(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, post.ID, posts[0].ID)

	require.NoError(t, st.DeleteNews(ctx, post.ID))
	assert.ErrorIs(t, st.DeleteNews(ctx, post.ID), ErrNotFound)

	posts, err = st.ListNews(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestServicesCRUD(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	entry, err := st.CreateService(ctx, "Surat Keterangan Usaha", "Pengantar usaha mikro", "KTP, KK")
	require.NoError(t, err)

	entries, err := st.ListServices(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)
	assert.Equal(t, "KTP, KK", entries[0].Requirements)

	require.NoError(t, st.DeleteService(ctx, entry.ID))
	assert.ErrorIs(t, st.DeleteService(ctx, entry.ID), ErrNotFound)
}

func TestPagesUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := st.GetPage(ctx, "profil")
	assert.ErrorIs(t, err, ErrNotFound)

	page, err := st.UpsertPage(ctx, "profil", "Profil Kelurahan", "Sejarah singkat.")
	require.NoError(t, err)
	assert.Equal(t, "profil", page.Slug)

	// A second write to the same slug replaces the page, not duplicates it.
	_, err = st.UpsertPage(ctx, "profil", "Profil Kelurahan", "Sejarah yang diperbarui.")
	require.NoError(t, err)
	_, err = st.UpsertPage(ctx, "visi-misi", "Visi dan Misi", "Melayani warga.")
	require.NoError(t, err)

	got, err := st.GetPage(ctx, "profil")
	require.NoError(t, err)
	assert.Equal(t, "Sejarah yang diperbarui.", got.Body)

	pages, err := st.ListPages(ctx)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "profil", pages[0].Slug)
	assert.Equal(t, "visi-misi", pages[1].Slug)
}

func TestDashboardCounts(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	empty, err := st.DashboardCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.DashboardCounts{}, empty)

	_, err = st.CreateNews(ctx, "Jadwal Posyandu", "Kamis.")
	require.NoError(t, err)
	_, err = st.CreateService(ctx, "Surat Keterangan Usaha", "", "")
	require.NoError(t, err)
	_, err = st.CreateOperator(ctx, "andi@kel.go.id", "Andi", "hash")
	require.NoError(t, err)

	_, err = st.CreateSession(ctx, "Siti")
	require.NoError(t, err)
	live, err := st.CreateSession(ctx, "Budi")
	require.NoError(t, err)
	_, err = st.EscalateSession(ctx, live.ID)
	require.NoError(t, err)

	counts, err := st.DashboardCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, &models.DashboardCounts{
		News:         1,
		Services:     1,
		Sessions:     2,
		LiveSessions: 1,
		Operators:    1,
	}, counts)
}
