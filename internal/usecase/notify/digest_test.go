package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

/* ──── ヘルパ ──── */

type digestHarness struct {
	digests *memDigests
	content *memContent
	users   *memUsers
	prefs   *memPreferences
	mailer  *fakeMailer
	locks   map[entity.DigestType]Locker
}

func newDigestHarness(users ...*entity.User) *digestHarness {
	return &digestHarness{
		digests: newMemDigests(),
		content: &memContent{
			articles: []entity.ContentSummary{
				{ID: 1, Title: "Structured logging in Go", URL: "https://a.example/1", PublishedAt: fixedNow.Add(-1 * time.Hour)},
				{ID: 2, Title: "Profiling with pprof", URL: "https://a.example/2", PublishedAt: fixedNow.Add(-2 * time.Hour)},
				{ID: 3, Title: "Old news", URL: "https://a.example/3", PublishedAt: fixedNow.Add(-72 * time.Hour)},
			},
			news: []entity.ContentSummary{
				{ID: 10, Title: "Go 1.25 released", URL: "https://n.example/10", PublishedAt: fixedNow.Add(-3 * time.Hour)},
			},
		},
		users:  newMemUsers(users...),
		prefs:  newMemPreferences(),
		mailer: &fakeMailer{},
		locks:  map[entity.DigestType]Locker{},
	}
}

func (h *digestHarness) builder() *Builder {
	return NewBuilder(DigestRepositories{
		Digests:     h.digests,
		Content:     h.content,
		Users:       h.users,
		Preferences: h.prefs,
	}, NewResolver(h.prefs), h.mailer, BuilderConfig{
		Locks: h.locks,
		Now:   fixedClock,
	})
}

func (h *digestHarness) onFrequency(u *entity.User, freq entity.DigestFrequency) {
	p := entity.DefaultPreferences(u.ID)
	p.DigestFrequency = freq
	h.prefs.set(p)
}

var dailyWindowStart = fixedNow.Add(-24 * time.Hour)

/* ──── Build / Send ──── */

func TestBuilder_BuildAndSend(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	b := h.builder()

	d, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, entity.DigestPending, d.Status)
	assert.Equal(t, entity.DigestDaily, d.Type)
	assert.Equal(t, 3, d.Content.TotalCount)
	assert.Len(t, d.Content.Articles, 2)
	assert.Len(t, d.Content.News, 1)
	assert.Equal(t, time.Date(2026, 5, 13, 0, 0, 0, 0, time.UTC), d.ScheduledFor)

	require.NoError(t, b.Send(context.Background(), d))
	assert.Equal(t, entity.DigestSent, d.Status)
	require.NotNil(t, d.SentAt)
	assert.Equal(t, fixedNow, *d.SentAt)
	assert.Equal(t, 1, h.mailer.count())

	stored := h.digests.all()
	require.Len(t, stored, 1)
	assert.Equal(t, entity.DigestSent, stored[0].Status)
}

func TestBuilder_BuildLimitsContent(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyWeekly)
	b := NewBuilder(DigestRepositories{Digests: h.digests, Content: h.content, Users: h.users, Preferences: h.prefs},
		NewResolver(h.prefs), h.mailer, BuilderConfig{MaxArticles: 1, MaxNews: 1, Now: fixedClock})

	d, err := b.Build(context.Background(), user.ID, fixedNow.Add(-7*24*time.Hour))
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, 2, d.Content.TotalCount)
	assert.Equal(t, int64(1), d.Content.Articles[0].ID, "most recent first")
	// 2026-05-13 は水曜日、週の起点は月曜
	assert.Equal(t, time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC), d.ScheduledFor)
}

func TestBuilder_BuildReturnsNil(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *digestHarness, u *entity.User)
	}{
		{
			name:  "immediate user",
			setup: func(h *digestHarness, u *entity.User) { h.onFrequency(u, entity.FrequencyImmediate) },
		},
		{
			name: "digest muted",
			setup: func(h *digestHarness, u *entity.User) {
				p := entity.DefaultPreferences(u.ID)
				p.DigestFrequency = entity.FrequencyDaily
				p.MutedTypes = []entity.NotificationType{entity.TypeDigest}
				h.prefs.set(p)
			},
		},
		{
			name: "nothing published",
			setup: func(h *digestHarness, u *entity.User) {
				h.onFrequency(u, entity.FrequencyDaily)
				h.content.articles, h.content.news = nil, nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := newUser("r@example.com")
			h := newDigestHarness(user)
			tt.setup(h, user)

			d, err := h.builder().Build(context.Background(), user.ID, dailyWindowStart)
			require.NoError(t, err)
			assert.Nil(t, d)
			assert.Empty(t, h.digests.all())
		})
	}
}

func TestBuilder_ExistingDigestIsReturnedAsIs(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	b := h.builder()

	first, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)
	require.NoError(t, b.Send(context.Background(), first))

	h.content.news = append(h.content.news, entity.ContentSummary{ID: 11, Title: "Later", URL: "https://n.example/11", PublishedAt: fixedNow})
	again, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, entity.DigestSent, again.Status)
	assert.Equal(t, 3, again.Content.TotalCount)

	require.NoError(t, b.Send(context.Background(), again))
	assert.Equal(t, 1, h.mailer.count(), "a sent digest is never resent")
}

func TestBuilder_ConcurrentCreateLoserReturnsWinner(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)

	winner, err := entity.NewDigest(user.ID, entity.DigestDaily,
		entity.NewDigestContent([]entity.ContentSummary{{ID: 99, Title: "w", URL: "https://a.example/99"}}, nil),
		entity.DigestDaily.CycleStart(fixedNow, time.UTC), fixedNow)
	require.NoError(t, err)
	h.digests.preempt = winner

	got, err := h.builder().Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
	assert.Len(t, h.digests.all(), 1)
}

func TestBuilder_SendFailureMarksFailed(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	h.mailer.err = func(*entity.User) error { return errProviderDown }
	b := h.builder()

	d, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)

	err = b.Send(context.Background(), d)
	require.Error(t, err)
	assert.ErrorIs(t, err, errProviderDown)
	assert.Equal(t, entity.DigestFailed, d.Status)
	assert.Nil(t, d.SentAt)

	stored := h.digests.all()
	require.Len(t, stored, 1)
	assert.Equal(t, entity.DigestFailed, stored[0].Status)
	require.NotNil(t, stored[0].FailureReason)
	assert.Contains(t, *stored[0].FailureReason, "provider down")
}

func TestBuilder_SendToDeletedUser(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	b := h.builder()

	d, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)
	delete(h.users.rows, user.ID)

	err = b.Send(context.Background(), d)
	assert.ErrorIs(t, err, ErrRecipientNotFound)
	assert.Equal(t, entity.DigestFailed, d.Status)
}

func TestBuilder_SendThroughDisabledEmailMarksFailed(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	provider := &recordingEmail{}
	b := NewBuilder(DigestRepositories{Digests: h.digests, Content: h.content, Users: h.users, Preferences: h.prefs},
		NewResolver(h.prefs), NewEmailSender(provider, staticLinks{}, EmailSenderConfig{Enabled: false}),
		BuilderConfig{Now: fixedClock})

	d, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)

	err = b.Send(context.Background(), d)
	assert.ErrorIs(t, err, ErrChannelDisabled)
	assert.Equal(t, entity.DigestFailed, d.Status)
	assert.Nil(t, d.SentAt)
	assert.Empty(t, provider.msgs)
}

func TestBuilder_SendSkipsDigestClaimedElsewhere(t *testing.T) {
	user := newUser("r@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	b := h.builder()

	d, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)
	// 別レプリカが送信中
	claimed, err := h.digests.Claim(context.Background(), d.ID, fixedNow, fixedNow.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, claimed)

	err = b.Send(context.Background(), d)
	assert.ErrorIs(t, err, ErrDigestClaimed)
	assert.Equal(t, 0, h.mailer.count())
	assert.Equal(t, entity.DigestPending, d.Status)

	// リース切れ後は引き継げる
	later := NewBuilder(DigestRepositories{Digests: h.digests, Content: h.content, Users: h.users, Preferences: h.prefs},
		NewResolver(h.prefs), h.mailer, BuilderConfig{Now: func() time.Time { return fixedNow.Add(time.Minute) }})
	require.NoError(t, later.Send(context.Background(), d))
	assert.Equal(t, 1, h.mailer.count())
	assert.Equal(t, entity.DigestSent, d.Status)
}

/* ──── RunSweep ──── */

func TestBuilder_RunSweep(t *testing.T) {
	ok1 := newUser("a@example.com")
	ok2 := newUser("b@example.com")
	broken := newUser("c@example.com")
	weekly := newUser("d@example.com")
	h := newDigestHarness(ok1, ok2, broken, weekly)
	for _, u := range []*entity.User{ok1, ok2, broken} {
		h.onFrequency(u, entity.FrequencyDaily)
	}
	h.onFrequency(weekly, entity.FrequencyWeekly)
	h.mailer.err = func(u *entity.User) error {
		if u.ID == broken.ID {
			return errProviderDown
		}
		return nil
	}
	lock := &fakeLock{}
	h.locks[entity.DigestDaily] = lock
	b := h.builder()

	stats, err := b.RunSweep(context.Background(), entity.DigestDaily, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Users: 3, Built: 2, Sent: 2, Failed: 1}, stats)
	assert.Equal(t, 1, lock.acquired)
	assert.Equal(t, 1, lock.released)

	// 再実行: 送信済みはスキップ、失敗分のみ再送
	h.mailer.err = nil
	stats, err = b.RunSweep(context.Background(), entity.DigestDaily, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Users: 3, Sent: 1, AlreadySent: 2}, stats)
	assert.Equal(t, 3, h.mailer.count())
}

func TestBuilder_RunSweepWithoutLockCountsInFlight(t *testing.T) {
	user := newUser("a@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	b := h.builder()

	d, err := b.Build(context.Background(), user.ID, dailyWindowStart)
	require.NoError(t, err)
	_, err = h.digests.Claim(context.Background(), d.ID, fixedNow, fixedNow.Add(time.Minute))
	require.NoError(t, err)

	stats, err := b.RunSweep(context.Background(), entity.DigestDaily, fixedNow)
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Users: 1, InFlight: 1}, stats)
	assert.Equal(t, 0, h.mailer.count())
}

func TestBuilder_RunSweepSkipsWhenLockHeld(t *testing.T) {
	user := newUser("a@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	h.locks[entity.DigestDaily] = &fakeLock{held: true}

	stats, err := h.builder().RunSweep(context.Background(), entity.DigestDaily, fixedNow)
	require.NoError(t, err)
	assert.True(t, stats.LockHeld)
	assert.Equal(t, 0, h.mailer.count())
}

func TestBuilder_RunSweepEmptyWindow(t *testing.T) {
	user := newUser("a@example.com")
	h := newDigestHarness(user)
	h.onFrequency(user, entity.FrequencyDaily)
	h.content.articles, h.content.news = nil, nil

	stats, err := h.builder().RunDailyDigestSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Users: 1, SkippedEmpty: 1}, stats)
}

func TestBuilder_RunSweepListError(t *testing.T) {
	h := newDigestHarness()
	h.prefs.err = errors.New("db down")

	_, err := h.builder().RunWeeklyDigestSweep(context.Background())
	assert.Error(t, err)
}

func TestBuilder_RunSweepRejectsUnknownType(t *testing.T) {
	_, err := newDigestHarness().builder().RunSweep(context.Background(), "monthly", fixedNow)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestBuilder_SendUnknownDigestUser(t *testing.T) {
	h := newDigestHarness()
	d, err := entity.NewDigest(uuid.New(), entity.DigestDaily,
		entity.NewDigestContent([]entity.ContentSummary{{ID: 1, Title: "x", URL: "https://a.example/1"}}, nil),
		fixedNow, fixedNow)
	require.NoError(t, err)
	_, err = h.digests.CreateIfAbsent(context.Background(), d)
	require.NoError(t, err)

	assert.ErrorIs(t, h.builder().Send(context.Background(), d), ErrRecipientNotFound)
}
