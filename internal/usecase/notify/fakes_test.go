package notify

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"catchup-notify/internal/domain/entity"

	"github.com/google/uuid"
)

/* ──── ヘルパ: インメモリリポジトリ ──── */

type memNotifications struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*entity.Notification
	createErr error
	batches   int
}

func newMemNotifications() *memNotifications {
	return &memNotifications{rows: map[uuid.UUID]*entity.Notification{}}
}

func (m *memNotifications) Create(ctx context.Context, n *entity.Notification) error {
	return m.CreateBatch(ctx, []*entity.Notification{n})
}

func (m *memNotifications) CreateBatch(ctx context.Context, ns []*entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.batches++
	for _, n := range ns {
		cp := *n
		m.rows[n.ID] = &cp
	}
	return nil
}

func (m *memNotifications) Get(ctx context.Context, id uuid.UUID) (*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *n
	return &cp, nil
}

func (m *memNotifications) forUser(userID uuid.UUID) []*entity.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Notification
	for _, n := range m.rows {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

type deliveryKey struct {
	id uuid.UUID
	ch entity.Channel
}

type memDeliveries struct {
	mu        sync.Mutex
	rows      map[deliveryKey]*entity.DeliveryStatus
	createErr error
	updateErr error
	updates   int
}

func newMemDeliveries() *memDeliveries {
	return &memDeliveries{rows: map[deliveryKey]*entity.DeliveryStatus{}}
}

func (m *memDeliveries) CreateBatch(ctx context.Context, rows []*entity.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, r := range rows {
		k := deliveryKey{r.NotificationID, r.Channel}
		if _, exists := m.rows[k]; exists {
			continue
		}
		cp := *r
		m.rows[k] = &cp
	}
	return nil
}

func (m *memDeliveries) Update(ctx context.Context, row *entity.DeliveryStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	k := deliveryKey{row.NotificationID, row.Channel}
	cur, ok := m.rows[k]
	if !ok || cur.State != entity.DeliveryPending {
		return fmt.Errorf("update delivery: %w", entity.ErrNotFound)
	}
	m.updates++
	cp := *row
	m.rows[k] = &cp
	return nil
}

func (m *memDeliveries) ClaimDue(ctx context.Context, channel entity.Channel, now time.Time, lease time.Duration, limit int) ([]*entity.DeliveryStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []*entity.DeliveryStatus
	for _, r := range m.rows {
		if r.Channel == channel && r.State == entity.DeliveryPending && !r.NextAttemptAt.After(now) {
			due = append(due, r)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	out := make([]*entity.DeliveryStatus, 0, len(due))
	for _, r := range due {
		r.NextAttemptAt = now.Add(lease)
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memDeliveries) ListByNotification(ctx context.Context, id uuid.UUID) ([]*entity.DeliveryStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.DeliveryStatus
	for _, ch := range entity.Channels() {
		if r, ok := m.rows[deliveryKey{id, ch}]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memDeliveries) byChannel(id uuid.UUID) map[entity.Channel]*entity.DeliveryStatus {
	rows, _ := m.ListByNotification(context.Background(), id)
	out := make(map[entity.Channel]*entity.DeliveryStatus, len(rows))
	for _, r := range rows {
		out[r.Channel] = r
	}
	return out
}

func (m *memDeliveries) put(row *entity.DeliveryStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *row
	m.rows[deliveryKey{row.NotificationID, row.Channel}] = &cp
}

type memPreferences struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]*entity.NotificationPreferences
	err   error
	gets  int
	delay time.Duration
}

func newMemPreferences() *memPreferences {
	return &memPreferences{rows: map[uuid.UUID]*entity.NotificationPreferences{}}
}

func (m *memPreferences) Get(ctx context.Context, userID uuid.UUID) (*entity.NotificationPreferences, error) {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	cp := *p
	cp.MutedTypes = slices.Clone(p.MutedTypes)
	return &cp, nil
}

func (m *memPreferences) Upsert(ctx context.Context, prefs *entity.NotificationPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *prefs
	m.rows[prefs.UserID] = &cp
	return nil
}

func (m *memPreferences) MuteType(ctx context.Context, userID uuid.UUID, t entity.NotificationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[userID]
	if !ok {
		d := entity.DefaultPreferences(userID)
		p = &d
		m.rows[userID] = p
	}
	p.Mute(t)
	return nil
}

func (m *memPreferences) ListUserIDsByFrequency(ctx context.Context, freq entity.DigestFrequency) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var ids []uuid.UUID
	for id, p := range m.rows {
		if p.DigestFrequency == freq {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memPreferences) set(p entity.NotificationPreferences) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.UserID] = &p
}

type memUsers struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.User
	err  error
	gets int
}

func newMemUsers(users ...*entity.User) *memUsers {
	m := &memUsers{rows: map[uuid.UUID]*entity.User{}}
	for _, u := range users {
		m.rows[u.ID] = u
	}
	return m
}

func (m *memUsers) Get(ctx context.Context, id uuid.UUID) (*entity.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	u, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

type memDigests struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]*entity.NotificationDigest
	createErr error
	claims    map[uuid.UUID]time.Time
	// preempt simulates another worker inserting the same cycle first
	preempt *entity.NotificationDigest
}

func newMemDigests() *memDigests {
	return &memDigests{
		rows:   map[uuid.UUID]*entity.NotificationDigest{},
		claims: map[uuid.UUID]time.Time{},
	}
}

func (m *memDigests) CreateIfAbsent(ctx context.Context, d *entity.NotificationDigest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return false, m.createErr
	}
	if err := d.Content.Validate(); err != nil {
		return false, err
	}
	if m.preempt != nil {
		cp := *m.preempt
		m.rows[cp.ID] = &cp
		m.preempt = nil
	}
	for _, r := range m.rows {
		if r.UserID == d.UserID && r.Type == d.Type && r.ScheduledFor.Equal(d.ScheduledFor) {
			return false, nil
		}
	}
	cp := *d
	m.rows[d.ID] = &cp
	return true, nil
}

func (m *memDigests) FindByCycle(ctx context.Context, userID uuid.UUID, t entity.DigestType, scheduledFor time.Time) (*entity.NotificationDigest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID && r.Type == t && r.ScheduledFor.Equal(scheduledFor) {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memDigests) Claim(ctx context.Context, id uuid.UUID, now, until time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.Status == entity.DigestSent {
		return false, nil
	}
	if held, ok := m.claims[id]; ok && held.After(now) {
		return false, nil
	}
	m.claims[id] = until
	return true, nil
}

func (m *memDigests) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return entity.ErrNotFound
	}
	delete(m.claims, id)
	return r.MarkSent(sentAt)
}

func (m *memDigests) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return entity.ErrNotFound
	}
	delete(m.claims, id)
	return r.MarkFailed(reason)
}

func (m *memDigests) all() []*entity.NotificationDigest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*entity.NotificationDigest, 0, len(m.rows))
	for _, r := range m.rows {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

type memContent struct {
	articles []entity.ContentSummary
	news     []entity.ContentSummary
	err      error
}

func (m *memContent) RecentArticles(ctx context.Context, since time.Time, limit int) ([]entity.ContentSummary, error) {
	return recent(m.articles, since, limit), m.err
}

func (m *memContent) RecentNews(ctx context.Context, since time.Time, limit int) ([]entity.ContentSummary, error) {
	return recent(m.news, since, limit), m.err
}

func recent(items []entity.ContentSummary, since time.Time, limit int) []entity.ContentSummary {
	var out []entity.ContentSummary
	for _, it := range items {
		if !it.PublishedAt.Before(since) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.After(out[j].PublishedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

/* ──── ヘルパ: 送信フェイク ──── */

type fakeSender struct {
	channel entity.Channel
	mu      sync.Mutex
	calls   int
	// failFor returns an error for specific users; nil means success
	failFor func(user *entity.User) error
	panics  bool
	delay   time.Duration
}

func (f *fakeSender) Channel() entity.Channel { return f.channel }

func (f *fakeSender) Send(ctx context.Context, user *entity.User, n *entity.Notification) error {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panics {
		panic("sender exploded")
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failFor != nil {
		return f.failFor(user)
	}
	return nil
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []*entity.NotificationDigest
	err  func(user *entity.User) error
}

func (f *fakeMailer) SendDigest(ctx context.Context, user *entity.User, d *entity.NotificationDigest) error {
	if f.err != nil {
		if err := f.err(user); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *d
	f.sent = append(f.sent, &cp)
	return nil
}

func (f *fakeMailer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeLock struct {
	held     bool
	acquired int
	released int
}

func (l *fakeLock) Acquire(ctx context.Context) (bool, error) {
	if l.held {
		return false, nil
	}
	l.acquired++
	return true, nil
}

func (l *fakeLock) Release(ctx context.Context) error {
	l.released++
	return nil
}

/* ──── ヘルパ: 組み立て ──── */

var fixedNow = time.Date(2026, 5, 13, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

func newUser(email string, tokens ...string) *entity.User {
	return &entity.User{
		ID:           uuid.New(),
		Email:        email,
		DisplayName:  "Reader",
		Locale:       "en",
		DeviceTokens: tokens,
	}
}

func newRequest(userID uuid.UUID) Request {
	return Request{
		UserID:  userID,
		Type:    entity.TypeNewArticle,
		Title:   entity.LocalizedText{"en": "New article", "ja": "新着記事"},
		Message: entity.LocalizedText{"en": "Go 1.25 released"},
		Payload: []byte(`{"article_id": 42, "url": "https://catchup.example/articles/42"}`),
	}
}

type harness struct {
	notifications *memNotifications
	deliveries    *memDeliveries
	prefs         *memPreferences
	users         *memUsers
	inApp         *fakeSender
	email         *fakeSender
	push          *fakeSender
}

func newHarness(users ...*entity.User) *harness {
	return &harness{
		notifications: newMemNotifications(),
		deliveries:    newMemDeliveries(),
		prefs:         newMemPreferences(),
		users:         newMemUsers(users...),
		inApp:         &fakeSender{channel: entity.ChannelInApp},
		email:         &fakeSender{channel: entity.ChannelEmail},
		push:          &fakeSender{channel: entity.ChannelPush},
	}
}

func (h *harness) repos() Repositories {
	return Repositories{Notifications: h.notifications, Deliveries: h.deliveries, Users: h.users}
}

func (h *harness) senders() []Sender {
	return []Sender{h.inApp, h.email, h.push}
}

func (h *harness) service() Service {
	return NewService(h.repos(), NewResolver(h.prefs), h.senders(), nil, ServiceConfig{
		MaxConcurrentRecipients: 4,
		Now:                     fixedClock,
	})
}

func (h *harness) processor(now func() time.Time) *Processor {
	return NewProcessor(h.repos(), NewResolver(h.prefs), h.senders(), ProcessorConfig{Now: now})
}

var errProviderDown = errors.New("provider down")
