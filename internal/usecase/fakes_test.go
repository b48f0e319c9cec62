package usecase

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"slack-relay/internal/domain"
	"slack-relay/internal/integrations/paramstore"
)

type fakeVerifier struct {
	ok  bool
	err error
}

func (f *fakeVerifier) Verify(context.Context, string, []byte, string) (bool, error) {
	return f.ok, f.err
}

type fakeClassifier struct {
	ev   domain.InboundEvent
	body []byte
}

func (f *fakeClassifier) Classify(body []byte) domain.InboundEvent {
	f.body = body
	return f.ev
}

// memTurns keeps turns in insertion order and enforces the
// (thread, role, turn ts) uniqueness the real stores provide.
type memTurns struct {
	mu        sync.Mutex
	turns     []domain.Turn
	appendErr error
	windowErr error
	failOn    domain.Role
	limits    []int
}

func (m *memTurns) Append(_ context.Context, t domain.Turn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil && (m.failOn == "" || m.failOn == t.Role) {
		return m.appendErr
	}
	for _, existing := range m.turns {
		if existing.Thread() == t.Thread() && existing.Role == t.Role && t.TurnTS != "" && existing.TurnTS == t.TurnTS {
			return domain.ErrDuplicateTurn
		}
	}
	m.turns = append(m.turns, t)
	return nil
}

func (m *memTurns) RecentWindow(_ context.Context, key domain.ThreadKey, limit int) ([]domain.Turn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limits = append(m.limits, limit)
	if m.windowErr != nil {
		return nil, m.windowErr
	}
	var out []domain.Turn
	for _, t := range m.turns {
		if t.Thread() == key {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *memTurns) byRole(role domain.Role) []domain.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Turn
	for _, t := range m.turns {
		if t.Role == role {
			out = append(out, t)
		}
	}
	return out
}

type memCreds struct {
	mu        sync.Mutex
	creds     map[string]domain.TenantCredential
	err       error
	upsertErr error
	resolved  []string
}

func newMemCreds(creds ...domain.TenantCredential) *memCreds {
	m := &memCreds{creds: map[string]domain.TenantCredential{}}
	for _, c := range creds {
		m.creds[c.TenantID] = c
	}
	return m
}

func (m *memCreds) Resolve(_ context.Context, tenantID string) (domain.TenantCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolved = append(m.resolved, tenantID)
	if m.err != nil {
		return domain.TenantCredential{}, m.err
	}
	c, ok := m.creds[tenantID]
	if !ok {
		return domain.TenantCredential{}, fmt.Errorf("resolve %s: %w", tenantID, domain.ErrNotFound)
	}
	return c, nil
}

func (m *memCreds) Upsert(_ context.Context, c domain.TenantCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.creds[c.TenantID] = c
	return nil
}

type completionCall struct {
	system   string
	messages []domain.ChatMessage
}

type fakeCompletion struct {
	reply    string
	err      error
	block    bool
	calls    []completionCall
	deadline time.Time
}

func (f *fakeCompletion) Complete(ctx context.Context, system string, messages []domain.ChatMessage) (string, error) {
	f.calls = append(f.calls, completionCall{system: system, messages: messages})
	f.deadline, _ = ctx.Deadline()
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.reply, f.err
}

type postCall struct {
	token    string
	channel  string
	threadTS string
	text     string
}

type fakeMessenger struct {
	ts    string
	err   error
	calls []postCall
}

func (f *fakeMessenger) PostMessage(_ context.Context, token, channel, threadTS, text string) (string, error) {
	f.calls = append(f.calls, postCall{token: token, channel: channel, threadTS: threadTS, text: text})
	return f.ts, f.err
}

type syncScheduler struct {
	names []string
	err   error
	last  error
}

func (s *syncScheduler) Submit(ctx context.Context, name string, run func(context.Context) error) error {
	s.names = append(s.names, name)
	if s.err != nil {
		return s.err
	}
	s.last = run(ctx)
	return nil
}

type fakeParams struct {
	vals  map[string]string
	err   error
	calls int
}

func (f *fakeParams) GetParameter(_ context.Context, name string) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	v, ok := f.vals[name]
	if !ok {
		return "", fmt.Errorf("param %s: %w", name, paramstore.ErrNotFound)
	}
	return v, nil
}

type harness struct {
	verifier   *fakeVerifier
	classifier *fakeClassifier
	turns      *memTurns
	creds      *memCreds
	completion *fakeCompletion
	messenger  *fakeMessenger
	scheduler  *syncScheduler
	params     *fakeParams
	svc        *RelayService
}

func newHarness(t *testing.T, ev domain.InboundEvent, creds ...domain.TenantCredential) *harness {
	t.Helper()
	h := &harness{
		verifier:   &fakeVerifier{ok: true},
		classifier: &fakeClassifier{ev: ev},
		turns:      &memTurns{},
		creds:      newMemCreds(creds...),
		completion: &fakeCompletion{reply: "4"},
		messenger:  &fakeMessenger{ts: "1700000001.000200"},
		scheduler:  &syncScheduler{},
		params:     &fakeParams{vals: map[string]string{}},
	}
	dispatcher, err := NewReplyDispatcher(h.creds, h.messenger, time.Second)
	require.NoError(t, err)
	h.svc, err = NewRelayService(Dependencies{
		Verifier:   h.verifier,
		Classifier: h.classifier,
		Turns:      h.turns,
		Completion: h.completion,
		Dispatcher: dispatcher,
		Scheduler:  h.scheduler,
		Params:     h.params,
	}, Config{MaxContextItems: 5, CompletionTimeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	var seq int
	h.svc.now = func() time.Time {
		seq++
		return time.Date(2026, 1, 1, 0, 0, seq, 0, time.UTC)
	}
	return h
}

func mentionEvent(tenant, channel, root, ts, text string) domain.InboundEvent {
	return domain.InboundEvent{
		Kind:       domain.EventTurn,
		TenantID:   tenant,
		Channel:    channel,
		ThreadRoot: root,
		TurnTS:     ts,
		AuthorID:   "U1",
		Text:       text,
	}
}

func seedThread(t *testing.T, turns *memTurns, key domain.ThreadKey, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		require.NoError(t, turns.Append(context.Background(), domain.Turn{
			ID:         fmt.Sprintf("seed-%02d", i),
			TenantID:   key.TenantID,
			Channel:    key.Channel,
			ThreadRoot: key.ThreadRoot,
			TurnTS:     fmt.Sprintf("1600000000.%06d", i),
			Role:       role,
			Text:       fmt.Sprintf("message %d", i),
			CreatedAt:  time.Date(2025, 1, 1, 0, 0, i, 0, time.UTC),
		}))
	}
}
