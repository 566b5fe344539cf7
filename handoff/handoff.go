// Package handoff implements C9: handing an active task off from one agent
// to another (and back), with an in-memory cache fronting a durable store,
// tenant-validated reads, and terminal-state irreversibility. Grounded on
// runtime/agent/session/session.go's Store contract (explicit
// create/load/end lifecycle, idempotent create, sentinel not-found/ended
// errors), adapted from session lifecycle to a source/target handoff
// record keyed by thread.
package handoff

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
)

// Status is a handoff's lifecycle state (spec §4.9 "Handoff").
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

// IsTerminal reports whether s is one of the absorbing terminal states that
// can never be reopened (spec §4.9 "terminal states are irreversible").
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusError
}

// Handoff is one active or concluded handoff within a thread.
type Handoff struct {
	ThreadID     ids.ThreadID
	Tenant       ids.TenantID
	SourceAgent  ids.AgentID
	TargetAgent  ids.AgentID
	Status       Status
	Reason       string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Store persists handoff records durably. Manager fronts a Store with an
// in-memory cache; Store implementations need not cache anything
// themselves (spec §4.9 "in-memory cache + store fallback").
type Store interface {
	// Save upserts h.
	Save(ctx context.Context, h Handoff) error
	// Load returns the handoff for threadID, or ok=false if none exists.
	Load(ctx context.Context, threadID ids.ThreadID) (Handoff, bool, error)
}

// Manager activates, queries, completes, and cancels handoffs, consulting
// an in-memory cache before falling back to the durable Store.
type Manager struct {
	store Store

	mu    sync.RWMutex
	cache map[ids.ThreadID]Handoff
}

// NewManager constructs a Manager backed by store.
func NewManager(store Store) *Manager {
	return &Manager{store: store, cache: make(map[ids.ThreadID]Handoff)}
}

// Initiate starts a new handoff from source to target on thread, for
// tenant. It is rejected if an active (non-terminal) handoff already
// exists on the thread (spec §4.9 "active-handoff-conflict rejection").
func (m *Manager) Initiate(ctx context.Context, thread ids.ThreadID, tenant ids.TenantID, source, target ids.AgentID, reason string, now time.Time) (Handoff, error) {
	existing, ok, err := m.GetActive(ctx, thread, tenant)
	if err != nil {
		return Handoff{}, err
	}
	if ok && !existing.Status.IsTerminal() {
		return Handoff{}, toolerrors.NewWithCode(toolerrors.ErrHandoff,
			fmt.Sprintf("thread %q already has an active handoff to %q", thread, existing.TargetAgent))
	}

	h := Handoff{
		ThreadID: thread, Tenant: tenant,
		SourceAgent: source, TargetAgent: target,
		Status: StatusActive, Reason: reason,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := m.save(ctx, h); err != nil {
		return Handoff{}, err
	}
	return h, nil
}

// GetActive returns the handoff record for thread, validating it belongs to
// tenant. Only a record in StatusActive is returned; a terminal record is
// evicted from the cache and reported as not found, so a completed/
// cancelled/errored handoff can never be handed back out as active again
// (spec §4.9 "Only sessions in state active are returned; non-active
// entries are evicted from the cache"). A record that exists under a
// different tenant is likewise reported as not found rather than as a
// permission error, so callers cannot distinguish "wrong tenant" from
// "never existed" (spec §4.9 "tenant validation on read").
func (m *Manager) GetActive(ctx context.Context, thread ids.ThreadID, tenant ids.TenantID) (Handoff, bool, error) {
	if h, ok := m.fromCache(thread); ok {
		if !h.Status.IsTerminal() {
			if h.Tenant != tenant {
				return Handoff{}, false, nil
			}
			return h, true, nil
		}
		m.evictCache(thread)
		return Handoff{}, false, nil
	}

	h, ok, err := m.store.Load(ctx, thread)
	if err != nil {
		return Handoff{}, false, err
	}
	if !ok {
		return Handoff{}, false, nil
	}
	if h.Status.IsTerminal() {
		return Handoff{}, false, nil
	}
	m.putCache(h)
	if h.Tenant != tenant {
		return Handoff{}, false, nil
	}
	return h, true, nil
}

// Complete marks the active handoff on thread as completed. Completing an
// already-terminal handoff is rejected (spec §4.9 "terminal-state
// irreversibility").
func (m *Manager) Complete(ctx context.Context, thread ids.ThreadID, tenant ids.TenantID, now time.Time) (Handoff, error) {
	return m.transition(ctx, thread, tenant, StatusCompleted, "", now)
}

// Cancel marks the active handoff on thread as cancelled.
func (m *Manager) Cancel(ctx context.Context, thread ids.ThreadID, tenant ids.TenantID, reason string, now time.Time) (Handoff, error) {
	return m.transition(ctx, thread, tenant, StatusCancelled, reason, now)
}

// Return initiates a handoff back from the current target to the original
// source, swapping source/target roles (spec §4.9 "HandoffReturn").
func (m *Manager) Return(ctx context.Context, thread ids.ThreadID, tenant ids.TenantID, reason string, now time.Time) (Handoff, error) {
	existing, ok, err := m.GetActive(ctx, thread, tenant)
	if err != nil {
		return Handoff{}, err
	}
	if !ok {
		return Handoff{}, toolerrors.NewWithCode(toolerrors.ErrHandoff, fmt.Sprintf("no handoff on thread %q", thread))
	}
	if _, err := m.Complete(ctx, thread, tenant, now); err != nil {
		return Handoff{}, err
	}
	return m.Initiate(ctx, thread, tenant, existing.TargetAgent, existing.SourceAgent, reason, now)
}

func (m *Manager) transition(ctx context.Context, thread ids.ThreadID, tenant ids.TenantID, status Status, errMsg string, now time.Time) (Handoff, error) {
	h, ok, err := m.GetActive(ctx, thread, tenant)
	if err != nil {
		return Handoff{}, err
	}
	if !ok {
		return Handoff{}, toolerrors.NewWithCode(toolerrors.ErrHandoff, fmt.Sprintf("no handoff on thread %q", thread))
	}
	if h.Status.IsTerminal() {
		return Handoff{}, toolerrors.NewWithCode(toolerrors.ErrHandoff,
			fmt.Sprintf("handoff on thread %q is already terminal (%s)", thread, h.Status))
	}
	h.Status = status
	h.ErrorMessage = errMsg
	h.UpdatedAt = now
	if err := m.save(ctx, h); err != nil {
		return Handoff{}, err
	}
	return h, nil
}

func (m *Manager) save(ctx context.Context, h Handoff) error {
	if err := m.store.Save(ctx, h); err != nil {
		return err
	}
	m.putCache(h)
	return nil
}

func (m *Manager) fromCache(thread ids.ThreadID) (Handoff, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.cache[thread]
	return h, ok
}

func (m *Manager) putCache(h Handoff) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[h.ThreadID] = h
}

func (m *Manager) evictCache(thread ids.ThreadID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, thread)
}

// MemoryStore is an in-process Store, useful for tests and for single-node
// deployments that accept losing handoff state on restart.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[ids.ThreadID]Handoff
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[ids.ThreadID]Handoff)}
}

func (s *MemoryStore) Save(_ context.Context, h Handoff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[h.ThreadID] = h
	return nil
}

func (s *MemoryStore) Load(_ context.Context, threadID ids.ThreadID) (Handoff, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.data[threadID]
	return h, ok, nil
}
