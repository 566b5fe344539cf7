// Package convo implements C11: a tenant-scoped conversation and message
// store backing C6's history replay and C9's handoff-session persistence
// (spec §2 "Conversation Store Adapter", an [EXPANSION] over spec.md's
// bare mention in the component table). The Store interface and its
// tenant-validated-read discipline are grounded on
// runtime/agent/session/session.go's Store contract (context-first
// methods, sentinel not-found errors, idempotent create); the Postgres
// implementation uses github.com/jackc/pgx/v5 (vanducng-goclaw's database
// driver), via the native pgxpool.Pool API rather than that repo's
// database/sql-compatible pgx/v5/stdlib shim, since Store's methods want
// context-aware pgx query methods directly rather than a generic sql.DB
// handle (vanducng-goclaw uses the stdlib shim because it drives
// golang-migrate, a different concern than ours).
package convo

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentforge/core/ids"
	"github.com/agentforge/core/internal/toolerrors"
)

type (
	// Conversation is a tenant-scoped, ordered sequence of messages.
	Conversation struct {
		ID        ids.ConversationID
		Tenant    ids.TenantID
		CreatedAt time.Time
		// StateMetadata carries adjunct JSON state, notably C9's active
		// handoff session under the "handoff_session" key (spec §6).
		StateMetadata map[string]any
	}

	// StoredMessage is one message row within a conversation.
	StoredMessage struct {
		ConversationID ids.ConversationID
		Role           string
		Parts          []string
		CreatedAt      time.Time
	}

	// Store persists conversations and their messages, tenant-scoped.
	// Every read is tenant-validated: a row that exists under a different
	// tenant is reported exactly as "not found" (spec §6 "tenant predicate
	// enforced server-side").
	Store interface {
		// CreateConversation creates (or idempotently returns) a
		// conversation for tenant under id.
		CreateConversation(ctx context.Context, id ids.ConversationID, tenant ids.TenantID, now time.Time) (Conversation, error)
		// GetConversation loads a conversation, validating it belongs to
		// tenant. Returns ErrTaskNotFound-coded error if missing or
		// cross-tenant.
		GetConversation(ctx context.Context, id ids.ConversationID, tenant ids.TenantID) (Conversation, error)
		// AddMessage appends msg to an existing conversation.
		AddMessage(ctx context.Context, id ids.ConversationID, tenant ids.TenantID, msg StoredMessage) error
		// ListMessages returns every message in insertion order.
		ListMessages(ctx context.Context, id ids.ConversationID, tenant ids.TenantID) ([]StoredMessage, error)
		// SetStateMetadata replaces the conversation's adjunct state blob
		// (used by C9 to persist the handoff session).
		SetStateMetadata(ctx context.Context, id ids.ConversationID, tenant ids.TenantID, metadata map[string]any) error
		// PurgeTenant deletes every conversation and message for tenant.
		PurgeTenant(ctx context.Context, tenant ids.TenantID) error
	}
)

// notFound is the shared sentinel-coded error for a missing or
// cross-tenant conversation.
func notFound(id ids.ConversationID) error {
	return toolerrors.NewWithCode(toolerrors.ErrTaskNotFound, "conversation "+string(id)+" not found")
}

// MemoryStore is an in-process Store for tests and single-node
// deployments.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[ids.ConversationID]Conversation
	messages      map[ids.ConversationID][]StoredMessage
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[ids.ConversationID]Conversation),
		messages:      make(map[ids.ConversationID][]StoredMessage),
	}
}

func (s *MemoryStore) CreateConversation(_ context.Context, id ids.ConversationID, tenant ids.TenantID, now time.Time) (Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.conversations[id]; ok {
		if c.Tenant != tenant {
			return Conversation{}, notFound(id)
		}
		return c, nil
	}
	c := Conversation{ID: id, Tenant: tenant, CreatedAt: now, StateMetadata: map[string]any{}}
	s.conversations[id] = c
	return c, nil
}

func (s *MemoryStore) GetConversation(_ context.Context, id ids.ConversationID, tenant ids.TenantID) (Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok || c.Tenant != tenant {
		return Conversation{}, notFound(id)
	}
	return c, nil
}

func (s *MemoryStore) AddMessage(_ context.Context, id ids.ConversationID, tenant ids.TenantID, msg StoredMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.Tenant != tenant {
		return notFound(id)
	}
	msg.ConversationID = id
	s.messages[id] = append(s.messages[id], msg)
	return nil
}

func (s *MemoryStore) ListMessages(_ context.Context, id ids.ConversationID, tenant ids.TenantID) ([]StoredMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok || c.Tenant != tenant {
		return nil, notFound(id)
	}
	out := make([]StoredMessage, len(s.messages[id]))
	copy(out, s.messages[id])
	return out, nil
}

func (s *MemoryStore) SetStateMetadata(_ context.Context, id ids.ConversationID, tenant ids.TenantID, metadata map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[id]
	if !ok || c.Tenant != tenant {
		return notFound(id)
	}
	c.StateMetadata = metadata
	s.conversations[id] = c
	return nil
}

func (s *MemoryStore) PurgeTenant(_ context.Context, tenant ids.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range s.conversations {
		if c.Tenant == tenant {
			delete(s.conversations, id)
			delete(s.messages, id)
		}
	}
	return nil
}

// PostgresStore is a Store backed by a pgx connection pool. Schema
// (illustrative, applied by the deployment's own migration tooling, not
// this package):
//
//	CREATE TABLE conversations (
//	    id TEXT PRIMARY KEY, tenant TEXT NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL, state_metadata JSONB NOT NULL DEFAULT '{}'
//	);
//	CREATE TABLE conversation_messages (
//	    conversation_id TEXT NOT NULL REFERENCES conversations(id),
//	    role TEXT NOT NULL, parts JSONB NOT NULL, created_at TIMESTAMPTZ NOT NULL,
//	    seq BIGSERIAL
//	);
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, id ids.ConversationID, tenant ids.TenantID, now time.Time) (Conversation, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversations (id, tenant, created_at, state_metadata)
		VALUES ($1, $2, $3, '{}'::jsonb)
		ON CONFLICT (id) DO NOTHING
	`, string(id), string(tenant), now)
	if err != nil {
		return Conversation{}, err
	}
	return s.GetConversation(ctx, id, tenant)
}

func (s *PostgresStore) GetConversation(ctx context.Context, id ids.ConversationID, tenant ids.TenantID) (Conversation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant, created_at, state_metadata
		FROM conversations WHERE id = $1 AND tenant = $2
	`, string(id), string(tenant))

	var c Conversation
	var rawID, rawTenant string
	if err := row.Scan(&rawID, &rawTenant, &c.CreatedAt, &c.StateMetadata); err != nil {
		if err == pgx.ErrNoRows {
			return Conversation{}, notFound(id)
		}
		return Conversation{}, err
	}
	c.ID, c.Tenant = ids.ConversationID(rawID), ids.TenantID(rawTenant)
	return c, nil
}

func (s *PostgresStore) AddMessage(ctx context.Context, id ids.ConversationID, tenant ids.TenantID, msg StoredMessage) error {
	if _, err := s.GetConversation(ctx, id, tenant); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO conversation_messages (conversation_id, role, parts, created_at)
		VALUES ($1, $2, $3, $4)
	`, string(id), msg.Role, msg.Parts, msg.CreatedAt)
	return err
}

func (s *PostgresStore) ListMessages(ctx context.Context, id ids.ConversationID, tenant ids.TenantID) ([]StoredMessage, error) {
	if _, err := s.GetConversation(ctx, id, tenant); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT role, parts, created_at FROM conversation_messages
		WHERE conversation_id = $1 ORDER BY seq ASC
	`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.Role, &m.Parts, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.ConversationID = id
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SetStateMetadata(ctx context.Context, id ids.ConversationID, tenant ids.TenantID, metadata map[string]any) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE conversations SET state_metadata = $3 WHERE id = $1 AND tenant = $2
	`, string(id), string(tenant), metadata)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return notFound(id)
	}
	return nil
}

func (s *PostgresStore) PurgeTenant(ctx context.Context, tenant ids.TenantID) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM conversation_messages WHERE conversation_id IN (
			SELECT id FROM conversations WHERE tenant = $1
		)
	`, string(tenant))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `DELETE FROM conversations WHERE tenant = $1`, string(tenant))
	return err
}
