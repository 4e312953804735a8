package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/giantswarm/tokengate/pkce"
)

// Notice levels, matching the notification styles of the client UI.
const (
	NoticeInfo    = "info"
	NoticeWarning = "warning"
	NoticeError   = "error"
)

// Notice is a user-visible message queued across a flow restart.
type Notice struct {
	Level   string `json:"type"`
	Message string `json:"message"`
}

// SecretStore is the flow-scoped view holding the PKCE verifier, the anti-CSRF
// state and queued notices.
type SecretStore struct {
	backend  Backend
	clientID string
	logger   *slog.Logger
}

// NewSecretStore creates a secret store for clientID over backend.
func NewSecretStore(backend Backend, clientID string, logger *slog.Logger) *SecretStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SecretStore{
		backend:  backend,
		clientID: clientID,
		logger:   logger,
	}
}

func (s *SecretStore) key(field string) string {
	return Key(s.clientID, field)
}

// Get returns the stored secrets. ok is false unless both values are present
// and have the shape pkce generates; anything else is treated as missing.
func (s *SecretStore) Get(ctx context.Context) (pkce.Secrets, bool, error) {
	values, err := s.backend.Get(ctx, s.key(FieldCodeVerifier), s.key(FieldState))
	if err != nil {
		return pkce.Secrets{}, false, fmt.Errorf("failed to load flow secrets: %w", err)
	}
	secrets := pkce.Secrets{
		CodeVerifier: values[s.key(FieldCodeVerifier)],
		State:        values[s.key(FieldState)],
	}
	if secrets.CodeVerifier == "" || secrets.State == "" {
		return pkce.Secrets{}, false, nil
	}
	if !pkce.IsWellFormed(secrets.CodeVerifier) || !pkce.IsWellFormed(secrets.State) {
		s.logger.Warn("Discarding malformed flow secrets", "client_id", s.clientID)
		return pkce.Secrets{}, false, nil
	}
	return secrets, true, nil
}

// GetOrCreate returns the stored secrets, generating and persisting a fresh pair
// when either value is missing. A retry before completion reuses the same pair.
func (s *SecretStore) GetOrCreate(ctx context.Context) (pkce.Secrets, error) {
	secrets, ok, err := s.Get(ctx)
	if err != nil {
		return pkce.Secrets{}, err
	}
	if ok {
		return secrets, nil
	}

	secrets, err = pkce.NewSecrets()
	if err != nil {
		return pkce.Secrets{}, err
	}

	if err := s.backend.Set(ctx, map[string]string{
		s.key(FieldCodeVerifier): secrets.CodeVerifier,
		s.key(FieldState):        secrets.State,
	}); err != nil {
		return pkce.Secrets{}, fmt.Errorf("failed to save flow secrets: %w", err)
	}

	s.logger.Debug("Generated new authorization flow secrets", "client_id", s.clientID)
	return secrets, nil
}

// Clear deletes the verifier and state. Queued notices are kept.
func (s *SecretStore) Clear(ctx context.Context) error {
	if err := s.backend.Delete(ctx, s.key(FieldCodeVerifier), s.key(FieldState)); err != nil {
		return fmt.Errorf("failed to clear flow secrets: %w", err)
	}
	return nil
}

// AppendNotice queues a notice to be shown after the next restart.
func (s *SecretStore) AppendNotice(ctx context.Context, notice Notice) error {
	notices, err := s.notices(ctx)
	if err != nil {
		return err
	}
	notices = append(notices, notice)

	data, err := json.Marshal(notices)
	if err != nil {
		return fmt.Errorf("failed to marshal notices: %w", err)
	}
	if err := s.backend.Set(ctx, map[string]string{s.key(FieldWaitingNotices): string(data)}); err != nil {
		return fmt.Errorf("failed to save notices: %w", err)
	}
	return nil
}

// DrainNotices returns the queued notices in order and removes them.
func (s *SecretStore) DrainNotices(ctx context.Context) ([]Notice, error) {
	notices, err := s.notices(ctx)
	if err != nil {
		return nil, err
	}
	if len(notices) == 0 {
		return nil, nil
	}
	if err := s.backend.Delete(ctx, s.key(FieldWaitingNotices)); err != nil {
		return nil, fmt.Errorf("failed to clear notices: %w", err)
	}
	return notices, nil
}

func (s *SecretStore) notices(ctx context.Context) ([]Notice, error) {
	values, err := s.backend.Get(ctx, s.key(FieldWaitingNotices))
	if err != nil {
		return nil, fmt.Errorf("failed to load notices: %w", err)
	}
	raw := values[s.key(FieldWaitingNotices)]
	if raw == "" {
		return nil, nil
	}

	var notices []Notice
	if err := json.Unmarshal([]byte(raw), &notices); err != nil {
		// A corrupt queue is dropped rather than blocking the flow.
		s.logger.Warn("Discarding unreadable notice queue", "client_id", s.clientID, "error", err)
		return nil, nil
	}
	return notices, nil
}
