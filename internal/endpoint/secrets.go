package endpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// secretsManagerAPI is the subset of *secretsmanager.Client SecretsToken
// needs, narrowed for testability.
type secretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsToken is a TokenSource backed by a named AWS Secrets Manager
// secret, refreshed no more often than refreshEvery. It is an alternate to
// a plain-environment-variable bearer token (see §2.2): useful when the
// control plane rotates credentials out from under a long-running
// scheduler process.
type SecretsToken struct {
	client       secretsManagerAPI
	secretID     string
	refreshEvery time.Duration

	mu       sync.Mutex
	cached   string
	fetchedAt time.Time
}

// NewSecretsToken returns a SecretsToken reading secretID, caching the
// value for refreshEvery between calls.
func NewSecretsToken(client *secretsmanager.Client, secretID string, refreshEvery time.Duration) *SecretsToken {
	return &SecretsToken{client: client, secretID: secretID, refreshEvery: refreshEvery}
}

// Token returns the cached secret value, refreshing it if stale.
func (s *SecretsToken) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && time.Since(s.fetchedAt) < s.refreshEvery {
		return s.cached, nil
	}

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &s.secretID,
	})
	if err != nil {
		return "", fmt.Errorf("fetch secret %s: %w", s.secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", s.secretID)
	}

	s.cached = *out.SecretString
	s.fetchedAt = time.Now()
	return s.cached, nil
}
