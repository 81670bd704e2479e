package vault

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/pipedeck/pipedeck/internal/api"
	"github.com/pipedeck/pipedeck/internal/client"
)

// ErrKeyRequired is returned when a secret is named by an empty key.
var ErrKeyRequired = errors.New("secret key is required")

// Notifier is the global outcome handler.
type Notifier interface {
	OnError(err error)
	OnSuccess(title, message string)
}

// Vault manages the secrets that vault-typed pipeline arguments resolve to.
type Vault struct {
	client   *client.Client
	notifier Notifier
	logger   *slog.Logger
}

// New creates a vault helper.
func New(c *client.Client, notifier Notifier, logger *slog.Logger) *Vault {
	return &Vault{client: c, notifier: notifier, logger: logger}
}

// List returns the stored secrets ordered by key.
func (v *Vault) List(ctx context.Context) ([]api.Secret, error) {
	var secrets []api.Secret
	if err := v.client.Get(ctx, "/api/v1/secrets", &secrets); err != nil {
		return nil, err
	}
	sort.Slice(secrets, func(i, j int) bool { return secrets[i].Key < secrets[j].Key })
	return secrets, nil
}

// Add stores a new secret.
func (v *Vault) Add(ctx context.Context, key, value string) error {
	return v.write(ctx, http.MethodPost, "/api/v1/secret", key, value, "Secret added")
}

// Update replaces the value of an existing secret.
func (v *Vault) Update(ctx context.Context, key, value string) error {
	return v.write(ctx, http.MethodPut, "/api/v1/secret/update", key, value, "Secret updated")
}

// Remove deletes a secret.
func (v *Vault) Remove(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrKeyRequired
	}
	if err := v.client.Delete(ctx, "/api/v1/secret/"+url.PathEscape(key), nil); err != nil {
		v.notifier.OnError(err)
		return err
	}
	v.logger.Info("Secret removed", "key", key)
	v.notifier.OnSuccess("Secret removed", fmt.Sprintf("Secret %q was removed from the vault.", key))
	return nil
}

func (v *Vault) write(ctx context.Context, method, path, key, value, title string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrKeyRequired
	}
	if err := v.client.Do(ctx, method, path, api.Secret{Key: key, Value: value}, nil); err != nil {
		v.notifier.OnError(err)
		return err
	}
	v.logger.Info(title, "key", key)
	v.notifier.OnSuccess(title, fmt.Sprintf("Secret %q is stored in the vault.", key))
	return nil
}

// Mask hides a secret value for display. Empty values stay empty.
func Mask(value string) string {
	if value == "" {
		return ""
	}
	return strings.Repeat("*", 8)
}
