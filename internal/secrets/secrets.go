// Package secrets loads the exchange API credentials, optionally from
// HashiCorp Vault, falling back to plain environment variables. This
// mirrors the teacher's internal/vault client but is trimmed from a
// per-user KV store down to the single static credential pair this
// process needs.
package secrets

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"

	"github.com/nirre55/futures-trading-bot/internal/logging"
)

// Credentials holds the exchange API key pair.
type Credentials struct {
	APIKey    string
	SecretKey string
}

// VaultConfig configures the optional Vault-backed credential source.
type VaultConfig struct {
	Enabled bool
	Address string
	Token   string
	Path    string // e.g. "secret/data/futures-bot/credentials"
}

// Client resolves credentials from Vault when configured, and from
// environment values supplied as a fallback otherwise.
type Client struct {
	cfg    VaultConfig
	vault  *vaultapi.Client
	logger *logging.Logger
}

// NewClient constructs a Client. When cfg.Enabled is false, Load always
// returns the fallback without contacting Vault.
func NewClient(cfg VaultConfig) (*Client, error) {
	c := &Client{cfg: cfg, logger: logging.WithComponent("secrets")}
	if !cfg.Enabled {
		return c, nil
	}

	vc := vaultapi.DefaultConfig()
	vc.Address = cfg.Address
	client, err := vaultapi.NewClient(vc)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.vault = client
	return c, nil
}

// Load resolves credentials: from Vault if enabled and reachable,
// otherwise from the supplied fallback (normally read from the
// environment by config.Load).
func (c *Client) Load(ctx context.Context, fallback Credentials) (Credentials, error) {
	if !c.cfg.Enabled {
		return fallback, nil
	}

	secret, err := c.vault.Logical().ReadWithContext(ctx, c.cfg.Path)
	if err != nil {
		c.logger.WithError(err).Warn("vault read failed, falling back to environment credentials")
		return fallback, nil
	}
	if secret == nil || secret.Data == nil {
		c.logger.Warn("vault secret not found, falling back to environment credentials")
		return fallback, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return fallback, nil
	}

	apiKey, _ := data["api_key"].(string)
	secretKey, _ := data["secret_key"].(string)
	if apiKey == "" || secretKey == "" {
		return fallback, nil
	}

	return Credentials{APIKey: apiKey, SecretKey: secretKey}, nil
}
