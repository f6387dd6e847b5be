package stripe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/facetcraft/nyp-backend/pkg/config"
)

func TestNewClientValidatesKeysAgainstEnv(t *testing.T) {
	client, err := NewClient(context.Background(), config.StripeConfig{
		APIKey: "sk_test_123",
		Secret: "whsec_abc",
		Env:    "TEST",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "whsec_abc", client.SigningSecret())
	assert.Equal(t, "usd", client.currency)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec", Env: "test"}, nil)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Env: "test"}, nil)
	assert.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec", Env: "staging"}, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)
}

func TestNilClientAccessors(t *testing.T) {
	var c *Client
	assert.Nil(t, c.API())
	assert.Empty(t, c.Environment())
	assert.Empty(t, c.SigningSecret())
}
