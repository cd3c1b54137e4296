package llm

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/metrics"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

func TestHourlyLimiterCap(t *testing.T) {
	rejected := testutil.ToFloat64(metrics.RateLimited)

	l := NewHourlyLimiter()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Allow("p1", 3))
	}

	err := l.Allow("p1", 3)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.KindRateLimited))
	assert.Equal(t, rejected+1, testutil.ToFloat64(metrics.RateLimited))

	var appErr *apperrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.Message, "retry after")

	// Independent window per provider.
	assert.NoError(t, l.Allow("p2", 3))
}

func TestHourlyLimiterResetsAfterOneHour(t *testing.T) {
	l := NewHourlyLimiter()
	current := time.Now()
	l.now = func() time.Time { return current }

	require.NoError(t, l.Allow("p1", 1))
	require.Error(t, l.Allow("p1", 1))

	// Just short of an hour: still capped.
	current = current.Add(time.Hour - time.Second)
	require.Error(t, l.Allow("p1", 1))

	// One hour after the first call of the window: counter resets.
	current = current.Add(2 * time.Second)
	assert.NoError(t, l.Allow("p1", 1))
}

func TestHourlyLimiterRemaining(t *testing.T) {
	l := NewHourlyLimiter()
	assert.Equal(t, 5, l.Remaining("p1", 5))
	require.NoError(t, l.Allow("p1", 5))
	assert.Equal(t, 4, l.Remaining("p1", 5))
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		providerType models.ProviderType
		key          string
		ok           bool
	}{
		{models.ProviderTypeOpenAI, "sk-1234567890abcdefghij", true},
		{models.ProviderTypeOpenAI, "sk-short", false},
		{models.ProviderTypeOpenAI, "pk-1234567890abcdefghij", false},
		{models.ProviderTypeAnthropic, "sk-ant-1234567890abcdef", true},
		{models.ProviderTypeAnthropic, "sk-1234567890abcdefghij", false},
		{models.ProviderTypeAzureOpenAI, "0123456789abcdef", true},
		{models.ProviderTypeAzureOpenAI, "short", false},
		{models.ProviderTypeGoogle, "AIza1234567890abcdefghij", true},
		{models.ProviderTypeGoogle, "sk-1234567890abcdefghij", false},
		{models.ProviderTypeOllama, "", true},
		{models.ProviderType("mystery"), "anything", false},
	}
	for _, tt := range tests {
		err := ValidateAPIKey(tt.providerType, tt.key)
		if tt.ok {
			assert.NoError(t, err, "%s", tt.providerType)
		} else {
			assert.Error(t, err, "%s", tt.providerType)
		}
	}
}

func TestNormalizeProviderType(t *testing.T) {
	assert.Equal(t, models.ProviderTypeOllama, normalizeProviderType("ollama"))
	assert.Equal(t, models.ProviderTypeOllama, normalizeProviderType("Ollama"))
	assert.Equal(t, models.ProviderTypeAzureOpenAI, normalizeProviderType("azure"))
	assert.Equal(t, models.ProviderTypeOpenAI, normalizeProviderType("OpenAI"))
}

func TestProviderCap(t *testing.T) {
	p := &models.Provider{Type: models.ProviderTypeOpenAI}
	assert.Equal(t, 50, providerCap(p, 50))

	p.Metadata = map[string]string{"rate_limit_per_hour": "7"}
	assert.Equal(t, 7, providerCap(p, 50))

	local := &models.Provider{Type: models.ProviderTypeOllama}
	assert.Equal(t, 500, providerCap(local, 50))
}
