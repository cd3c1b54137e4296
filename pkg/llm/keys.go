package llm

import (
	"strings"

	"github.com/mratomo/backend-aiss-sub000/pkg/apperrors"
	"github.com/mratomo/backend-aiss-sub000/pkg/models"
)

// ValidateAPIKey checks the shape of a provider API key at registration
// time: type-specific prefix and minimum length. The key itself never
// appears in the returned error.
func ValidateAPIKey(providerType models.ProviderType, key string) error {
	switch providerType {
	case models.ProviderTypeOpenAI:
		if !strings.HasPrefix(key, "sk-") || len(key) < 20 {
			return apperrors.Validation("openai api key must start with sk- and be at least 20 characters")
		}
	case models.ProviderTypeAnthropic:
		if !strings.HasPrefix(key, "sk-ant-") || len(key) < 20 {
			return apperrors.Validation("anthropic api key must start with sk-ant- and be at least 20 characters")
		}
	case models.ProviderTypeAzureOpenAI:
		if len(key) < 16 {
			return apperrors.Validation("azure openai api key must be at least 16 characters")
		}
	case models.ProviderTypeGoogle:
		if !strings.HasPrefix(key, "AIza") || len(key) < 20 {
			return apperrors.Validation("google api key must start with AIza and be at least 20 characters")
		}
	case models.ProviderTypeOllama:
		// Local runtime, no key required.
	default:
		return apperrors.Unsupported("provider type " + string(providerType))
	}
	return nil
}
