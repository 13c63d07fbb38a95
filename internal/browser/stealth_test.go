// internal/browser/stealth_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/autologin/internal/config"
)

func TestPersonaTasks(t *testing.T) {
	t.Run("Empty Persona", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		tasks := personaTasks(config.PersonaConfig{}, zap.New(core))
		assert.Empty(t, tasks)
		assert.Zero(t, logs.Len(), "nothing to apply, nothing logged")
	})

	t.Run("Hide Webdriver Only", func(t *testing.T) {
		tasks := personaTasks(config.PersonaConfig{HideWebdriver: true}, zap.NewNop())
		assert.Len(t, tasks, 1)
	})

	t.Run("Full Persona", func(t *testing.T) {
		core, logs := observer.New(zap.DebugLevel)
		p := config.PersonaConfig{
			UserAgent:     "Mozilla/5.0 (X11; Linux x86_64)",
			Languages:     []string{"en-US", "en"},
			Timezone:      "America/Los_Angeles",
			Locale:        "en-US",
			HideWebdriver: true,
		}
		tasks := personaTasks(p, zap.New(core))
		assert.Len(t, tasks, 4)

		require.Equal(t, 1, logs.Len())
		entry := logs.All()[0]
		assert.Equal(t, "Applying browser persona.", entry.Message)
		assert.Equal(t, true, entry.ContextMap()["user_agent"], "only the presence of a user agent is logged")
	})

	t.Run("Languages Without User Agent", func(t *testing.T) {
		tasks := personaTasks(config.PersonaConfig{Languages: []string{"de-DE"}}, zap.NewNop())
		assert.Empty(t, tasks)
	})
}

func TestAcceptLanguage(t *testing.T) {
	assert.Equal(t, "en-US", acceptLanguage([]string{"en-US"}))
	assert.Equal(t, "en-US,en;q=0.9,de;q=0.8", acceptLanguage([]string{"en-US", "en", "de"}))

	many := make([]string, 12)
	for i := range many {
		many[i] = "x"
	}
	assert.Contains(t, acceptLanguage(many), "x;q=0.1,x;q=0.1")
}
