// internal/browser/stealth.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autologin/internal/config"
)

// hideWebdriverScript removes the automation marker login pages probe for.
const hideWebdriverScript = `Object.defineProperty(Object.getPrototypeOf(navigator), 'webdriver', {get: () => undefined});`

// personaTasks builds the CDP actions that apply p to a new tab. It returns
// nil when p changes nothing.
func personaTasks(p config.PersonaConfig, logger *zap.Logger) chromedp.Tasks {
	var tasks chromedp.Tasks

	if p.UserAgent != "" {
		override := emulation.SetUserAgentOverride(p.UserAgent)
		if len(p.Languages) > 0 {
			override = override.WithAcceptLanguage(acceptLanguage(p.Languages))
		}
		tasks = append(tasks, override)
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if p.HideWebdriver {
		// AddScriptToEvaluateOnNewDocument returns an identifier, so it needs wrapping.
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(hideWebdriverScript).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject webdriver evasion: %w", err)
			}
			return nil
		}))
	}

	if len(tasks) > 0 {
		logger.Debug("Applying browser persona.",
			zap.Bool("user_agent", p.UserAgent != ""),
			zap.Strings("languages", p.Languages),
			zap.String("timezone", p.Timezone),
			zap.String("locale", p.Locale),
			zap.Bool("hide_webdriver", p.HideWebdriver))
	}
	return tasks
}

// acceptLanguage weights languages in order: "en-US,en;q=0.9,de;q=0.8".
func acceptLanguage(languages []string) string {
	parts := make([]string, 0, len(languages))
	for i, lang := range languages {
		if i == 0 {
			parts = append(parts, lang)
			continue
		}
		q := 10 - i
		if q < 1 {
			q = 1
		}
		parts = append(parts, fmt.Sprintf("%s;q=0.%d", lang, q))
	}
	return strings.Join(parts, ",")
}
