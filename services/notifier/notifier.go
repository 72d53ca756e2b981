package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/forge-ai/testgen/shared/events"
	"github.com/rs/zerolog/log"
)

const telegramAPI = "https://api.telegram.org/bot"

type notifier struct {
	apiBase   string
	tgToken   string
	tgChat    string
	publicURL string
	http      *http.Client
}

// handle turns one generation event into a Telegram message. Requests are
// ignored; only outcomes are worth a notification.
func (n *notifier) handle(ctx context.Context, key string, body []byte) error {
	var msg string
	switch key {
	case events.GenerationComplete:
		p, err := events.Unwrap[events.GenerationCompletePayload](body)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		log.Info().
			Str("request", p.RequestID).
			Str("service", p.Service).
			Int("endpoints", p.EndpointsCount).
			Msg("sending completion notification")
		msg = n.completeMessage(p)
	case events.GenerationFailed:
		p, err := events.Unwrap[events.GenerationFailedPayload](body)
		if err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		log.Info().
			Str("request", p.RequestID).
			Str("service", p.Service).
			Str("kind", p.Kind).
			Msg("sending failure notification")
		msg = failedMessage(p)
	default:
		log.Debug().Str("key", key).Msg("ignored")
		return nil
	}

	if n.tgToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, skipping notification")
		return nil
	}
	return n.sendMessage(ctx, msg)
}

func (n *notifier) completeMessage(p *events.GenerationCompletePayload) string {
	var b strings.Builder
	subject := p.Title
	if subject == "" {
		subject = "pasted code"
	}
	fmt.Fprintf(&b, "✅ *%s* tests generated by %s\n", escape(subject), escape(p.Service))
	fmt.Fprintf(&b, "Endpoints: %d\n", p.EndpointsCount)
	fmt.Fprintf(&b, "Output: %d chars in %.1fs\n", p.OutputChars, float64(p.DurationMs)/1000)
	fmt.Fprintf(&b, "Model: %s\n", code(p.Model))
	if p.Filename != "" && n.publicURL != "" {
		fmt.Fprintf(&b, "Download: %s/download/%s\n", escape(strings.TrimRight(n.publicURL, "/")), escape(p.Filename))
	}
	b.WriteString(code("request: " + p.RequestID))
	return b.String()
}

func failedMessage(p *events.GenerationFailedPayload) string {
	return fmt.Sprintf(
		"❌ Generation failed in %s (%s)\n"+
			"%s\n"+
			"%s",
		escape(p.Service), escape(p.Kind), escape(p.Error), code("request: "+p.RequestID),
	)
}

var markdownEscaper = strings.NewReplacer("_", `\_`, "*", `\*`, "`", "'", "[", `\[`)

// escape neutralises legacy Markdown markers in free text.
func escape(s string) string { return markdownEscaper.Replace(s) }

// code wraps s in a code span. Backslash escapes do not apply inside one, so
// backticks are replaced.
func code(s string) string { return "`" + strings.ReplaceAll(s, "`", "'") + "`" }

func (n *notifier) sendMessage(ctx context.Context, text string) error {
	body, _ := json.Marshal(map[string]string{
		"chat_id":    n.tgChat,
		"text":       text,
		"parse_mode": "Markdown",
	})
	req, err := http.NewRequestWithContext(ctx, "POST",
		n.apiBase+n.tgToken+"/sendMessage",
		bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := n.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("telegram %d: %s", resp.StatusCode, b)
	}
	return nil
}
