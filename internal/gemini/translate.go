package gemini

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"
)

const translateInstruction = "将下面的图像描述翻译成英文，只输出翻译结果，不要任何解释：\n\n"

// Translate converts a Chinese prompt into English through the same
// generateContent endpoint, text modality only. On failure the original
// prompt is returned so generation can still proceed.
func (c *Client) Translate(ctx context.Context, sessionKey, prompt string) string {
	contents := []Content{{
		Role:  "user",
		Parts: []Part{TextPart(translateInstruction + prompt)},
	}}

	result, err := c.generate(ctx, sessionKey, contents, nil)
	if err != nil {
		log.Warnf("Prompt translation failed, using original prompt: %v", err)
		return prompt
	}

	translated := strings.TrimSpace(result.Text)
	if translated == "" {
		return prompt
	}
	log.Debugf("Translated prompt: %q -> %q", prompt, translated)
	return translated
}
