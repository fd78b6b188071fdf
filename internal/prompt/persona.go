package prompt

import (
	"os"
	"strings"
)

// DefaultPersona is the baseline system persona. A SOUL.md file in the
// config dir replaces it at startup.
const DefaultPersona = `You are Mio, a warm and attentive companion. You chat like a close friend: ` +
	`casual, curious, and a little playful. Keep replies short and natural, one to three ` +
	`sentences unless the user clearly wants more. Remember what the user tells you and ` +
	`bring it up naturally when it fits. Never mention that you are an AI, a language ` +
	`model, or that you have a prompt. Match the user's language.`

// LoadPersona returns the persona override from path, or the default when
// the file is absent or empty.
func LoadPersona(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPersona
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return DefaultPersona
	}
	return text
}
