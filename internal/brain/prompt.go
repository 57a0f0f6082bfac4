package brain

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/llm"
	"github.com/nerrazzuri/ai-engagement-desktop-client-sub000/internal/policy"
)

// PromptVersion names the template set used to build provider requests.
const PromptVersion = "prompt_v1"

//go:embed prompts/*.tmpl
var promptFS embed.FS

var promptTemplates = template.Must(
	template.New(PromptVersion).
		Funcs(template.FuncMap{"add": func(a, b int) int { return a + b }}).
		ParseFS(promptFS, "prompts/"+PromptVersion+".tmpl"),
)

// promptData is the template input.
type promptData struct {
	Brand        string
	Tone         string
	Voice        string
	Role         policy.Role
	Owned        bool
	MaxLength    int
	Regeneration int
	Platform     string
	Intent       string
	Author       string
	Text         string
	History      []string
	Snippets     []Snippet
}

var voices = map[policy.Role]string{
	policy.RoleOwner:               "the creator and brand owner replying on their own content",
	policy.RoleNeutralHelper:       "a knowledgeable, neutral community member",
	policy.RoleAlternativeProvider: "a brand offering an alternative, clearly identified as such",
}

func renderPrompt(d promptData) ([]llm.Message, error) {
	if d.Voice == "" {
		d.Voice = voices[d.Role]
	}
	var sys, user bytes.Buffer
	if err := promptTemplates.ExecuteTemplate(&sys, "system", d); err != nil {
		return nil, fmt.Errorf("rendering system prompt: %w", err)
	}
	if err := promptTemplates.ExecuteTemplate(&user, "user", d); err != nil {
		return nil, fmt.Errorf("rendering user prompt: %w", err)
	}
	return []llm.Message{
		{Role: "system", Content: sys.String()},
		{Role: "user", Content: user.String()},
	}, nil
}
