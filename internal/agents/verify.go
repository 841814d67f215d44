package agents

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"voicecall-platform/internal/batchcall"
	"voicecall-platform/internal/elevenlabs"
)

const (
	recommendOK     = "El agente usa sintaxis correcta. Debería funcionar bien."
	recommendUpdate = "El agente usa sintaxis incorrecta. Necesita actualización o crear uno nuevo."
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// Fetcher is the slice of the vendor client the verifier needs.
type Fetcher interface {
	GetAgent(ctx context.Context, agentID string) (elevenlabs.Agent, error)
}

// Report describes whether an agent's script will receive our dynamic variables.
type Report struct {
	AgentID      string `json:"agent_id"`
	AgentName    string `json:"agent_name,omitempty"`
	FirstMessage string `json:"first_message"`
	SystemPrompt string `json:"system_prompt"`

	Analysis Analysis `json:"analisis"`

	Config map[string]any `json:"configuracion_completa,omitempty"`
}

type Analysis struct {
	// CorrectSyntax means the first message uses {{variable}} placeholders.
	CorrectSyntax bool `json:"usa_sintaxis_correcta"`
	// IncorrectSyntax means single-brace {variable} placeholders only.
	IncorrectSyntax bool   `json:"usa_sintaxis_incorrecta"`
	NeedsUpdate     bool   `json:"necesita_actualizacion"`
	Recommendation  string `json:"recomendacion"`

	// Referenced lists every {{name}} in the first message and system prompt.
	Referenced []string `json:"variables_referenciadas"`
	// Unsupported are referenced names we never send. Vendor system__ variables are excluded.
	Unsupported []string `json:"variables_no_soportadas"`
	// Unused are allow-listed names the agent never references.
	Unused []string `json:"variables_sin_uso"`
}

// Analyze inspects the agent's text for placeholder syntax.
func Analyze(firstMessage, systemPrompt string) Analysis {
	a := Analysis{
		CorrectSyntax: strings.Contains(firstMessage, "{{") && strings.Contains(firstMessage, "}}"),
		IncorrectSyntax: strings.Contains(firstMessage, "{") && strings.Contains(firstMessage, "}") &&
			!strings.Contains(firstMessage, "{{"),
	}
	a.NeedsUpdate = a.IncorrectSyntax
	a.Recommendation = recommendOK
	if a.NeedsUpdate {
		a.Recommendation = recommendUpdate
	}

	seen := map[string]bool{}
	for _, text := range []string{firstMessage, systemPrompt} {
		for _, m := range placeholderPattern.FindAllStringSubmatch(text, -1) {
			seen[m[1]] = true
		}
	}
	allowed := map[string]bool{}
	for _, name := range batchcall.AllowedVariables {
		allowed[name] = true
		if !seen[name] {
			a.Unused = append(a.Unused, name)
		}
	}
	for name := range seen {
		a.Referenced = append(a.Referenced, name)
		if !allowed[name] && !strings.HasPrefix(name, "system__") {
			a.Unsupported = append(a.Unsupported, name)
		}
	}
	sort.Strings(a.Referenced)
	sort.Strings(a.Unsupported)
	return a
}

// Verifier fetches agents and analyzes them.
type Verifier struct {
	fetcher      Fetcher
	defaultAgent string
}

func NewVerifier(f Fetcher, defaultAgentID string) *Verifier {
	return &Verifier{fetcher: f, defaultAgent: defaultAgentID}
}

// Verify analyzes agentID, or the default agent when agentID is empty.
func (v *Verifier) Verify(ctx context.Context, agentID string) (Report, error) {
	if agentID == "" {
		agentID = v.defaultAgent
	}
	if agentID == "" {
		return Report{}, errors.New("agents: no agent id")
	}
	agent, err := v.fetcher.GetAgent(ctx, agentID)
	if err != nil {
		return Report{}, err
	}
	first := agent.FirstMessage()
	prompt := agent.SystemPrompt()
	return Report{
		AgentID:      agentID,
		AgentName:    agent.Name(),
		FirstMessage: first,
		SystemPrompt: prompt,
		Analysis:     Analyze(first, prompt),
		Config:       agent.Raw,
	}, nil
}
