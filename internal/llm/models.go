package llm

const (
	ProviderAnthropic = "anthropic"
	ProviderTogether  = "together"
	ProviderGemini    = "gemini"
)

// Model is a selectable model.
type Model struct {
	ID       string
	Label    string
	Provider string
}

var models = []Model{
	{ID: "claude-sonnet-4-20250514", Label: "Claude Sonnet 4", Provider: ProviderAnthropic},
	{ID: "claude-haiku-4-5", Label: "Claude Haiku 4.5", Provider: ProviderAnthropic},
	{ID: "deepseek-ai/DeepSeek-V3", Label: "DeepSeek V3", Provider: ProviderTogether},
	{ID: "Qwen/Qwen2.5-Coder-32B-Instruct", Label: "Qwen 2.5 Coder 32B", Provider: ProviderTogether},
	{ID: "meta-llama/Llama-4-Maverick-17B-128E-Instruct-FP8", Label: "Llama 4 Maverick", Provider: ProviderTogether},
	{ID: "meta-llama/Llama-3.3-70B-Instruct-Turbo", Label: "Llama 3.3 70B", Provider: ProviderTogether},
	{ID: "meta-llama/Meta-Llama-3.1-405B-Instruct-Turbo", Label: "Llama 3.1 405B", Provider: ProviderTogether},
	{ID: "gemini-2.5-flash", Label: "Gemini 2.5 Flash", Provider: ProviderGemini},
	{ID: "gemini-2.5-pro", Label: "Gemini 2.5 Pro", Provider: ProviderGemini},
}

// Models returns the model catalogue.
func Models() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// ModelsFor returns the models served by provider.
func ModelsFor(provider string) []Model {
	var out []Model
	for _, m := range models {
		if m.Provider == provider {
			out = append(out, m)
		}
	}
	return out
}

// ModelByID looks a model up by its identifier.
func ModelByID(id string) (Model, bool) {
	for _, m := range models {
		if m.ID == id {
			return m, true
		}
	}
	return Model{}, false
}

// DefaultModel is the first catalogue entry for provider.
func DefaultModel(provider string) string {
	if provider == "" {
		provider = ProviderAnthropic
	}
	for _, m := range models {
		if m.Provider == provider {
			return m.ID
		}
	}
	return ""
}

// Label returns a display name for id, falling back to id itself.
func Label(id string) string {
	if m, ok := ModelByID(id); ok {
		return m.Label
	}
	return id
}
