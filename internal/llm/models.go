package llm

// DefaultContextWindow applies to models missing from the table.
const DefaultContextWindow = 4096

var contextWindows = map[string]int{
	"mixtral-8x7b-32768":      32768,
	"llama3-70b-8192":         8192,
	"llama3-8b-8192":          8192,
	"llama2-70b-4096":         4096,
	"gemma-7b-it":             8192,
	"gemma2-9b-it":            8192,
	"llama-3.1-8b-instant":    131072,
	"llama-3.3-70b-versatile": 131072,
}

// ContextWindow returns the total token window for model.
func ContextWindow(model string) int {
	if n, ok := contextWindows[model]; ok {
		return n
	}
	return DefaultContextWindow
}
