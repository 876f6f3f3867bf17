package research

import (
	"fmt"
	"strings"

	"github.com/sells-group/topic-research/internal/model"
)

func extractionSystem(t *model.Topic) string {
	return fmt.Sprintf(`You are a precise technology research assistant. Extract specific %s names from the articles provided.

Treat a tool as any digital product people can use directly: developer tools, SaaS and web or mobile apps, cloud services, APIs and platforms, and consumer apps when the query is about them.

Requirements:
- Only concrete product or service names, never concepts, standards or categories.
- Use the user's query to decide relevance. Resolve ambiguous names to the meaning that fits the query.
- Prefer fewer, highly relevant names over many loosely related ones.
- Exclude physical products, content sites and blogs, and companies that are not used as software.`, t.Kind())
}

func extractionUser(t *model.Topic, query, content string) string {
	return fmt.Sprintf(`User Query:
%s

Source Content:
%s

First infer the main job the user wants done. Then list the %s names from the content that directly serve that same job.
Include only real products a user can sign up for, install or call through an API. Limit the list to the most relevant items.

Return just the names, one per line. No descriptions, numbering or JSON.`, query, content, t.Kind())
}

func analysisSystem(t *model.Topic) string {
	return fmt.Sprintf(`You are analyzing %s for professional developers and teams.
Produce a single JSON object that code can parse. Use the supplied website or documentation content as the primary source of truth.
Never invent pricing or technical claims the content does not support. Prefer "Unknown", null or empty arrays over guesses.
Keep answers concise, factual and focused on how the product is used in practice.`, t.Subject())
}

func analysisUser(t *model.Topic, name, content string) string {
	return fmt.Sprintf(`Tool / Service / Platform: %s
Website or documentation content:
%s

Return a JSON object with these fields:
- pricing_model: one of "Free", "Freemium", "Paid", "Enterprise" or "Unknown".
- pricing_details: short price information, or empty when unclear.
- is_open_source: true, false, or null when unclear.
- category: short category such as "Cloud database" or "CI/CD platform".
- primary_use_case: short phrase for the main job to be done.
- target_users: array of user types.
- tech_stack: array of notable languages, frameworks or infrastructure.
- description: one sentence on what it does for its users.
- api_available: true, false, or null when unclear.
- language_support: array of supported programming or human languages.
- integration_capabilities: array of integrations.
- strengths: array of concrete advantages.
- limitations: array of concrete downsides.
- ideal_for: array of scenarios where it fits well.
- not_suited_for: array of scenarios where it fits badly.%s

Return only the JSON object. No commentary, markdown or backticks.`, name, content, extensionFields(t))
}

// extensionFields asks for the topic's extra fields under "extensions".
func extensionFields(t *model.Topic) string {
	if t == nil || len(t.Fields) == 0 {
		return ""
	}
	return "\n- extensions: object with string values for these keys when the content supports them: " +
		strings.Join(t.Fields, ", ") + "."
}
