// Package prompt builds the bounded message sequence sent to the
// generative model. Each prompt section carries its own token sub-budget
// so one oversized input cannot starve the others.
package prompt

import (
	"fmt"
	"strings"

	"github.com/agendia/assistant/internal/catalog"
	"github.com/agendia/assistant/internal/provider"
	"github.com/agendia/assistant/internal/retrieval"
	"github.com/agendia/assistant/internal/tokens"
)

// noDocsPlaceholder is injected when retrieval produced nothing so the
// model knows there is no documentation to lean on instead of assuming
// passages were provided.
const noDocsPlaceholder = "No se encontraron documentos relevantes para esta pregunta."

// roleInstructions is the fixed behavior contract for the model.
// Deterministic rules beat documentation; documentation beats intuition.
const roleInstructions = `Eres el asistente integrado de Agendia, una aplicación de gestión de negocios.
Responde siempre en español, de forma breve y práctica.
Sigue estas reglas por orden de prioridad:
1. Las "Reglas de la aplicación" son la fuente autoritativa sobre lo que la aplicación permite o bloquea ahora mismo; prevalecen sobre cualquier documento.
2. La documentación recuperada es la segunda fuente; cítala cuando respondas.
3. Cuando sea relevante, indica la ruta de navegación dentro de la aplicación (por ejemplo: Configuración → Horarios).
4. Si la información no está en las reglas ni en los documentos, dilo claramente; no inventes funcionalidades.
5. Nunca afirmes haber ejecutado una acción en la aplicación: tú solo orientas al usuario.`

// Budgets holds the per-section token budgets.
type Budgets struct {
	Capabilities int
	Memory       int
	Docs         int
	Question     int
}

// Assembler builds prompts under the configured budgets.
type Assembler struct {
	budgets Budgets
}

// New creates an Assembler.
func New(budgets Budgets) *Assembler {
	return &Assembler{budgets: budgets}
}

// Assemble returns the system and user messages for one request.
// capabilityText and memoryText may be empty; their sections are then
// omitted. uiPath, when non-empty, adds a one-line context statement.
func (a *Assembler) Assemble(question string, chunks []retrieval.RetrievedChunk, memoryText, capabilityText, uiPath string) []provider.Message {
	return []provider.Message{
		{Role: "system", Content: a.systemContent(memoryText, capabilityText, uiPath)},
		{Role: "user", Content: a.userContent(question, chunks)},
	}
}

func (a *Assembler) systemContent(memoryText, capabilityText, uiPath string) string {
	var sb strings.Builder
	sb.WriteString(roleInstructions)
	sb.WriteString("\n\n")
	sb.WriteString(catalog.Overview())

	if capabilityText != "" {
		sb.WriteString("\n# Reglas de la aplicación (fuente autoritativa)\n")
		sb.WriteString(tokens.Truncate(capabilityText, a.budgets.Capabilities))
		sb.WriteString("\n")
	}

	if memoryText != "" {
		sb.WriteString("\n# Conversación reciente\n")
		sb.WriteString(tokens.Truncate(memoryText, a.budgets.Memory))
		sb.WriteString("\n")
	}

	if uiPath != "" {
		fmt.Fprintf(&sb, "\nEl usuario está ahora en la pantalla %s de la aplicación.\n", uiPath)
	}

	return sb.String()
}

func (a *Assembler) userContent(question string, chunks []retrieval.RetrievedChunk) string {
	var sb strings.Builder

	sb.WriteString("# Documentación\n")
	if len(chunks) == 0 {
		sb.WriteString(noDocsPlaceholder)
		sb.WriteString("\n")
	} else {
		var docs strings.Builder
		for i, c := range chunks {
			fmt.Fprintf(&docs, "[%d] %s", i+1, c.ModuleID)
			if c.SubmoduleID != "" {
				fmt.Fprintf(&docs, " / %s", c.SubmoduleID)
			}
			if c.Section != "" {
				fmt.Fprintf(&docs, " · %s", c.Section)
			}
			docs.WriteString("\n")
			docs.WriteString(c.Content)
			docs.WriteString("\n\n")
		}
		sb.WriteString(tokens.Truncate(strings.TrimRight(docs.String(), "\n"), a.budgets.Docs))
		sb.WriteString("\n")
	}

	sb.WriteString("\n# Pregunta\n")
	sb.WriteString(tokens.Truncate(question, a.budgets.Question))

	return sb.String()
}
