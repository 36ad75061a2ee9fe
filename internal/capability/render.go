package capability

import (
	"fmt"
	"sort"
	"strings"
)

// Render emits the capability text for the requested modules in a fixed,
// parseable layout: a header line per entity followed by bullet lines per
// action. Module ids without an entry in the table are skipped. An empty
// input or no matches renders to the empty string.
//
// Entities and actions are emitted in sorted order so output is stable for
// a given table.
func Render(moduleIDs []string) string {
	var sb strings.Builder

	for _, id := range moduleIDs {
		caps, ok := Map[id]
		if !ok {
			continue
		}

		entityNames := make([]string, 0, len(caps.Entities))
		for name := range caps.Entities {
			entityNames = append(entityNames, name)
		}
		sort.Strings(entityNames)

		for _, name := range entityNames {
			entity := caps.Entities[name]
			fmt.Fprintf(&sb, "## %s · %s\n", id, name)

			if len(entity.States) > 0 {
				fmt.Fprintf(&sb, "Estados: %s\n", strings.Join(entity.States, ", "))
			}
			if entity.Transitions != "" {
				fmt.Fprintf(&sb, "Transiciones: %s\n", entity.Transitions)
			}

			actionNames := make([]string, 0, len(entity.Actions))
			for action := range entity.Actions {
				actionNames = append(actionNames, action)
			}
			sort.Strings(actionNames)

			for _, action := range actionNames {
				rule := entity.Actions[action]
				fmt.Fprintf(&sb, "- %s:", action)
				if rule.AllowedIf != "" {
					fmt.Fprintf(&sb, " permitido si %s.", rule.AllowedIf)
				}
				if rule.BlockedIf != "" {
					fmt.Fprintf(&sb, " Bloqueado si %s.", rule.BlockedIf)
				}
				if rule.Resolution != "" {
					fmt.Fprintf(&sb, " Solución: %s.", rule.Resolution)
				}
				if rule.Notes != "" {
					fmt.Fprintf(&sb, " Nota: %s.", rule.Notes)
				}
				sb.WriteString("\n")
			}
			sb.WriteString("\n")
		}
	}

	return strings.TrimRight(sb.String(), "\n")
}
