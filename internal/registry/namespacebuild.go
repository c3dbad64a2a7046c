// namespacebuild.go — builds a NamespaceTable from environment templates,
// one per AgentType: "AGENT_ENDPOINT_<TYPE>" holding a URL template with a
// literal "{id}" placeholder substituted with the agent id at resolve time.
package registry

import (
	"strings"

	"github.com/agentmesh/registry/pkg/util"
)

// BuildNamespaceTableFromEnv reads "AGENT_ENDPOINT_<TYPE>" for every known
// AgentType (type name upper-cased). A type whose variable is unset or empty
// has no resolver and the dispatcher will treat its deliveries as
// namespace_missing.
func BuildNamespaceTableFromEnv() NamespaceTable {
	table := make(NamespaceTable)
	for agentType := range validAgentTypes {
		envName := "AGENT_ENDPOINT_" + strings.ToUpper(string(agentType))
		template := util.EnvStr(envName, "")
		if template == "" {
			continue
		}
		table[agentType] = func(agentID string) (string, bool) {
			return strings.ReplaceAll(template, "{id}", agentID), true
		}
	}
	return table
}
