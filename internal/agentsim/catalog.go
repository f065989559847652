package agentsim

import (
	"fmt"
	"strings"
)

// DefaultAgentID answers chat frames that do not address a specific agent.
const DefaultAgentID = "presaleskb"

// Agent is one simulated persona reachable through the socket.
type Agent struct {
	ID   string
	Name string
	Role string
}

var agents = []Agent{
	{ID: "presaleskb", Name: "Alex", Role: "Pre-Sales and Solutions Consultant"},
	{ID: "socialmediakb", Name: "Sarah", Role: "Social Media Manager"},
	{ID: "leadgenkb", Name: "James", Role: "Lead Generation Specialist"},
}

// Catalog lists every persona the simulator can answer as.
func Catalog() []Agent {
	out := make([]Agent, len(agents))
	copy(out, agents)
	return out
}

// LookupAgent resolves an agent id, falling back to the default persona for
// unknown or empty ids.
func LookupAgent(id string) Agent {
	id = strings.TrimSpace(id)
	for _, agent := range agents {
		if agent.ID == id {
			return agent
		}
	}
	return agents[0]
}

// Simulated tool names. Execution ids are formed as "<tool>-<millis>", so
// names stay free of dashes.
const (
	toolScreenshot = "screenshot"
	toolFavicon    = "favicon"
	toolSolar      = "solar"
)

// toolFor picks the scripted tool a message should trigger, empty when none
// applies.
func toolFor(message string) string {
	lowered := strings.ToLower(message)
	switch {
	case strings.Contains(lowered, "screenshot"):
		return toolScreenshot
	case strings.Contains(lowered, "favicon") || strings.Contains(lowered, "logo"):
		return toolFavicon
	case strings.Contains(lowered, "solar"):
		return toolSolar
	default:
		return ""
	}
}

// targetURL pulls the first http(s) token out of a message so tool params
// reference what the user actually asked about.
func targetURL(message string) string {
	for _, field := range strings.Fields(message) {
		if strings.HasPrefix(field, "http://") || strings.HasPrefix(field, "https://") {
			return strings.TrimRight(field, ".,;")
		}
	}
	return "https://example.com"
}

func replyText(agent Agent, tool string) string {
	switch tool {
	case toolScreenshot:
		return fmt.Sprintf("%s here. I captured a full screenshot of the site; it is ready for review.", agent.Name)
	case toolFavicon:
		return fmt.Sprintf("%s here. I pulled the site's logo and saved it alongside the profile.", agent.Name)
	case toolSolar:
		return fmt.Sprintf("%s here. The solar analysis finished; the roof can host a meaningful install, and I can walk you through the numbers.", agent.Name)
	}

	switch agent.ID {
	case "socialmediakb":
		return fmt.Sprintf("%s here. I reviewed your digital presence and have platform-specific recommendations for LinkedIn, Facebook, and Instagram.", agent.Name)
	case "leadgenkb":
		return fmt.Sprintf("%s here. I can set up a demo and make sure we have your contact details. When are you available?", agent.Name)
	default:
		return fmt.Sprintf("%s here. Happy to walk through pricing, ROI, and implementation timelines. What does your current setup look like?", agent.Name)
	}
}
