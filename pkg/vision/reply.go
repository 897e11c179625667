package vision

import (
	"fmt"
	"strings"
)

// Fixed replies. Templated replies below fill a single slot.
const (
	ReplyGreeting     = "Hi! Tell me about the causes and communities you care about most."
	ReplyAskPillars   = "What causes are closest to your heart?"
	ReplyAskGeo       = "Which places do you want your giving to reach?"
	ReplyAskBudget    = "Roughly how much do you plan to give over the next year?"
	ReplyAskHorizon   = "What time frame are you working with?"
	ReplyBoardReady   = "Your board is up to date. Ask me to show matching opportunities whenever you're ready."
	ReplyBudgetNoTime = "Thanks. Over what time frame do you want to deploy that?"
)

// Reply is the assistant turn returned to the client.
type Reply struct {
	Reply string `json:"reply"`
}

// ComposeOptions carries context from before the latest donor turn.
type ComposeOptions struct {
	PrevVision *Vision
}

// ComposeReply picks the assistant reply for the latest donor message. The
// first kind of change wins, in order: new pillars, new places, budget,
// horizon. With no change it asks for the first missing field.
func ComposeReply(v Vision, latestMessage string, opts ComposeOptions) Reply {
	if strings.TrimSpace(latestMessage) == "" {
		return Reply{Reply: ReplyGreeting}
	}
	prev := Empty()
	if opts.PrevVision != nil {
		prev = *opts.PrevVision
	}
	change := Diff(prev, v)
	switch {
	case len(change.AddedPillars) > 0:
		if len(v.GeoFocus) == 0 {
			return Reply{Reply: fmt.Sprintf("%s stands out. Where in the world should that giving land?", joinHuman(change.AddedPillars))}
		}
		return Reply{Reply: fmt.Sprintf("Added %s to your board next to your focus on %s.", joinHuman(change.AddedPillars), joinHuman(v.GeoFocus))}
	case len(change.AddedGeo) > 0:
		if v.Budget == "" {
			return Reply{Reply: fmt.Sprintf("Got it, %s. %s", joinHuman(change.AddedGeo), ReplyAskBudget)}
		}
		return Reply{Reply: fmt.Sprintf("Got it, %s. I'll weight opportunities there.", joinHuman(change.AddedGeo))}
	case change.BudgetChanged:
		if v.Horizon == "" {
			return Reply{Reply: ReplyBudgetNoTime}
		}
		return Reply{Reply: fmt.Sprintf("Updated your giving capacity to %s.", v.Budget)}
	case change.HorizonChanged:
		return Reply{Reply: fmt.Sprintf("A %s horizon helps me pace your pipeline. Want to see matching opportunities?", v.Horizon)}
	}
	switch {
	case len(v.Pillars) == 0:
		return Reply{Reply: ReplyAskPillars}
	case len(v.GeoFocus) == 0:
		return Reply{Reply: ReplyAskGeo}
	case v.Budget == "":
		return Reply{Reply: ReplyAskBudget}
	case v.Horizon == "":
		return Reply{Reply: ReplyAskHorizon}
	default:
		return Reply{Reply: ReplyBoardReady}
	}
}
