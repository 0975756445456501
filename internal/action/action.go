package action

import "strings"

type Action int

const (
	Chat Action = iota // 0：plain content, flooded to the mesh
	SOS                // 1：distress request, summarized before re-broadcast
	Quit               // 2：shut the receiving node down
)

const (
	SOSPrefix = "!sos"
	QuitToken = "!quit"
)

func (a Action) String() string {
	switch a {
	case SOS:
		return "sos"
	case Quit:
		return "quit"
	default:
		return "chat"
	}
}

// Classify decides what a node does with the content of a new packet.
func Classify(content string) Action {
	switch {
	case strings.HasPrefix(content, SOSPrefix):
		return SOS
	case content == QuitToken:
		return Quit
	default:
		return Chat
	}
}

// SOSText strips the command prefix and returns the distress text.
func SOSText(content string) string {
	return strings.TrimSpace(strings.TrimPrefix(content, SOSPrefix))
}
