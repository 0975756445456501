package ui

import (
	"meshnode/internal/action"
	"meshnode/internal/dataType"
)

// Mesh is the part of a node the presentation layer drives.
type Mesh interface {
	Submit(content string) dataType.MessagePacket
	ConnectionCount() int
}

// submitInput applies the local input rules shared by every front end.
// It reports whether the app should exit.
func submitInput(mesh Mesh, logLine func(string), input string) bool {
	switch {
	case input == "":
		return false
	case input == action.QuitToken:
		mesh.Submit(input)
		return true
	default:
		logLine("[SENT]: " + input)
		mesh.Submit(input)
		return false
	}
}
