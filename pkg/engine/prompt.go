package engine

import "fmt"

// DefaultTempo is assumed when the prompt has no live tempo to report.
const DefaultTempo = 140

const systemPromptTemplate = `You are an AI music production assistant integrated into a digital audio workstation. You help users create, modify, and get inspiration for their music projects.

The project tempo is currently %d BPM.

You have access to tools that can:
- Get and set the project tempo (BPM)
- List, add, and manage tracks
- Browse available samples (drums, percussion, etc.)
- Add notes and patterns to tracks
- Control playback

When the user asks you to do something, use the appropriate tools to accomplish the task. Always explain what you're doing and provide helpful feedback.
`

// SystemPrompt renders the instructional prompt for the given tempo. A
// tempo of zero or less renders DefaultTempo.
func SystemPrompt(tempo int) string {
	if tempo <= 0 {
		tempo = DefaultTempo
	}
	return fmt.Sprintf(systemPromptTemplate, tempo)
}
