package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var noteNames = []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

var flats = map[string]string{"DB": "C#", "EB": "D#", "GB": "F#", "AB": "G#", "BB": "A#"}

// chordIntervals are semitone offsets from the root.
var chordIntervals = map[string][]int{
	"major": {0, 4, 7},
	"minor": {0, 3, 7},
	"dim":   {0, 3, 6},
	"aug":   {0, 4, 8},
	"maj7":  {0, 4, 7, 11},
	"min7":  {0, 3, 7, 10},
	"dom7":  {0, 4, 7, 10},
	"sus2":  {0, 2, 7},
	"sus4":  {0, 5, 7},
}

type chordInput struct {
	Root    string `json:"root" jsonschema:"Root note such as C, F# or Bb"`
	Quality string `json:"quality,omitempty" jsonschema:"major, minor, dim, aug, maj7, min7, dom7, sus2 or sus4 (default major)"`
	Octave  *int   `json:"octave,omitempty" jsonschema:"Octave of the root, 4 is middle C (default 4)"`
}

type chordOutput struct {
	Notes   []string `json:"notes"`
	Pitches []int    `json:"pitches"`
}

type beatInput struct {
	BPM int `json:"bpm" jsonschema:"Tempo in beats per minute"`
}

type beatOutput struct {
	BeatMS      float64 `json:"beat_ms"`
	BarMS       float64 `json:"bar_ms"`
	SixteenthMS float64 `json:"sixteenth_ms"`
}

func newServer() *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: "cadence-theory", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "chord_notes",
		Description: "Returns the note names and MIDI pitches of a chord",
	}, chordNotes)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "beat_timing",
		Description: "Returns beat, bar (4/4) and sixteenth durations in milliseconds for a tempo",
	}, beatTiming)

	return server
}

func chordNotes(_ context.Context, _ *mcp.CallToolRequest, in chordInput) (*mcp.CallToolResult, chordOutput, error) {
	root, ok := pitchClass(in.Root)
	if !ok {
		return nil, chordOutput{}, fmt.Errorf("unknown root note %q", in.Root)
	}
	quality := strings.ToLower(in.Quality)
	if quality == "" {
		quality = "major"
	}
	intervals, ok := chordIntervals[quality]
	if !ok {
		return nil, chordOutput{}, fmt.Errorf("unknown chord quality %q", in.Quality)
	}
	octave := 4
	if in.Octave != nil {
		octave = *in.Octave
	}

	base := (octave+1)*12 + root
	var out chordOutput
	for _, iv := range intervals {
		p := base + iv
		if p < 0 || p > 127 {
			return nil, chordOutput{}, fmt.Errorf("chord leaves the MIDI range at octave %d", octave)
		}
		out.Pitches = append(out.Pitches, p)
		out.Notes = append(out.Notes, noteNames[p%12])
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("%s %s: %s (MIDI %v)", in.Root, quality, strings.Join(out.Notes, " "), out.Pitches),
		}},
	}, out, nil
}

func beatTiming(_ context.Context, _ *mcp.CallToolRequest, in beatInput) (*mcp.CallToolResult, beatOutput, error) {
	if in.BPM <= 0 {
		return nil, beatOutput{}, fmt.Errorf("bpm must be positive, got %d", in.BPM)
	}
	beat := 60000.0 / float64(in.BPM)
	out := beatOutput{BeatMS: beat, BarMS: beat * 4, SixteenthMS: beat / 4}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{
			Text: fmt.Sprintf("At %d BPM a beat lasts %.1f ms, a 4/4 bar %.1f ms, a sixteenth %.1f ms",
				in.BPM, out.BeatMS, out.BarMS, out.SixteenthMS),
		}},
	}, out, nil
}

func pitchClass(name string) (int, bool) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if sharp, ok := flats[n]; ok {
		n = sharp
	}
	for i, candidate := range noteNames {
		if candidate == n {
			return i, true
		}
	}
	return 0, false
}
