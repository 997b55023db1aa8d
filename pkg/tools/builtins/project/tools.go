package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/rhuss/cadence/pkg/tools/registry"
)

// ProviderName is the registry provider name of the catalog.
const ProviderName = "project"

type emptyInput struct{}

type setTempoInput struct {
	BPM *int `json:"bpm" jsonschema:"required,minimum=10,maximum=999,description=The tempo in beats per minute (10-999)"`
}

type addInstrumentTrackInput struct {
	Name       string `json:"name,omitempty" jsonschema:"description=Name for the new track (optional)"`
	Instrument string `json:"instrument,omitempty" jsonschema:"description=Instrument plugin to load such as tripleoscillator or sf2player (optional)"`
}

type addSampleTrackInput struct {
	Name string `json:"name,omitempty" jsonschema:"description=Name for the new track (optional)"`
}

type setTrackNameInput struct {
	TrackIndex *int    `json:"track_index" jsonschema:"required,description=Index of the track (0-based)"`
	Name       *string `json:"name" jsonschema:"required,description=New name for the track"`
}

type setTrackMutedInput struct {
	TrackIndex *int  `json:"track_index" jsonschema:"required,description=Index of the track (0-based)"`
	Muted      *bool `json:"muted" jsonschema:"required,description=True to mute and false to unmute"`
}

type listSamplesInput struct {
	Category string `json:"category,omitempty" jsonschema:"description=Category to filter by such as drums or bass"`
	Search   string `json:"search,omitempty" jsonschema:"description=Search term to filter sample names"`
	Limit    int    `json:"limit,omitempty" jsonschema:"description=Maximum number of samples to return (default 20)"`
}

type noteInput struct {
	Key      *int `json:"key" jsonschema:"required,minimum=0,maximum=127,description=MIDI key number where 60 is middle C"`
	Position *int `json:"position" jsonschema:"required,description=Position in ticks from the clip start (48 ticks per beat)"`
	Length   *int `json:"length" jsonschema:"required,description=Note length in ticks (48 is a quarter note)"`
	Volume   *int `json:"volume,omitempty" jsonschema:"minimum=0,maximum=100,description=Note volume 0-100 (default 100)"`
}

type addNotesInput struct {
	TrackIndex   *int        `json:"track_index" jsonschema:"required,description=Index of the instrument track (0-based)"`
	Notes        []noteInput `json:"notes" jsonschema:"required,description=Notes to add"`
	ClipPosition int         `json:"clip_position,omitempty" jsonschema:"description=Position of the clip in ticks (default 0)"`
}

type trackIndexInput struct {
	TrackIndex *int `json:"track_index" jsonschema:"required,description=Index of the track (0-based)"`
}

// Tools builds the catalog over a project and a sample library. A nil
// library behaves as an empty one.
func Tools(p *Project, lib *Library) *registry.Functions {
	if lib == nil {
		lib = NewLibrary()
	}
	c := &catalog{project: p, library: lib}

	return registry.NewFunctions(ProviderName,
		registry.Define("get_tempo", "Get the current project tempo in BPM", c.getTempo),
		registry.Define("set_tempo", "Set the project tempo in BPM", c.setTempo),
		registry.Define("list_tracks", "List all tracks in the current project with their type, name, and status", c.listTracks),
		registry.Define("add_instrument_track", "Add a new instrument track to the project", c.addInstrumentTrack),
		registry.Define("add_sample_track", "Add a new sample track to the project", c.addSampleTrack),
		registry.Define("set_track_name", "Set the name of a track", c.setTrackName),
		registry.Define("set_track_muted", "Mute or unmute a track", c.setTrackMuted),
		registry.Define("list_samples", "List available audio samples, optionally filtered by category and search term", c.listSamples),
		registry.Define("get_sample_categories", "List the sample categories in the library", c.getSampleCategories),
		registry.Define("add_notes_to_track", "Add MIDI notes to an instrument track", c.addNotes),
		registry.Define("get_track_notes", "Get all notes of an instrument track grouped by clip", c.getTrackNotes),
		registry.Define("clear_track_notes", "Remove all notes from an instrument track", c.clearTrackNotes),
		registry.Define("get_project_info", "Get project information: tempo, time signature, track count, length, and playback state", c.getProjectInfo),
		registry.Define("play_project", "Start project playback", c.play),
		registry.Define("stop_project", "Stop project playback", c.stop),
	)
}

type catalog struct {
	project *Project
	library *Library
}

func respond(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode tool output: %w", err)
	}
	return string(data), nil
}

func missing(params ...string) error {
	if len(params) == 1 {
		return fmt.Errorf("missing required parameter: %s", params[0])
	}
	return fmt.Errorf("missing required parameters: %s", strings.Join(params, ", "))
}

func (c *catalog) getTempo(context.Context, emptyInput) (string, error) {
	return respond(map[string]any{"bpm": c.project.Tempo()})
}

func (c *catalog) setTempo(_ context.Context, in setTempoInput) (string, error) {
	if in.BPM == nil {
		return "", missing("bpm")
	}
	if err := c.project.SetTempo(*in.BPM); err != nil {
		return "", err
	}
	return respond(map[string]any{
		"success": true,
		"bpm":     *in.BPM,
		"message": fmt.Sprintf("Tempo set to %d BPM", *in.BPM),
	})
}

type trackSummary struct {
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	Type       TrackKind `json:"type"`
	Muted      bool      `json:"muted"`
	Instrument string    `json:"instrument,omitempty"`
}

func (c *catalog) listTracks(context.Context, emptyInput) (string, error) {
	summaries := lo.Map(c.project.Tracks(), func(t Track, i int) trackSummary {
		return trackSummary{Index: i, Name: t.Name, Type: t.Kind, Muted: t.Muted, Instrument: t.Instrument}
	})
	return respond(map[string]any{"tracks": summaries, "count": len(summaries)})
}

func (c *catalog) addInstrumentTrack(_ context.Context, in addInstrumentTrackInput) (string, error) {
	idx, t := c.project.AddTrack(KindInstrument, in.Name, in.Instrument)
	return respond(map[string]any{
		"success":     true,
		"track_index": idx,
		"name":        t.Name,
		"message":     "Created instrument track: " + t.Name,
	})
}

func (c *catalog) addSampleTrack(_ context.Context, in addSampleTrackInput) (string, error) {
	idx, t := c.project.AddTrack(KindSample, in.Name, "")
	return respond(map[string]any{
		"success":     true,
		"track_index": idx,
		"name":        t.Name,
		"message":     "Created sample track: " + t.Name,
	})
}

func (c *catalog) setTrackName(_ context.Context, in setTrackNameInput) (string, error) {
	if in.TrackIndex == nil || in.Name == nil {
		return "", missing("track_index", "name")
	}
	old, err := c.project.RenameTrack(*in.TrackIndex, *in.Name)
	if err != nil {
		return "", err
	}
	return respond(map[string]any{
		"success":  true,
		"old_name": old,
		"new_name": *in.Name,
		"message":  fmt.Sprintf("Renamed track from '%s' to '%s'", old, *in.Name),
	})
}

func (c *catalog) setTrackMuted(_ context.Context, in setTrackMutedInput) (string, error) {
	if in.TrackIndex == nil || in.Muted == nil {
		return "", missing("track_index", "muted")
	}
	name, err := c.project.SetMuted(*in.TrackIndex, *in.Muted)
	if err != nil {
		return "", err
	}
	state := "unmuted"
	if *in.Muted {
		state = "muted"
	}
	return respond(map[string]any{
		"success":     true,
		"track_index": *in.TrackIndex,
		"muted":       *in.Muted,
		"message":     fmt.Sprintf("Track '%s' is now %s", name, state),
	})
}

func (c *catalog) listSamples(_ context.Context, in listSamplesInput) (string, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	samples, limited := c.library.Find(in.Category, in.Search, limit)

	out := map[string]any{"samples": samples, "count": len(samples)}
	if samples == nil {
		out["samples"] = []Sample{}
	}
	if limited {
		out["note"] = fmt.Sprintf("Results limited to %d. Use filters to narrow down.", limit)
	}
	return respond(out)
}

func (c *catalog) getSampleCategories(context.Context, emptyInput) (string, error) {
	cats := c.library.Categories()
	return respond(map[string]any{"categories": cats, "count": len(cats)})
}

func (c *catalog) addNotes(_ context.Context, in addNotesInput) (string, error) {
	if in.TrackIndex == nil || in.Notes == nil {
		return "", missing("track_index", "notes")
	}

	notes := make([]Note, 0, len(in.Notes))
	for i, n := range in.Notes {
		if n.Key == nil || n.Position == nil || n.Length == nil {
			return "", fmt.Errorf("note %d: %w", i, missing("key", "position", "length"))
		}
		vol := 100
		if n.Volume != nil {
			vol = *n.Volume
		}
		notes = append(notes, Note{Key: *n.Key, Position: *n.Position, Length: *n.Length, Volume: vol})
	}

	added, name, err := c.project.AddNotes(*in.TrackIndex, in.ClipPosition, notes)
	if err != nil {
		return "", err
	}
	return respond(map[string]any{
		"success":     true,
		"notes_added": added,
		"track":       name,
		"message":     fmt.Sprintf("Added %d notes to track '%s'", added, name),
	})
}

type clipSummary struct {
	Position  int    `json:"position"`
	Length    int    `json:"length"`
	Notes     []Note `json:"notes"`
	NoteCount int    `json:"note_count"`
}

func (c *catalog) getTrackNotes(_ context.Context, in trackIndexInput) (string, error) {
	if in.TrackIndex == nil {
		return "", missing("track_index")
	}
	t, err := c.project.Track(*in.TrackIndex)
	if err != nil {
		return "", err
	}
	if t.Kind != KindInstrument {
		return "", errors.New("track is not an instrument track")
	}

	clips := lo.Map(t.Clips, func(cl *Clip, _ int) clipSummary {
		notes := cl.Notes
		if notes == nil {
			notes = []Note{}
		}
		return clipSummary{Position: cl.Position, Length: cl.Length(), Notes: notes, NoteCount: len(notes)}
	})
	return respond(map[string]any{"track": t.Name, "clips": clips, "clip_count": len(clips)})
}

func (c *catalog) clearTrackNotes(_ context.Context, in trackIndexInput) (string, error) {
	if in.TrackIndex == nil {
		return "", missing("track_index")
	}
	cleared, name, err := c.project.ClearNotes(*in.TrackIndex)
	if err != nil {
		return "", err
	}
	return respond(map[string]any{
		"success":       true,
		"notes_cleared": cleared,
		"track":         name,
		"message":       fmt.Sprintf("Cleared %d notes from track '%s'", cleared, name),
	})
}

func (c *catalog) getProjectInfo(context.Context, emptyInput) (string, error) {
	return respond(c.project.Info())
}

func (c *catalog) play(context.Context, emptyInput) (string, error) {
	if !c.project.Play() {
		return respond(map[string]any{"status": "already_playing", "message": "Project is already playing"})
	}
	return respond(map[string]any{"status": "playing", "message": "Project playback started"})
}

func (c *catalog) stop(context.Context, emptyInput) (string, error) {
	c.project.Stop()
	return respond(map[string]any{"status": "stopped", "message": "Project playback stopped"})
}
