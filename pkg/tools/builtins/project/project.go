package project

import (
	"errors"
	"fmt"
	"sync"
)

// DefaultTempo is the tempo of a new project.
const DefaultTempo = 140

// Tempo bounds accepted by SetTempo.
const (
	MinTempo = 10
	MaxTempo = 999
)

// TrackKind is the type of a track.
type TrackKind string

const (
	KindInstrument TrackKind = "instrument"
	KindSample     TrackKind = "sample"
)

// Note is one MIDI note. Position and Length are in ticks (48 per beat).
type Note struct {
	Key      int `json:"key"`
	Position int `json:"position"`
	Length   int `json:"length"`
	Volume   int `json:"volume"`
}

// Clip is a run of notes placed at Position ticks on an instrument track.
type Clip struct {
	Position int    `json:"position"`
	Notes    []Note `json:"notes"`
}

// Length is the end of the last note relative to the clip start.
func (c *Clip) Length() int {
	end := 0
	for _, n := range c.Notes {
		end = max(end, n.Position+n.Length)
	}
	return end
}

// Track is one project track.
type Track struct {
	Name       string
	Kind       TrackKind
	Instrument string
	Muted      bool
	Clips      []*Clip
}

// Project is an in-memory song. It is safe for concurrent use.
type Project struct {
	mu sync.Mutex

	tempo       int
	tracks      []*Track
	playing     bool
	numerator   int
	denominator int
	fileName    string
}

// New creates an empty project at DefaultTempo in 4/4.
func New() *Project {
	return &Project{tempo: DefaultTempo, numerator: 4, denominator: 4}
}

// Tempo returns the current tempo in BPM.
func (p *Project) Tempo() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tempo
}

// SetTempo changes the tempo.
func (p *Project) SetTempo(bpm int) error {
	if bpm < MinTempo || bpm > MaxTempo {
		return fmt.Errorf("bpm must be between %d and %d, got %d", MinTempo, MaxTempo, bpm)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tempo = bpm
	return nil
}

// SetFileName records the file the project was loaded from.
func (p *Project) SetFileName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fileName = name
}

// AddTrack appends a track and returns its index. An empty name gets a
// default derived from the kind.
func (p *Project) AddTrack(kind TrackKind, name, instrument string) (int, *Track) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		switch kind {
		case KindInstrument:
			name = "Instrument track"
			if instrument != "" {
				name = instrument
			}
		default:
			name = "Sample track"
		}
	}
	t := &Track{Name: name, Kind: kind, Instrument: instrument}
	p.tracks = append(p.tracks, t)
	return len(p.tracks) - 1, t
}

// Track returns a snapshot copy of the track at index.
func (p *Project) Track(index int) (Track, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.track(index)
	if err != nil {
		return Track{}, err
	}
	return cloneTrack(t), nil
}

// Tracks returns snapshot copies of all tracks.
func (p *Project) Tracks() []Track {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Track, len(p.tracks))
	for i, t := range p.tracks {
		out[i] = cloneTrack(t)
	}
	return out
}

// RenameTrack sets a track name and returns the old one.
func (p *Project) RenameTrack(index int, name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.track(index)
	if err != nil {
		return "", err
	}
	old := t.Name
	t.Name = name
	return old, nil
}

// SetMuted mutes or unmutes a track and returns its name.
func (p *Project) SetMuted(index int, muted bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.track(index)
	if err != nil {
		return "", err
	}
	t.Muted = muted
	return t.Name, nil
}

// AddNotes places notes into the clip at clipPosition of an instrument
// track, creating the clip if needed. Notes with a key outside 0-127 are
// dropped. It returns the number of notes added and the track name.
func (p *Project) AddNotes(index, clipPosition int, notes []Note) (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.instrumentTrack(index)
	if err != nil {
		return 0, "", err
	}

	var clip *Clip
	for _, c := range t.Clips {
		if c.Position == clipPosition {
			clip = c
			break
		}
	}
	if clip == nil {
		clip = &Clip{Position: clipPosition}
		t.Clips = append(t.Clips, clip)
	}

	added := 0
	for _, n := range notes {
		if n.Key < 0 || n.Key > 127 {
			continue
		}
		clip.Notes = append(clip.Notes, n)
		added++
	}
	return added, t.Name, nil
}

// ClearNotes removes every note of an instrument track and returns how
// many were removed.
func (p *Project) ClearNotes(index int) (int, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t, err := p.instrumentTrack(index)
	if err != nil {
		return 0, "", err
	}
	cleared := 0
	for _, c := range t.Clips {
		cleared += len(c.Notes)
		c.Notes = nil
	}
	return cleared, t.Name, nil
}

// Play starts playback. It reports false when already playing.
func (p *Project) Play() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.playing {
		return false
	}
	p.playing = true
	return true
}

// Stop stops playback.
func (p *Project) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.playing = false
}

// Info is a summary of the project state.
type Info struct {
	Tempo         int           `json:"tempo"`
	IsPlaying     bool          `json:"is_playing"`
	TrackCount    int           `json:"track_count"`
	LengthBars    int           `json:"length_bars"`
	TimeSignature TimeSignature `json:"time_signature"`
	FileName      string        `json:"file_name,omitempty"`
}

// TimeSignature is numerator over denominator.
type TimeSignature struct {
	Numerator   int `json:"numerator"`
	Denominator int `json:"denominator"`
}

// Info returns a summary of the project.
func (p *Project) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()

	return Info{
		Tempo:         p.tempo,
		IsPlaying:     p.playing,
		TrackCount:    len(p.tracks),
		LengthBars:    p.lengthBars(),
		TimeSignature: TimeSignature{Numerator: p.numerator, Denominator: p.denominator},
		FileName:      p.fileName,
	}
}

// ticksPerBeat matches the note length convention of the tools (48 ticks
// is a quarter note).
const ticksPerBeat = 48

func (p *Project) lengthBars() int {
	end := 0
	for _, t := range p.tracks {
		for _, c := range t.Clips {
			end = max(end, c.Position+c.Length())
		}
	}
	perBar := ticksPerBeat * p.numerator
	return (end + perBar - 1) / perBar
}

func (p *Project) track(index int) (*Track, error) {
	if index < 0 || index >= len(p.tracks) {
		return nil, fmt.Errorf("invalid track index: %d", index)
	}
	return p.tracks[index], nil
}

func (p *Project) instrumentTrack(index int) (*Track, error) {
	t, err := p.track(index)
	if err != nil {
		return nil, err
	}
	if t.Kind != KindInstrument {
		return nil, errors.New("track is not an instrument track")
	}
	return t, nil
}

func cloneTrack(t *Track) Track {
	c := *t
	c.Clips = make([]*Clip, len(t.Clips))
	for i, clip := range t.Clips {
		cc := *clip
		cc.Notes = append([]Note(nil), clip.Notes...)
		c.Clips[i] = &cc
	}
	return c
}
