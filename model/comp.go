package model

// AudioBuffer holds decoded mono samples. A buffer is exclusively
// owned by its Take; export paths read it and never write.
type AudioBuffer struct {
	SampleRate int
	Samples    []float64
}

// NewAudioBuffer returns a zero-filled buffer covering the given
// duration in seconds.
func NewAudioBuffer(sampleRate int, seconds float64) *AudioBuffer {
	n := int(seconds * float64(sampleRate))
	if n < 0 {
		n = 0
	}
	return &AudioBuffer{SampleRate: sampleRate, Samples: make([]float64, n)}
}

// Duration returns the buffer length in seconds.
func (b *AudioBuffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// Take is one recorded or generated performance candidate for a track.
// It carries either a decoded buffer or a fetchable source reference.
type Take struct {
	ID         string       `json:"id"`
	TrackID    string       `json:"trackId"`
	Name       string       `json:"name"`
	Buffer     *AudioBuffer `json:"-"`
	SourceURL  string       `json:"sourceUrl,omitempty"`
	Offset     float64      `json:"offset"`   // placement offset on the timeline, seconds
	Duration   float64      `json:"duration"` // seconds
	RecordedAt int64        `json:"recordedAt"`
	Rating     int          `json:"rating,omitempty"` // 0 = unrated, else 1..5
	Color      string       `json:"color,omitempty"`
	Muted      bool         `json:"muted"`
	Locked     bool         `json:"locked"`
	RegionIDs  []string     `json:"regionIds,omitempty"`
}

// End returns the timeline position where the take's placement ends.
func (t *Take) End() float64 {
	return t.Offset + t.Duration
}

// CompRegion is a time-bounded slice of exactly one take, expressed in
// take-relative seconds as [StartTime, EndTime). Regions never span
// takes.
type CompRegion struct {
	ID        string  `json:"id"`
	TakeID    string  `json:"takeId"`
	StartTime float64 `json:"startTime"`
	EndTime   float64 `json:"endTime"`
	Selected  bool    `json:"selected"`
	FadeIn    float64 `json:"fadeIn"`  // seconds
	FadeOut   float64 `json:"fadeOut"` // seconds
	Gain      float64 `json:"gain"`    // linear, [0,1]
}

// Span returns the region length in seconds.
func (r *CompRegion) Span() float64 {
	return r.EndTime - r.StartTime
}

// CompTrack is the comping surface for one underlying track. TakeIDs
// and RegionIDs are ordered id references into the session arenas;
// RegionIDs is the final composed selection and may draw from any of
// the track's takes.
type CompTrack struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	TakeIDs      []string `json:"takeIds"`
	ActiveTakeID string   `json:"activeTakeId,omitempty"`
	RegionIDs    []string `json:"regionIds"`
	PlaylistMode bool     `json:"playlistMode"`
}

// CompSession is the root comping container for one project. Tracks,
// takes and regions live in flat id-keyed arenas; every relationship
// is an id lookup, never an embedded owning reference.
type CompSession struct {
	ProjectID       string                 `json:"projectId"`
	Tracks          map[string]*CompTrack  `json:"tracks"`
	Takes           map[string]*Take       `json:"takes"`
	Regions         map[string]*CompRegion `json:"regions"`
	SelectedTakeID  string                 `json:"selectedTakeId,omitempty"`
	SelectedRegions map[string]bool        `json:"selectedRegions,omitempty"`
}

// NewCompSession builds an empty comping session.
func NewCompSession(projectID string) *CompSession {
	return &CompSession{
		ProjectID:       projectID,
		Tracks:          make(map[string]*CompTrack),
		Takes:           make(map[string]*Take),
		Regions:         make(map[string]*CompRegion),
		SelectedRegions: make(map[string]bool),
	}
}
