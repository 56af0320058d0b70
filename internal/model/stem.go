package model

// StemResult is the canonical normalized payload for a separation job:
// one nullable URL per canonical channel. Field names match what the
// front-end already consumes, so they are stable.
type StemResult struct {
	VocalURL         *string `json:"vocal_url"`
	InstrumentalURL  *string `json:"instrumental_url"`
	DrumsURL         *string `json:"drums_url"`
	BassURL          *string `json:"bass_url"`
	GuitarURL        *string `json:"guitar_url"`
	KeyboardURL      *string `json:"keyboard_url"`
	StringsURL       *string `json:"strings_url"`
	BrassURL         *string `json:"brass_url"`
	WoodwindsURL     *string `json:"woodwinds_url"`
	PercussionURL    *string `json:"percussion_url"`
	SynthURL         *string `json:"synth_url"`
	FXURL            *string `json:"fx_url"`
	BackingVocalsURL *string `json:"backing_vocals_url"`
	OriginURL        *string `json:"origin_url"`
}

// URL returns the stored URL for a channel, or nil.
func (r *StemResult) URL(ch Channel) *string {
	switch ch {
	case ChannelVocal:
		return r.VocalURL
	case ChannelInstrumental:
		return r.InstrumentalURL
	case ChannelDrums:
		return r.DrumsURL
	case ChannelBass:
		return r.BassURL
	case ChannelGuitar:
		return r.GuitarURL
	case ChannelKeyboard:
		return r.KeyboardURL
	case ChannelStrings:
		return r.StringsURL
	case ChannelBrass:
		return r.BrassURL
	case ChannelWoodwinds:
		return r.WoodwindsURL
	case ChannelPercussion:
		return r.PercussionURL
	case ChannelSynth:
		return r.SynthURL
	case ChannelFX:
		return r.FXURL
	case ChannelBackingVocals:
		return r.BackingVocalsURL
	case ChannelOrigin:
		return r.OriginURL
	}
	return nil
}

// SetURL stores a URL for a channel. Empty strings are stored as nil.
func (r *StemResult) SetURL(ch Channel, url string) {
	var v *string
	if url != "" {
		v = &url
	}
	switch ch {
	case ChannelVocal:
		r.VocalURL = v
	case ChannelInstrumental:
		r.InstrumentalURL = v
	case ChannelDrums:
		r.DrumsURL = v
	case ChannelBass:
		r.BassURL = v
	case ChannelGuitar:
		r.GuitarURL = v
	case ChannelKeyboard:
		r.KeyboardURL = v
	case ChannelStrings:
		r.StringsURL = v
	case ChannelBrass:
		r.BrassURL = v
	case ChannelWoodwinds:
		r.WoodwindsURL = v
	case ChannelPercussion:
		r.PercussionURL = v
	case ChannelSynth:
		r.SynthURL = v
	case ChannelFX:
		r.FXURL = v
	case ChannelBackingVocals:
		r.BackingVocalsURL = v
	case ChannelOrigin:
		r.OriginURL = v
	}
}

// MateriallyComplete reports whether the result carries enough to be
// usable: at least the vocal or the instrumental track. The upstream
// status flag alone is not evidence of this — it is known to flip to
// success before the download URLs are populated.
func (r *StemResult) MateriallyComplete() bool {
	return r.VocalURL != nil || r.InstrumentalURL != nil
}

// InferKind derives the job kind from the populated channels: anything
// beyond vocal/instrumental means a full stem split. The kind is inferred
// rather than echoed from submission because upstream payloads do not
// reliably carry the submitted kind back.
func (r *StemResult) InferKind() JobKind {
	for _, ch := range Channels {
		if ch == ChannelVocal || ch == ChannelInstrumental {
			continue
		}
		if r.URL(ch) != nil {
			return KindSplitStem
		}
	}
	return KindSeparateVocal
}
