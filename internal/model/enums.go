package model

// JobKind is the kind of separation requested at submission time.
type JobKind string

const (
	KindSeparateVocal JobKind = "separate_vocal"
	KindSplitStem     JobKind = "split_stem"
)

var ValidJobKinds = []JobKind{KindSeparateVocal, KindSplitStem}

// IsValid reports whether k is one of the two supported kinds.
func (k JobKind) IsValid() bool {
	return k == KindSeparateVocal || k == KindSplitStem
}

// JobStatus is the persisted lifecycle state of a stem job.
// A job is created pending and moves to success or error exactly once.
type JobStatus string

const (
	JobStatusPending JobStatus = "pending"
	JobStatusSuccess JobStatus = "success"
	JobStatusError   JobStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusSuccess || s == JobStatusError
}

// Channel is one of the canonical stem channels this system recognizes.
type Channel string

const (
	ChannelVocal         Channel = "vocal"
	ChannelInstrumental  Channel = "instrumental"
	ChannelDrums         Channel = "drums"
	ChannelBass          Channel = "bass"
	ChannelGuitar        Channel = "guitar"
	ChannelKeyboard      Channel = "keyboard"
	ChannelStrings       Channel = "strings"
	ChannelBrass         Channel = "brass"
	ChannelWoodwinds     Channel = "woodwinds"
	ChannelPercussion    Channel = "percussion"
	ChannelSynth         Channel = "synth"
	ChannelFX            Channel = "fx"
	ChannelBackingVocals Channel = "backing_vocals"
	ChannelOrigin        Channel = "origin"
)

// Channels lists every canonical channel in a stable order.
var Channels = []Channel{
	ChannelVocal, ChannelInstrumental, ChannelDrums, ChannelBass,
	ChannelGuitar, ChannelKeyboard, ChannelStrings, ChannelBrass,
	ChannelWoodwinds, ChannelPercussion, ChannelSynth, ChannelFX,
	ChannelBackingVocals, ChannelOrigin,
}
