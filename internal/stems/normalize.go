// Package stems holds the pure domain logic for separation results:
// normalizing the upstream's inconsistent payloads into the canonical
// StemResult shape and deciding whether a job is genuinely finished.
package stems

import (
	"encoding/json"

	"github.com/bazai/stems-api/internal/model"
)

// channelAliases maps each canonical channel to the ordered list of keys
// the upstream has been observed to use for it. First present, non-empty
// value wins. The misspelled entries ("vocal_ur", "vocal_ur!",
// "instrumentalI_url") are real upstream payloads, not typos here.
var channelAliases = map[model.Channel][]string{
	model.ChannelVocal:         {"vocal_url", "vocalUrl", "vocal_ur", "vocal_ur!"},
	model.ChannelInstrumental:  {"instrumental_url", "instrumentalUrl", "instrumentalI_url", "backing_url", "backingUrl"},
	model.ChannelDrums:         {"drums_url", "drumsUrl"},
	model.ChannelBass:          {"bass_url", "bassUrl"},
	model.ChannelGuitar:        {"guitar_url", "guitarUrl"},
	model.ChannelKeyboard:      {"keyboard_url", "keyboardUrl", "piano_url", "pianoUrl"},
	model.ChannelStrings:       {"strings_url", "stringsUrl"},
	model.ChannelBrass:         {"brass_url", "brassUrl"},
	model.ChannelWoodwinds:     {"woodwinds_url", "woodwindsUrl"},
	model.ChannelPercussion:    {"percussion_url", "percussionUrl"},
	model.ChannelSynth:         {"synth_url", "synthUrl"},
	model.ChannelFX:            {"fx_url", "fxUrl", "other_url", "otherUrl"},
	model.ChannelBackingVocals: {"backing_vocals_url", "backingVocalsUrl"},
	model.ChannelOrigin:        {"origin_url", "originUrl"},
}

// wrapperKeys are probed in order; the payload's fields sometimes live
// under one of these instead of on the payload itself.
var wrapperKeys = []string{"response", "vocal_separation_info"}

var taskIDAliases = []string{"task_id", "taskId"}
var statusAliases = []string{"status", "state", "taskStatus"}

// Normalize maps a raw upstream payload onto the canonical StemResult.
// It is total: malformed or unparseable input yields an all-null result,
// never an error.
func Normalize(raw json.RawMessage) *model.StemResult {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return &model.StemResult{}
	}
	return NormalizeMap(payload)
}

// NormalizeMap is Normalize for an already-decoded payload.
func NormalizeMap(payload map[string]interface{}) *model.StemResult {
	result := &model.StemResult{}
	if payload == nil {
		return result
	}

	info := unwrap(payload)
	for _, ch := range model.Channels {
		if url := probe(info, channelAliases[ch]); url != "" {
			result.SetURL(ch, url)
		}
	}
	return result
}

// unwrap picks the object that actually carries the stem fields: a
// non-empty "response" wrapper, then "vocal_separation_info", then the
// payload itself.
func unwrap(payload map[string]interface{}) map[string]interface{} {
	for _, key := range wrapperKeys {
		if inner, ok := payload[key].(map[string]interface{}); ok && len(inner) > 0 {
			return inner
		}
	}
	return payload
}

// probe returns the first present, non-empty string among the aliases.
func probe(obj map[string]interface{}, aliases []string) string {
	for _, key := range aliases {
		if v, ok := obj[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// TaskID extracts the task identifier from a raw payload, probing the
// spellings the upstream uses. Empty when absent.
func TaskID(payload map[string]interface{}) string {
	return probe(payload, taskIDAliases)
}

// StatusFlag extracts the raw status flag from a payload. The flag lives
// on the payload itself, not inside the wrappers.
func StatusFlag(payload map[string]interface{}) string {
	return probe(payload, statusAliases)
}
