package discord

import (
	"math"
	"os"
	"path/filepath"
)

// memberState is the slice of a voice state that cue selection cares
// about.
type memberState struct {
	InChannel bool
	SelfMute  bool
	SelfDeaf  bool
}

// transitionCue returns the cue name for a voice state transition into
// or within the watched channel, or "" when no cue applies. old is nil
// when the member had no prior voice state.
//
// Deafen transitions are checked before mute transitions: the client UI
// mutes users who deafen themselves, so a deafen event arrives with
// both flags flipped and the deafen cue should win.
func transitionCue(old *memberState, cur memberState) string {
	if !cur.InChannel {
		return ""
	}
	if old == nil || !old.InChannel {
		return "hello"
	}
	switch {
	case old.SelfDeaf != cur.SelfDeaf && cur.SelfDeaf:
		return "deaf"
	case old.SelfDeaf != cur.SelfDeaf && !cur.SelfDeaf:
		return "undeaf"
	case old.SelfMute != cur.SelfMute && cur.SelfMute:
		return "mute"
	case old.SelfMute != cur.SelfMute && !cur.SelfMute:
		return "unmute"
	}
	return ""
}

// rejoinChance returns the probability of playing the rejoin cue for a
// member who has joined joinCount times since the channel was last
// empty. First joins never trigger it; repeat joins grow more likely.
func rejoinChance(joinCount int) float64 {
	if joinCount <= 1 {
		return 0
	}
	return 1 - math.Exp(-0.1*float64(joinCount))
}

// cuePath returns the path of a cue audio file in the data directory,
// or "" when no file for that cue exists. Cue files are optional and
// named exactly after the cue.
func cuePath(dataDir, cue string) string {
	path := filepath.Join(dataDir, cue)
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
