package discord

import (
	"context"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/hecklerbot/heckler/internal/voice"
)

// receive demuxes inbound Opus packets by SSRC, decodes each stream
// with its own decoder and forwards the PCM to the voice session. It
// returns when ctx is cancelled or the connection's receive channel
// closes.
func receive(ctx context.Context, vc *discordgo.VoiceConnection, sess *voice.Session) {
	decoders := make(map[uint32]*opusDecoder)

	for {
		select {
		case <-ctx.Done():
			return
		case pkt, ok := <-vc.OpusRecv:
			if !ok {
				return
			}
			dec, ok := decoders[pkt.SSRC]
			if !ok {
				var err error
				dec, err = newOpusDecoder()
				if err != nil {
					slog.Error("create decoder for stream", "ssrc", pkt.SSRC, "error", err)
					continue
				}
				decoders[pkt.SSRC] = dec
			}
			pcm, err := dec.decode(pkt.Opus)
			if err != nil {
				slog.Warn("dropping undecodable frame", "ssrc", pkt.SSRC, "error", err)
				continue
			}
			sess.HandlePacket(pkt.SSRC, pcm)
		}
	}
}

// speakingHandler returns a discordgo handler that relays speaking
// state transitions to the voice session.
func speakingHandler(sess *voice.Session) func(*discordgo.VoiceConnection, *discordgo.VoiceSpeakingUpdate) {
	return func(_ *discordgo.VoiceConnection, su *discordgo.VoiceSpeakingUpdate) {
		sess.HandleSpeaking(uint32(su.SSRC), su.UserID, su.Speaking)
	}
}
