package assembly

import (
	"context"
	"log/slog"

	"callwave/internal/session"
)

// Pipeline runs the full post-call artifact chain: assemble the audio, then
// write both transcript renditions. Artifact production is best-effort; a
// failed sox run or full disk never affects call bookkeeping.
type Pipeline struct {
	assembler *Assembler
	writer    *TranscriptWriter
	log       *slog.Logger
}

func NewPipeline(assembler *Assembler, writer *TranscriptWriter, log *slog.Logger) *Pipeline {
	return &Pipeline{assembler: assembler, writer: writer, log: log}
}

func (p *Pipeline) Produce(ctx context.Context, info CallInfo, segs []session.TrackedSegment, promptTexts map[string]string) {
	if len(segs) == 0 {
		return
	}

	audio, err := p.assembler.Assemble(ctx, info.CallID, segs)
	if err != nil {
		p.log.Warn("audio assembly failed", "call_id", info.CallID, "error", err)
	} else {
		info.AssembledAudio = audio
	}

	jsonPath, textPath, err := p.writer.Write(info, segs, promptTexts)
	if err != nil {
		p.log.Warn("transcript generation failed", "call_id", info.CallID, "error", err)
		return
	}
	p.log.Info("call artifacts generated",
		"call_id", info.CallID,
		"audio", info.AssembledAudio,
		"transcript", jsonPath,
		"transcript_text", textPath,
	)
}
