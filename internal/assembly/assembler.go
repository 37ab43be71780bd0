package assembly

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"callwave/internal/session"
)

// RunFunc executes an external command. Tests inject one to observe the sox
// invocations without audio files on disk.
type RunFunc func(ctx context.Context, name string, args ...string) error

func execRun(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Assembler concatenates a call's trace into a single listenable file with
// sox. Counterpart segments are amplified by 12dB (telephony captures are
// quiet next to studio prompts) and segments are separated by 0.4s of
// silence so the result reads as a natural conversation.
type Assembler struct {
	artifactDir string
	promptDir   string
	run         RunFunc
	log         *slog.Logger
}

func NewAssembler(artifactDir, promptDir string, log *slog.Logger) *Assembler {
	return &Assembler{
		artifactDir: artifactDir,
		promptDir:   promptDir,
		run:         execRun,
		log:         log,
	}
}

// SetRun overrides the command runner. Test hook.
func (a *Assembler) SetRun(run RunFunc) { a.run = run }

const (
	counterpartGain = "12dB"
	spacerSeconds   = "0.4"
)

// Assemble writes call_<id>.wav under the artifact directory from the
// consumed trace, in append order. Segments without an audio reference
// (silent captures) are skipped. Returns the output path.
func (a *Assembler) Assemble(ctx context.Context, callID string, segs []session.TrackedSegment) (string, error) {
	if len(segs) == 0 {
		return "", fmt.Errorf("assembly: empty trace for call %s", callID)
	}
	if err := os.MkdirAll(a.artifactDir, 0o755); err != nil {
		return "", fmt.Errorf("assembly: %w", err)
	}

	var temps []string
	defer func() {
		for _, t := range temps {
			os.Remove(t)
		}
	}()

	var inputs []string
	for i, seg := range segs {
		if seg.AudioRef == "" {
			continue
		}
		switch seg.Side {
		case session.SidePrompt:
			inputs = append(inputs, a.promptPath(seg.AudioRef))
		case session.SideCounterpart:
			amplified := filepath.Join(a.artifactDir, fmt.Sprintf("temp_amp_%s_%d.wav", callID, i))
			temps = append(temps, amplified)
			if err := a.run(ctx, "sox", seg.AudioRef, amplified, "vol", counterpartGain); err != nil {
				a.log.Warn("amplification failed, using raw capture",
					"call_id", callID, "file", seg.AudioRef, "error", err)
				inputs = append(inputs, seg.AudioRef)
				continue
			}
			inputs = append(inputs, amplified)
		}
	}
	if len(inputs) == 0 {
		return "", fmt.Errorf("assembly: no audio segments for call %s", callID)
	}

	// 8kHz mono spacer matches the telephony captures.
	spacer := filepath.Join(a.artifactDir, fmt.Sprintf("temp_silence_%s.wav", callID))
	temps = append(temps, spacer)
	if err := a.run(ctx, "sox", "-n", "-r", "8000", "-c", "1", spacer, "trim", "0.0", spacerSeconds); err != nil {
		return "", fmt.Errorf("assembly: generating spacer: %w", err)
	}

	output := filepath.Join(a.artifactDir, fmt.Sprintf("call_%s.wav", callID))
	args := make([]string, 0, 2*len(inputs))
	for i, in := range inputs {
		args = append(args, in)
		if i < len(inputs)-1 {
			args = append(args, spacer)
		}
	}
	args = append(args, output)
	if err := a.run(ctx, "sox", args...); err != nil {
		return "", fmt.Errorf("assembly: concatenating %d segments: %w", len(inputs), err)
	}

	a.log.Info("call audio assembled", "call_id", callID, "segments", len(inputs), "output", output)
	return output, nil
}

func (a *Assembler) promptPath(ref string) string {
	if filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(a.promptDir, ref)
}
