package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// DefaultFFmpegCommand assumes ffmpeg is on PATH.
const DefaultFFmpegCommand = "ffmpeg"

// Segment is one input of a stitch. A zero End plays the file to its end.
type Segment struct {
	Path  string
	Start float64
	End   float64
}

func (s Segment) trimmed() bool { return s.Start > 0 || s.End > 0 }

type runFunc func(ctx context.Context, name string, args ...string) error

// FFmpegStitcher concatenates clips with the ffmpeg concat demuxer.
type FFmpegStitcher struct {
	commandPath string
	run         runFunc
}

func NewFFmpegStitcher(commandPath string) *FFmpegStitcher {
	if strings.TrimSpace(commandPath) == "" {
		commandPath = DefaultFFmpegCommand
	}
	return &FFmpegStitcher{commandPath: commandPath, run: runCommand}
}

// Stitch joins whole clips, in order, into out.
func (s *FFmpegStitcher) Stitch(ctx context.Context, clips []string, out string) error {
	segs := make([]Segment, len(clips))
	for i, c := range clips {
		segs[i] = Segment{Path: c}
	}
	return s.StitchSegments(ctx, segs, out)
}

// StitchSegments cuts trimmed segments first, then concatenates everything into out.
func (s *FFmpegStitcher) StitchSegments(ctx context.Context, segs []Segment, out string) error {
	if len(segs) == 0 {
		return errors.New("nothing to stitch")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	scratch, err := os.MkdirTemp(filepath.Dir(out), ".stitch-*")
	if err != nil {
		return fmt.Errorf("failed to create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	inputs := make([]string, 0, len(segs))
	reencode := false
	for i, seg := range segs {
		if !seg.trimmed() {
			inputs = append(inputs, seg.Path)
			continue
		}
		if seg.End > 0 && seg.End <= seg.Start {
			return fmt.Errorf("segment %d has an empty range %.3f-%.3f", i, seg.Start, seg.End)
		}
		cut := filepath.Join(scratch, fmt.Sprintf("segment_%d.mp4", i))
		if err := s.run(ctx, s.commandPath, trimArgs(seg, cut)...); err != nil {
			return fmt.Errorf("failed to trim segment %d: %w", i, err)
		}
		inputs = append(inputs, cut)
		reencode = true
	}

	list := filepath.Join(scratch, "concat.txt")
	if err := writeConcatList(list, inputs); err != nil {
		return err
	}
	if err := s.run(ctx, s.commandPath, concatArgs(list, out, reencode)...); err != nil {
		return fmt.Errorf("failed to concatenate %d clips: %w", len(inputs), err)
	}
	log.Infof("FFmpegStitcher: wrote %s from %d clips", out, len(inputs))
	return nil
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func trimArgs(seg Segment, out string) []string {
	args := []string{"-y", "-i", seg.Path, "-ss", formatSeconds(seg.Start)}
	if seg.End > 0 {
		args = append(args, "-to", formatSeconds(seg.End))
	}
	return append(args, "-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac", out)
}

// Trimmed segments are re-encoded, so the whole concat is re-encoded with them
// to keep stream parameters consistent.
func concatArgs(list, out string, reencode bool) []string {
	args := []string{"-y", "-f", "concat", "-safe", "0", "-i", list}
	if reencode {
		args = append(args, "-c:v", "libx264", "-preset", "veryfast", "-c:a", "aac")
	} else {
		args = append(args, "-c", "copy")
	}
	return append(args, out)
}

func writeConcatList(path string, clips []string) error {
	var b strings.Builder
	for _, clip := range clips {
		abs, err := filepath.Abs(clip)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", clip, err)
		}
		b.WriteString("file '")
		b.WriteString(strings.ReplaceAll(abs, "'", `'\''`))
		b.WriteString("'\n")
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("error running ffmpeg: %w: %s", err, tail(stderr.String(), 512))
	}
	return nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
