package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/deepfake-detector/api/internal/domain/analysis"
)

// Decoder streams every frame of a video through ffmpeg as raw RGB24.
type Decoder struct {
	ffmpegPath  string
	ffprobePath string
	logger      *zap.Logger
}

// NewDecoder returns a Decoder; empty paths resolve ffmpeg/ffprobe on PATH.
func NewDecoder(ffmpegPath, ffprobePath string, logger *zap.Logger) *Decoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, logger: logger}
}

// Decode calls yield for each frame in decode order, starting at index 0.
// A yield error stops decoding and is returned as is.
func (d *Decoder) Decode(ctx context.Context, videoPath string, yield func(index int, img image.Image) error) error {
	width, height, err := d.probe(ctx, videoPath)
	if err != nil {
		return fmt.Errorf("%w: %v", analysis.ErrUnreadableVideo, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, d.ffmpegPath,
		"-v", "error",
		"-nostdin",
		"-i", videoPath,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: start ffmpeg: %v", analysis.ErrUnreadableVideo, err)
	}

	frameSize := width * height * 3
	reader := bufio.NewReaderSize(stdout, frameSize)
	buf := make([]byte, frameSize)
	index := 0
	var yieldErr error
	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				yieldErr = fmt.Errorf("read frame %d: %w", index, err)
			}
			break
		}
		if err := yield(index, rgb24ToRGBA(buf, width, height)); err != nil {
			yieldErr = err
			break
		}
		index++
	}

	if yieldErr != nil {
		cancel()
		_ = cmd.Wait()
		return yieldErr
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		msg := strings.TrimSpace(stderr.String())
		if index == 0 {
			return fmt.Errorf("%w: ffmpeg: %v: %s", analysis.ErrUnreadableVideo, err, msg)
		}
		return fmt.Errorf("ffmpeg stopped after %d frames: %v: %s", index, err, msg)
	}

	d.logger.Debug("video decoded",
		zap.String("path", videoPath),
		zap.Int("frames", index),
		zap.Int("width", width),
		zap.Int("height", height),
	)
	return nil
}

func (d *Decoder) probe(ctx context.Context, videoPath string) (int, int, error) {
	cmd := exec.CommandContext(ctx, d.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height:stream_tags=rotate:stream_side_data=rotation",
		"-of", "json",
		videoPath,
	)
	output, err := cmd.Output()
	if err != nil {
		return 0, 0, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbe(output)
}

type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
		Tags   struct {
			Rotate string `json:"rotate"`
		} `json:"tags"`
		SideData []struct {
			Rotation json.Number `json:"rotation"`
		} `json:"side_data_list"`
	} `json:"streams"`
}

// parseProbe returns the size of the frames ffmpeg emits. ffmpeg applies
// the stream rotation by default, so quarter turns swap width and height.
func parseProbe(data []byte) (int, int, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return 0, 0, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return 0, 0, fmt.Errorf("no video stream")
	}
	st := out.Streams[0]
	if st.Width <= 0 || st.Height <= 0 {
		return 0, 0, fmt.Errorf("invalid dimensions %dx%d", st.Width, st.Height)
	}

	rotation := 0.0
	if st.Tags.Rotate != "" {
		if r, err := strconv.ParseFloat(strings.TrimSpace(st.Tags.Rotate), 64); err == nil {
			rotation = r
		}
	}
	for _, sd := range st.SideData {
		if sd.Rotation == "" {
			continue
		}
		if r, err := sd.Rotation.Float64(); err == nil {
			rotation = r
		}
	}
	if quarter := int(math.Round(rotation/90)) % 2; quarter != 0 {
		return st.Height, st.Width, nil
	}
	return st.Width, st.Height, nil
}

// rgb24ToRGBA copies one packed RGB24 frame into a new opaque RGBA image.
func rgb24ToRGBA(src []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, j := 0, 0; i < len(src); i, j = i+3, j+4 {
		img.Pix[j] = src[i]
		img.Pix[j+1] = src[i+1]
		img.Pix[j+2] = src[i+2]
		img.Pix[j+3] = 0xff
	}
	return img
}
