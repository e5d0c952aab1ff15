package ffmpeg

import (
	"context"
	"errors"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deepfake-detector/api/internal/domain/analysis"
)

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		w, h    int
		wantErr bool
	}{
		{name: "landscape", in: `{"streams":[{"width":640,"height":360}]}`, w: 640, h: 360},
		{name: "rotate tag", in: `{"streams":[{"width":1920,"height":1080,"tags":{"rotate":"90"}}]}`, w: 1080, h: 1920},
		{name: "display matrix", in: `{"streams":[{"width":1920,"height":1080,"side_data_list":[{"side_data_type":"Display Matrix","rotation":-90}]}]}`, w: 1080, h: 1920},
		{name: "quarter turn 270", in: `{"streams":[{"width":1280,"height":720,"tags":{"rotate":"270"}}]}`, w: 720, h: 1280},
		{name: "half turn", in: `{"streams":[{"width":1280,"height":720,"side_data_list":[{"rotation":180}]}]}`, w: 1280, h: 720},
		{name: "no stream", in: `{"streams":[]}`, wantErr: true},
		{name: "empty output", in: ``, wantErr: true},
		{name: "zero size", in: `{"streams":[{"width":0,"height":10}]}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h, err := parseProbe([]byte(tt.in))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.w, w)
			assert.Equal(t, tt.h, h)
		})
	}
}

func TestRGB24ToRGBA(t *testing.T) {
	img := rgb24ToRGBA([]byte{1, 2, 3, 4, 5, 6}, 2, 1)
	assert.Equal(t, []uint8{1, 2, 3, 255, 4, 5, 6, 255}, img.Pix)
}

func requireFFmpeg(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping ffmpeg test in short mode")
	}
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not installed", bin)
		}
	}
}

func makeVideo(t *testing.T, frames string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.mp4")
	out, err := exec.Command("ffmpeg", "-v", "error", "-f", "lavfi",
		"-i", "testsrc=size=64x48:rate=10", "-frames:v", frames,
		"-pix_fmt", "yuv420p", path).CombinedOutput()
	require.NoError(t, err, string(out))
	return path
}

func TestDecode_RealVideo(t *testing.T) {
	requireFFmpeg(t)
	path := makeVideo(t, "12")

	d := NewDecoder("", "", zap.NewNop())
	var indices []int
	err := d.Decode(context.Background(), path, func(i int, img image.Image) error {
		indices = append(indices, i)
		assert.Equal(t, image.Rect(0, 0, 64, 48), img.Bounds())
		return nil
	})
	require.NoError(t, err)
	require.Len(t, indices, 12)
	for i, idx := range indices {
		assert.Equal(t, i, idx)
	}
}

func TestDecode_YieldErrorStops(t *testing.T) {
	requireFFmpeg(t)
	path := makeVideo(t, "30")

	stop := errors.New("enough")
	d := NewDecoder("", "", zap.NewNop())
	seen := 0
	err := d.Decode(context.Background(), path, func(i int, _ image.Image) error {
		seen++
		if i == 4 {
			return stop
		}
		return nil
	})
	require.ErrorIs(t, err, stop)
	assert.Equal(t, 5, seen)
}

func TestDecode_Unreadable(t *testing.T) {
	requireFFmpeg(t)
	path := filepath.Join(t.TempDir(), "junk.mp4")
	require.NoError(t, os.WriteFile(path, []byte("this is not a video"), 0o644))

	d := NewDecoder("", "", zap.NewNop())
	err := d.Decode(context.Background(), path, func(int, image.Image) error { return nil })
	require.ErrorIs(t, err, analysis.ErrUnreadableVideo)
}
