package audio_test

import (
	"encoding/binary"
	"testing"

	"github.com/MrWong99/duckdebug/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

// bytesToSamples converts a little-endian byte slice to int16 samples.
func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestStereoToMono(t *testing.T) {
	stereo := samplesToBytes([]int16{100, 200, -100, -200})
	got := bytesToSamples(audio.StereoToMono(stereo))
	want := []int16{150, -150}
	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	tests := []struct {
		name     string
		in       []int16
		src, dst int
		wantLen  int
	}{
		{name: "same rate", in: []int16{1, 2, 3}, src: 16000, dst: 16000, wantLen: 3},
		{name: "upsample", in: []int16{0, 100}, src: 8000, dst: 16000, wantLen: 4},
		{name: "downsample", in: []int16{0, 10, 20, 30, 40, 50}, src: 48000, dst: 16000, wantLen: 2},
		{name: "zero source rate", in: []int16{1, 2}, src: 0, dst: 16000, wantLen: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := audio.ResampleMono16(samplesToBytes(tt.in), tt.src, tt.dst)
			if got := len(out) / 2; got != tt.wantLen {
				t.Errorf("want %d samples, got %d", tt.wantLen, got)
			}
		})
	}
}

func TestResampleMono16_Interpolates(t *testing.T) {
	out := bytesToSamples(audio.ResampleMono16(samplesToBytes([]int16{0, 100}), 8000, 16000))
	if out[0] != 0 || out[1] != 50 || out[2] != 100 {
		t.Errorf("want [0 50 100 ...], got %v", out)
	}
}

func TestFormatConverter_NoOp(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	in := audio.Frame{Data: samplesToBytes([]int16{7, 8}), SampleRate: 16000, Channels: 1}
	out := conv.Convert(in)
	if &out.Data[0] != &in.Data[0] {
		t.Error("matching format should return the frame unchanged")
	}
}

func TestFormatConverter_StereoDownmixAndResample(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	in := audio.Frame{
		Data:       samplesToBytes([]int16{100, 300, 100, 300, 100, 300, 100, 300, 100, 300, 100, 300}),
		SampleRate: 48000,
		Channels:   2,
	}
	out := conv.Convert(in)
	if out.Channels != 1 || out.SampleRate != 16000 {
		t.Fatalf("want 16000Hz mono, got %dHz %dch", out.SampleRate, out.Channels)
	}
	got := bytesToSamples(out.Data)
	if len(got) != 2 {
		t.Fatalf("want 2 samples, got %d", len(got))
	}
	for i, s := range got {
		if s != 200 {
			t.Errorf("sample %d: want 200, got %d", i, s)
		}
	}
}

func TestFormatConverter_OddByteCount(t *testing.T) {
	conv := audio.FormatConverter{Target: audio.Format{SampleRate: 16000, Channels: 1}}
	out := conv.Convert(audio.Frame{Data: []byte{1, 2, 3}, SampleRate: 16000, Channels: 1})
	if len(out.Data) != 0 {
		t.Errorf("odd byte count should drop the frame, got %d bytes", len(out.Data))
	}
}

func TestFormat_String(t *testing.T) {
	tests := []struct {
		f    audio.Format
		want string
	}{
		{audio.Format{SampleRate: 16000, Channels: 1}, "16000Hz mono"},
		{audio.Format{SampleRate: 48000, Channels: 2}, "48000Hz stereo"},
		{audio.Format{SampleRate: 44100, Channels: 6}, "44100Hz 6ch"},
	}
	for _, tt := range tests {
		if got := tt.f.String(); got != tt.want {
			t.Errorf("want %q, got %q", tt.want, got)
		}
	}
}
