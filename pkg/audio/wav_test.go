package audio_test

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/MrWong99/duckdebug/pkg/audio"
)

func TestEncodeWAV_Header(t *testing.T) {
	pcm := samplesToBytes([]int16{1, 2, 3, 4})
	wav := audio.EncodeWAV(pcm, audio.Format{SampleRate: 16000, Channels: 1})

	if len(wav) != 44+len(pcm) {
		t.Fatalf("want %d bytes, got %d", 44+len(pcm), len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Error("missing RIFF/WAVE/data markers")
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Errorf("sample rate: want 16000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[28:32]); got != 32000 {
		t.Errorf("byte rate: want 32000, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size: want %d, got %d", len(pcm), got)
	}
}

func TestWAVRecorder_StopEmitsChunkThenStopped(t *testing.T) {
	f := audio.Format{SampleRate: 16000, Channels: 1}
	rec := audio.NewWAVRecorder(f, audio.Format{})

	if err := rec.Write(samplesToBytes([]int16{1, 2})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rec.Write(samplesToBytes([]int16{3})); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	var kinds []audio.RecorderEventKind
	var data []byte
	for ev := range rec.Events() {
		kinds = append(kinds, ev.Kind)
		data = append(data, ev.Data...)
	}
	if len(kinds) != 2 || kinds[0] != audio.RecorderChunk || kinds[1] != audio.RecorderStopped {
		t.Fatalf("want [CHUNK STOPPED], got %v", kinds)
	}
	if len(data) != 44+6 {
		t.Errorf("want %d bytes of WAV, got %d", 44+6, len(data))
	}
	if rec.ContentType() != audio.ContentTypeWAV {
		t.Errorf("want %q, got %q", audio.ContentTypeWAV, rec.ContentType())
	}
}

func TestWAVRecorder_AbortClosesWithoutStopped(t *testing.T) {
	rec := audio.NewWAVRecorder(audio.Format{SampleRate: 16000, Channels: 1}, audio.Format{})
	_ = rec.Write(samplesToBytes([]int16{1}))
	rec.Abort()
	rec.Abort()

	for ev := range rec.Events() {
		t.Errorf("unexpected event after abort: %v", ev.Kind)
	}
	if err := rec.Write(nil); !errors.Is(err, audio.ErrRecorderClosed) {
		t.Errorf("want ErrRecorderClosed, got %v", err)
	}
	if err := rec.Stop(); !errors.Is(err, audio.ErrRecorderClosed) {
		t.Errorf("want ErrRecorderClosed, got %v", err)
	}
}

func TestWAVRecorderFactory_Resamples(t *testing.T) {
	rec, err := audio.WAVRecorderFactory(16000)(audio.Format{SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	_ = rec.Write(samplesToBytes([]int16{10, 10, 10, 10, 10, 10}))
	_ = rec.Stop()

	ev := <-rec.Events()
	if got := binary.LittleEndian.Uint32(ev.Data[24:28]); got != 16000 {
		t.Errorf("want 16000Hz header, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(ev.Data[22:24]); got != 1 {
		t.Errorf("want mono header, got %d channels", got)
	}
}
