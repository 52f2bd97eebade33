package audioio

import (
	"context"
	"io"
	"testing"
	"time"
)

func TestMockSource_StartStop(t *testing.T) {
	src := NewMockSource(DefaultCaptureConfig(), nil)
	defer src.Close()

	ctx := context.Background()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	// Starting again should be a no-op
	if err := src.Start(ctx); err != nil {
		t.Fatalf("Second Start failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	if _, ok := <-src.Frames(); ok {
		t.Error("frame channel should be closed after Stop")
	}
}

func TestMockSource_Push(t *testing.T) {
	cfg := DefaultCaptureConfig()
	src := NewMockSource(cfg, nil)
	defer src.Close()

	if src.Push(Frame{Samples: make([]float32, 4)}) {
		t.Error("Push before Start should fail")
	}

	if err := src.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !src.Push(Frame{Samples: []float32{0.1, -0.1}}) {
		t.Fatal("Push failed")
	}

	f := <-src.Frames()
	if f.SampleRate != cfg.SampleRate {
		t.Errorf("SampleRate = %d, want %d", f.SampleRate, cfg.SampleRate)
	}
	if len(f.Samples) != 2 {
		t.Errorf("len(Samples) = %d, want 2", len(f.Samples))
	}
	if src.FramesRead() != 1 {
		t.Errorf("FramesRead = %d, want 1", src.FramesRead())
	}
}

func TestMockSource_SineWave(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.FrameSize = 1600

	src := NewMockSource(cfg, nil, WithSineWave(440, 0.5, 5*time.Millisecond))
	defer src.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := src.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case f := <-src.Frames():
		if len(f.Samples) != cfg.FrameSize {
			t.Fatalf("len(Samples) = %d, want %d", len(f.Samples), cfg.FrameSize)
		}
		rms := RMS(f.Samples)
		// 0.5 amplitude sine has RMS 0.5/sqrt(2)
		if rms < 0.3 || rms > 0.4 {
			t.Errorf("RMS = %f, want ~0.354", rms)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for frame")
	}
}

func TestMockSource_Close(t *testing.T) {
	src := NewMockSource(DefaultCaptureConfig(), nil)

	if err := src.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := src.Start(context.Background()); err != io.ErrClosedPipe {
		t.Errorf("Start after Close = %v, want io.ErrClosedPipe", err)
	}
}

func TestCapture(t *testing.T) {
	src := NewMockSource(DefaultCaptureConfig(), nil)
	defer src.Close()
	if err := src.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.Push(Frame{Samples: []float32{1}})
	src.Push(Frame{Samples: []float32{2}})
	src.Stop()

	var got []float32
	Capture(context.Background(), src, func(f Frame) {
		got = append(got, f.Samples[0])
	})

	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("captured %v, want [1 2]", got)
	}
}

func TestMockSink_WriteClear(t *testing.T) {
	sink := NewMockSink(DefaultPlaybackConfig(), nil)
	defer sink.Close()

	ctx := context.Background()

	if err := sink.Write(ctx, AudioChunk{Samples: []int16{1}}); err != io.ErrClosedPipe {
		t.Errorf("Write before Start = %v, want io.ErrClosedPipe", err)
	}

	if err := sink.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := sink.Write(ctx, AudioChunk{Samples: make([]int16, 100), SampleRate: 24000}); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	if n := len(sink.Chunks()); n != 3 {
		t.Errorf("buffered %d chunks, want 3", n)
	}
	if sink.SamplesWritten() != 300 {
		t.Errorf("SamplesWritten = %d, want 300", sink.SamplesWritten())
	}

	sink.Clear()
	if n := len(sink.Chunks()); n != 0 {
		t.Errorf("buffered %d chunks after Clear, want 0", n)
	}
	if sink.Clears() != 1 {
		t.Errorf("Clears = %d, want 1", sink.Clears())
	}
}

func TestAudioChunk_Duration(t *testing.T) {
	tests := []struct {
		name  string
		chunk AudioChunk
		want  time.Duration
	}{
		{"one second", AudioChunk{Samples: make([]int16, 24000), SampleRate: 24000}, time.Second},
		{"100ms", AudioChunk{Samples: make([]int16, 2400), SampleRate: 24000}, 100 * time.Millisecond},
		{"no rate", AudioChunk{Samples: make([]int16, 10)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.Duration(); got != tt.want {
				t.Errorf("Duration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewSource_Mock(t *testing.T) {
	cfg := DefaultCaptureConfig()
	cfg.Backend = BackendMock

	src, err := NewSource(cfg, nil)
	if err != nil {
		t.Fatalf("NewSource failed: %v", err)
	}
	if src.Name() != "mock" {
		t.Errorf("Name() = %q, want mock", src.Name())
	}

	cfg.Backend = "bogus"
	if _, err := NewSource(cfg, nil); err == nil {
		t.Error("expected error for unknown backend")
	}

	cfg.Backend = BackendMock
	cfg.Channels = 2
	if _, err := NewSink(cfg, nil); err == nil {
		t.Error("expected validation error for stereo")
	}
}
