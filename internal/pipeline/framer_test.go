package pipeline

import "testing"

func TestNewFramer_Validation(t *testing.T) {
	tests := []struct {
		name       string
		size       int
		overlapPct int
		wantErr    error
	}{
		{"valid no overlap", 256, 0, nil},
		{"valid 50 percent", 256, 50, nil},
		{"valid 99 percent", 256, 99, nil},
		{"zero size", 0, 0, ErrInvalidFrameSize},
		{"negative size", -1, 0, ErrInvalidFrameSize},
		{"negative overlap", 256, -1, ErrInvalidOverlap},
		{"full overlap", 256, 100, ErrInvalidOverlap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFramer(tt.size, tt.overlapPct)
			if err != tt.wantErr {
				t.Errorf("NewFramer(%d, %d) error = %v, want %v", tt.size, tt.overlapPct, err, tt.wantErr)
			}
		})
	}
}

func TestFramer_HopSize(t *testing.T) {
	tests := []struct {
		size       int
		overlapPct int
		want       int
	}{
		{1024, 0, 1024},
		{1024, 50, 512},
		{1024, 75, 256},
		{100, 33, 67},
	}

	for _, tt := range tests {
		f, err := NewFramer(tt.size, tt.overlapPct)
		if err != nil {
			t.Fatalf("NewFramer failed: %v", err)
		}
		if f.HopSize() != tt.want {
			t.Errorf("HopSize(%d, %d) = %d, want %d", tt.size, tt.overlapPct, f.HopSize(), tt.want)
		}
		if f.Size() != tt.size {
			t.Errorf("Size() = %d, want %d", f.Size(), tt.size)
		}
	}
}

// ramp returns n samples counting up from start
func ramp(start, n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = float32(start + i)
	}
	return s
}

func TestFramer_ChunkedInput(t *testing.T) {
	f, err := NewFramer(8, 0)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	var frames [][]float32
	collect := func(frame []float32) { frames = append(frames, frame) }

	// 3 + 3 samples: no frame yet
	f.Push(ramp(0, 3), collect)
	f.Push(ramp(3, 3), collect)
	if len(frames) != 0 {
		t.Fatalf("got %d frames from 6 samples, want 0", len(frames))
	}
	if f.Buffered() != 6 {
		t.Errorf("Buffered() = %d, want 6", f.Buffered())
	}

	// 13 more samples: two full frames and 3 left over
	f.Push(ramp(6, 13), collect)
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, frame := range frames {
		for j, v := range frame {
			if want := float32(i*8 + j); v != want {
				t.Fatalf("frame %d sample %d = %v, want %v", i, j, v, want)
			}
		}
	}
	if f.Buffered() != 3 {
		t.Errorf("Buffered() = %d, want 3", f.Buffered())
	}
}

func TestFramer_Overlap(t *testing.T) {
	f, err := NewFramer(8, 50)
	if err != nil {
		t.Fatalf("NewFramer failed: %v", err)
	}

	var frames [][]float32
	f.Push(ramp(0, 16), func(frame []float32) { frames = append(frames, frame) })

	// Frames start at 0, 4 and 8
	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	for i, frame := range frames {
		if frame[0] != float32(i*4) {
			t.Errorf("frame %d starts at %v, want %v", i, frame[0], i*4)
		}
	}
}

func TestFramer_FramesAreIndependent(t *testing.T) {
	f, _ := NewFramer(4, 0)

	var frames [][]float32
	f.Push(ramp(0, 8), func(frame []float32) { frames = append(frames, frame) })

	frames[0][0] = -1
	if frames[1][0] != 4 {
		t.Errorf("mutating one frame changed another: %v", frames[1])
	}
}

func TestFramer_Reset(t *testing.T) {
	f, _ := NewFramer(8, 0)
	f.Push(ramp(0, 5), func([]float32) {})
	f.Reset()

	if f.Buffered() != 0 {
		t.Errorf("Buffered() = %d after Reset, want 0", f.Buffered())
	}

	var first []float32
	f.Push(ramp(100, 8), func(frame []float32) { first = frame })
	if first == nil || first[0] != 100 {
		t.Errorf("first frame after Reset = %v, want start at 100", first)
	}
}
