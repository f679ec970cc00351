package compose

import (
	"context"
	"testing"
)

func BenchmarkScheduleStressTest(b *testing.B) {
	comp, err := Preset("stress-test")
	if err != nil {
		b.Fatalf("preset: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Schedule(context.Background(), comp, 44100, nil); err != nil {
			b.Fatalf("schedule failed: %v", err)
		}
	}
}
