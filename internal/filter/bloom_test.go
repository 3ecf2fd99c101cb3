package filter

import (
	"fmt"
	"testing"
)

func TestNoFalseNegatives(t *testing.T) {
	b := NewBuilder(10)
	keys := make([][]byte, 0, 2000)
	for i := 0; i < 2000; i++ {
		k := []byte(fmt.Sprintf("key-%06d", i))
		keys = append(keys, k)
		b.AddKey(k)
	}
	data := b.Finish()
	r := NewReader(data)
	for _, k := range keys {
		if !r.MayContain(k) {
			t.Fatalf("false negative for key %q", k)
		}
	}
}

func TestFalsePositiveRateIsReasonable(t *testing.T) {
	b := NewBuilder(10)
	for i := 0; i < 10000; i++ {
		b.AddKey([]byte(fmt.Sprintf("present-%06d", i)))
	}
	r := NewReader(b.Finish())

	falsePositives := 0
	const trials = 20000
	for i := 0; i < trials; i++ {
		k := []byte(fmt.Sprintf("absent-%06d", i))
		if r.MayContain(k) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / trials
	if rate > 0.05 {
		t.Fatalf("false positive rate too high: %f", rate)
	}
}

func TestEmptyFilterAlwaysFalse(t *testing.T) {
	b := NewBuilder(10)
	r := NewReader(b.Finish())
	if r.MayContain([]byte("anything")) {
		t.Fatal("empty filter must reject every key")
	}
}

func TestNewReaderRejectsShortData(t *testing.T) {
	if r := NewReader([]byte{1, 2, 3}); r != nil {
		t.Fatal("expected nil reader for undersized data")
	}
}
