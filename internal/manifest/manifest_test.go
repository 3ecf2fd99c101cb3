package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func sampleMetadata() Metadata {
	return Metadata{
		NextSeq:   42,
		NextSSTID: 7,
		Levels: []LevelInfo{
			{
				LevelID: 0,
				Runs: []RunInfo{
					{SSTables: []SSTInfo{
						{Count: 10, Size: 2048, SSTID: 1, IndexOffset: 1900, BloomOffset: 1990,
							Filename: "1.sst", Smallest: []byte("a-key"), Largest: []byte("z-key")},
					}},
				},
			},
			{
				LevelID: 1,
				Runs: []RunInfo{
					{SSTables: []SSTInfo{
						{Count: 5, Size: 1024, SSTID: 2, IndexOffset: 900, BloomOffset: 980,
							Filename: "2.sst", Smallest: []byte("aa"), Largest: []byte("mm")},
						{Count: 5, Size: 1024, SSTID: 3, IndexOffset: 900, BloomOffset: 980,
							Filename: "3.sst", Smallest: []byte("mn"), Largest: []byte("zz")},
					}},
				},
			},
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleMetadata()
	body := Encode(m)
	got, err := Decode(body)
	if err != nil {
		t.Fatal(err)
	}
	if got.NextSeq != m.NextSeq || got.NextSSTID != m.NextSSTID {
		t.Fatalf("counters mismatch: %+v vs %+v", got, m)
	}
	if len(got.Levels) != len(m.Levels) {
		t.Fatalf("level count mismatch: got %d want %d", len(got.Levels), len(m.Levels))
	}
	if got.Levels[1].Runs[0].SSTables[1].Filename != "3.sst" {
		t.Fatalf("nested sst field mismatch: %+v", got.Levels[1].Runs[0].SSTables[1])
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata")
	m := sampleMetadata()

	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.NextSeq != m.NextSeq || got.NextSSTID != m.NextSSTID {
		t.Fatalf("round trip mismatch: %+v vs %+v", got, m)
	}
}

func TestLoadDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata")
	m := sampleMetadata()
	if err := Save(path, m); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[0] ^= 0xff
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err != ErrCorruption {
		t.Fatalf("Load() err = %v, want ErrCorruption", err)
	}
}

func TestLoadRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata")
	if err := os.WriteFile(path, []byte{1, 2, 3}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != ErrCorruption {
		t.Fatalf("Load() err = %v, want ErrCorruption", err)
	}
}
