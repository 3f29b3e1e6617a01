package compliance

import "testing"

func TestGenerateIDIsDeterministic(t *testing.T) {
	id1 := GenerateID(NISTCSF, "PR.AC-4", 0)
	id2 := GenerateID(NISTCSF, "PR.AC-4", 0)
	if id1 != id2 {
		t.Fatalf("GenerateID should be deterministic: %s != %s", id1, id2)
	}
	id3 := GenerateID(NISTCSF, "PR.AC-4", 1)
	if id1 == id3 {
		t.Fatal("different positions should yield different ids")
	}
}

func TestNewChunkIDMatchesGenerateID(t *testing.T) {
	c := NewChunk(ISO27001, "A.9.1.1", "Access control policy", "text", 2, nil)
	if c.ID != GenerateID(ISO27001, "A.9.1.1", 2) {
		t.Fatal("chunk id does not match GenerateID")
	}
}

func TestFilterByFramework(t *testing.T) {
	chunks := []*Chunk{
		NewChunk(NISTCSF, "ID.AM-1", "t", "x", 0, nil),
		NewChunk(ISO27001, "A.5.1.1", "t", "x", 0, nil),
	}
	got := FilterByFramework(chunks, NISTCSF)
	if len(got) != 1 || got[0].Framework != NISTCSF {
		t.Fatalf("unexpected filter result: %+v", got)
	}
}
