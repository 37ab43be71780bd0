package session

import "testing"

func TestTracker_AppendOrderAndConsumeOnce(t *testing.T) {
	tr := NewTracker()

	if ok := tr.AppendPrompt("hello", "hello.wav"); !ok {
		t.Fatal("append prompt rejected")
	}
	if ok := tr.AppendCounterpart("hello", "/rec/1.wav", "oui", "affirmative"); !ok {
		t.Fatal("append counterpart rejected")
	}
	tr.AppendPrompt("q1", "q1.wav")

	if tr.Len() != 3 {
		t.Fatalf("len = %d", tr.Len())
	}

	segs := tr.Consume()
	if len(segs) != 3 {
		t.Fatalf("consumed %d segments", len(segs))
	}
	if segs[0].Side != SidePrompt || segs[0].Step != "hello" {
		t.Fatalf("segment 0: %+v", segs[0])
	}
	if segs[1].Side != SideCounterpart || segs[1].Text != "oui" || segs[1].Label != "affirmative" {
		t.Fatalf("segment 1: %+v", segs[1])
	}
	if segs[0].Timestamp.IsZero() {
		t.Fatal("timestamps not stamped")
	}

	// Sealed: no second consume, no late appends.
	if again := tr.Consume(); again != nil {
		t.Fatalf("second consume returned %d segments", len(again))
	}
	if ok := tr.AppendPrompt("late", "late.wav"); ok {
		t.Fatal("append after consume accepted")
	}
	if tr.Len() != 0 {
		t.Fatalf("len after consume = %d", tr.Len())
	}
}
