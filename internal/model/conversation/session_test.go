package conversation

import "testing"

func TestIsExit(t *testing.T) {
	cases := []struct {
		message string
		want    bool
	}{
		{message: "exit", want: true},
		{message: " Exit ", want: true},
		{message: "EXIT\n", want: true},
		{message: "exit now", want: false},
		{message: "", want: false},
	}

	for _, tc := range cases {
		if got := IsExit(tc.message); got != tc.want {
			t.Fatalf("IsExit(%q) = %v, want %v", tc.message, got, tc.want)
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	active := []Turn{SystemTurn("persona"), UserTurn("pitch"), AssistantTurn("question?")}
	if got := DeriveStatus(active); got != StatusActive {
		t.Fatalf("DeriveStatus(active) = %s", got)
	}

	completed := append(CloneTurns(active), UserTurn("exit"), UserTurn(EvaluationPrompt), AssistantTurn("7/10"))
	if got := DeriveStatus(completed); got != StatusCompleted {
		t.Fatalf("DeriveStatus(completed) = %s", got)
	}
}

func TestCloneDoesNotShareTurns(t *testing.T) {
	original := Session{ID: "s1", Turns: []Turn{SystemTurn("persona")}}
	copied := original.Clone()
	copied.Turns[0].Content = "changed"

	if original.Turns[0].Content != "persona" {
		t.Fatalf("clone mutated original transcript")
	}
}
