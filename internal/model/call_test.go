package model

import "testing"

// CallStatusが前進方向のみに遷移できることを検証
func TestCallStatus_CanTransitionTo_Forward(t *testing.T) {
	cases := []struct {
		from CallStatus
		to   CallStatus
		want bool
	}{
		{CallStatusStarting, CallStatusJoined, true},
		{CallStatusJoined, CallStatusInProgress, true},
		{CallStatusInProgress, CallStatusEnded, true},
		{CallStatusStarting, CallStatusFailed, true},
		{CallStatusEnded, CallStatusInProgress, false},
		{CallStatusInProgress, CallStatusJoined, false},
		{CallStatusInProgress, CallStatusInProgress, true},
		{CallStatus("unknown"), CallStatusEnded, false},
		{CallStatusStarting, CallStatus("unknown"), false},
	}

	for _, c := range cases {
		if got := c.from.CanTransitionTo(c.to); got != c.want {
			t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

// 終了状態の判定を検証
func TestCallStatus_IsTerminal(t *testing.T) {
	if !CallStatusEnded.IsTerminal() {
		t.Error("ended should be terminal")
	}
	if !CallStatusFailed.IsTerminal() {
		t.Error("failed should be terminal")
	}
	if CallStatusInProgress.IsTerminal() {
		t.Error("in_progress should not be terminal")
	}
}
