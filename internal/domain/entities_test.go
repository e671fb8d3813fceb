package domain

import "testing"

func TestDecisionString(t *testing.T) {
	if DecisionAllow.String() != "allow" {
		t.Fatalf("ожидали allow, получили %q", DecisionAllow.String())
	}
	if DecisionBlock.String() != "block" {
		t.Fatalf("ожидали block, получили %q", DecisionBlock.String())
	}
	if Decision(42).String() != "block" {
		t.Fatalf("неизвестный вердикт должен трактоваться как block")
	}
}
