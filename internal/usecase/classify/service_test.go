package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"noti-sentry/internal/domain"
)

type stubSettings struct {
	settings domain.Settings
}

func (s *stubSettings) Snapshot() domain.Settings { return s.settings }

type stubOracle struct {
	decision    domain.Decision
	err         error
	calls       int
	instruction string
	text        string
}

func (s *stubOracle) Classify(_ context.Context, instruction, text string) (domain.Decision, error) {
	s.calls++
	s.instruction = instruction
	s.text = text
	return s.decision, s.err
}

func TestDecideBlocksWhenSmartFilterDisabled(t *testing.T) {
	oracle := &stubOracle{decision: domain.DecisionAllow}
	service := NewService(zerolog.Nop(), &stubSettings{settings: domain.Settings{SmartFilterEnabled: false}}, oracle, 0)

	decision := service.Decide(context.Background(), domain.Notification{ParsedText: "[App] hi"})
	if decision != domain.DecisionBlock {
		t.Fatalf("без умной категоризации ожидали Block, получили %v", decision)
	}
	if oracle.calls != 0 {
		t.Fatalf("оракул не должен вызываться при выключенной категоризации")
	}
}

func TestDecidePassesInstructionAndText(t *testing.T) {
	oracle := &stubOracle{decision: domain.DecisionAllow}
	settings := &stubSettings{settings: domain.Settings{
		SmartFilterEnabled: true,
		FilterInstruction:  "only family messages",
	}}
	service := NewService(zerolog.Nop(), settings, oracle, 0)

	decision := service.Decide(context.Background(), domain.Notification{ParsedText: "[Messages] Mom\nMom: dinner?"})
	if decision != domain.DecisionAllow {
		t.Fatalf("ожидали вердикт оракула, получили %v", decision)
	}
	if oracle.instruction != "only family messages" {
		t.Fatalf("оракул должен получать инструкцию пользователя, получил %q", oracle.instruction)
	}
	if oracle.text != "[Messages] Mom\nMom: dinner?" {
		t.Fatalf("оракул должен получать каноничное представление, получил %q", oracle.text)
	}
	if oracle.calls != 1 {
		t.Fatalf("ожидали ровно один запрос к оракулу, получили %d", oracle.calls)
	}
}

func TestDecideFailsClosedOnOracleError(t *testing.T) {
	oracle := &stubOracle{decision: domain.DecisionAllow, err: errors.New("timeout")}
	service := NewService(zerolog.Nop(), &stubSettings{settings: domain.Settings{SmartFilterEnabled: true}}, oracle, 0)

	decision := service.Decide(context.Background(), domain.Notification{ParsedText: "[App] hi"})
	if decision != domain.DecisionBlock {
		t.Fatalf("при сбое оракула ожидали Block, получили %v", decision)
	}
}
