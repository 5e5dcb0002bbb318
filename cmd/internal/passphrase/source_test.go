package passphrase

import (
	"errors"
	"testing"
)

func TestSourceReadsEnvironment(t *testing.T) {
	t.Setenv("OTC_TEST_PASS", "correct horse")
	src := NewSource("OTC_TEST_PASS", "maker")
	got, err := src.Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "correct horse" {
		t.Fatalf("unexpected passphrase %q", got)
	}
	t.Setenv("OTC_TEST_PASS", "changed")
	if again, _ := src.Get(); again != "correct horse" {
		t.Fatalf("expected cached value, got %q", again)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("OTC_TEST_PASS", "   ")
	if _, err := NewSource("OTC_TEST_PASS", "").Get(); err == nil {
		t.Fatalf("expected error for blank passphrase")
	}
}

func scripted(answers ...string) (Prompter, *int) {
	calls := 0
	return func(string) (string, error) {
		if calls >= len(answers) {
			return "", errors.New("no more input")
		}
		calls++
		return answers[calls-1], nil
	}, &calls
}

func TestConfirmingSourcePromptsTwice(t *testing.T) {
	prompt, calls := scripted("hunter22", "hunter22")
	got, err := NewConfirmingSource("", "new keystore").WithPrompter(prompt).Get()
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != "hunter22" || *calls != 2 {
		t.Fatalf("unexpected result %q after %d prompts", got, *calls)
	}
}

func TestConfirmingSourceRejectsMismatch(t *testing.T) {
	prompt, _ := scripted("hunter22", "hunter23")
	if _, err := NewConfirmingSource("", "").WithPrompter(prompt).Get(); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
}

func TestPromptedBlankRejected(t *testing.T) {
	prompt, calls := scripted("  ")
	if _, err := NewSource("", "maker").WithPrompter(prompt).Get(); err == nil {
		t.Fatalf("expected blank passphrase error")
	}
	if *calls != 1 {
		t.Fatalf("expected a single prompt, got %d", *calls)
	}
}

func TestEnvironmentSkipsPrompt(t *testing.T) {
	t.Setenv("OTC_TEST_PASS", "from-env")
	prompt, calls := scripted()
	got, err := NewConfirmingSource("OTC_TEST_PASS", "maker").WithPrompter(prompt).Get()
	if err != nil || got != "from-env" || *calls != 0 {
		t.Fatalf("got %q err %v prompts %d", got, err, *calls)
	}
}
