package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ErrMismatch is returned when the confirmation prompt differs from the first entry.
var ErrMismatch = errors.New("passphrases do not match")

// Prompter reads one secret from the operator. The default reads the
// controlling terminal without echo.
type Prompter func(prompt string) (string, error)

// Source resolves a keystore passphrase once, from an environment variable or
// by prompting, and caches the result.
type Source struct {
	envVar  string
	label   string
	confirm bool
	prompt  Prompter

	once  sync.Once
	value string
	err   error
}

// NewSource checks envVar before prompting. label names the keystore in
// prompts and errors, for example "maker" or "counterparty".
func NewSource(envVar, label string) *Source {
	label = strings.TrimSpace(label)
	if label == "" {
		label = "keystore"
	}
	return &Source{envVar: strings.TrimSpace(envVar), label: label}
}

// NewConfirmingSource is NewSource for keystores being created: an interactive
// entry must be typed twice.
func NewConfirmingSource(envVar, label string) *Source {
	s := NewSource(envVar, label)
	s.confirm = true
	return s
}

// WithPrompter replaces the terminal prompt.
func (s *Source) WithPrompter(p Prompter) *Source {
	s.prompt = p
	return s
}

// Get returns the passphrase, resolving it on first use. An environment value
// is used verbatim. Blank passphrases are refused from either origin.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := os.LookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}
	prompt := s.prompt
	if prompt == nil {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			if s.envVar != "" {
				return "", fmt.Errorf("%s passphrase required; set %s or run interactively", s.label, s.envVar)
			}
			return "", fmt.Errorf("%s passphrase required and no terminal available", s.label)
		}
		prompt = terminalPrompt(os.Stderr)
	}

	first, err := prompt(fmt.Sprintf("Enter %s passphrase: ", s.label))
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	if strings.TrimSpace(first) == "" {
		return "", errors.New("passphrase cannot be empty")
	}
	if s.confirm {
		second, err := prompt(fmt.Sprintf("Repeat %s passphrase: ", s.label))
		if err != nil {
			return "", fmt.Errorf("read passphrase: %w", err)
		}
		if second != first {
			return "", ErrMismatch
		}
	}
	return first, nil
}

func terminalPrompt(out io.Writer) Prompter {
	return func(prompt string) (string, error) {
		fmt.Fprint(out, prompt)
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	}
}
