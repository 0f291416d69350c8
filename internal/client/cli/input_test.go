package cli

import (
	"bufio"
	"bytes"
	"errors"
	"strings"
	"testing"
)

func newPromptApp(input string) (*App, *bytes.Buffer) {
	var out bytes.Buffer
	a := &App{reader: bufio.NewReader(strings.NewReader(input)), out: &out}
	return a, &out
}

func TestPromptLine(t *testing.T) {
	a, _ := newPromptApp("hello world\n")
	got, err := a.promptLine("Name?")
	if err != nil || got != "hello world" {
		t.Fatalf("got %q, err=%v", got, err)
	}
}

func TestPromptLineEOF(t *testing.T) {
	a, _ := newPromptApp("lastline")
	got, err := a.promptLine("Name?")
	if err != nil || got != "lastline" {
		t.Fatalf("got %q, err=%v", got, err)
	}
}

func TestPromptBody_DoubleEnter(t *testing.T) {
	a, _ := newPromptApp("a\nb\n\n\n")
	got, err := a.promptBody("Enter text")
	if err != nil {
		t.Fatal(err)
	}
	want := "a\nb"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPromptCredentials(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return []byte("s3cret"), nil
	}

	a, out := newPromptApp("alice\n")
	username, password, err := a.promptCredentials("Username")
	if err != nil {
		t.Fatal(err)
	}
	if username != "alice" || string(password) != "s3cret" {
		t.Fatalf("got %q / %q", username, password)
	}
	if !strings.Contains(out.String(), "Enter password:") {
		t.Fatalf("password prompt missing in %q", out.String())
	}
}

func TestPromptCredentials_PasswordError(t *testing.T) {
	old := readPassword
	defer func() { readPassword = old }()
	readPassword = func(int) ([]byte, error) {
		return nil, errors.New("boom")
	}

	a, _ := newPromptApp("alice\n")
	if _, _, err := a.promptCredentials("Username"); err == nil {
		t.Fatal("expected error")
	}
}
