package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
// In tests you can replace it with a stub to avoid touching the terminal.
var readPassword = term.ReadPassword

// promptLine asks a one-line question (username, recipient, message id)
// and returns the whitespace-trimmed answer. A line cut short by EOF
// still counts as an answer.
func (a *App) promptLine(prompt string) (string, error) {
	if _, err := fmt.Fprint(a.out, prompt+"\n> "); err != nil {
		return "", err
	}
	line, err := a.reader.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || len(line) == 0) {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptCredentials asks for a username and then a password. The password
// is read from the terminal without echo; the caller wipes it once the
// request is on the wire.
func (a *App) promptCredentials(usernamePrompt string) (string, []byte, error) {
	username, err := a.promptLine(usernamePrompt)
	if err != nil {
		return "", nil, err
	}

	if _, err := fmt.Fprint(a.out, "Enter password: "); err != nil {
		return "", nil, err
	}
	password, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(a.out)
	if err != nil {
		return "", nil, err
	}
	return username, password, nil
}

// promptBody collects a message body line by line until the first empty
// line. Lines are joined with '\n'.
func (a *App) promptBody(prompt string) (string, error) {
	if _, err := fmt.Fprint(a.out, prompt+"\n(press Enter on an empty line to finish)\n"); err != nil {
		return "", err
	}

	var lines []string
	for {
		line, _ := a.reader.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		lines = append(lines, line)
	}

	return strings.TrimSpace(strings.Join(lines, "\n")), nil
}
