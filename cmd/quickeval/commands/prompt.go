package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"quickeval/internal/portal"
	"strings"

	"golang.org/x/term"
)

var (
	stdin        = bufio.NewReader(os.Stdin)
	isTerminal   = term.IsTerminal
	readPassword = term.ReadPassword
)

func promptLine(out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := stdin.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword does not echo the password when stdin is a terminal.
func promptPassword(out io.Writer, label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !isTerminal(fd) {
		return promptLine(out, label)
	}

	fmt.Fprint(out, label)
	password, err := readPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}

// promptCredentials asks for the student id and password, they only live in
// memory for the duration of the login.
func promptCredentials(out io.Writer) (portal.Credentials, error) {
	username, err := promptLine(out, "Student id: ")
	if err != nil {
		return portal.Credentials{}, err
	}
	password, err := promptPassword(out, "Password: ")
	if err != nil {
		return portal.Credentials{}, err
	}
	return portal.Credentials{Username: username, Password: password}, nil
}
