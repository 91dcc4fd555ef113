package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PasswordEnv lets scripts log in without a terminal.
const PasswordEnv = "PASSWORD"

var errNoPassword = errors.New("no password: set " + PasswordEnv + " or run from a terminal")

type credentials struct {
	email    string
	password string
}

// readCredentials asks for whatever the configuration did not provide. The
// password is never echoed and is only read from a terminal or PASSWORD.
func readCredentials(email string, in io.Reader, prompt io.Writer) (credentials, error) {
	r := bufio.NewReader(in)

	email = strings.TrimSpace(email)
	if email == "" {
		fmt.Fprint(prompt, "Email: ")
		line, err := r.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return credentials{}, fmt.Errorf("read email: %w", err)
		}
		email = strings.TrimSpace(line)
		if email == "" {
			return credentials{}, fmt.Errorf("%w: email is required", errUsage)
		}
	}

	if pw := os.Getenv(PasswordEnv); pw != "" {
		return credentials{email: email, password: pw}, nil
	}

	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return credentials{}, errNoPassword
	}
	fmt.Fprint(prompt, "Password: ")
	pw, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(prompt)
	if err != nil {
		return credentials{}, fmt.Errorf("read password: %w", err)
	}
	if len(pw) == 0 {
		return credentials{}, errNoPassword
	}
	return credentials{email: email, password: string(pw)}, nil
}
