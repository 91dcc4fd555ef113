package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	tea "charm.land/bubbletea/v2"
	"github.com/sirupsen/logrus"

	"github.com/go-authgate/committee-cli/internal/config"
	"github.com/go-authgate/committee-cli/internal/logging"
	"github.com/go-authgate/committee-cli/tui"
)

var (
	flagServerURL *string
	flagTokenFile *string
	flagConfig    *string
	flagEmail     *string
	flagPageSize  *int
	flagLogLevel  *string
	flagLogFile   *string
)

const usage = `Usage: committee-cli [flags] <command> [args]

Commands:
  login                         sign in and store tokens
  logout                        forget the stored tokens
  whoami                        show the signed-in user
  resources                     list the resources your role can see
  list <resource>               print a whole collection
  submit <task-id> <link>       hand in work for a task
  feedback <submission-id> <comment> [score]
  attend <session-id> <user-id> <present|absent|excused|late>
  join <committee-id>           join a committee
  create-user <email> [first-name] [last-name] [admin|member]
                                admin: create an account

Flags:
`

func init() {
	// Define flags (but don't parse yet to avoid conflicts with test flags)
	flagServerURL = flag.String(
		"server-url",
		"",
		"API base URL (default: http://localhost:8000/api/ or SERVER_URL env)",
	)
	flagTokenFile = flag.String(
		"token-file",
		"",
		"Token storage file (default: .committee-tokens.json or TOKEN_FILE env)",
	)
	flagConfig = flag.String("config", "", "YAML config file (or CONFIG_PATH env)")
	flagEmail = flag.String("email", "", "Login email (or EMAIL env)")
	flagPageSize = flag.Int("page-size", 0, "Page size hint for list requests (or PAGE_SIZE env)")
	flagLogLevel = flag.String("log-level", "", "Log level: debug, info, warn, error (or LOG_LEVEL env)")
	flagLogFile = flag.String("log-file", "", "Write logs to this file (or LOG_FILE env)")

	flag.Usage = func() {
		fmt.Fprint(flag.CommandLine.Output(), usage)
		flag.PrintDefaults()
	}
}

// initConfig parses flags and loads configuration.
// Separated from init() to avoid conflicts with test flag parsing
func initConfig() (*config.Config, error) {
	flag.Parse()

	cfg, err := config.Load(*flagConfig)
	if err != nil {
		return nil, err
	}

	// Priority: flag > env > config file > default
	cfg.Apply(config.Overrides{
		ServerURL: *flagServerURL,
		TokenFile: *flagTokenFile,
		Email:     *flagEmail,
		PageSize:  *flagPageSize,
		LogLevel:  *flagLogLevel,
		LogFile:   *flagLogFile,
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Warn if using HTTP instead of HTTPS
	if cfg.PlaintextHTTP() {
		fmt.Fprintln(
			os.Stderr,
			"⚠️  WARNING: Using HTTP instead of HTTPS. Tokens will be transmitted in plaintext!",
		)
		fmt.Fprintln(
			os.Stderr,
			"⚠️  This is only safe for local development. Use HTTPS in production.",
		)
		fmt.Fprintln(os.Stderr)
	}
	return cfg, nil
}

// isTTY reports whether f is a character device (interactive terminal).
func isTTY(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	cfg, err := initConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	// Credentials are read before the TUI takes over the terminal.
	var creds credentials
	switch {
	case args[0] == cmdLogin:
		creds, err = readCredentials(cfg.Email, os.Stdin, os.Stderr)
	case args[0] == cmdCreateUser && len(args) > 1:
		// the password prompted for belongs to the new account
		creds, err = readCredentials(args[1], os.Stdin, os.Stderr)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}

	// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
	interactive := isTTY(os.Stderr)
	styled := isTTY(os.Stdout)

	// Data is buffered and written to stdout after the TUI released the terminal.
	var out bytes.Buffer

	if interactive {
		// Run TUI program on stderr so stdout pipes are not corrupted
		m := tui.NewModel()
		// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
		// capability queries (?2026/?2027). Ctrl+C is handled by signal.NotifyContext.
		p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(); err != nil {
				fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
			}
		}()

		d := tui.NewProgramDisplayer(p)
		d.Banner(cfg.ServerURL)
		runErr := run(cfg, d, args, creds, &out, styled, false)
		p.Quit() // let BubbleTea drain terminal query responses before exiting
		wg.Wait()
		_, _ = io.Copy(os.Stdout, &out)
		if runErr != nil {
			os.Exit(exitCode(runErr))
		}
	} else {
		d := tui.NewPlainDisplayer(os.Stderr)
		d.Banner(cfg.ServerURL)
		runErr := run(cfg, d, args, creds, &out, styled, true)
		_, _ = io.Copy(os.Stdout, &out)
		if runErr != nil {
			os.Exit(exitCode(runErr))
		}
	}
}

func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	return 1
}

// run executes one command. Logs go to the configured file, or to stderr in
// plain mode; the TUI owns stderr otherwise.
func run(
	cfg *config.Config,
	d tui.Displayer,
	args []string,
	creds credentials,
	out io.Writer,
	styled, logToStderr bool,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Environment: cfg.Environment,
	}
	if logToStderr {
		opts.Output = os.Stderr
	}
	log, closeLog, err := logging.New(opts)
	if err != nil {
		d.Fatal(err)
		return err
	}
	defer func() { _ = closeLog() }()

	a, err := newApp(cfg, d, log)
	if err != nil {
		d.Fatal(err)
		return err
	}
	a.out = out
	a.styled = styled

	log.WithFields(logrus.Fields{
		"command": strings.Join(args, " "),
		"server":  cfg.ServerURL,
	}).Debug("running command")

	if err := a.exec(ctx, args, creds); err != nil {
		if a.nav.expired.Load() {
			log.WithError(err).Debug("command aborted after the session expired")
		}
		d.Fatal(err)
		return err
	}
	return nil
}
