// Package prompts supplies the assistant's instructions and welcome
// greeting.
package prompts

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	// Callers may run without a system zoneinfo database.
	_ "time/tzdata"
)

//go:embed defaults
var defaults embed.FS

const (
	GreetingFile     = "greeting0.txt"
	SystemPromptFile = "goal-tracker/system0.txt"

	DefaultTimeZone = "America/Chicago"
)

// Source serves prompt texts from a directory, falling back to the built-in
// texts for files the directory does not have.
type Source struct {
	dir      fs.FS
	location *time.Location

	greeting     string
	systemPrompt string
}

type Option func(*options)

type options struct {
	dir      fs.FS
	timeZone string
}

// WithDirectory loads prompt files from the directory at path
func WithDirectory(path string) Option {
	return func(o *options) {
		if path != "" {
			o.dir = os.DirFS(path)
		}
	}
}

// WithFS loads prompt files from fsys
func WithFS(fsys fs.FS) Option {
	return func(o *options) {
		o.dir = fsys
	}
}

// WithTimeZone sets the IANA time zone used for the date in the system prompt
func WithTimeZone(name string) Option {
	return func(o *options) {
		o.timeZone = name
	}
}

func New(opts ...Option) (*Source, error) {
	o := options{timeZone: DefaultTimeZone}
	for _, opt := range opts {
		opt(&o)
	}

	location, err := time.LoadLocation(o.timeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", o.timeZone, err)
	}

	s := &Source{dir: o.dir, location: location}
	if s.greeting, err = s.read(GreetingFile); err != nil {
		return nil, err
	}
	if s.systemPrompt, err = s.read(SystemPromptFile); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) read(name string) (string, error) {
	if s.dir != nil {
		content, err := fs.ReadFile(s.dir, name)
		if err == nil {
			return strings.TrimSpace(string(content)), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("failed to read prompt %s: %w", name, err)
		}
	}

	content, err := defaults.ReadFile("defaults/" + name)
	if err != nil {
		return "", fmt.Errorf("failed to read built-in prompt %s: %w", name, err)
	}
	return strings.TrimSpace(string(content)), nil
}

// Location is the time zone dates in prompts are rendered in
func (s *Source) Location() *time.Location {
	return s.location
}

// WelcomeGreeting is the first thing the assistant says on a call
func (s *Source) WelcomeGreeting() string {
	return s.greeting
}

// SystemPrompt returns the assistant's instructions prefixed with the
// current date and time, e.g.
//
//	Today is Friday, March 7, 2025 at 3:04 PM. You are a life coach...
func (s *Source) SystemPrompt(now time.Time) string {
	local := now.In(s.location)
	return fmt.Sprintf("Today is %s at %s. %s",
		local.Format("Monday, January 2, 2006"),
		local.Format("3:04 PM"),
		s.systemPrompt,
	)
}
