// Package scrape pulls channel history through a Client, downloads media and
// writes one JSON batch per channel and day.
package scrape

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout names the per-day directories.
const DateLayout = "2006-01-02"

// RateLimitError is returned by a Client when the platform demands a wait.
type RateLimitError struct {
	Wait time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: wait %s", e.Wait)
}

// AsRateLimit unwraps err into a RateLimitError.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// Outcome is how one channel's run ended.
type Outcome string

// Channel outcomes.
const (
	OutcomeSucceeded   Outcome = "succeeded"
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeFailed      Outcome = "failed"
	OutcomeSkipped     Outcome = "skipped"
)

// Result is the complete output of one channel scrape.
type Result struct {
	Channel    string
	Messages   []Post
	MediaFiles []string
}

// ChannelReport summarizes one Scrape Run.
type ChannelReport struct {
	Channel    string        `json:"channel"`
	Date       string        `json:"date"`
	Outcome    Outcome       `json:"outcome"`
	Messages   int           `json:"messages"`
	MediaFiles int           `json:"media_files"`
	File       string        `json:"file,omitempty"`
	Checksum   string        `json:"sha256,omitempty"`
	Wait       time.Duration `json:"wait,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// Summary is the outcome of a coordinator pass over all channels.
type Summary struct {
	RunID    string          `json:"run_id"`
	Started  time.Time       `json:"started_at"`
	Finished time.Time       `json:"finished_at"`
	Channels []ChannelReport `json:"channels"`
}

// Count returns how many channels ended with outcome o.
func (s Summary) Count(o Outcome) int {
	n := 0
	for _, c := range s.Channels {
		if c.Outcome == o {
			n++
		}
	}
	return n
}

// RunEvent is published after a successful Scrape Run.
type RunEvent struct {
	RunID      string `json:"run_id"`
	Channel    string `json:"channel"`
	Date       string `json:"date"`
	Messages   int    `json:"messages"`
	MediaFiles int    `json:"media_files"`
	File       string `json:"file"`
	Checksum   string `json:"sha256,omitempty"`
}

// ChannelName returns the last path segment of a channel reference, so
// "https://t.me/name/", "t.me/name" and "@name" all become "name".
func ChannelName(ref string) string {
	ref = strings.TrimSpace(ref)
	ref = strings.TrimRight(ref, "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		ref = ref[i+1:]
	}
	return strings.TrimPrefix(ref, "@")
}
