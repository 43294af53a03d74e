// Package timeparse implements the pure time-string-to-deadline function
// spec.md §6 treats as an external collaborator ("time-of-day string
// parsing... treated as a pure function") — something in this repo still
// has to implement it, since `sat enqueue` consumes it directly.
//
// Grammar (spec.md §6, supplemented from original_source/src/parse_time.c
// where spec.md is silent — see SPEC_FULL.md):
//
//	HH:MM[:SS[.NNNNNNNNN]][ ]([Zz]|UTC)   wall clock, UTC
//	+HH:MM[:SS[.NNNNNNNNN]]               boot-monotonic, day-aligned + now
//	+SEC[.NNNNNNNNN]                      boot-monotonic, relative offset
//	SEC[.NNNNNNNNN]                       wall clock, absolute seconds-count
//
// A wall-clock time already passed within the last 24 hours is shifted
// forward by one day; beyond that it is rejected (EDOM in the original).
package timeparse

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sat-sched/sat/internal/job"
)

const oneDay = 24 * time.Hour

// Now supplies the current time on each clock the grammar can select.
type Now struct {
	Wall time.Time
	Boot time.Time
}

// Result is a successfully parsed deadline.
type Result struct {
	Deadline time.Time
	Clock    job.ClockKind
	// Warnings holds advisory messages the original program prints to
	// stderr (missing explicit UTC marker, past time rolled to tomorrow).
	// Parse never fails because of these; the caller decides whether to
	// surface them.
	Warnings []string
}

// Parse converts str into an absolute deadline and the clock it's
// measured on.
func Parse(str string, now Now) (Result, error) {
	if str == "mañana" {
		return Result{Deadline: now.Wall.Add(oneDay), Clock: job.ClockWall}, nil
	}

	plus := strings.HasPrefix(str, "+")
	clock := job.ClockWall
	nowT := now.Wall
	if plus {
		clock = job.ClockBoot
		nowT = now.Boot
	}
	rest := str
	if plus {
		rest = rest[1:]
	}

	var secs int64
	var nsec int64
	var err error
	hadColon := strings.Contains(rest, ":")

	if hadColon {
		secs, rest, err = parseClockTime(rest)
		if err != nil {
			return Result{}, err
		}
		dayStart := nowT.Unix() - (nowT.Unix() % int64(oneDay/time.Second))
		secs += dayStart
	} else {
		secs, rest, err = parseSecondsCount(rest)
		if err != nil {
			return Result{}, err
		}
	}

	if strings.HasPrefix(rest, ".") {
		nsec, rest, err = parseNanoseconds(rest[1:])
		if err != nil {
			return Result{}, err
		}
		if nsec >= int64(time.Second) {
			secs++
			nsec -= int64(time.Second)
		}
	}

	var warnings []string
	rest = strings.TrimSpace(rest)
	if rest != "" {
		if clock == job.ClockBoot {
			return Result{}, fmt.Errorf("timeparse: %q: unexpected trailing %q on a boot-relative time", str, rest)
		}
		if !strings.EqualFold(rest, "Z") && !strings.EqualFold(rest, "UTC") {
			return Result{}, fmt.Errorf("timeparse: %q: expected trailing Z or UTC, got %q", str, rest)
		}
	} else if clock == job.ClockWall {
		warnings = append(warnings, "parsing as UTC, you can avoid this warning by adding a 'Z' at the end of the time argument")
	}

	deadlineSec := secs
	if clock == job.ClockBoot {
		deadlineSec += nowT.Unix()
		nsec += int64(nowT.Nanosecond())
		if nsec >= int64(time.Second) {
			deadlineSec++
			nsec -= int64(time.Second)
		}
	} else if deadlineSec < nowT.Unix() {
		deadlineSec += int64(oneDay / time.Second)
		if deadlineSec < nowT.Unix() {
			return Result{}, fmt.Errorf("timeparse: %q: specified time is more than a day in the past", str)
		}
		if !hadColon {
			warnings = append(warnings, "the specified time is in the past, it is being adjusted to be tomorrow instead")
		}
	}

	return Result{
		Deadline: time.Unix(deadlineSec, nsec),
		Clock:    clock,
		Warnings: warnings,
	}, nil
}

// parseClockTime parses "HH:MM[:SS]" (hours unrestricted beyond 23,
// minutes must be < 60, seconds unrestricted to allow leap seconds) and
// returns the seconds-of-time value plus whatever text follows.
func parseClockTime(s string) (secs int64, rest string, err error) {
	h, s, err := leadingDigits(s)
	if err != nil {
		return 0, "", fmt.Errorf("timeparse: %q: invalid hour: %w", s, err)
	}
	secs = h * 3600

	if !strings.HasPrefix(s, ":") {
		return 0, "", fmt.Errorf("timeparse: expected ':' after hour")
	}
	s = s[1:]
	m, s, err := leadingDigits(s)
	if err != nil {
		return 0, "", fmt.Errorf("timeparse: %q: invalid minute: %w", s, err)
	}
	if m >= 60 {
		return 0, "", fmt.Errorf("timeparse: minute %d out of range", m)
	}
	secs += m * 60

	if !strings.HasPrefix(s, ":") {
		return secs, s, nil
	}
	s = s[1:]
	sec, s, err := leadingDigits(s)
	if err != nil {
		return 0, "", fmt.Errorf("timeparse: %q: invalid second: %w", s, err)
	}
	secs += sec
	return secs, s, nil
}

func parseSecondsCount(s string) (secs int64, rest string, err error) {
	return leadingDigits(s)
}

// leadingDigits consumes the longest leading run of ASCII digits,
// returning it as an int64 and the remainder of the string.
func leadingDigits(s string) (int64, string, error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, "", fmt.Errorf("expected a digit, got %q", s)
	}
	v, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("value out of range: %q", s[:i])
	}
	return v, s[i:], nil
}

// parseNanoseconds implements spec.md §9's rounding rule: digits beyond
// the ninth are ignored, except the tenth, which rounds the ninth digit
// up (with carry) when it is >= 5; behavior beyond the tenth digit is
// documented here as "ignored", resolving the spec's stated ambiguity.
func parseNanoseconds(s string) (nsec int64, rest string, err error) {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		switch {
		case i < 9:
			nsec *= 10
			nsec += int64(s[i] - '0')
		case i == 9:
			if s[i] >= '5' {
				nsec++
			}
		}
		i++
	}
	for points := i; points < 9; points++ {
		nsec *= 10
	}
	return nsec, s[i:], nil
}
