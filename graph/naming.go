// ABOUTME: Bounded-retry numeric-suffix disambiguation for names and labels.
// ABOUTME: "Input" becomes "Input 1", "Input 1" becomes "Input 2", up to 100 attempts.

package graph

import (
	"log"
	"regexp"
	"strconv"
)

// MaxNameRetries bounds the suffix search; on exhaustion the last candidate is returned.
const MaxNameRetries = 100

var trailingNumber = regexp.MustCompile(`\s\d+$`)

// Disambiguate increments a trailing " <n>" (or appends " 1") until taken reports
// false. It gives up after MaxNameRetries and returns the last candidate.
func Disambiguate(base string, taken func(string) bool) string {
	name := base
	for retries := MaxNameRetries; taken(name); retries-- {
		if retries == 0 {
			log.Printf("component=graph action=unique_name_exhausted base=%q last=%q", base, name)
			return name
		}
		name = nextCandidate(name)
	}
	return name
}

func nextCandidate(name string) string {
	loc := trailingNumber.FindStringIndex(name)
	if loc == nil {
		return name + " 1"
	}
	n, err := strconv.Atoi(name[loc[0]+1:])
	if err != nil {
		return name + " 1"
	}
	return name[:loc[0]] + " " + strconv.Itoa(n+1)
}

// UniqueName disambiguates base against the names of ports.
func UniqueName(ports map[string]*Port, base string) string {
	return Disambiguate(base, func(candidate string) bool {
		for _, p := range ports {
			if p.Name == candidate {
				return true
			}
		}
		return false
	})
}

// UniqueProcessLabel disambiguates base against process labels.
func UniqueProcessLabel(processes map[string]*Process, base string) string {
	return Disambiguate(base, func(candidate string) bool {
		for _, p := range processes {
			if p.Label == candidate {
				return true
			}
		}
		return false
	})
}

// UniqueVariableLabel disambiguates base against variable labels.
func UniqueVariableLabel(variables map[string]*Variable, base string) string {
	return Disambiguate(base, func(candidate string) bool {
		for _, v := range variables {
			if v.Label == candidate {
				return true
			}
		}
		return false
	})
}
