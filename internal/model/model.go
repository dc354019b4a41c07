// Package model defines the domain types used across the application.
package model

import (
	"errors"
	"fmt"
	"time"
)

// Subscription defaults applied by the "on" command.
const (
	DefaultHour   = 8
	DefaultMinute = 0
)

// Subscription is a group's daily calendar delivery setting.
type Subscription struct {
	GroupID    int64
	Servers    []string
	Hour       int
	Minute     int
	LastSentAt *time.Time
}

// NewSubscription returns the default subscription for a group.
func NewSubscription(groupID int64, region string) Subscription {
	return Subscription{
		GroupID: groupID,
		Servers: []string{region},
		Hour:    DefaultHour,
		Minute:  DefaultMinute,
	}
}

// Validate reports whether the subscription can be stored and scheduled.
func (s Subscription) Validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("hour %d out of range 0-23", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("minute %d out of range 0-59", s.Minute)
	}
	if len(s.Servers) == 0 {
		return errors.New("at least one server region is required")
	}
	for _, r := range s.Servers {
		if r == "" {
			return errors.New("empty server region")
		}
	}
	return nil
}

// Clock formats the delivery time as zero-padded HH:MM.
func (s Subscription) Clock() string {
	return fmt.Sprintf("%02d:%02d", s.Hour, s.Minute)
}

// Clone returns a deep copy safe to hand out of a lock.
func (s Subscription) Clone() Subscription {
	c := s
	c.Servers = append([]string(nil), s.Servers...)
	if s.LastSentAt != nil {
		t := *s.LastSentAt
		c.LastSentAt = &t
	}
	return c
}

// Event is one entry shown on the calendar image.
type Event struct {
	Title     string
	Summary   string
	Link      string
	GUID      string
	Published time.Time
}

// FilterKind defines the type of filter rule.
type FilterKind string

// Supported filter kinds.
const (
	FilterInclude   FilterKind = "include"
	FilterExclude   FilterKind = "exclude"
	FilterIncludeRe FilterKind = "include_re"
	FilterExcludeRe FilterKind = "exclude_re"
)

// FilterScope defines which part of an event a filter matches against.
type FilterScope string

// Supported filter scopes.
const (
	ScopeTitle   FilterScope = "title"
	ScopeContent FilterScope = "content"
	ScopeAll     FilterScope = "all"
)

// Filter is a single rule deciding whether an announcement becomes a calendar event.
type Filter struct {
	Kind  FilterKind
	Scope FilterScope
	Value string
}
