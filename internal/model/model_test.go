package model

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestSubscriptionValidate(t *testing.T) {
	tests := []struct {
		name    string
		sub     Subscription
		wantErr bool
	}{
		{name: "default", sub: NewSubscription(-100, "cn")},
		{name: "edge time", sub: Subscription{Servers: []string{"cn"}, Hour: 23, Minute: 59}},
		{name: "hour too large", sub: Subscription{Servers: []string{"cn"}, Hour: 24}, wantErr: true},
		{name: "negative minute", sub: Subscription{Servers: []string{"cn"}, Minute: -1}, wantErr: true},
		{name: "minute too large", sub: Subscription{Servers: []string{"cn"}, Minute: 60}, wantErr: true},
		{name: "no servers", sub: Subscription{Hour: 8}, wantErr: true},
		{name: "empty server", sub: Subscription{Servers: []string{""}, Hour: 8}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if diff := cmp.Diff(tt.wantErr, err != nil); diff != "" {
				t.Errorf("Validate() error mismatch (-want +got):\n%s\nerr: %v", diff, err)
			}
		})
	}
}

func TestSubscriptionClock(t *testing.T) {
	if diff := cmp.Diff("08:00", NewSubscription(1, "cn").Clock()); diff != "" {
		t.Errorf("Clock() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff("07:05", Subscription{Hour: 7, Minute: 5}.Clock()); diff != "" {
		t.Errorf("Clock() mismatch (-want +got):\n%s", diff)
	}
}

func TestSubscriptionClone(t *testing.T) {
	sent := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	orig := Subscription{GroupID: 1, Servers: []string{"cn"}, Hour: 8, LastSentAt: &sent}

	c := orig.Clone()
	c.Servers[0] = "os"
	*c.LastSentAt = sent.Add(time.Hour)

	if diff := cmp.Diff([]string{"cn"}, orig.Servers); diff != "" {
		t.Errorf("original servers changed (-want +got):\n%s", diff)
	}
	if !orig.LastSentAt.Equal(sent) {
		t.Errorf("original LastSentAt changed to %v", orig.LastSentAt)
	}
}
