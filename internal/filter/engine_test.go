package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"starrail_calendar/internal/model"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		event   model.Event
		filters []model.Filter
		want    bool
	}{
		{
			name:    "no filters passes everything",
			event:   model.Event{Title: "anything", Summary: "whatever"},
			filters: nil,
			want:    true,
		},
		{
			name:  "include word matches",
			event: model.Event{Title: "Event Warp: Cosmic Cruise", Summary: "Limited warp"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "warp"},
			},
			want: true,
		},
		{
			name:  "include word no match",
			event: model.Event{Title: "Fan Art Contest", Summary: "Winners"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "warp"},
			},
			want: false,
		},
		{
			name:  "include is case insensitive",
			event: model.Event{Title: "EVENT WARP now live"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "Warp"},
			},
			want: true,
		},
		{
			name:  "exclude word blocks match",
			event: model.Event{Title: "Version 4.2 Maintenance Notice", Summary: "Compensation"},
			filters: []model.Filter{
				{Kind: model.FilterExclude, Scope: model.ScopeAll, Value: "maintenance"},
			},
			want: false,
		},
		{
			name:  "include + exclude: both match, exclude wins",
			event: model.Event{Title: "Event Warp maintenance"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "warp"},
				{Kind: model.FilterExclude, Scope: model.ScopeAll, Value: "maintenance"},
			},
			want: false,
		},
		{
			name:  "multiple includes OR logic: second matches",
			event: model.Event{Title: "Web Event: Starlight Gala"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "warp"},
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "web event"},
			},
			want: true,
		},
		{
			name:  "regex include matches",
			event: model.Event{Title: "Double Drop Event: Calyx"},
			filters: []model.Filter{
				{Kind: model.FilterIncludeRe, Scope: model.ScopeTitle, Value: `warp|drop|event`},
			},
			want: true,
		},
		{
			name:  "regex exclude blocks",
			event: model.Event{Title: "Fan Art Contest Results"},
			filters: []model.Filter{
				{Kind: model.FilterExcludeRe, Scope: model.ScopeAll, Value: `contest.*results`},
			},
			want: false,
		},
		{
			name:  "unicode include",
			event: model.Event{Title: "「星旅寻迹」活动现已开启"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeAll, Value: "活动"},
			},
			want: true,
		},
		{
			name:  "scope title: word only in summary does not match",
			event: model.Event{Title: "Notice", Summary: "Event warp details"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeTitle, Value: "warp"},
			},
			want: false,
		},
		{
			name:  "scope content: word in summary matches",
			event: model.Event{Title: "Notice", Summary: "Event warp details"},
			filters: []model.Filter{
				{Kind: model.FilterInclude, Scope: model.ScopeContent, Value: "warp"},
			},
			want: true,
		},
		{
			name:  "exclude scope content: word in title is not excluded",
			event: model.Event{Title: "Maintenance rewards event", Summary: "Claim now"},
			filters: []model.Filter{
				{Kind: model.FilterExclude, Scope: model.ScopeContent, Value: "maintenance"},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := Compile(tt.filters)
			if err != nil {
				t.Fatalf("Compile() error: %v", err)
			}
			got := set.Match(tt.event)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Match() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name   string
		filter model.Filter
	}{
		{name: "invalid regex", filter: model.Filter{Kind: model.FilterIncludeRe, Scope: model.ScopeAll, Value: "[invalid"}},
		{name: "bad repetition", filter: model.Filter{Kind: model.FilterExcludeRe, Scope: model.ScopeAll, Value: "*bad"}},
		{name: "unknown kind", filter: model.Filter{Kind: "maybe", Scope: model.ScopeAll, Value: "x"}},
		{name: "unknown scope", filter: model.Filter{Kind: model.FilterInclude, Scope: "body", Value: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Compile([]model.Filter{tt.filter}); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestApplyKeepsOrder(t *testing.T) {
	set, err := Compile([]model.Filter{
		{Kind: model.FilterExclude, Scope: model.ScopeTitle, Value: "contest"},
	})
	if err != nil {
		t.Fatalf("Compile() error: %v", err)
	}
	events := []model.Event{{Title: "b warp"}, {Title: "contest"}, {Title: "a gala"}}

	var got []string
	for _, ev := range set.Apply(events) {
		got = append(got, ev.Title)
	}
	if diff := cmp.Diff([]string{"b warp", "a gala"}, got); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRules(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []model.Filter
		wantErr bool
	}{
		{name: "empty", input: "", want: nil},
		{
			name:  "single rule",
			input: "exclude:title:maintenance",
			want:  []model.Filter{{Kind: model.FilterExclude, Scope: model.ScopeTitle, Value: "maintenance"}},
		},
		{
			name:  "several rules with blanks and colon in value",
			input: " include_re:all:^event:.*; ;Exclude:Content:promo ",
			want: []model.Filter{
				{Kind: model.FilterIncludeRe, Scope: model.ScopeAll, Value: "^event:.*"},
				{Kind: model.FilterExclude, Scope: model.ScopeContent, Value: "promo"},
			},
		},
		{name: "missing value", input: "include:all:", wantErr: true},
		{name: "missing scope", input: "include", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRules(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseRules() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
