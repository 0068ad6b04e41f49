package auth

import (
	"errors"
	"testing"
)

func TestParseGrant(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Grant
		wantErr bool
	}{
		{"simple", "course:read", Grant{"course", "read"}, false},
		{"wildcard action", "course:*", Grant{"course", "*"}, false},
		{"uppercase normalized", "Course:READ", Grant{"course", "read"}, false},
		{"surrounding space", "  course:read  ", Grant{"course", "read"}, false},
		{"underscore and digits", "video_v2:play", Grant{"video_v2", "play"}, false},
		{"empty", "", Grant{}, true},
		{"no colon", "courseread", Grant{}, true},
		{"two colons", "course:read:all", Grant{}, true},
		{"empty resource", ":read", Grant{}, true},
		{"empty action", "course:", Grant{}, true},
		{"wildcard resource", "*:read", Grant{}, true},
		{"leading digit", "1course:read", Grant{}, true},
		{"hyphen", "course-v2:read", Grant{}, true},
		{"inner space", "cour se:read", Grant{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseGrant(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseGrant(%q): expected error, got %+v", tt.in, got)
				}
				if !errors.Is(err, ErrInvalidInput) {
					t.Fatalf("ParseGrant(%q): error = %v, want ErrInvalidInput", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseGrant(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("ParseGrant(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestGrantGrants(t *testing.T) {
	tests := []struct {
		name      string
		held      string
		requested string
		want      bool
	}{
		{"exact match", "course:read", "course:read", true},
		{"held wildcard covers specific", "course:*", "course:write", true},
		{"held wildcard covers wildcard", "course:*", "course:*", true},
		{"specific does not cover wildcard", "course:read", "course:*", false},
		{"different resource", "course:*", "video:read", false},
		{"different action", "course:read", "course:write", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			held := mustGrant(t, tt.held)
			requested := mustGrant(t, tt.requested)
			if got := held.Grants(requested); got != tt.want {
				t.Fatalf("%s.Grants(%s) = %v, want %v", tt.held, tt.requested, got, tt.want)
			}
		})
	}
}

func TestGrantMatchesIsSymmetric(t *testing.T) {
	wild := mustGrant(t, "course:*")
	specific := mustGrant(t, "course:read")

	if !wild.Matches(specific) || !specific.Matches(wild) {
		t.Fatal("Matches must hold in both directions when either side is a wildcard")
	}
	if specific.Grants(wild) {
		t.Fatal("Grants must not hold from specific toward wildcard")
	}
	other := mustGrant(t, "video:read")
	if wild.Matches(other) {
		t.Fatal("Matches must not cross resources")
	}
}

func TestGrantName(t *testing.T) {
	g := mustGrant(t, "Course:Read")
	if g.Name() != "course:read" {
		t.Fatalf("Name() = %q, want %q", g.Name(), "course:read")
	}
}

func mustGrant(t *testing.T, name string) Grant {
	t.Helper()
	g, err := ParseGrant(name)
	if err != nil {
		t.Fatalf("ParseGrant(%q): %v", name, err)
	}
	return g
}
