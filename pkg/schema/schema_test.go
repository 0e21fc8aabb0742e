package schema

import (
	"errors"
	"strings"
	"testing"

	"github.com/teslashibe/gazelog/pkg/sessionlog"
)

func TestDetect_ExactVersions(t *testing.T) {
	for _, s := range Known() {
		t.Run(s.Name, func(t *testing.T) {
			b, err := Detect(s.Header())
			if err != nil {
				t.Fatalf("Detect failed: %v", err)
			}
			if !b.Exact {
				t.Error("Expected exact match")
			}
			if b.Schema.Version != s.Version {
				t.Errorf("Expected version %d, got %d", s.Version, b.Schema.Version)
			}
			if b.Width != len(s.Columns)+1 {
				t.Errorf("Expected width %d, got %d", len(s.Columns)+1, b.Width)
			}
			if i, ok := b.Index(HeadX); !ok || i != 1 {
				t.Errorf("Expected head_x at 1, got %d, %v", i, ok)
			}
		})
	}
}

func TestDetect_NameBased(t *testing.T) {
	// Reordered columns plus an extra, with most optional columns dropped
	header := []string{"time", "focus_z", "focus_y", "focus_x", "extra", "head_z", "head_y", "head_x", "cue"}

	b, err := Detect(header)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if b.Exact {
		t.Error("Expected name-based binding")
	}
	if i, _ := b.Index(FocusX); i != 3 {
		t.Errorf("Expected focus_x at 3, got %d", i)
	}
	if i, _ := b.Index(Cue); i != 8 {
		t.Errorf("Expected cue at 8, got %d", i)
	}
	if b.Has("extra") {
		t.Error("Unknown columns should not be bound")
	}
	if b.Has(Wink) {
		t.Error("Missing optional columns should not be bound")
	}
}

func TestDetect_MissingRequired(t *testing.T) {
	_, err := Detect([]string{"time", "head_x", "head_y", "head_z", "wink"})
	if !errors.Is(err, ErrUnknownSchema) {
		t.Fatalf("Expected ErrUnknownSchema, got %v", err)
	}
	if !strings.Contains(err.Error(), "focus_x") {
		t.Errorf("Expected error to name the missing column, got %v", err)
	}
}

func TestDetect_RequiresTimeFirst(t *testing.T) {
	if _, err := Detect([]string{"head_x", "time"}); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Expected ErrUnknownSchema, got %v", err)
	}
	if _, err := Detect(nil); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Expected ErrUnknownSchema for empty header, got %v", err)
	}
}

func TestRegister_MatchesHeader(t *testing.T) {
	l := sessionlog.New(sessionlog.Config{Dir: t.TempDir()})
	if err := V2.Register(l); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := strings.Join(l.Header(), "\t")
	want := strings.Join(V2.Header(), "\t")
	if got != want {
		t.Errorf("Expected header %q, got %q", want, got)
	}

	fields := l.Fields()
	last := fields[len(fields)-1]
	if last.Name != Cue || !last.AlwaysFresh || last.Value != "-1" {
		t.Errorf("Expected always-fresh cue with initial -1, got %+v", last)
	}

	// Registering twice collides
	if err := V2.Register(l); !errors.Is(err, sessionlog.ErrDuplicateField) {
		t.Errorf("Expected ErrDuplicateField, got %v", err)
	}
}

func TestByVersion(t *testing.T) {
	s, err := ByVersion(1)
	if err != nil || s.Name != "v1" {
		t.Errorf("Expected v1, got %v, %v", s.Name, err)
	}
	if _, err := ByVersion(9); !errors.Is(err, ErrUnknownSchema) {
		t.Errorf("Expected ErrUnknownSchema, got %v", err)
	}
	if Current().Version != 2 {
		t.Errorf("Expected current version 2, got %d", Current().Version)
	}
}
