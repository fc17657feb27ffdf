// ABOUTME: Tests for connection validation and integrity checking.
// ABOUTME: Exercises self loops, duplicates, direction, and cycle detection.

package graph

import (
	"errors"
	"testing"
)

func TestValidateConnection(t *testing.T) {
	m := fixture()
	tests := []struct {
		name        string
		source, dst string
		want        error
	}{
		{"self loop", "pi1", "pi1", ErrSelfLoop},
		{"duplicate", "i1", "pi1", ErrDuplicateConnection},
		{"backwards", "o1", "i1", ErrWrongDirection},
		{"cycle", "po2", "pi1", ErrCircular},
		{"inport breaks cycle rule", "i1", "pi2", nil},
		{"fine", "po2", "o1", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateConnection(m, tt.source, tt.dst)
			if tt.want == nil {
				if err != nil {
					t.Errorf("err = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateConnectionUnknownEndpoint(t *testing.T) {
	var nf *NotFoundError
	if err := ValidateConnection(fixture(), "ghost", "o1"); !errors.As(err, &nf) || nf.ID != "ghost" {
		t.Errorf("err = %v, want NotFoundError for ghost", err)
	}
}

func TestConnectAddsValidatedConnection(t *testing.T) {
	m := fixture()
	id, err := Connect(m, "po2", "o1")
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c := m.Connections[id]
	if c.Source != "po2" || c.Destination != "o1" || c.ObjectType != ObjectConnection {
		t.Errorf("connection = %+v", c)
	}
	if _, err := Connect(m, "po2", "o1"); !errors.Is(err, ErrDuplicateConnection) {
		t.Errorf("second Connect err = %v", err)
	}
}

func TestCheckIntegrityReportsProblems(t *testing.T) {
	m := fixture()
	if problems := CheckIntegrity(m); len(problems) != 0 {
		t.Fatalf("fixture should be clean, got %v", problems)
	}
	m.Connections["bad"] = &Connection{ObjectID: "bad", Source: "i1", Destination: "gone"}
	m.Variables["empty"] = &Variable{ObjectID: "empty", Label: "x"}
	problems := CheckIntegrity(m)
	if len(problems) != 2 {
		t.Fatalf("problems = %v, want 2", problems)
	}
	if problems[0].ElementID != "bad" || problems[1].ElementID != "empty" {
		t.Errorf("problems = %v", problems)
	}
}
