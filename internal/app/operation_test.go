package app

import "testing"

func TestNewRunRecord(t *testing.T) {
	for _, operation := range []string{OpCheck, OpBootstrap} {
		t.Run(operation, func(t *testing.T) {
			r := NewRunRecord(operation)

			if r.Operation != operation {
				t.Errorf("Operation = %q, want %q", r.Operation, operation)
			}
			if r.Status != "success" {
				t.Errorf("Status = %q, want %q", r.Status, "success")
			}
			if r.ID != 0 {
				t.Errorf("ID = %d, want 0", r.ID)
			}
			if r.Mutated {
				t.Error("Mutated = true, want false")
			}
		})
	}
}

func TestRunRecord_Persisted(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "not persisted when ID is 0", id: 0, want: false},
		{name: "persisted when ID is positive", id: 1, want: true},
		{name: "persisted when ID is large", id: 99999, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &RunRecord{ID: tt.id}
			if got := r.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}
