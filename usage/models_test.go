package usage_test

import (
	"testing"

	"github.com/xraph/quota/types"
	"github.com/xraph/quota/usage"
)

func TestNewRecordDefaults(t *testing.T) {
	r := usage.New("alice", 7)
	if r.QuotaLimit != types.DefaultQuota {
		t.Errorf("expected default quota %d, got %d", types.DefaultQuota, r.QuotaLimit)
	}
	if r.UsedStorage != 0 {
		t.Errorf("expected zero usage, got %d", r.UsedStorage)
	}
	if r.LastUpdated != 7 {
		t.Errorf("expected marker 7, got %d", r.LastUpdated)
	}
	if r.Persisted() {
		t.Error("new record should not be persisted")
	}
}

func TestAvailable(t *testing.T) {
	tests := []struct {
		name  string
		limit uint64
		used  uint64
		want  uint64
	}{
		{"empty", 100, 0, 100},
		{"partial", 100, 40, 60},
		{"full", 100, 100, 0},
		{"over quota", 100, 150, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &usage.Record{QuotaLimit: tt.limit, UsedStorage: tt.used}
			if got := r.Available(); got != tt.want {
				t.Errorf("Available() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r := usage.New("bob", 1)
	c := r.Clone()
	c.UsedStorage = 10
	c.QuotaLimit = 1
	if r.UsedStorage != 0 || r.QuotaLimit != types.DefaultQuota {
		t.Error("mutating clone changed the original")
	}
}
