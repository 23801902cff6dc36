package main

import (
	"testing"

	"github.com/gogpu/storm"
	"github.com/gogpu/storm/backend"
)

func TestNewRegistryBackend(t *testing.T) {
	tests := []struct {
		name   string
		config string
		flag   string
		want   string
	}{
		{"config only", backend.NameNoop, "", backend.NameNoop},
		{"flag overrides config", backend.NameNoop, backend.NameSoftware, backend.NameSoftware},
		{"flag only", "", backend.NameNoop, backend.NameNoop},
		{"neither", "", "", backend.NameSoftware},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := storm.DefaultConfig()
			cfg.Backend = tt.config
			reg, err := newRegistry(cfg, tt.flag, 0)
			if err != nil {
				t.Fatalf("newRegistry() error = %v", err)
			}
			defer reg.Close()
			if got := reg.Backend().Name(); got != tt.want {
				t.Errorf("Backend().Name() = %q, want %q", got, tt.want)
			}
		})
	}
}
