package config

import "testing"

func TestLoadConfigFromConsulKVRequiresKey(t *testing.T) {
	if _, err := LoadConfigFromConsulKV("localhost", 8500, ""); err == nil {
		t.Fatalf("expected error for empty kv key")
	}
}
