package mqtt

import (
	"testing"
	"time"
)

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter string
		topic  string
		want   bool
	}{
		{"fleet/telemetry", "fleet/telemetry", true},
		{"fleet/telemetry", "fleet/other", false},
		{"fleet/+", "fleet/telemetry", true},
		{"fleet/+", "fleet/telemetry/v1", false},
		{"fleet/#", "fleet/telemetry/v1", true},
		{"+/telemetry", "fleet/telemetry", true},
		{"fleet/telemetry", "fleet", false},
	}
	for _, c := range cases {
		if got := TopicMatches(c.filter, c.topic); got != c.want {
			t.Fatalf("TopicMatches(%q, %q) = %v, want %v", c.filter, c.topic, got, c.want)
		}
	}
}

func TestSharedSubscription(t *testing.T) {
	if got := SharedSubscription("smartfleet-group", "fleet/telemetry"); got != "$share/smartfleet-group/fleet/telemetry" {
		t.Fatalf("unexpected shared filter: %s", got)
	}
	if got := SharedSubscription("", "fleet/telemetry"); got != "fleet/telemetry" {
		t.Fatalf("expected plain topic when group empty, got %s", got)
	}
	if got := SharedTopicFilter("$share/smartfleet-group/fleet/telemetry"); got != "fleet/telemetry" {
		t.Fatalf("unexpected unwrapped filter: %s", got)
	}
}

func TestClientConfigValidate(t *testing.T) {
	cfg := &ClientConfig{BrokerURL: "mqtt://localhost:1883", ClientID: "c1"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.KeepAlive == 0 || cfg.ConnectTimeout < time.Second {
		t.Fatalf("expected defaults to be applied, got %+v", cfg)
	}

	bad := &ClientConfig{ClientID: "c1"}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for empty broker url")
	}
}
