package provider

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		credential string
		want       Tag
	}{
		{"groq key", "gsk_abc123", Groq},
		{"perplexity key", "pplx-abc123", Perplexity},
		{"huggingface key", "hf_abc123", HuggingFace},
		{"openai key", "sk-abc123", OpenAI},
		{"empty string", "", Unknown},
		{"random string", "not-a-key", Unknown},
		{"prefix embedded mid-string", "xxgsk_abc", Unknown},
		{"prefix alone", "gsk_", Groq},
		{"whitespace", "   ", Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.credential); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.credential, got, tt.want)
			}
		})
	}
}

// TestClassifyIsDeterministic runs the classifier twice over every rule prefix
// to confirm classification is stateless.
func TestClassifyIsDeterministic(t *testing.T) {
	for _, r := range prefixRules {
		first := Classify(r.prefix + "payload")
		second := Classify(r.prefix + "payload")
		if first != second {
			t.Errorf("Classify(%q) not deterministic: %q then %q", r.prefix, first, second)
		}
		if first != r.tag {
			t.Errorf("Classify(%q) = %q, want %q", r.prefix, first, r.tag)
		}
	}
}

func TestProfileFor(t *testing.T) {
	for _, tag := range []Tag{Groq, Perplexity, HuggingFace, OpenAI} {
		p, ok := ProfileFor(tag)
		if !ok {
			t.Fatalf("ProfileFor(%q): expected a profile", tag)
		}
		if p.BaseURL == "" || p.Model == "" {
			t.Errorf("ProfileFor(%q): incomplete profile %+v", tag, p)
		}
	}

	if _, ok := ProfileFor(Unknown); ok {
		t.Error("ProfileFor(Unknown) should not return a profile")
	}
	if Known(Unknown) {
		t.Error("Known(Unknown) should be false")
	}
}

func TestIsLocalHost(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"http://localhost:8080/v1", true},
		{"https://127.0.0.1/v1", true},
		{"https://[::1]:9090/v1", true},
		{"https://mysite.local/v1", true},
		{"https://api.groq.com/openai/v1", false},
		{"https://api.perplexity.ai", false},
		{"://bad-url", false},
	}

	for _, tt := range tests {
		if got := isLocalHost(tt.url); got != tt.want {
			t.Errorf("isLocalHost(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

// TestClientForHost verifies the insecure transport is only selected in dev
// mode and only for local hosts.
func TestClientForHost(t *testing.T) {
	prod := NewClient()
	if hc := prod.clientForHost("http://localhost:8080"); hc != nil {
		t.Error("production client must never use the insecure transport")
	}

	dev := NewClient(WithDevMode(true))
	if hc := dev.clientForHost("http://localhost:8080"); hc == nil {
		t.Error("dev client should use the insecure transport for localhost")
	}
	if hc := dev.clientForHost("https://api.groq.com/openai/v1"); hc != nil {
		t.Error("dev client must not use the insecure transport for remote hosts")
	}
}
