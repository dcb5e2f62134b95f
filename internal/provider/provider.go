// Package provider identifies upstream LLM providers from credential
// formats and holds the per-provider endpoint and model catalog.
//
// All supported providers expose OpenAI-compatible chat-completion APIs, so
// a single generic client (see chat.go) serves every tag — only the base URL,
// model name, and credential differ.
package provider

import "strings"

// Tag identifies an upstream chat-completion provider.
type Tag string

const (
	Groq        Tag = "groq"
	Perplexity  Tag = "perplexity"
	HuggingFace Tag = "huggingface"
	OpenAI      Tag = "openai"
	Unknown     Tag = "unknown"
)

// prefixRules maps credential prefixes to provider tags. The slice is ordered
// and checked front to back; the order is fixed so classification stays
// auditable even though the prefixes never overlap in practice.
var prefixRules = []struct {
	prefix string
	tag    Tag
}{
	{"gsk_", Groq},
	{"pplx-", Perplexity},
	{"hf_", HuggingFace},
	{"sk-", OpenAI},
}

// Classify returns the provider tag for the given credential based on its
// literal prefix. It is pure and total: any input, including the empty
// string, yields exactly one tag. Unrecognised credentials yield Unknown.
func Classify(credential string) Tag {
	for _, r := range prefixRules {
		if strings.HasPrefix(credential, r.prefix) {
			return r.tag
		}
	}
	return Unknown
}

// Profile holds the connection parameters for one provider.
type Profile struct {
	// BaseURL is the OpenAI-compatible API root, e.g. "https://api.groq.com/openai/v1".
	BaseURL string

	// Model is the default chat model requested from this provider.
	Model string
}

// profiles is the closed catalog of supported providers.
var profiles = map[Tag]Profile{
	Groq: {
		BaseURL: "https://api.groq.com/openai/v1",
		Model:   "llama-3.1-8b-instant",
	},
	Perplexity: {
		BaseURL: "https://api.perplexity.ai",
		Model:   "llama-3.1-sonar-small-128k-online",
	},
	HuggingFace: {
		BaseURL: "https://router.huggingface.co/v1",
		Model:   "meta-llama/Llama-3.1-8B-Instruct",
	},
	OpenAI: {
		BaseURL: "https://api.openai.com/v1",
		Model:   "gpt-4o-mini",
	},
}

// ProfileFor returns the connection profile for tag.
// Returns (Profile{}, false) for Unknown or any unrecognised tag.
func ProfileFor(tag Tag) (Profile, bool) {
	p, ok := profiles[tag]
	return p, ok
}

// Known reports whether tag names a dispatchable provider.
func Known(tag Tag) bool {
	_, ok := profiles[tag]
	return ok
}
