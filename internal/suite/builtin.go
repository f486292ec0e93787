// Package suite defines the built-in compatibility cases and loads
// additional ones from YAML.
package suite

import (
	"github.com/bodhi-compat/compatcheck/internal/conformance"
	"github.com/bodhi-compat/compatcheck/internal/diff"
	"github.com/bodhi-compat/compatcheck/internal/stream"
)

// streamExclusions lists the volatile fields of chat.completion.chunk
// fragments. Finish reasons are compared by the terminal check instead.
func streamExclusions() []string {
	return []string{
		`re:^root\.fragments\[\d+\]\.(id|created|model|system_fingerprint)$`,
		`re:^root\.terminal\.(id|created|model|system_fingerprint)$`,
		"**.choices[*].delta.content",
		"**.choices[*].finish_reason",
	}
}

// granularity tolerates differing fragment counts.
func granularity() []conformance.Variance {
	return []conformance.Variance{
		{Category: diff.ItemAdded, Path: "root.fragments[*]", Optional: true, Reason: "chunk granularity"},
		{Category: diff.ItemRemoved, Path: "root.fragments[*]", Optional: true, Reason: "chunk granularity"},
	}
}

func overloadMessages() []any {
	return []any{
		map[string]any{
			"role":    "system",
			"content": "You are a helpful assistant. Do as directed by the user.",
			"name":    "user",
		},
		map[string]any{
			"role":    "user",
			"content": "Answer in one word. What day comes after Monday?",
			"name":    "user",
		},
	}
}

func overloadParams() map[string]any {
	return map[string]any{
		"messages":          overloadMessages(),
		"frequency_penalty": 1,
		"n":                 1,
		"presence_penalty":  1,
		"seed":              42,
		"temperature":       1,
		"top_p":             1,
		"user":              "user-1234",
	}
}

// Builtin returns the default compatibility suite. Each call returns fresh
// values that callers may modify.
func Builtin() []conformance.Case {
	usage := overloadParams()
	usage["stream_options"] = map[string]any{"include_usage": true}

	return []conformance.Case{
		{
			Name:        "format_json",
			Description: "JSON response_format yields the requested object",
			Operation:   conformance.OpChatCompletions,
			Stimulus: map[string]any{
				"seed": 42,
				"messages": []any{map[string]any{
					"role": "user",
					"content": "Generate a JSON object representing a person with " +
						"first name as John, last name as string Doe, age as 30",
				}},
				"response_format": map[string]any{"type": "json_object"},
			},
			// logprobs is only meaningful when requested; servers may omit the
			// null placeholder.
			Exclude: []string{"id", "created", "model", "system_fingerprint", "choices[0].message.content", "choices[*].logprobs"},
			Variances: []conformance.Variance{
				{Category: diff.ValueChanged, Path: "usage.*", Optional: true, Reason: "tokenizer dependent"},
			},
			Checks: []conformance.Check{
				conformance.JSONContent("", "choices[0].message.content",
					map[string]any{"firstName": "John", "lastName": "Doe", "age": 30}),
			},
		},
		{
			Name:        "stream_simple",
			Description: "Streamed one-word answer",
			Operation:   conformance.OpChatCompletions,
			Streaming:   true,
			Stimulus: map[string]any{
				"seed":     42,
				"messages": []any{map[string]any{"role": "user", "content": "Answer in one word. What day comes after Monday?"}},
			},
			Exclude:   streamExclusions(),
			Variances: granularity(),
			Usage:     conformance.UsageIgnore,
			Layout:    stream.LayoutSplit,
		},
		{
			Name:        "stream_overload",
			Description: "Streamed answer with every sampling parameter set",
			Operation:   conformance.OpChatCompletions,
			Streaming:   true,
			Stimulus:    overloadParams(),
			Exclude:     streamExclusions(),
			Variances:   granularity(),
			Usage:       conformance.UsageIgnore,
			Layout:      stream.LayoutSplit,
		},
		{
			Name:        "stream_usage",
			Description: "include_usage delivers a usage summary at the end of the stream",
			Operation:   conformance.OpChatCompletions,
			Streaming:   true,
			Stimulus:    usage,
			Exclude:     streamExclusions(),
			Variances:   granularity(),
			Usage:       conformance.UsageRequire,
			Layout:      stream.LayoutSplit,
		},
		{
			Name:        "models_list",
			Description: "Model listing is a non-empty list",
			Operation:   conformance.OpModelsList,
			Exclude:     []string{"data"},
			Checks:      []conformance.Check{conformance.NonEmpty("", "data")},
		},
		{
			Name:        "models_retrieve",
			Description: "Retrieving the configured model returns a model object",
			Operation:   conformance.OpModelsRetrieve,
			Exclude:     []string{"id", "created", "owned_by"},
		},
	}
}
