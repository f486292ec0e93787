package diff

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhi-compat/compatcheck/internal/exclude"
	"github.com/bodhi-compat/compatcheck/internal/tree"
)

var ordered = Options{}
var unordered = Options{IgnoreOrder: true}

func TestDiff_Reflexive(t *testing.T) {
	t.Parallel()
	docs := []string{
		`null`, `42`, `"x"`, `[]`, `{}`,
		`{"id":"chatcmpl-1","choices":[{"index":0,"message":{"role":"assistant","content":"Tuesday"},"logprobs":null}],"usage":{"total_tokens":52}}`,
		`[[1,2],[2,1],{"a":[null,true]}]`,
	}
	for _, doc := range docs {
		v := tree.MustJSON(doc)
		assert.True(t, Diff(v, v, ordered).Empty(), doc)
		assert.True(t, Diff(v, v, unordered).Empty(), doc)
	}
}

func TestDiff_TypeChanged(t *testing.T) {
	t.Parallel()
	r := Diff(tree.MustJSON(`{"age": 30}`), tree.MustJSON(`{"age": "30"}`), unordered)
	require.Equal(t, 1, r.Len())
	e, ok := r.Get(TypeChanged, "root.age")
	require.True(t, ok)
	assert.Equal(t, tree.KindNumber, e.Old.Kind())
	assert.Equal(t, tree.KindString, e.New.Kind())
}

func TestDiff_TypeChangedDoesNotDescend(t *testing.T) {
	t.Parallel()
	r := Diff(tree.MustJSON(`{"a":{"b":1}}`), tree.MustJSON(`{"a":[1]}`), ordered)
	assert.Equal(t, map[Category]int{TypeChanged: 1}, r.Counts())
}

func TestDiff_ValueChanged(t *testing.T) {
	t.Parallel()
	r := Diff(
		tree.MustJSON(`{"usage":{"completion_tokens":26,"prompt_tokens":26}}`),
		tree.MustJSON(`{"usage":{"completion_tokens":28,"prompt_tokens":26}}`),
		unordered,
	)
	require.Equal(t, 1, r.Len())
	e, ok := r.Get(ValueChanged, "root.usage.completion_tokens")
	require.True(t, ok)
	assert.Equal(t, "26", e.Old.String())
	assert.Equal(t, "28", e.New.String())
}

func TestDiff_NullVersusAbsent(t *testing.T) {
	t.Parallel()
	assert.True(t, Diff(tree.MustJSON(`{"a":null}`), tree.MustJSON(`{"a":null}`), ordered).Empty())

	added := Diff(tree.MustJSON(`{}`), tree.MustJSON(`{"logprobs":null}`), ordered)
	e, ok := added.Get(ItemAdded, "root.logprobs")
	require.True(t, ok)
	assert.True(t, e.New.IsNull())

	removed := Diff(tree.MustJSON(`{"logprobs":null}`), tree.MustJSON(`{}`), ordered)
	_, ok = removed.Get(ItemRemoved, "root.logprobs")
	assert.True(t, ok)

	typed := Diff(tree.MustJSON(`{"finish_reason":null}`), tree.MustJSON(`{"finish_reason":"stop"}`), ordered)
	_, ok = typed.Get(TypeChanged, "root.finish_reason")
	assert.True(t, ok)
}

func TestDiff_OrderedTail(t *testing.T) {
	t.Parallel()
	r := Diff(tree.MustJSON(`[1,2,3]`), tree.MustJSON(`[1,5]`), ordered)
	_, ok := r.Get(ValueChanged, "root[1]")
	assert.True(t, ok)
	_, ok = r.Get(ItemRemoved, "root[2]")
	assert.True(t, ok)
	assert.Equal(t, 2, r.Len())

	r = Diff(tree.MustJSON(`[1]`), tree.MustJSON(`[1,2,3]`), ordered)
	assert.Equal(t, map[Category]int{ItemAdded: 2}, r.Counts())
	_, ok = r.Get(ItemAdded, "root[2]")
	assert.True(t, ok)
}

func TestDiff_OrderSensitivity(t *testing.T) {
	t.Parallel()
	l := tree.MustJSON(`{"tags":["a","b","c"]}`)
	r := tree.MustJSON(`{"tags":["c","a","b"]}`)
	assert.False(t, Diff(l, r, ordered).Empty())
	assert.True(t, Diff(l, r, unordered).Empty())
}

func TestDiff_UnorderedPermutations(t *testing.T) {
	t.Parallel()
	items := []any{1, "two", nil, true, map[string]any{"k": []any{1, 2}}, []any{"x"}, 1, "two"}
	base := tree.MustAny(items)
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		perm := make([]any, len(items))
		for j, k := range rng.Perm(len(items)) {
			perm[j] = items[k]
		}
		assert.True(t, Diff(base, tree.MustAny(perm), unordered).Empty(), "permutation %v", perm)
	}
}

func TestDiff_UnorderedLeftovers(t *testing.T) {
	t.Parallel()
	r := Diff(tree.MustJSON(`[1,2,2,3]`), tree.MustJSON(`[2,4,1,2]`), unordered)
	assert.Equal(t, map[Category]int{ItemAdded: 1, ItemRemoved: 1}, r.Counts())
	removed, ok := r.Get(ItemRemoved, "root[3]")
	require.True(t, ok)
	assert.Equal(t, "3", removed.Old.String())
	added, ok := r.Get(ItemAdded, "root[1]")
	require.True(t, ok)
	assert.Equal(t, "4", added.New.String())
}

func TestDiff_UnorderedDuplicatesAreCounted(t *testing.T) {
	t.Parallel()
	r := Diff(tree.MustJSON(`[1,1]`), tree.MustJSON(`[1]`), unordered)
	assert.Equal(t, map[Category]int{ItemRemoved: 1}, r.Counts())
}

func TestDiff_UnorderedPairingIsMaximal(t *testing.T) {
	t.Parallel()
	// root[0].b is excluded, so the first left element fits either right
	// element while the second fits only the first. Pairing the first left
	// element greedily would strand the second.
	rules := exclude.MustRules("root[0].b")
	l := tree.MustJSON(`[{"a":1,"b":9},{"a":1,"b":2}]`)
	r := tree.MustJSON(`[{"a":1,"b":2},{"a":1,"b":5}]`)
	assert.True(t, Diff(l, r, Options{IgnoreOrder: true, Exclude: rules}).Empty())

	nested := exclude.MustRules("root[0].xs[0].b")
	l = tree.MustJSON(`{"xs":[{"a":1,"b":9},{"a":1,"b":2}]}`)
	r = tree.MustJSON(`{"xs":[{"a":1,"b":2},{"a":1,"b":5}]}`)
	assert.True(t, Diff(tree.Sequence(l), tree.Sequence(r), Options{IgnoreOrder: true, Exclude: nested}).Empty(),
		"nested sequences are paired the same way while testing equivalence")

	got := Diff(tree.MustJSON(`[{"a":1,"b":9},{"a":1,"b":2}]`), tree.MustJSON(`[{"a":1,"b":3},{"a":1,"b":5}]`),
		Options{IgnoreOrder: true, Exclude: rules})
	assert.Equal(t, map[Category]int{ItemAdded: 1, ItemRemoved: 1}, got.Counts())
	_, ok := got.Get(ItemRemoved, "root[1]")
	assert.True(t, ok, got.String())
}

func TestDiff_ExcludeAtDiffTime(t *testing.T) {
	t.Parallel()
	rules := exclude.MustRules("id", "created", "choices[*].message.content")
	l := tree.MustJSON(`{"id":"a","created":1,"choices":[{"index":0,"message":{"role":"assistant","content":"{\"age\":30}"}}]}`)
	r := tree.MustJSON(`{"id":"b","created":2,"choices":[{"index":0,"message":{"role":"assistant","content":"{\"age\": 30}"}}]}`)

	assert.True(t, Diff(l, r, Options{IgnoreOrder: true, Exclude: rules}).Empty(),
		"excluded content must not break order-insensitive pairing")
	assert.True(t, Diff(l, r, Options{Exclude: rules}).Empty())

	raw := Diff(l, r, unordered)
	assert.False(t, raw.Empty())
	assert.True(t, Filter(Diff(l, r, ordered), rules).Empty())
}

func TestDiff_ExcludeAddedKey(t *testing.T) {
	t.Parallel()
	rules := exclude.MustRules("root[*].system_fingerprint")
	r := Diff(tree.MustJSON(`[{"a":1}]`), tree.MustJSON(`[{"a":1,"system_fingerprint":"fp"}]`), Options{IgnoreOrder: true, Exclude: rules})
	assert.True(t, r.Empty())
}

func TestFilter_ExclusionEndToEnd(t *testing.T) {
	t.Parallel()
	r := Diff(
		tree.MustJSON(`{"usage":{"completion_tokens":26}}`),
		tree.MustJSON(`{"usage":{"completion_tokens":28}}`),
		unordered,
	)
	require.False(t, r.Empty())
	filtered := Filter(r, exclude.MustRules("usage.completion_tokens"))
	assert.True(t, filtered.Empty())
	assert.Equal(t, 1, r.Len(), "filter must not mutate its input")
}

func TestFilter_Soundness(t *testing.T) {
	t.Parallel()
	l := tree.MustJSON(`[{"id":"1","choices":[{"delta":{"role":"assistant","content":"A"}}]},{"id":"2","choices":[{"delta":{"content":"B"}}]}]`)
	r := tree.MustJSON(`[{"id":"x","choices":[{"delta":{"role":"user","content":"C"}}]},{"id":"y","choices":[{"delta":{"content":"D"}}]},{"id":"z"}]`)
	rules := exclude.MustRules("choices[*].delta.content", "root[*].id")

	full := Diff(l, r, ordered)
	filtered := Filter(full, rules)
	for _, e := range filtered.All() {
		assert.False(t, rules.Match(e.Path), "filtered report still holds %s", e.Path)
	}
	for _, e := range full.All() {
		if rules.Match(e.Path) {
			continue
		}
		got, ok := filtered.Get(e.Category, e.Path.String())
		require.True(t, ok, "entry %s dropped", e.Path)
		assert.Equal(t, e, got)
	}
	_, ok := filtered.Get(ValueChanged, "root[0].choices[0].delta.role")
	assert.True(t, ok)
	_, ok = filtered.Get(ItemAdded, "root[2]")
	assert.True(t, ok)
}

func TestReport_Claim(t *testing.T) {
	t.Parallel()
	r := Diff(
		tree.MustJSON(`{"usage":{"completion_tokens":26,"prompt_tokens":26},"object":"chat.completion"}`),
		tree.MustJSON(`{"usage":{"completion_tokens":28,"prompt_tokens":0},"object":"chat.completion.x"}`),
		ordered,
	)
	require.Equal(t, 3, r.Len())

	claimed, rest := r.Claim(ValueChanged, exclude.MustPattern("usage.*"), nil)
	assert.Equal(t, 2, claimed.Len())
	assert.Equal(t, 1, rest.Len())
	assert.Equal(t, 3, r.Len(), "claim must not mutate the receiver")

	onlyZero, _ := r.Claim(ValueChanged, nil, func(e Entry) bool { return e.New.String() == "0" })
	assert.Equal(t, 1, onlyZero.Len())
}

func TestReport_JSONRoundTrip(t *testing.T) {
	t.Parallel()
	r := Diff(
		tree.MustJSON(`{"age":30,"a":1,"gone":null,"n":[1]}`),
		tree.MustJSON(`{"age":"30","a":2,"new":{"x":1},"n":[1,2]}`),
		ordered,
	)
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"values_changed": {"root.a": {"old_value": 1, "new_value": 2}},
		"type_changes": {"root.age": {"old_type": "number", "new_type": "string", "old_value": 30, "new_value": "30"}},
		"item_added": {"root.new": {"new_value": {"x": 1}}, "root.n[1]": {"new_value": 2}},
		"item_removed": {"root.gone": {"old_value": null}}
	}`, string(data))

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, r.Counts(), back.Counts())
	e, ok := back.Get(TypeChanged, "root.age")
	require.True(t, ok)
	assert.True(t, tree.Equal(tree.String("30"), e.New))
}

func TestReport_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "{}", Report{}.String())
	r := Diff(tree.MustJSON(`{"finish_reason":"stop"}`), tree.MustJSON(`{"finish_reason":"length"}`), ordered)
	assert.Equal(t, "values_changed:\n  root.finish_reason: \"stop\" -> \"length\"", r.String())
}

func TestRequest_Do(t *testing.T) {
	t.Parallel()
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{
		"left":  {"id": "a", "tags": [1, 2], "n": 1},
		"right": {"id": "b", "tags": [2, 1], "n": 2},
		"ignore_order": true,
		"exclude": ["id"]
	}`), &req))

	rep, err := req.Do()
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Len())
	_, ok := rep.Get(ValueChanged, "root.n")
	assert.True(t, ok)

	req.Exclude = []string{"tags[*"}
	_, err = req.Do()
	assert.ErrorIs(t, err, exclude.ErrInvalidPattern)
}
