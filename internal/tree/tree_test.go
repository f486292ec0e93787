package tree

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromJSON_Kinds(t *testing.T) {
	t.Parallel()
	v, err := FromJSON([]byte(`{"a":null,"b":true,"c":1.5,"d":"x","e":{"f":[1,2]}}`))
	require.NoError(t, err)
	assert.Equal(t, KindMapping, v.Kind())
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, v.Keys())

	a, _ := v.Get("a")
	assert.True(t, a.IsNull())
	b, _ := v.Get("b")
	assert.Equal(t, KindBool, b.Kind())
	c, _ := v.Get("c")
	lit, ok := c.NumberLiteral()
	require.True(t, ok)
	assert.Equal(t, "1.5", lit)

	f, ok := v.Lookup(MustPath("e.f[1]"))
	require.True(t, ok)
	assert.Equal(t, "2", f.String())
}

func TestFromJSON_TrailingData(t *testing.T) {
	t.Parallel()
	_, err := FromJSON([]byte(`{} {}`))
	assert.Error(t, err)
}

func TestFromAny_Struct(t *testing.T) {
	t.Parallel()
	type usage struct {
		CompletionTokens int `json:"completion_tokens"`
	}
	v, err := FromAny(struct {
		ID    string `json:"id"`
		Usage *usage `json:"usage"`
	}{ID: "x", Usage: &usage{CompletionTokens: 26}})
	require.NoError(t, err)
	assert.True(t, Equal(MustJSON(`{"id":"x","usage":{"completion_tokens":26}}`), v))
}

func TestFromAny_NilPointer(t *testing.T) {
	t.Parallel()
	var p *struct{ A int }
	v, err := FromAny(p)
	require.NoError(t, err)
	assert.True(t, v.IsNull())
}

func TestFromAny_NonFinite(t *testing.T) {
	t.Parallel()
	for _, x := range []any{math.NaN(), math.Inf(1), float32(math.Inf(-1)), map[string]any{"want": []any{math.NaN()}}} {
		_, err := FromAny(x)
		assert.ErrorIs(t, err, ErrNonFinite, "%v", x)
	}
	v, err := FromAny(1.5)
	require.NoError(t, err)
	assert.Equal(t, "1.5", v.String())
}

func TestEqual(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal scalars", `"x"`, `"x"`, true},
		{"integral number forms", `30`, `30.0`, true},
		{"different numbers", `26`, `28`, false},
		{"number vs string", `30`, `"30"`, false},
		{"null both", `null`, `null`, true},
		{"key order", `{"a":1,"b":2}`, `{"b":2,"a":1}`, true},
		{"missing key", `{"a":1}`, `{"a":1,"b":null}`, false},
		{"sequence order", `[1,2]`, `[2,1]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(MustJSON(tt.a), MustJSON(tt.b)))
		})
	}
}

func TestMarshalJSON_SortedKeys(t *testing.T) {
	t.Parallel()
	v := MustJSON(`{"z":1,"a":[true,null,"s"],"m":{"y":2,"b":1}}`)
	b, err := json.Marshal(v)
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,null,"s"],"m":{"b":1,"y":2},"z":1}`, string(b))
}

func TestValue_UnmarshalJSON(t *testing.T) {
	t.Parallel()
	var holder struct {
		Left Value `json:"left"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"left":{"n":12345678901234567890}}`), &holder))
	n, _ := holder.Left.Get("n")
	lit, _ := n.NumberLiteral()
	assert.Equal(t, "12345678901234567890", lit)
}

func TestWithout(t *testing.T) {
	t.Parallel()
	v := MustJSON(`{"a":1,"usage":{"total_tokens":3}}`)
	stripped := v.Without("usage")
	assert.Equal(t, []string{"a"}, stripped.Keys())
	assert.Equal(t, []string{"a", "usage"}, v.Keys(), "receiver must not change")
}

func TestPath_String(t *testing.T) {
	t.Parallel()
	p := Root().Key("choices").Index(0).Key("delta").Key("content")
	assert.Equal(t, "root.choices[0].delta.content", p.String())
	assert.Equal(t, "root", Root().String())
	assert.Equal(t, `root['model_fields.set']['it\'s']`, Root().Key("model_fields.set").Key("it's").String())
}

func TestParsePath_RoundTrip(t *testing.T) {
	t.Parallel()
	paths := []Path{
		Root(),
		Root().Key("usage").Key("completion_tokens"),
		Root().Index(3).Key("choices").Index(0).Key("finish_reason"),
		Root().Key("a.b").Key("c d").Index(12),
		Root().Key("quote'd"),
	}
	for _, p := range paths {
		parsed, err := ParsePath(p.String())
		require.NoError(t, err, p.String())
		assert.True(t, p.Equal(parsed), "%s != %s", p, parsed)
	}
}

func TestParsePath_OptionalRoot(t *testing.T) {
	t.Parallel()
	a := MustPath("usage.completion_tokens")
	b := MustPath("root.usage.completion_tokens")
	c := MustPath("root['usage'].completion_tokens")
	assert.True(t, a.Equal(b))
	assert.True(t, a.Equal(c))
	assert.True(t, MustPath("[2].id").Equal(Root().Index(2).Key("id")))
	assert.True(t, MustPath("rooted.x").Equal(Root().Key("rooted").Key("x")))
}

func TestParsePath_Errors(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"a..b", "a[", "a[x]", "a[-1]", "a['b"} {
		_, err := ParsePath(s)
		assert.Error(t, err, s)
	}
}

func TestPath_Ancestors(t *testing.T) {
	t.Parallel()
	p := MustPath("a[0].b")
	anc := p.Ancestors()
	require.Len(t, anc, 4)
	assert.Equal(t, "root.a[0].b", anc[0].String())
	assert.Equal(t, "root", anc[3].String())
	assert.True(t, p.HasPrefix(MustPath("a")))
	assert.False(t, p.HasPrefix(MustPath("b")))
}
