package template_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/template"
)

func TestRender(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		data map[string]any
		want string
	}{
		{
			name: "plain text untouched",
			body: "hello world",
			data: map[string]any{"name": "Ada"},
			want: "hello world",
		},
		{
			name: "single placeholder",
			body: "Hello {{name}}!",
			data: map[string]any{"name": "Ada"},
			want: "Hello Ada!",
		},
		{
			name: "multiple placeholders",
			body: "{{greeting}}, {{name}}. {{greeting}} again.",
			data: map[string]any{"greeting": "Hi", "name": "Ada"},
			want: "Hi, Ada. Hi again.",
		},
		{
			name: "missing key renders empty",
			body: "Hello {{name}}, your code is {{code}}.",
			data: map[string]any{"name": "Ada"},
			want: "Hello Ada, your code is .",
		},
		{
			name: "nil data renders empty placeholders",
			body: "Hello {{name}}!",
			data: nil,
			want: "Hello !",
		},
		{
			name: "numeric value",
			body: "You have {{count}} messages",
			data: map[string]any{"count": 3},
			want: "You have 3 messages",
		},
		{
			name: "whitespace inside placeholder",
			body: "Hello {{ name }}!",
			data: map[string]any{"name": "Ada"},
			want: "Hello Ada!",
		},
		{
			name: "unterminated placeholder emitted verbatim",
			body: "Hello {{name",
			data: map[string]any{"name": "Ada"},
			want: "Hello {{name",
		},
		{
			name: "conditional block true",
			body: "Start{{#if vip}} VIP{{/if}} End",
			data: map[string]any{"vip": true},
			want: "Start VIP End",
		},
		{
			name: "conditional block false",
			body: "Start{{#if vip}} VIP{{/if}} End",
			data: map[string]any{"vip": false},
			want: "Start End",
		},
		{
			name: "conditional block missing key",
			body: "Start{{#if vip}} VIP{{/if}} End",
			data: map[string]any{},
			want: "Start End",
		},
		{
			name: "conditional with placeholder inside",
			body: "{{#if name}}Hello {{name}}!{{/if}}",
			data: map[string]any{"name": "Ada"},
			want: "Hello Ada!",
		},
		{
			name: "nested conditionals",
			body: "{{#if a}}A{{#if b}}B{{/if}}C{{/if}}",
			data: map[string]any{"a": true, "b": true},
			want: "ABC",
		},
		{
			name: "nested conditional inner false",
			body: "{{#if a}}A{{#if b}}B{{/if}}C{{/if}}",
			data: map[string]any{"a": true, "b": false},
			want: "AC",
		},
		{
			name: "empty string is falsy",
			body: "{{#if name}}named{{/if}}",
			data: map[string]any{"name": ""},
			want: "",
		},
		{
			name: "zero is falsy",
			body: "{{#if count}}some{{/if}}",
			data: map[string]any{"count": 0},
			want: "",
		},
		{
			name: "unterminated conditional emitted verbatim",
			body: "{{#if a}}never closed",
			data: map[string]any{"a": true},
			want: "{{#if a}}never closed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, template.Render(tt.body, tt.data))
		})
	}
}

func TestDefinitionRender(t *testing.T) {
	t.Parallel()

	def := template.Definition{
		Subject: "Order {{order_id}} shipped",
		Body:    "Hi {{name}}, order {{order_id}} is on its way.",
		HTML:    "<p>Hi {{name}}</p>{{#if tracking}}<a>{{tracking}}</a>{{/if}}",
	}

	out := def.Render(map[string]any{
		"name":     "Ada",
		"order_id": "A-42",
		"tracking": "TRK123",
	})

	assert.Equal(t, "Order A-42 shipped", out.Subject)
	assert.Equal(t, "Hi Ada, order A-42 is on its way.", out.Body)
	assert.Equal(t, "<p>Hi Ada</p><a>TRK123</a>", out.HTML)
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	t.Run("preloaded definitions", func(t *testing.T) {
		t.Parallel()
		reg := template.NewRegistry(map[string]template.Definition{
			"welcome": {Subject: "Welcome {{name}}"},
		})

		def, ok := reg.Get("welcome")
		require.True(t, ok)
		assert.Equal(t, "Welcome {{name}}", def.Subject)
	})

	t.Run("missing template", func(t *testing.T) {
		t.Parallel()
		reg := template.NewRegistry(nil)
		_, ok := reg.Get("nope")
		assert.False(t, ok)
	})

	t.Run("register replaces", func(t *testing.T) {
		t.Parallel()
		reg := template.NewRegistry(nil)
		reg.Register("tpl", template.Definition{Body: "v1"})
		reg.Register("tpl", template.Definition{Body: "v2"})

		def, ok := reg.Get("tpl")
		require.True(t, ok)
		assert.Equal(t, "v2", def.Body)
	})
}
