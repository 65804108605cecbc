package crud

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/studiowebux/halcrud/internal/executor"
	"github.com/studiowebux/halcrud/internal/types"
)

var widgetFields = []types.Field{
	{Key: "name", Label: "Name"},
	{Key: "color", Label: "Color"},
	{Key: "size"},
}

func TestNewFormHoldsExactlyConfiguredKeys(t *testing.T) {
	f := NewForm(widgetFields)

	assert.Equal(t, []string{"name", "color", "size"}, f.Keys())
	assert.Equal(t, map[string]string{"name": "", "color": "", "size": ""}, f.Values())

	require.NoError(t, f.Set("color", "red"))
	assert.Equal(t, "red", f.Get("color"))

	err := f.Set("weight", "10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownField))
	assert.NotContains(t, f.Values(), "weight")
	assert.Equal(t, "", f.Get("weight"))
}

func TestFormComplete(t *testing.T) {
	tests := []struct {
		name     string
		values   map[string]string
		required []string
		want     bool
	}{
		{"empty form", nil, []string{"name"}, false},
		{"whitespace only", map[string]string{"name": "  \t"}, []string{"name"}, false},
		{"filled", map[string]string{"name": "A"}, []string{"name"}, true},
		{"one of two", map[string]string{"name": "A"}, []string{"name", "color"}, false},
		{"nothing required", nil, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewForm(widgetFields)
			for k, v := range tt.values {
				require.NoError(t, f.Set(k, v))
			}
			assert.Equal(t, tt.want, f.Complete(tt.required))
		})
	}
}

func TestFormResetAndClone(t *testing.T) {
	f := NewForm(widgetFields)
	require.NoError(t, f.Set("name", "A"))

	c := f.clone()
	f.Reset()

	assert.Equal(t, "", f.Get("name"))
	assert.Equal(t, "A", c.Get("name"))
	assert.Equal(t, f.Keys(), c.Keys())
}

func TestBuildPayload(t *testing.T) {
	tests := []struct {
		name   string
		values map[string]string
		want   map[string]interface{}
	}{
		{
			name:   "blank becomes null",
			values: map[string]string{"name": "A", "color": "", "size": "   "},
			want:   map[string]interface{}{"name": "A", "color": nil, "size": nil},
		},
		{
			name:   "values are trimmed",
			values: map[string]string{"name": "  Alpha  ", "color": "\tred\n", "size": "L"},
			want:   map[string]interface{}{"name": "Alpha", "color": "red", "size": "L"},
		},
		{
			name:   "missing keys are null",
			values: map[string]string{},
			want:   map[string]interface{}{"name": nil, "color": nil, "size": nil},
		},
		{
			name:   "unconfigured keys are dropped",
			values: map[string]string{"name": "A", "extra": "x"},
			want:   map[string]interface{}{"name": "A", "color": nil, "size": nil},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildPayload(widgetFields, tt.values)
			assert.Equal(t, tt.want, got)

			again := make(map[string]string, len(got))
			for k, v := range got {
				if s, ok := v.(string); ok {
					again[k] = s
				}
			}
			assert.Equal(t, got, BuildPayload(widgetFields, again), "trimming must be idempotent")
		})
	}
}

func TestOutcome(t *testing.T) {
	apiErr := func(status int) error {
		return &executor.APIError{Method: "PUT", URL: "/widgets/1", Status: status}
	}

	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, OutcomeApplied},
		{"not found", apiErr(404), OutcomeGone},
		{"precondition failed", apiErr(412), OutcomeConflict},
		{"conflict", apiErr(409), OutcomeConflict},
		{"server error", apiErr(500), OutcomeFailed},
		{"transport error", errors.New("connection refused"), OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, classify(tt.err))
		})
	}

	assert.Equal(t, "skipped", OutcomeSkipped.String())
	assert.Equal(t, "applied", OutcomeApplied.String())
	assert.Equal(t, "gone", OutcomeGone.String())
	assert.Equal(t, "conflict", OutcomeConflict.String())
	assert.Equal(t, "failed", OutcomeFailed.String())
}

func TestErrInfo(t *testing.T) {
	info := errInfo(&executor.APIError{
		Method:     "DELETE",
		URL:        "/widgets/1",
		Status:     500,
		StatusText: "500 Internal Server Error",
		Data:       map[string]interface{}{"error": "boom"},
	})
	assert.Equal(t, "DELETE /widgets/1: 500 Internal Server Error", info.Message)
	assert.Equal(t, 500, info.Status)
	assert.Equal(t, map[string]interface{}{"error": "boom"}, info.Data)

	plain := errInfo(errors.New("dial tcp: refused"))
	assert.Equal(t, 0, plain.Status)
	assert.Nil(t, plain.Data)
}
