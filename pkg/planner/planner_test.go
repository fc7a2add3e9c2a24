package planner

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alantheprice/svgmap/pkg/chat"
	"github.com/alantheprice/svgmap/pkg/prompts"
	"github.com/alantheprice/svgmap/pkg/utils"
)

const islandReply = `{
    "layers": [
        {"type": "background", "desc": "The ocean covers the whole map."},
        {"type": "island", "desc": "A sandy island in the center."},
        {"type": "trees", "desc": "A few palm trees on the island."}
    ]
}`

type recordingTransport struct {
	calls [][]chat.Message
	model string
	cred  string
	reply string
	err   error
}

func (r *recordingTransport) Send(_ context.Context, credential, model string, messages []chat.Message) (string, error) {
	r.calls = append(r.calls, messages)
	r.model = model
	r.cred = credential
	return r.reply, r.err
}

func quietLogger() *utils.Logger {
	return utils.NewLogger(io.Discard, nil)
}

func TestPlan(t *testing.T) {
	tr := &recordingTransport{reply: islandReply}
	p := New(tr, "gpt-3.5-turbo", quietLogger())

	plan, err := p.Plan(context.Background(), "sk-test", "A small island with a sandy beach and a few palm trees")
	require.NoError(t, err)

	assert.Equal(t, []string{"background", "island", "trees"}, plan.Keys())
	assert.Equal(t, "A sandy island in the center.", plan[1].Description)

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "gpt-3.5-turbo", tr.model)
	assert.Equal(t, "sk-test", tr.cred)
	assert.Equal(t, []chat.Message{
		{Role: "user", Content: prompts.PlannerInstruction},
		{Role: "user", Content: "A small island with a sandy beach and a few palm trees"},
	}, tr.calls[0])
}

func TestPlanEmptyDescription(t *testing.T) {
	tr := &recordingTransport{reply: islandReply}
	p := New(tr, "m", quietLogger())

	_, err := p.Plan(context.Background(), "k", "  \n ")
	assert.ErrorIs(t, err, ErrEmptyDescription)
	assert.Empty(t, tr.calls)
}

func TestPlanTransportFailure(t *testing.T) {
	tr := &recordingTransport{err: &chat.TransportError{Op: "status", StatusCode: 500, Err: chat.ErrStatus}}
	p := New(tr, "m", quietLogger())

	_, err := p.Plan(context.Background(), "k", "a lake")
	require.Error(t, err)
	assert.True(t, chat.IsTransportError(err))

	var pe *PlanParseError
	assert.False(t, errors.As(err, &pe))
}

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  []string
	}{
		{"plain json", islandReply, []string{"background", "island", "trees"}},
		{"fenced json", "```json\n" + islandReply + "\n```", []string{"background", "island", "trees"}},
		{"prose around json", "Sure! Here is the plan:\n" + islandReply + "\nEnjoy.", []string{"background", "island", "trees"}},
		{"description field", `{"layers":[{"type":"Rolling Hills","description":"green hills"}]}`, []string{"rolling-hills"}},
		{"duplicates", `{"layers":[{"type":"trees","desc":"a"},{"type":"trees","desc":"b"}]}`, []string{"trees", "trees-2"}},
		{"empty list", `{"layers":[]}`, []string{}},
		{"braces in strings", `{"layers":[{"type":"sign","desc":"a sign reading \"}{\""}]}`, []string{"sign"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Parse(tt.reply)
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan.Keys())
		})
	}
}

func TestParseDescriptionPrefersDesc(t *testing.T) {
	plan, err := Parse(`{"layers":[{"type":"river","desc":"short","description":"long"}]}`)
	require.NoError(t, err)
	assert.Equal(t, "short", plan[0].Description)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		wantErr error
	}{
		{"not json", "I cannot help with that.", nil},
		{"truncated", `{"layers":[{"type":"a"`, nil},
		{"missing layers", `{"features":[]}`, ErrMissingLayers},
		{"null layers", `{"layers":null}`, ErrMissingLayers},
		{"wrong type", `{"layers":"background"}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.reply)
			require.Error(t, err)

			var pe *PlanParseError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.reply, pe.Reply)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
