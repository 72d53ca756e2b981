package granite

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type generatorFunc func(ctx context.Context, prompt string, params Params) (*Result, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string, params Params) (*Result, error) {
	return f(ctx, prompt, params)
}

func TestProbe(t *testing.T) {
	var gotPrompt string
	var gotParams Params
	g := generatorFunc(func(_ context.Context, prompt string, params Params) (*Result, error) {
		gotPrompt, gotParams = prompt, params
		return &Result{Text: "\n  OK \n"}, nil
	})

	reply, err := Probe(context.Background(), g)
	require.NoError(t, err)
	assert.Equal(t, "OK", reply)
	assert.Equal(t, ProbePrompt, gotPrompt)
	assert.Equal(t, ProbeParams(), gotParams)
}

func TestProbe_Caps(t *testing.T) {
	g := generatorFunc(func(context.Context, string, Params) (*Result, error) {
		return &Result{Text: strings.Repeat("ж", 300)}, nil
	})
	reply, err := Probe(context.Background(), g)
	require.NoError(t, err)
	assert.Len(t, []rune(reply), 200)
}

func TestProbe_Error(t *testing.T) {
	g := generatorFunc(func(context.Context, string, Params) (*Result, error) {
		return nil, errors.New("down")
	})
	_, err := Probe(context.Background(), g)
	assert.EqualError(t, err, "down")
}
