package model_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentforge/core/model"
)

func TestFakeClient_RepeatsLastResponse(t *testing.T) {
	c := model.NewFakeClient(
		model.Response{Content: "first"},
		model.Response{Content: "second"},
	)
	r1, err := c.Complete(context.Background(), model.Request{})
	require.NoError(t, err)
	require.Equal(t, "first", r1.Content)

	r2, err := c.Complete(context.Background(), model.Request{})
	require.NoError(t, err)
	require.Equal(t, "second", r2.Content)

	r3, err := c.Complete(context.Background(), model.Request{})
	require.NoError(t, err)
	require.Equal(t, "second", r3.Content)
	require.Equal(t, 3, c.Calls())
}

func TestFakeClient_WithErrors(t *testing.T) {
	c := model.NewFakeClient(model.Response{Content: "ok"}).WithErrors(errors.New("boom"))
	_, err := c.Complete(context.Background(), model.Request{})
	require.Error(t, err)
}
