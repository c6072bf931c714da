package tracing

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartNestsThroughContext(t *testing.T) {
	ctx, root := Start(context.Background(), "build")
	require.NotEmpty(t, root.TraceID)
	assert.Same(t, root, FromContext(ctx))

	childCtx, load := Start(ctx, "load")
	_, walk := Start(childCtx, "walk")
	walk.End()
	load.End()
	_, encode := Start(ctx, "encode")
	encode.End()
	root.End()

	children := root.Children()
	require.Len(t, children, 2)
	assert.Equal(t, "load", children[0].Name)
	assert.Equal(t, "encode", children[1].Name)
	assert.Equal(t, root.TraceID, walk.TraceID)
	assert.Equal(t, []*Span{walk}, load.Children())
}

func TestSeparateRootsGetSeparateTraces(t *testing.T) {
	_, a := Start(context.Background(), "a")
	_, b := Start(context.Background(), "b")
	assert.NotEqual(t, a.TraceID, b.TraceID)
}

func TestFromContextWithoutSpan(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
}

func TestLogWritesTree(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	ctx, root := Start(context.Background(), "build")
	root.SetAttr("documents", 11)
	_, child := Start(ctx, "encode")
	child.End()
	root.End()
	root.Log(context.Background(), logger, slog.LevelDebug)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "build", first["span"])
	assert.Equal(t, float64(11), first["documents"])
	assert.Equal(t, float64(0), first["depth"])
	assert.Equal(t, "encode", second["span"])
	assert.Equal(t, float64(1), second["depth"])
	assert.Equal(t, first["trace_id"], second["trace_id"])
}
