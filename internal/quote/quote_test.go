package quote

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSource struct {
	mock.Mock
}

func (m *MockSource) Random(ctx context.Context) (Quote, error) {
	args := m.Called(ctx)
	return args.Get(0).(Quote), args.Error(1)
}

func TestNormalize(t *testing.T) {
	q, err := Normalize(Quote{Content: "  Café   au\tlait\n", Author: " Anon "})
	require.NoError(t, err)
	assert.Equal(t, "Café au lait", q.Content)
	assert.Equal(t, "Anon", q.Author)

	_, err = Normalize(Quote{Content: " \t\n"})
	assert.ErrorIs(t, err, ErrNoQuotes)
}

func TestStaticSkipsEmptyQuotes(t *testing.T) {
	s := NewStatic(Quote{Content: ""}, Quote{Content: "only one", Author: "me"})
	require.Equal(t, 1, s.Len())

	q, err := s.Random(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "only one", q.Content)
}

func TestStaticEmpty(t *testing.T) {
	_, err := NewStatic().Random(context.Background())
	assert.ErrorIs(t, err, ErrNoQuotes)
}

func TestStaticHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Default().Random(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDefaultHasQuotes(t *testing.T) {
	d := Default()
	assert.Greater(t, d.Len(), 5)
	for i := 0; i < 20; i++ {
		q, err := d.Random(context.Background())
		require.NoError(t, err)
		assert.NotEmpty(t, q.Content)
		assert.NotEmpty(t, q.Author)
	}
}

func TestDecode(t *testing.T) {
	quotes, err := Decode(strings.NewReader(`[
		{"content": "  two   words ", "author": " a "},
		{"content": "   ", "author": "blank"},
		{"content": "one"}
	]`))
	require.NoError(t, err)
	assert.Equal(t, []Quote{{Content: "two words", Author: "a"}, {Content: "one"}}, quotes)

	_, err = Decode(strings.NewReader(`[{"content": " "}]`))
	assert.ErrorIs(t, err, ErrNoQuotes)

	_, err = Decode(strings.NewReader(`{"content": "not a list"}`))
	assert.Error(t, err)
}

func TestFallback(t *testing.T) {
	ctx := context.Background()
	backup := NewStatic(Quote{Content: "backup text", Author: "b"})

	t.Run("primary ok", func(t *testing.T) {
		primary := &MockSource{}
		primary.On("Random", ctx).Return(Quote{Content: "from  db", Author: "p"}, nil).Once()

		q, err := WithFallback(primary, backup).Random(ctx)
		require.NoError(t, err)
		assert.Equal(t, "from db", q.Content)
		primary.AssertExpectations(t)
	})

	t.Run("primary fails", func(t *testing.T) {
		primary := &MockSource{}
		primary.On("Random", ctx).Return(Quote{}, errors.New("connection refused")).Once()

		q, err := WithFallback(primary, backup).Random(ctx)
		require.NoError(t, err)
		assert.Equal(t, "backup text", q.Content)
	})

	t.Run("primary returns blank", func(t *testing.T) {
		primary := &MockSource{}
		primary.On("Random", ctx).Return(Quote{Content: "   "}, nil).Once()

		q, err := WithFallback(primary, backup).Random(ctx)
		require.NoError(t, err)
		assert.Equal(t, "backup text", q.Content)
	})

	t.Run("cancelled context is not masked", func(t *testing.T) {
		cctx, cancel := context.WithCancel(context.Background())
		cancel()
		primary := &MockSource{}
		primary.On("Random", cctx).Return(Quote{}, context.Canceled).Once()

		_, err := WithFallback(primary, backup).Random(cctx)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
