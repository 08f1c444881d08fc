package memory

import (
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore_TrimAndRecent(t *testing.T) {
	s := NewInMemoryStore(4, time.Hour)
	defer s.Close()
	ctx := t.Context()

	for i := range 6 {
		require.NoError(t, s.Append(ctx, "s1", Message{Role: RoleUser, Content: fmt.Sprint(i)}))
	}

	all, err := s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "2", all[0].Content)

	last, err := s.Recent(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, []string{last[0].Content, last[1].Content})

	none, err := s.Recent(ctx, "other", 2)
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, s.Clear(ctx, "s1"))
	all, err = s.Recent(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInMemoryStore_Expiry(t *testing.T) {
	s := NewInMemoryStore(10, time.Minute)
	defer s.Close()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := t.Context()

	require.NoError(t, s.Append(ctx, "s1", Message{Role: RoleUser, Content: "hello"}))

	now = now.Add(2 * time.Minute)
	got, err := s.Recent(ctx, "s1", 5)
	require.NoError(t, err)
	assert.Empty(t, got)

	s.cleanup()
	assert.Empty(t, s.conversations)
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	s := NewRedisStore(client, 3, 10*time.Minute)
	ctx := t.Context()

	for i := range 5 {
		require.NoError(t, s.Append(ctx, "abc", Message{Role: RoleAssistant, Content: fmt.Sprint(i)}))
	}

	all, err := s.Recent(ctx, "abc", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "2", all[0].Content)
	assert.Equal(t, RoleAssistant, all[0].Role)
	assert.False(t, all[0].Timestamp.IsZero())

	last, err := s.Recent(ctx, "abc", 1)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Equal(t, "4", last[0].Content)

	assert.Equal(t, 10*time.Minute, mr.TTL("tender:session:abc"))
	mr.FastForward(11 * time.Minute)
	gone, err := s.Recent(ctx, "abc", 0)
	require.NoError(t, err)
	assert.Empty(t, gone)

	require.NoError(t, s.Append(ctx, "abc", Message{Role: RoleUser, Content: "x"}))
	require.NoError(t, s.Clear(ctx, "abc"))
	assert.False(t, mr.Exists("tender:session:abc"))
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := DialRedis(t.Context(), "redis://"+mr.Addr())
	require.NoError(t, err)
	client.Close()

	_, err = DialRedis(t.Context(), "not a url")
	assert.Error(t, err)
}

func TestFormatForPrompt(t *testing.T) {
	out := FormatForPrompt([]Message{
		{Role: RoleUser, Content: "What is the EMD?"},
		{Role: RoleAssistant, Content: "Rs. 2,00,000"},
		{Role: "system", Content: "ignored"},
	})
	assert.Equal(t, "User: What is the EMD?\nAssistant: Rs. 2,00,000\n", out)
	assert.Empty(t, FormatForPrompt(nil))
}
