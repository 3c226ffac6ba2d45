package chat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"live-avatar-demo/internal/models"
)

func TestApplyFragment_StitchesByID(t *testing.T) {
	tr := NewTranscript()

	tr.ApplyFragment("5", "Hel")
	msgs := tr.ApplyFragment("5", "lo")

	require.Len(t, msgs, 1)
	assert.Equal(t, "5", msgs[0].ID)
	assert.Equal(t, "Hello", msgs[0].Text)
	assert.Equal(t, models.OriginReceived, msgs[0].Origin)
}

func TestApplyFragment_ConcatenatesInDeliveryOrder(t *testing.T) {
	tr := NewTranscript()
	fragments := []string{"The ", "quick ", "", "brown ", "fox", " ✓"}

	for _, f := range fragments {
		tr.ApplyFragment("m", f)
	}

	msg, ok := tr.Get("m")
	require.True(t, ok)
	assert.Equal(t, strings.Join(fragments, ""), msg.Text)
	assert.Equal(t, 1, tr.Len())
}

func TestApplyFragment_PreservesPosition(t *testing.T) {
	tr := NewTranscript()

	tr.ApplyFragment("a", "first")
	tr.AddLocal("b", "question")
	tr.ApplyFragment("c", "third")
	msgs := tr.ApplyFragment("a", " continued")

	require.Len(t, msgs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{msgs[0].ID, msgs[1].ID, msgs[2].ID})
	assert.Equal(t, "first continued", msgs[0].Text)
	for i, m := range msgs {
		assert.Equal(t, i, m.Position)
	}
}

func TestAddLocal_IsCompleteSentEntry(t *testing.T) {
	tr := NewTranscript()

	msgs := tr.AddLocal("u1", "hi avatar")

	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsSentByMe())
	assert.Equal(t, "hi avatar", msgs[0].Text)
}

func TestRemove_Reindexes(t *testing.T) {
	tr := NewTranscript()
	tr.AddLocal("a", "1")
	tr.AddLocal("b", "2")
	tr.AddLocal("c", "3")

	assert.True(t, tr.Remove("b"))
	assert.False(t, tr.Remove("b"))

	msgs := tr.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "c", msgs[1].ID)
	assert.Equal(t, 1, msgs[1].Position)

	tr.ApplyFragment("c", "!")
	msg, _ := tr.Get("c")
	assert.Equal(t, "3!", msg.Text)
}

func TestOnChange_FiresOnLengthOrTextChange(t *testing.T) {
	tr := NewTranscript()
	var calls int
	var last []models.ChatMessage
	tr.OnChange(func(msgs []models.ChatMessage) {
		calls++
		last = msgs
	})

	tr.ApplyFragment("a", "x")
	tr.ApplyFragment("a", "y")
	tr.ApplyFragment("a", "")
	assert.Equal(t, 2, calls)
	assert.Equal(t, "xy", last[0].Text)

	tr.Clear()
	assert.Equal(t, 3, calls)
	assert.Empty(t, last)

	tr.Clear()
	assert.Equal(t, 3, calls, "clearing an empty transcript is not a change")
}

func TestMessages_ReturnsCopy(t *testing.T) {
	tr := NewTranscript()
	tr.ApplyFragment("a", "original")

	msgs := tr.Messages()
	msgs[0].Text = "mutated"

	msg, _ := tr.Get("a")
	assert.Equal(t, "original", msg.Text)
}
