package domain

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewMessage_Fields(t *testing.T) {
	msg := NewMessage(RoleUser, "Hi")
	require.NotEmpty(t, msg.ID)
	require.Equal(t, RoleUser, msg.Role)
	require.Equal(t, "Hi", msg.Content)
	require.WithinDuration(t, time.Now(), msg.CreatedAt, 5*time.Second)
}

func TestNewMessage_UniqueIDs(t *testing.T) {
	a := NewMessage(RoleUser, "a")
	b := NewMessage(RoleUser, "a")
	require.NotEqual(t, a.ID, b.ID)
}

func TestConversation_AppendPreservesOrder(t *testing.T) {
	var c Conversation
	_, ok := c.Last()
	require.False(t, ok)

	c.Append(NewMessage(RoleUser, "first"))
	c.Append(NewMessage(RoleAssistant, "second"))
	require.Equal(t, 2, c.Len())

	last, ok := c.Last()
	require.True(t, ok)
	require.Equal(t, "second", last.Content)

	msgs := c.Messages()
	require.Equal(t, "first", msgs[0].Content)
	msgs[0].Content = "mutated"
	require.Equal(t, "first", c.Messages()[0].Content)
}

func TestLastOfRole(t *testing.T) {
	history := []Message{
		NewMessage(RoleUser, "question"),
		NewMessage(RoleAssistant, "answer"),
		NewMessage(RoleSystem, "Error: boom"),
	}
	m, ok := LastOfRole(history, RoleUser)
	require.True(t, ok)
	require.Equal(t, "question", m.Content)

	_, ok = LastOfRole(history[1:], RoleUser)
	require.False(t, ok)
}

func TestError_Templates(t *testing.T) {
	cases := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "credential store",
			err:  CredentialStoreError("AccessDeniedException", errors.New("not authorized")),
			want: "Credential store operation failed with status code: AccessDeniedException. Message: not authorized",
		},
		{
			name: "network status",
			err:  NetworkError(http.StatusUnauthorized, nil),
			want: "Network request failed: unexpected status 401 (Unauthorized)",
		},
		{
			name: "network transport",
			err:  NetworkError(0, errors.New("connection refused")),
			want: "Network request failed: connection refused",
		},
		{
			name: "decoding",
			err:  DecodingError("response contained no choices"),
			want: "Failed to decode API response: response contained no choices",
		},
		{
			name: "unknown",
			err:  UnknownError("API key not found"),
			want: "An unknown error occurred: API key not found",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.err.Error())
		})
	}
}

func TestError_UnwrapAndKind(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	wrapped := fmt.Errorf("outer: %w", NetworkError(0, cause))

	require.ErrorIs(t, wrapped, cause)
	require.Equal(t, KindNetwork, KindOf(wrapped))
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))

	e, ok := AsError(wrapped)
	require.True(t, ok)
	require.Zero(t, e.HTTPStatusCode())
}

func TestCredentialStoreError_DefaultsCode(t *testing.T) {
	err := CredentialStoreError("", errors.New("boom"))
	require.Equal(t, "unknown", err.Code)
	require.Contains(t, err.Error(), "boom")
}

func TestError_Nil(t *testing.T) {
	var e *Error
	require.Empty(t, e.Error())
	require.Nil(t, e.Unwrap())
	require.Zero(t, e.HTTPStatusCode())
}
