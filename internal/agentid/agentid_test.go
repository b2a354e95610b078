package agentid

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoresBothFields(t *testing.T) {
	id := uuid.MustParse("3f2b8c1d-4e5a-4b6c-8d7e-9f0a1b2c3d4e")
	ident, err := NewWithUUID("sales_bot", id)
	require.NoError(t, err)

	assert.Equal(t, "sales_bot", ident.DisplayName)
	assert.Equal(t, "sales_bot_3f2b8c1d_4e5a_4b6c_8d7e_9f0a1b2c3d4e", ident.FullID)
}

func TestCreatedAgentDisplayNameStripsGeneratedSuffix(t *testing.T) {
	ident, err := New("sales_bot")
	require.NoError(t, err)

	assert.Equal(t, "sales_bot", DisplayName(ident.FullID))
	assert.Equal(t, "sales_bot", Resolve("", ident.FullID).DisplayName)
	assert.NotEqual(t, ident.FullID, ident.DisplayName)
}

func TestValidatePrefix(t *testing.T) {
	tests := []struct {
		prefix  string
		wantErr bool
	}{
		{"sales_bot", false},
		{"Riley-2", false},
		{"9lives", false},
		{"", true},
		{"_leading", true},
		{"has space", true},
		{"emoji🙂", true},
		{strings.Repeat("a", 65), true},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			err := ValidatePrefix(tt.prefix)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidPrefix)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRejectsInvalidPrefix(t *testing.T) {
	_, err := New("bad name!")
	assert.ErrorIs(t, err, ErrInvalidPrefix)
}

func TestDisplayName(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"riley", "riley"},
		{"sales_bot", "sales_bot"},
		{"a_b_c_d", "a_b_c_d"},
		{"sales_bot_3f2b8c1d_4e5a_4b6c_8d7e_9f0a1b2c3d4e", "sales_bot"},
		{"bot_3f2b8c1d_4e5a_4b6c_8d7e", "bot"},
		{"one_two_three_four_five", "one_two_three_four"},
		{"x_3f2b8c1d_4e5a_4b6c_8d7e_9f0a1b2c3d4e", "x"},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayName(tt.raw))
		})
	}
}

func TestResolvePrefersStoredDisplayName(t *testing.T) {
	ident := Resolve("Front Desk", "front_desk_3f2b8c1d_4e5a_4b6c_8d7e_9f0a1b2c3d4e")
	assert.Equal(t, "Front Desk", ident.DisplayName)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "my_app__v2_", Sanitize("My App (v2)"))
	assert.Equal(t, "support-bot_1", Sanitize("Support-Bot_1"))
}
