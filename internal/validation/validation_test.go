package validation_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"go.pilab.hu/idcore/domain"
	"go.pilab.hu/idcore/internal/validation"
)

func TestValidUsername(t *testing.T) {
	for _, ok := range []string{"tim", "craig", "a1", "tim.cook@test.com", "john_doe-2"} {
		assert.True(t, validation.ValidUsername(ok), ok)
	}
	for _, bad := range []string{"", "a", "_tim", "tim.", "tim cook", "-x-"} {
		assert.False(t, validation.ValidUsername(bad), bad)
	}
}

func TestValidClientID(t *testing.T) {
	assert.True(t, validation.ValidClientID("3654a746-35d4-4321-ac61-0bdcff2b4055"))
	assert.True(t, validation.ValidClientID("my.client_1"))
	assert.False(t, validation.ValidClientID("has space"))
	assert.False(t, validation.ValidClientID(""))
}

func TestStruct(t *testing.T) {
	user := &domain.User{FirstName: "Tim", Email: "tim.cook@test.com", Username: "tim"}
	assert.NoError(t, validation.Struct(user))

	user.Username = "t"
	err := validation.Struct(user)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "Username")

	client := &domain.OIDCClient{
		ID:           "nextcloud",
		Name:         "Nextcloud",
		CallbackURLs: []string{"http://nextcloud/auth/callback", "/relative"},
	}
	err = validation.Struct(client)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Contains(t, err.Error(), "callback_url")

	client.CallbackURLs = client.CallbackURLs[:1]
	assert.NoError(t, validation.Struct(client))
}
