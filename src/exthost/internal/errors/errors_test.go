package errors

import (
	"fmt"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
)

func TestIsInvalidCascade(t *testing.T) {
	assert.True(t, IsInvalidCascade(&InvalidCascadeError{}))
	assert.True(t, IsInvalidCascade(fmt.Errorf("updating: %w", &InvalidCascadeError{})))
	assert.False(t, IsInvalidCascade(New("sample")))
	assert.False(t, IsInvalidCascade(nil))
}

func TestIsConnectionReplaced(t *testing.T) {
	err := fmt.Errorf("calling: %w", &ConnectionReplacedError{Method: "configuration.$acceptConfigurationData"})
	assert.True(t, IsConnectionReplaced(err))
	assert.Contains(t, err.Error(), "configuration.$acceptConfigurationData")
	assert.False(t, IsConnectionReplaced(&InvalidCascadeError{}))
	assert.Equal(t, "connection to extension host was replaced", (&ConnectionReplacedError{}).Error())
}

func TestNotFoundUUID(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	found, ok := NotFoundUUID(fmt.Errorf("wrapped: %w", &UUIDNotFoundError{UUID: id}))
	assert.True(t, ok)
	assert.Equal(t, id, found)

	_, ok = NotFoundUUID(New("sample"))
	assert.False(t, ok)
}

func TestSubjectNotFoundError(t *testing.T) {
	err := &SubjectNotFoundError{SubjectID: "user"}
	assert.Equal(t, `settings subject "user" not found`, err.Error())
}
