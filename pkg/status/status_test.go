package status

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorTaxonomyDispatch(t *testing.T) {
	err := NewStateError("release without a matching get")

	var stateErr *StateError
	assert.True(t, errors.As(err, &stateErr))

	var timeoutErr *TimeoutError
	assert.False(t, errors.As(err, &timeoutErr))
}

func TestNoManagerError(t *testing.T) {
	err := NewNoManagerError()
	var noManager *NoManagerError
	assert.True(t, errors.As(err, &noManager))
	assert.Contains(t, err.Error(), "no manager connection")
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "ObjectExists", KObjectExists.String())
	assert.Equal(t, "UnknownError", Code(999).String())
}
