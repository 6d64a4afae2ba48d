package errors

import (
	"encoding/json"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	base := errors.New("connection refused")

	fatal := FatalError(base, "is the docker socket mounted?")
	assert.True(t, IsFatal(fatal))
	assert.False(t, IsService(fatal))
	assert.Equal(t, "connection refused", fatal.Error())

	wrapped := errors.Wrap(fatal, "querying engine version")
	assert.True(t, IsFatal(wrapped))
	assert.Equal(t, base, errors.Cause(wrapped))

	svc := Wrap(ServiceError(base), "updating web")
	assert.True(t, IsService(svc))
	assert.False(t, IsFatal(svc))

	assert.True(t, IsBestEffort(BestEffortError(base)))
	assert.False(t, IsFatal(base))
	assert.False(t, IsFatal(nil))
}

func TestFind(t *testing.T) {
	missing := MissingError(errors.New("no pass yet"), "wait for the first pass")
	e, ok := Find(errors.Wrap(missing, "status"))
	assert.True(t, ok)
	assert.Equal(t, Missing, e.Type)

	_, ok = Find(errors.New("plain"))
	assert.False(t, ok)
}

func TestMarshalJSON(t *testing.T) {
	bytes, err := json.Marshal(FatalError(errors.New("unauthorized"), "check the credentials"))
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"fatal","help":"check the credentials","error":"unauthorized"}`, string(bytes))
}
