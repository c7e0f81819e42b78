package policy

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/identra/server/internal/model"
)

func TestCapabilityTable(t *testing.T) {
	tests := []struct {
		method   string
		resource string
		want     string
	}{
		{http.MethodPost, "user", "add_user"},
		{http.MethodGet, "session", "view_session"},
		{http.MethodHead, "session", "view_session"},
		{http.MethodPut, "user", "change_user"},
		{http.MethodPatch, "user", "change_user"},
		{http.MethodDelete, "user", "delete_user"},
	}
	for _, tt := range tests {
		got := Capability(ActionForMethod(tt.method), tt.resource)
		assert.Equal(t, tt.want, got, "%s %s", tt.method, tt.resource)
	}
}

func TestSelfServeEvaluator(t *testing.T) {
	eval := SelfServeEvaluator{}

	assert.False(t, eval.HasCapability(nil, "change_user"))
	assert.False(t, eval.HasCapability(&model.User{IsActive: false}, "change_user"))
	assert.True(t, eval.HasCapability(&model.User{IsActive: true}, "change_user"))
}
