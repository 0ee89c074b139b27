package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStream struct {
	userID string
}

func (f *fakeStream) Serve(w http.ResponseWriter, _ *http.Request, userID string) error {
	f.userID = userID
	w.WriteHeader(http.StatusSwitchingProtocols)
	return nil
}

func TestRealtimeHandlerServesAuthenticatedUser(t *testing.T) {
	stream := &fakeStream{}
	handler := NewRealtimeHandler(stream, nil)

	c, rec := testContext(http.MethodGet, "/ws/notifications", "", nil)
	handler.Notifications(c)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, stream.userID)

	c, _ = testContext(http.MethodGet, "/ws/notifications?token=t", "", doerClaims)
	handler.Notifications(c)
	assert.Equal(t, "doer-1", stream.userID)
}
