package tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niat-ops/opsboard/core/presence"
	"github.com/niat-ops/opsboard/core/user"
	testutil "github.com/niat-ops/opsboard/tests"
)

func Test_notificationApi_stream(t *testing.T) {
	srv := setup(t)

	crm := testutil.CreateUser(t, usrRepo, "Crm", "crm@test.io", "", user.RoleCRM, true)
	token := getToken(t, crm)

	// the query token is only accepted by the stream
	rec := do(srv, http.MethodGet, "/api/v1/users/"+crm.ID+"?token="+token, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = do(srv, http.MethodGet, "/api/v1/notifications/stream", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/stream?token="+token, nil).WithContext(ctx)
	rec = httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.ServeHTTP(rec, req)
	}()

	require.Eventually(t, func() bool { return registry.Len() == 1 }, time.Second, 5*time.Millisecond)

	notifier := presence.NewNotifier(registry)
	assert.False(t, notifier.Notify("someone-else", presence.Notification{Kind: presence.KindSyncFailed}))
	require.True(t, notifier.Notify(crm.ID, presence.Notification{
		Kind:    presence.KindSyncSucceeded,
		Message: "Acme SDE roadmap published",
	}))

	ch, ok := registry.Lookup(crm.ID)
	require.True(t, ok)
	require.Eventually(t, func() bool { return len(ch) == 0 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not stop with its request")
	}

	assert.Equal(t, 0, registry.Len())
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t,
		": connected\n\n"+
			"event: roadmap-sync-succeeded\n"+
			`data: {"kind":"roadmap-sync-succeeded","message":"Acme SDE roadmap published"}`+"\n\n",
		rec.Body.String(),
	)
}
