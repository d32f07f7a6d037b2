package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"davwatch/internal/common"
)

type received struct {
	contentType string
	content     string
	username    string
	fileName    string
	fileData    string
}

func newHookServer(t *testing.T, status int) (*httptest.Server, *[]received) {
	t.Helper()
	var got []received
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := received{contentType: r.Header.Get("Content-Type")}
		var p payload
		if strings.HasPrefix(rec.contentType, "multipart/form-data") {
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.NoError(t, json.Unmarshal([]byte(r.FormValue("payload_json")), &p))
			if f, hdr, err := r.FormFile("file"); assert.NoError(t, err) {
				data, _ := io.ReadAll(f)
				f.Close()
				rec.fileName = hdr.Filename
				rec.fileData = string(data)
			}
		} else {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		}
		rec.content = p.Content
		rec.username = p.Username
		got = append(got, rec)
		w.WriteHeader(status)
		if status >= 400 {
			io.WriteString(w, `{"message": "rejected"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func TestNewWebhook_RequiresURL(t *testing.T) {
	_, err := NewWebhook(Options{})
	assert.True(t, errors.Is(err, common.ErrInvalidConfig))
}

func TestDeliver_TextOnly(t *testing.T) {
	srv, got := newHookServer(t, http.StatusNoContent)
	w, err := NewWebhook(Options{URL: srv.URL, Username: "davwatch"})
	require.NoError(t, err)

	require.NoError(t, w.Deliver(context.Background(), Message{Text: "New folder detected: A"}))
	require.Len(t, *got, 1)
	assert.Equal(t, "application/json", (*got)[0].contentType)
	assert.Equal(t, "New folder detected: A", (*got)[0].content)
	assert.Equal(t, "davwatch", (*got)[0].username)
}

func TestDeliver_WithAttachment(t *testing.T) {
	srv, got := newHookServer(t, http.StatusOK)
	w, err := NewWebhook(Options{URL: srv.URL})
	require.NoError(t, err)

	msg := Message{
		Text:       "New file detected in folder: A\nName: x.txt",
		Attachment: &Attachment{Name: "x.txt", Data: []byte("hello")},
	}
	require.NoError(t, w.Deliver(context.Background(), msg))
	require.Len(t, *got, 1)
	rec := (*got)[0]
	assert.True(t, strings.HasPrefix(rec.contentType, "multipart/form-data"))
	assert.Equal(t, msg.Text, rec.content)
	assert.Equal(t, "x.txt", rec.fileName)
	assert.Equal(t, "hello", rec.fileData)
}

func TestDeliver_RejectedStatus(t *testing.T) {
	for _, status := range []int{http.StatusCreated, http.StatusBadRequest, http.StatusTooManyRequests, http.StatusInternalServerError} {
		srv, _ := newHookServer(t, status)
		w, err := NewWebhook(Options{URL: srv.URL})
		require.NoError(t, err)

		err = w.Deliver(context.Background(), Message{Text: "x"})
		require.Error(t, err, "status %d", status)
		assert.True(t, errors.Is(err, common.ErrDeliveryFailed))
	}
}

func TestDeliver_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	w, err := NewWebhook(Options{URL: url})
	require.NoError(t, err)
	err = w.Deliver(context.Background(), Message{Text: "x"})
	assert.True(t, errors.Is(err, common.ErrDeliveryFailed))
}

func TestDeliver_TruncatesLongText(t *testing.T) {
	srv, got := newHookServer(t, http.StatusOK)
	w, err := NewWebhook(Options{URL: srv.URL})
	require.NoError(t, err)

	require.NoError(t, w.Deliver(context.Background(), Message{Text: strings.Repeat("ä", 3000)}))
	assert.Equal(t, MaxContentLength, len([]rune((*got)[0].content)))
}

func TestAccepted(t *testing.T) {
	assert.True(t, Accepted(200))
	assert.True(t, Accepted(204))
	assert.False(t, Accepted(201))
	assert.False(t, Accepted(401))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "a", Truncate("abc", 1))
}
