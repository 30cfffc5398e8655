package email

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMailgunSenderValidate(t *testing.T) {
	valid := Config{
		MailgunDomain: "mg.example.com",
		MailgunAPIKey: "key-abc123",
		FromEmail:     "noreply@example.com",
		FromName:      "Thingbooker",
	}

	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError string
	}{
		{name: "all fields valid", mutate: func(c *Config) {}},
		{name: "missing domain", mutate: func(c *Config) { c.MailgunDomain = "" }, wantError: "MAILGUN_DOMAIN is required"},
		{name: "missing api key", mutate: func(c *Config) { c.MailgunAPIKey = "" }, wantError: "MAILGUN_API_KEY is required"},
		{name: "missing from email", mutate: func(c *Config) { c.FromEmail = "" }, wantError: "EMAIL_FROM_ADDRESS is required"},
		{name: "missing from name", mutate: func(c *Config) { c.FromName = "" }, wantError: "EMAIL_FROM_NAME is required"},
		{name: "all empty reports domain first", mutate: func(c *Config) { *c = Config{} }, wantError: "MAILGUN_DOMAIN is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := (&MailgunSender{cfg: &cfg}).validate()
			if tt.wantError == "" {
				assert.NoError(t, err)
				return
			}
			assert.EqualError(t, err, tt.wantError)
		})
	}
}

func TestNewMailgunSenderRequiresConfig(t *testing.T) {
	assert.Nil(t, NewMailgunSender(&Config{}, testLogger()))
	assert.NotNil(t, NewMailgunSender(&Config{MailgunDomain: "mg.example.com", MailgunAPIKey: "key"}, testLogger()))
}

func TestNewSenderFallsBackToNoOp(t *testing.T) {
	s := NewSender(testLogger(), &Config{Enabled: true})
	_, ok := s.(*noOpSender)
	assert.True(t, ok)

	s = NewSender(testLogger(), &Config{MailgunDomain: "mg.example.com", MailgunAPIKey: "key"})
	_, ok = s.(*noOpSender)
	assert.True(t, ok, "disabled email should not use Mailgun")

	res, err := s.Send(context.Background(), SendOptions{To: "a@example.com", Subject: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "noop-a@example.com", res.MessageID)
}

func TestConfig(t *testing.T) {
	assert.True(t, (&Config{MailgunDomain: "d", MailgunAPIKey: "k"}).IsConfigured())
	assert.False(t, (&Config{MailgunDomain: "d"}).IsConfigured())
	assert.False(t, (&Config{}).IsConfigured())

	assert.Equal(t, 5*time.Second, (&Config{WorkerIntervalMs: 5000}).WorkerInterval())
	assert.Equal(t, 100*time.Millisecond, (&Config{WorkerIntervalMs: 100}).WorkerInterval())
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		base, attempts int
		want           time.Duration
	}{
		{60, 1, time.Minute},
		{60, 2, 4 * time.Minute},
		{60, 3, 9 * time.Minute},
		{60, 10, time.Hour},
		{0, 1, time.Minute},
		{30, 0, 30 * time.Second},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.base, tt.attempts), "base=%d attempts=%d", tt.base, tt.attempts)
	}
}

func TestTruncateError(t *testing.T) {
	assert.Equal(t, "short", truncateError("short"))
	assert.Len(t, truncateError(strings.Repeat("x", 1500)), 1000)
}

func TestFormatAddress(t *testing.T) {
	assert.Equal(t, "a@example.com", formatAddress("", "a@example.com"))
	assert.Equal(t, "Ada <a@example.com>", formatAddress("Ada", "a@example.com"))
}

func TestEmbeddedTemplates(t *testing.T) {
	ts, err := NewTemplateService(testLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"things/invite_user_to_thing",
		"things/notify_booking_status_changed",
		"things/notify_owner_of_new_booking",
		"users/invite_user_to_group",
	}, ts.ListTemplates())

	t.Run("new booking", func(t *testing.T) {
		res, err := ts.Render("things/notify_owner_of_new_booking", TemplateContext{
			"title":           "[Thingbooker] New booking",
			"recipientName":   "Owner",
			"bookerName":      "Ada",
			"thingName":       "Cabin",
			"startDate":       "01.07.2026 12:00",
			"endDate":         "05.07.2026 12:00",
			"numPeople":       4,
			"updateStatusUrl": "https://app.example/things/t1/",
		}, DefaultLayout)
		require.NoError(t, err)
		assert.Contains(t, res.HTML, "<!DOCTYPE html>")
		assert.Contains(t, res.HTML, "<strong>Ada</strong> wants to book <strong>Cabin</strong>")
		assert.Contains(t, res.HTML, `href="https://app.example/things/t1/"`)
		assert.Contains(t, res.HTML, "This email was sent by Thingbooker.")
		assert.Contains(t, res.Text, "Ada wants to book Cabin.")
		assert.Contains(t, res.Text, "People: 4")
	})

	t.Run("status declined and accepted", func(t *testing.T) {
		ctx := TemplateContext{"thingName": "Cabin", "startDate": "a", "endDate": "b", "thingUrl": "u", "declined": true}
		res, err := ts.Render("things/notify_booking_status_changed", ctx, DefaultLayout)
		require.NoError(t, err)
		assert.Contains(t, res.HTML, "<strong>declined</strong>")
		assert.Contains(t, res.Text, "was declined.")

		ctx["declined"] = false
		res, err = ts.Render("things/notify_booking_status_changed", ctx, DefaultLayout)
		require.NoError(t, err)
		assert.Contains(t, res.HTML, "<strong>accepted</strong>")
		assert.Contains(t, res.Text, "was accepted.")
	})

	t.Run("invites escape user input", func(t *testing.T) {
		res, err := ts.Render("users/invite_user_to_group", TemplateContext{
			"inviterName": "<b>Eve</b>",
			"targetName":  "Family",
			"acceptUrl":   "https://app.example/invites/group/tok",
		}, DefaultLayout)
		require.NoError(t, err)
		assert.NotContains(t, res.HTML, "<b>Eve</b>")
		assert.Contains(t, res.HTML, "&lt;b&gt;Eve&lt;/b&gt;")
		assert.Contains(t, res.Text, "Join the group: https://app.example/invites/group/tok")
	})

	t.Run("unknown template", func(t *testing.T) {
		_, err := ts.Render("nope", TemplateContext{}, DefaultLayout)
		assert.Error(t, err)
		assert.False(t, ts.HasTemplate("nope"))
	})
}

func TestTemplateServiceFS(t *testing.T) {
	fsys := fstest.MapFS{
		"partials/sig.hbs":  {Data: []byte("-- {{from}}")},
		"greet/hello.hbs":   {Data: []byte("<p>Hello {{name}}</p>{{> sig}}")},
		"layouts/plain.hbs": {Data: []byte("[{{{content}}}]")},
	}
	ts, err := NewTemplateServiceFS(fsys, testLogger())
	require.NoError(t, err)

	res, err := ts.Render("greet/hello", TemplateContext{"name": "Ada", "from": "Bob", "message": "body"}, "plain")
	require.NoError(t, err)
	assert.Equal(t, "[<p>Hello Ada</p>-- Bob]", res.HTML)
	assert.Equal(t, "body\n", res.Text)

	res, err = ts.Render("greet/hello", TemplateContext{"name": "Ada", "from": "Bob"}, "missing")
	require.NoError(t, err)
	assert.Equal(t, "<p>Hello Ada</p>-- Bob", res.HTML)
}

func TestTemplateServiceFSParseError(t *testing.T) {
	_, err := NewTemplateServiceFS(fstest.MapFS{"x/broken.hbs": {Data: []byte("{{#if x}}unclosed")}}, testLogger())
	assert.Error(t, err)
}

// fakeQueue records what the worker did with each job.
type fakeQueue struct {
	mu      sync.Mutex
	pending []*EmailJob
	sent    map[string]string
	failed  map[string]error
}

func newFakeQueue(jobs ...*EmailJob) *fakeQueue {
	return &fakeQueue{pending: jobs, sent: map[string]string{}, failed: map[string]error{}}
}

func (q *fakeQueue) Dequeue(ctx context.Context, batchSize int) ([]*EmailJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := min(batchSize, len(q.pending))
	out := q.pending[:n]
	q.pending = q.pending[n:]
	return out, nil
}

func (q *fakeQueue) MarkSent(ctx context.Context, id string, messageID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.sent[id] = messageID
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, id string, jobErr error) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[id] = jobErr
	return nil
}

func (q *fakeQueue) RecoverStaleJobs(ctx context.Context, staleThresholdMinutes int) (int, error) {
	return 0, nil
}

func (q *fakeQueue) sentCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.sent)
}

type captureSender struct {
	mu     sync.Mutex
	sent   []SendOptions
	result *SendResult
	err    error
}

func (s *captureSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, opts)
	if s.err != nil {
		return nil, s.err
	}
	if s.result != nil {
		return s.result, nil
	}
	return &SendResult{Success: true, MessageID: "msg-" + opts.To}, nil
}

func newTestWorker(t *testing.T, q Queue, s Sender) *Worker {
	t.Helper()
	ts, err := NewTemplateService(testLogger())
	require.NoError(t, err)
	return newWorker(q, s, ts, &Config{Enabled: true, WorkerIntervalMs: 10, WorkerBatchSize: 5}, testLogger())
}

func statusJob(id string) *EmailJob {
	name := "Ada"
	return &EmailJob{
		ID:           id,
		TemplateName: "things/notify_booking_status_changed",
		ToEmail:      "ada@example.com",
		ToName:       &name,
		Subject:      "[Thingbooker] Your booking was accepted",
		TemplateData: JSON{"thingName": "Cabin", "startDate": "a", "endDate": "b", "thingUrl": "u", "declined": false},
	}
}

func TestWorkerProcessJobSuccess(t *testing.T) {
	q := newFakeQueue()
	s := &captureSender{}
	w := newTestWorker(t, q, s)

	require.NoError(t, w.processJob(context.Background(), statusJob("j1")))

	assert.Equal(t, "msg-ada@example.com", q.sent["j1"])
	require.Len(t, s.sent, 1)
	assert.Equal(t, "Ada", s.sent[0].ToName)
	assert.Contains(t, s.sent[0].HTML, "Hi Ada,")
	assert.Contains(t, s.sent[0].Text, "was accepted.")
	assert.Equal(t, WorkerMetrics{Processed: 1, Succeeded: 1}, w.Metrics())
}

func TestWorkerProcessJobFailures(t *testing.T) {
	t.Run("unsuccessful result", func(t *testing.T) {
		q := newFakeQueue()
		w := newTestWorker(t, q, &captureSender{result: &SendResult{Error: "rejected"}})

		err := w.processJob(context.Background(), statusJob("j1"))
		assert.EqualError(t, err, "rejected")
		assert.EqualError(t, q.failed["j1"], "rejected")
		assert.Empty(t, q.sent)
	})

	t.Run("sender error", func(t *testing.T) {
		q := newFakeQueue()
		w := newTestWorker(t, q, &captureSender{err: errors.New("timeout")})

		assert.Error(t, w.processJob(context.Background(), statusJob("j1")))
		assert.EqualError(t, q.failed["j1"], "timeout")
		assert.Equal(t, int64(1), w.Metrics().Failed)
	})
}

func TestWorkerFallbackForUnknownTemplate(t *testing.T) {
	q := newFakeQueue()
	s := &captureSender{}
	w := newTestWorker(t, q, s)

	job := &EmailJob{ID: "j1", TemplateName: "gone", ToEmail: "x@example.com", Subject: "Hello <there>", TemplateData: JSON{"message": "body"}}
	require.NoError(t, w.processJob(context.Background(), job))

	require.Len(t, s.sent, 1)
	assert.Contains(t, s.sent[0].HTML, "Hello &lt;there&gt;")
	assert.Contains(t, s.sent[0].Text, "body")
	assert.Contains(t, q.sent, "j1")
}

func TestWorkerStartStop(t *testing.T) {
	q := newFakeQueue(statusJob("j1"), statusJob("j2"))
	w := newTestWorker(t, q, &captureSender{})

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, w.IsRunning())

	require.Eventually(t, func() bool { return q.sentCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
	assert.False(t, w.IsRunning())
	require.NoError(t, w.Stop(ctx))
}

func TestWorkerDisabledDoesNotStart(t *testing.T) {
	w := newWorker(newFakeQueue(), &captureSender{}, nil, &Config{}, testLogger())
	require.NoError(t, w.Start(context.Background()))
	assert.False(t, w.IsRunning())
}
