package email

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"wayfarer/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type fakeSender struct {
	mu     sync.Mutex
	sent   []Message
	failTo map[string]bool
}

func (f *fakeSender) Send(_ context.Context, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTo[msg.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

type noTemplates struct{}

func (noTemplates) FindActive(context.Context, string) (*models.EmailTemplate, error) {
	return nil, mongo.ErrNoDocuments
}

type fakeStore struct {
	posts      []models.Post
	subs       []models.Newsletter
	since      time.Time
	weeklyOnly bool
	marked     []primitive.ObjectID
}

func (f *fakeStore) RecentPosts(_ context.Context, since time.Time, limit int) ([]models.Post, error) {
	f.since = since
	if len(f.posts) > limit {
		return f.posts[:limit], nil
	}
	return f.posts, nil
}

func (f *fakeStore) Subscribers(_ context.Context, weeklyOnly bool) ([]models.Newsletter, error) {
	f.weeklyOnly = weeklyOnly
	return f.subs, nil
}

func (f *fakeStore) MarkSent(_ context.Context, ids []primitive.ObjectID, _ time.Time) error {
	f.marked = append(f.marked, ids...)
	return nil
}

func subscribers(n int) []models.Newsletter {
	subs := make([]models.Newsletter, n)
	for i := range subs {
		subs[i] = models.Newsletter{
			ID:               primitive.NewObjectID(),
			Email:            fmt.Sprintf("reader%d@example.com", i),
			Status:           models.SubscriberActive,
			Preferences:      models.DefaultPreferences(),
			UnsubscribeToken: fmt.Sprintf("tok-%d", i),
		}
	}
	return subs
}

func newTestNewsletter(sender Sender, store SubscriberStore) (*Newsletter, *[]time.Duration) {
	svc := NewService(sender, noTemplates{}, Site{Name: "Wayfarer", URL: "https://wayfarer.travel"})
	n := NewNewsletter(svc, store, time.Second)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }
	sleeps := []time.Duration{}
	n.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return n, &sleeps
}

func TestRunWeekly_SkipsWithoutPosts(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{subs: subscribers(3)}
	n, _ := newTestNewsletter(sender, store)

	report, err := n.RunWeekly(context.Background())
	require.NoError(t, err)

	assert.True(t, report.Skipped)
	assert.Empty(t, sender.sent)
}

func TestRunWeekly_SendsDigest(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{
		posts: []models.Post{{Title: "Three days in Porto", Slug: "three-days-in-porto", Excerpt: "Port & tiles"}},
		subs:  subscribers(2),
	}
	n, _ := newTestNewsletter(sender, store)

	report, err := n.RunWeekly(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Report{Sent: 2, Posts: 1}, report)
	assert.True(t, store.weeklyOnly)
	assert.Equal(t, time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC), store.since)
	require.Len(t, sender.sent, 2)

	msg := sender.sent[0]
	assert.Equal(t, "reader0@example.com", msg.To)
	assert.Equal(t, "This week on Wayfarer", msg.Subject)
	assert.Contains(t, msg.HTML, `href="https://wayfarer.travel/blog/three-days-in-porto"`)
	assert.Contains(t, msg.HTML, "Port &amp; tiles")
	assert.Contains(t, msg.HTML, "https://wayfarer.travel/newsletter/unsubscribe?token=tok-0")
	assert.Contains(t, msg.HTML, "Hi reader0,")
	assert.Len(t, store.marked, 2)
}

func TestRunWeekly_BatchDelay(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{posts: []models.Post{{Title: "Hi", Slug: "hi"}}, subs: subscribers(25)}
	n, sleeps := newTestNewsletter(sender, store)

	report, err := n.RunWeekly(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 25, report.Sent)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, *sleeps)
}

func TestRunWeekly_ContinuesAfterFailure(t *testing.T) {
	subs := subscribers(3)
	sender := &fakeSender{failTo: map[string]bool{subs[1].Email: true}}
	store := &fakeStore{posts: []models.Post{{Title: "Hi", Slug: "hi"}}, subs: subs}
	n, _ := newTestNewsletter(sender, store)

	report, err := n.RunWeekly(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 1, report.Failed)
	assert.ElementsMatch(t, []primitive.ObjectID{subs[0].ID, subs[2].ID}, store.marked)
}

func TestSendCampaign(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{subs: subscribers(1)}
	n, _ := newTestNewsletter(sender, store)

	report, err := n.SendCampaign(context.Background(), "Summer deals", "<p>Sun!</p>", "Sun!")
	require.NoError(t, err)

	assert.Equal(t, 1, report.Sent)
	assert.False(t, store.weeklyOnly)
	assert.Equal(t, "Summer deals", sender.sent[0].Subject)
	assert.Contains(t, sender.sent[0].HTML, "<p>Sun!</p>")
}

func TestService_TemplateFallback(t *testing.T) {
	svc := NewService(&fakeSender{}, noTemplates{}, Site{Name: "Wayfarer", URL: "https://wayfarer.travel"})

	tpl, err := svc.Template(context.Background(), TemplatePasswordReset)
	require.NoError(t, err)
	assert.Equal(t, TemplatePasswordReset, tpl.Key)

	_, err = svc.Template(context.Background(), "nope")
	assert.Error(t, err)
}

func TestBuiltinTemplatesDeclareTheirVariables(t *testing.T) {
	for _, key := range BuiltinKeys() {
		tpl, ok := Builtin(key)
		require.True(t, ok, key)
		data := map[string]any{}
		for _, v := range tpl.Variables {
			data[v] = "x"
		}
		assert.Empty(t, tpl.MissingVariables(data), key)
	}
}

func TestPreviewWeekly(t *testing.T) {
	sender := &fakeSender{}
	store := &fakeStore{posts: []models.Post{{Title: "Lisbon by tram", Slug: "lisbon-by-tram"}}}
	n, _ := newTestNewsletter(sender, store)

	msg, ok, err := n.PreviewWeekly(context.Background(), "editor@example.com")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "editor@example.com", msg.To)
	assert.Contains(t, msg.HTML, "lisbon-by-tram")
	assert.Empty(t, sender.sent)

	store.posts = nil
	_, ok, err = n.PreviewWeekly(context.Background(), "editor@example.com")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_PreviewAddsSite(t *testing.T) {
	svc := NewService(&fakeSender{}, noTemplates{}, Site{Name: "Wayfarer", URL: "https://wayfarer.travel"})
	tpl, _ := Builtin(TemplateWelcome)

	out := svc.Preview(tpl, map[string]any{"name": "Ana"})
	assert.Contains(t, out.HTML, "Ana")
	assert.NotContains(t, out.Subject, "{{site.name}}")
}
