package email

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	// BatchSize is how many sends happen between pauses.
	BatchSize = 10

	digestWindow   = 7 * 24 * time.Hour
	digestMaxPosts = 10
)

type Report struct {
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
	Posts   int  `json:"posts"`
	Skipped bool `json:"skipped"`
}

// SubscriberStore is the persistence the newsletter jobs need.
type SubscriberStore interface {
	RecentPosts(ctx context.Context, since time.Time, limit int) ([]models.Post, error)
	Subscribers(ctx context.Context, weeklyOnly bool) ([]models.Newsletter, error)
	MarkSent(ctx context.Context, ids []primitive.ObjectID, at time.Time) error
}

type mongoSubscribers struct{}

func (mongoSubscribers) RecentPosts(ctx context.Context, since time.Time, limit int) ([]models.Post, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "publishedAt", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"content": 0, "likedBy": 0})
	cursor, err := database.Posts.Find(ctx, bson.M{
		"status":      models.PostPublished,
		"publishedAt": bson.M{"$gte": since},
	}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	posts := []models.Post{}
	if err := cursor.All(ctx, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (mongoSubscribers) Subscribers(ctx context.Context, weeklyOnly bool) ([]models.Newsletter, error) {
	filter := bson.M{"status": models.SubscriberActive}
	if weeklyOnly {
		filter["preferences.weekly"] = true
	}
	cursor, err := database.Newsletters.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	subs := []models.Newsletter{}
	if err := cursor.All(ctx, &subs); err != nil {
		return nil, err
	}
	return subs, nil
}

func (mongoSubscribers) MarkSent(ctx context.Context, ids []primitive.ObjectID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := database.Newsletters.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"lastSentAt": at, "updatedAt": at}},
	)
	return err
}

// Newsletter sends the weekly digest and one-off campaigns to subscribers.
type Newsletter struct {
	Service    *Service
	Store      SubscriberStore
	BatchDelay time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewNewsletter(svc *Service, store SubscriberStore, batchDelay time.Duration) *Newsletter {
	if store == nil {
		store = mongoSubscribers{}
	}
	return &Newsletter{
		Service:    svc,
		Store:      store,
		BatchDelay: batchDelay,
		now:        time.Now,
		sleep:      sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RunWeekly emails posts published in the last seven days to every active
// subscriber who wants the weekly digest. Nothing is sent when there are
// no new posts.
func (n *Newsletter) RunWeekly(ctx context.Context) (Report, error) {
	log := logger.Log.WithField("job", "weekly-newsletter")

	posts, err := n.Store.RecentPosts(ctx, n.now().Add(-digestWindow), digestMaxPosts)
	if err != nil {
		return Report{}, fmt.Errorf("load recent posts: %w", err)
	}
	if len(posts) == 0 {
		log.Info("No posts published this week, skipping newsletter")
		return Report{Skipped: true}, nil
	}

	subs, err := n.Store.Subscribers(ctx, true)
	if err != nil {
		return Report{Posts: len(posts)}, fmt.Errorf("load subscribers: %w", err)
	}

	site := n.Service.Site()
	postsHTML, postsText := digestBodies(posts, site.URL)

	report, err := n.broadcast(ctx, subs, "weekly", func(sub models.Newsletter) (Message, error) {
		return n.Service.Compose(ctx, TemplateNewsletterWeekly, sub.Email, map[string]any{
			"name":           sub.DisplayName(),
			"email":          sub.Email,
			"postsHtml":      postsHTML,
			"postsText":      postsText,
			"unsubscribeUrl": UnsubscribeURL(site.URL, sub.UnsubscribeToken),
		})
	})
	report.Posts = len(posts)

	log.WithField("sent", report.Sent).WithField("failed", report.Failed).WithField("posts", report.Posts).Info("Weekly newsletter finished")
	return report, err
}

// PreviewWeekly composes this week's digest for to without sending it.
// ok is false when there are no posts to send.
func (n *Newsletter) PreviewWeekly(ctx context.Context, to string) (msg Message, ok bool, err error) {
	posts, err := n.Store.RecentPosts(ctx, n.now().Add(-digestWindow), digestMaxPosts)
	if err != nil {
		return Message{}, false, fmt.Errorf("load recent posts: %w", err)
	}
	if len(posts) == 0 {
		return Message{}, false, nil
	}

	site := n.Service.Site()
	postsHTML, postsText := digestBodies(posts, site.URL)
	msg, err = n.Service.Compose(ctx, TemplateNewsletterWeekly, to, map[string]any{
		"name":           "Subscriber",
		"email":          to,
		"postsHtml":      postsHTML,
		"postsText":      postsText,
		"unsubscribeUrl": UnsubscribeURL(site.URL, "preview"),
	})
	return msg, err == nil, err
}

// SendCampaign sends an admin-written message to every active subscriber.
func (n *Newsletter) SendCampaign(ctx context.Context, subject, contentHTML, contentText string) (Report, error) {
	subs, err := n.Store.Subscribers(ctx, false)
	if err != nil {
		return Report{}, fmt.Errorf("load subscribers: %w", err)
	}

	site := n.Service.Site()
	return n.broadcast(ctx, subs, "campaign", func(sub models.Newsletter) (Message, error) {
		return n.Service.Compose(ctx, TemplateNewsletterCampaign, sub.Email, map[string]any{
			"name":           sub.DisplayName(),
			"email":          sub.Email,
			"subject":        subject,
			"contentHtml":    contentHTML,
			"contentText":    contentText,
			"unsubscribeUrl": UnsubscribeURL(site.URL, sub.UnsubscribeToken),
		})
	})
}

// broadcast sends one message per subscriber, pausing BatchDelay after
// every BatchSize attempts. A failed send is logged and skipped.
func (n *Newsletter) broadcast(ctx context.Context, subs []models.Newsletter, kind string, build func(models.Newsletter) (Message, error)) (Report, error) {
	var report Report
	delivered := make([]primitive.ObjectID, 0, len(subs))

	for i, sub := range subs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		msg, err := build(sub)
		if err == nil {
			err = n.Service.Send(ctx, msg)
		}
		if err != nil {
			report.Failed++
			logger.Log.WithError(err).WithField("kind", kind).WithField("to", sub.Email).Warn("Newsletter send failed")
		} else {
			report.Sent++
			delivered = append(delivered, sub.ID)
		}

		if (i+1)%BatchSize == 0 && i+1 < len(subs) {
			if err := n.sleep(ctx, n.BatchDelay); err != nil {
				return report, err
			}
		}
	}

	if err := n.Store.MarkSent(ctx, delivered, n.now()); err != nil {
		logger.Log.WithError(err).Warn("Failed to record newsletter delivery")
	}
	return report, nil
}

func digestBodies(posts []models.Post, siteURL string) (string, string) {
	var h, t strings.Builder
	for _, p := range posts {
		link := fmt.Sprintf("%s/blog/%s", siteURL, p.Slug)
		fmt.Fprintf(&h, `<div style="margin-bottom:20px">`)
		if p.FeaturedImage != "" {
			fmt.Fprintf(&h, `<img src="%s" alt="" style="max-width:100%%;border-radius:6px"/>`, html.EscapeString(p.FeaturedImage))
		}
		fmt.Fprintf(&h, `<h3><a href="%s">%s</a></h3><p>%s</p></div>`,
			html.EscapeString(link), html.EscapeString(p.Title), html.EscapeString(p.Excerpt))
		fmt.Fprintf(&t, "- %s\n  %s\n", p.Title, link)
	}
	return h.String(), t.String()
}

func UnsubscribeURL(siteURL, token string) string {
	return fmt.Sprintf("%s/newsletter/unsubscribe?token=%s", siteURL, token)
}

func VerifyURL(siteURL, token string) string {
	return fmt.Sprintf("%s/newsletter/verify/%s", siteURL, token)
}
