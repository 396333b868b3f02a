package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/models"
	"wayfarer/websocket"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errPostNotFound = apperror.NotFound("Post not found")

type postAuthor struct {
	ID     primitive.ObjectID `bson:"_id" json:"id"`
	Name   string             `bson:"name" json:"name"`
	Avatar string             `bson:"avatar" json:"avatar"`
	Bio    string             `bson:"bio" json:"bio"`
}

// postView is a post with its author and categories resolved.
type postView struct {
	models.Post `bson:",inline"`
	AuthorInfo  *postAuthor       `bson:"authorInfo,omitempty" json:"author"`
	CategoryRef []models.Category `bson:"categoryDocs" json:"categories"`
}

func postViewStages() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.Users.Name()},
			{Key: "let", Value: bson.D{{Key: "aid", Value: "$author"}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$eq", Value: bson.A{"$_id", "$$aid"}}}}}}},
				bson.D{{Key: "$project", Value: bson.D{{Key: "name", Value: 1}, {Key: "avatar", Value: 1}, {Key: "bio", Value: 1}}}},
			}},
			{Key: "as", Value: "authorInfo"},
		}}},
		{{Key: "$unwind", Value: bson.D{{Key: "path", Value: "$authorInfo"}, {Key: "preserveNullAndEmptyArrays", Value: true}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.Categories.Name()},
			{Key: "localField", Value: "categories"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "categoryDocs"},
		}}},
	}
}

func loadPostView(ctx context.Context, id primitive.ObjectID) (*postView, error) {
	pipeline := mongo.Pipeline{{{Key: "$match", Value: bson.M{"_id": id}}}}
	pipeline = append(pipeline, postViewStages()...)

	cursor, err := database.Posts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		if err := cursor.Err(); err != nil {
			return nil, err
		}
		return nil, errPostNotFound
	}
	var view postView
	if err := cursor.Decode(&view); err != nil {
		return nil, err
	}
	return &view, nil
}

func findPost(ctx context.Context, filter bson.M) (*models.Post, error) {
	var post models.Post
	err := database.Posts.FindOne(ctx, filter).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errPostNotFound
	}
	if err != nil {
		return nil, err
	}
	return &post, nil
}

// ownPost loads the post and checks the caller is its author or an admin.
func ownPost(ctx context.Context, c *gin.Context, id primitive.ObjectID) (*models.Post, bool) {
	post, err := findPost(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return nil, false
	}
	userID, _ := currentUserID(c)
	if post.Author != userID && !isAdmin(c) {
		fail(c, apperror.Forbidden("Not allowed to modify this post"))
		return nil, false
	}
	return post, true
}

func toObjectIDs(values []string) []primitive.ObjectID {
	ids := make([]primitive.ObjectID, 0, len(values))
	for _, v := range values {
		if id, err := primitive.ObjectIDFromHex(v); err == nil {
			ids = append(ids, id)
		}
	}
	return ids
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// categoryFilter resolves ?category, which may be an id or a slug.
func categoryFilter(ctx context.Context, value string) (primitive.ObjectID, error) {
	if id, err := primitive.ObjectIDFromHex(value); err == nil {
		return id, nil
	}
	var cat models.Category
	err := database.Categories.FindOne(ctx, bson.M{"slug": strings.ToLower(value)}).Decode(&cat)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return primitive.NilObjectID, nil
	}
	return cat.ID, err
}

// GET /api/posts
func ListPosts(c *gin.Context) {
	page, limit := pageParams(c)

	ctx, cancel := dbContext(c)
	defer cancel()

	filter := bson.M{"status": models.PostPublished}
	if v := c.Query("category"); v != "" {
		id, err := categoryFilter(ctx, v)
		if err != nil {
			fail(c, err)
			return
		}
		filter["categories"] = id
	}
	if v := c.Query("destination"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			fail(c, apperror.BadRequest("Invalid destination id"))
			return
		}
		filter["destination"] = id
	}
	if v := c.Query("author"); v != "" {
		id, err := primitive.ObjectIDFromHex(v)
		if err != nil {
			fail(c, apperror.BadRequest("Invalid author id"))
			return
		}
		filter["author"] = id
	}
	if v := c.Query("tag"); v != "" {
		filter["tags"] = strings.ToLower(v)
	}
	if featured, ok := queryBool(c, "featured"); ok {
		filter["isFeatured"] = featured
	}
	if v := c.Query("search"); v != "" {
		re := searchRegex(v)
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"excerpt": re}, bson.M{"tags": re}}
	}

	posts, total, err := aggregatePage[postView](ctx, database.Posts, filter,
		bson.D{{Key: "publishedAt", Value: -1}, {Key: "createdAt", Value: -1}}, page, limit, postViewStages()...)
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, posts, NewPagination(page, limit, total))
}

// GET /api/posts/:idOrSlug
func GetPost(c *gin.Context) {
	ctx, cancel := dbContext(c)
	defer cancel()

	post, err := findPost(ctx, idOrSlug(c.Param("id")))
	if err != nil {
		fail(c, err)
		return
	}

	if post.Status != models.PostPublished {
		userID, _ := currentUserID(c)
		if post.Author != userID && !isAdmin(c) {
			fail(c, errPostNotFound)
			return
		}
	} else {
		if _, err := database.Posts.UpdateOne(ctx, bson.M{"_id": post.ID}, bson.M{"$inc": bson.M{"views": 1}}); err != nil {
			fail(c, err)
			return
		}
	}

	view, err := loadPostView(ctx, post.ID)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, view)
}

type postRequest struct {
	Title         string     `json:"title" binding:"required,min=3,max=200"`
	Content       string     `json:"content" binding:"required"`
	Excerpt       string     `json:"excerpt" binding:"max=500"`
	FeaturedImage string     `json:"featuredImage" binding:"omitempty,url"`
	Gallery       []string   `json:"gallery" binding:"omitempty,dive,url"`
	Categories    []string   `json:"categories" binding:"omitempty,dive,objectid"`
	Tags          []string   `json:"tags" binding:"omitempty,max=20,dive,max=40"`
	Destination   string     `json:"destination" binding:"omitempty,objectid"`
	Status        string     `json:"status"`
	IsFeatured    bool       `json:"isFeatured"`
	SEO           models.SEO `json:"seo"`
}

// POST /api/posts
func CreatePost(c *gin.Context) {
	var req postRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	status := models.PostDraft
	if isAdmin(c) && req.Status != "" {
		if !models.ValidPostStatus(req.Status) {
			fail(c, apperror.BadRequest("Invalid post status"))
			return
		}
		status = req.Status
	}

	now := time.Now()
	post := models.Post{
		ID:            primitive.NewObjectID(),
		Title:         strings.TrimSpace(req.Title),
		Content:       req.Content,
		Excerpt:       strings.TrimSpace(req.Excerpt),
		FeaturedImage: req.FeaturedImage,
		Gallery:       req.Gallery,
		Categories:    toObjectIDs(req.Categories),
		Tags:          cleanTags(req.Tags),
		Status:        status,
		Author:        userID,
		IsFeatured:    req.IsFeatured && isAdmin(c),
		SEO:           req.SEO,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if req.Destination != "" {
		dest, _ := primitive.ObjectIDFromHex(req.Destination)
		post.Destination = &dest
	}
	if status == models.PostPublished {
		post.PublishedAt = &now
	}
	post.Prepare()

	ctx, cancel := dbContext(c)
	defer cancel()

	slug, err := uniqueSlug(ctx, database.Posts, post.Slug, primitive.NilObjectID)
	if err != nil {
		fail(c, err)
		return
	}
	post.Slug = slug

	if _, err := database.Posts.InsertOne(ctx, post); err != nil {
		fail(c, err)
		return
	}

	logger.Handler("CreatePost").WithField("post", post.ID.Hex()).Info("Post created")
	respond(c, http.StatusCreated, post)
}

type updatePostRequest struct {
	Title         *string     `json:"title" binding:"omitempty,min=3,max=200"`
	Content       *string     `json:"content" binding:"omitempty,min=1"`
	Excerpt       *string     `json:"excerpt" binding:"omitempty,max=500"`
	FeaturedImage *string     `json:"featuredImage" binding:"omitempty,url"`
	Gallery       []string    `json:"gallery" binding:"omitempty,dive,url"`
	Categories    []string    `json:"categories" binding:"omitempty,dive,objectid"`
	Tags          []string    `json:"tags" binding:"omitempty,max=20,dive,max=40"`
	Destination   *string     `json:"destination" binding:"omitempty,objectid"`
	Status        *string     `json:"status"`
	IsFeatured    *bool       `json:"isFeatured"`
	SEO           *models.SEO `json:"seo"`
}

// PUT /api/posts/:id
func UpdatePost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req updatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if !isAdmin(c) && (req.Status != nil || req.IsFeatured != nil) {
		fail(c, apperror.Forbidden("Only admins can change status or featuring"))
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	post, ok := ownPost(ctx, c, id)
	if !ok {
		return
	}

	now := time.Now()
	if req.Title != nil {
		post.Title = strings.TrimSpace(*req.Title)
	}
	if req.Content != nil {
		post.Content = *req.Content
		if req.Excerpt == nil {
			post.Excerpt = ""
		}
	}
	if req.Excerpt != nil {
		post.Excerpt = strings.TrimSpace(*req.Excerpt)
	}
	if req.FeaturedImage != nil {
		post.FeaturedImage = *req.FeaturedImage
	}
	if req.Gallery != nil {
		post.Gallery = req.Gallery
	}
	if req.Categories != nil {
		post.Categories = toObjectIDs(req.Categories)
	}
	if req.Tags != nil {
		post.Tags = cleanTags(req.Tags)
	}
	if req.Destination != nil {
		dest, _ := primitive.ObjectIDFromHex(*req.Destination)
		post.Destination = &dest
	}
	if req.Status != nil && *req.Status != post.Status {
		if !models.ValidPostStatus(*req.Status) {
			fail(c, apperror.BadRequest("Invalid post status"))
			return
		}
		post.Status = *req.Status
		if post.Status == models.PostPublished && post.PublishedAt == nil {
			post.PublishedAt = &now
		}
	}
	if req.IsFeatured != nil {
		post.IsFeatured = *req.IsFeatured
	}
	if req.SEO != nil {
		post.SEO = *req.SEO
	}
	post.Prepare()

	_, err := database.Posts.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"title":         post.Title,
		"content":       post.Content,
		"excerpt":       post.Excerpt,
		"featuredImage": post.FeaturedImage,
		"gallery":       post.Gallery,
		"categories":    post.Categories,
		"tags":          post.Tags,
		"destination":   post.Destination,
		"status":        post.Status,
		"publishedAt":   post.PublishedAt,
		"isFeatured":    post.IsFeatured,
		"readTime":      post.ReadTime,
		"seo":           post.SEO,
		"updatedAt":     now,
	}})
	if err != nil {
		fail(c, err)
		return
	}
	post.UpdatedAt = now
	respond(c, http.StatusOK, post)
}

// DELETE /api/posts/:id
func DeletePost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, ok := ownPost(ctx, c, id); !ok {
		return
	}
	if _, err := database.Posts.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		fail(c, err)
		return
	}
	res, err := database.Comments.DeleteMany(ctx, bson.M{"resourceType": models.ResourceBlog, "resourceId": id.Hex()})
	if err != nil {
		fail(c, err)
		return
	}

	logger.Handler("DeletePost").WithField("post", id.Hex()).Infof("Post deleted with %d comments", res.DeletedCount)
	respond(c, http.StatusOK, gin.H{"deleted": true, "comments": res.DeletedCount})
}

// POST /api/posts/:id/submit
func SubmitPost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var post models.Post
	err := database.Posts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "author": userID, "status": bson.M{"$in": bson.A{models.PostDraft, models.PostRejected}}},
		bson.M{"$set": bson.M{"status": models.PostPending, "updatedAt": time.Now()}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		existing, findErr := findPost(ctx, bson.M{"_id": id})
		switch {
		case findErr != nil:
			err = findErr
		case existing.Author != userID:
			err = apperror.Forbidden("Not allowed to submit this post")
		default:
			err = apperror.BadRequest("Only draft or rejected posts can be submitted")
		}
		fail(c, err)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	broadcast(websocket.EventPostSubmitted, gin.H{"id": post.ID, "title": post.Title})
	notifyAdmins("Post awaiting review", post.Title, "/admin/posts?status=pending")
	respond(c, http.StatusOK, post)
}

// PATCH /api/posts/:id/moderate
func ModeratePost(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required,oneof=published rejected inactive pending"`
		Notes  string `json:"notes" binding:"max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	adminID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	post, err := findPost(ctx, bson.M{"_id": id})
	if err != nil {
		fail(c, err)
		return
	}
	if !post.CanTransition(req.Status) {
		fail(c, apperror.BadRequest(fmt.Sprintf("Cannot move post from %s to %s", post.Status, req.Status)))
		return
	}

	now := time.Now()
	set := bson.M{
		"status":          req.Status,
		"moderationNotes": req.Notes,
		"moderatedBy":     adminID,
		"moderatedAt":     now,
		"updatedAt":       now,
	}
	if req.Status == models.PostPublished && post.PublishedAt == nil {
		set["publishedAt"] = now
	}

	var updated models.Post
	err = database.Posts.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": post.Status},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.Conflict("Post status changed concurrently, please retry"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	logger.Handler("ModeratePost").WithField("post", id.Hex()).Infof("Post moved from %s to %s", post.Status, req.Status)
	respond(c, http.StatusOK, updated)
}

func likeResponse(c *gin.Context, post *models.Post, liked bool) {
	respond(c, http.StatusOK, gin.H{"id": post.ID, "likes": post.Likes, "liked": liked})
}

// POST /api/posts/:id/like
func LikePost(c *gin.Context) {
	togglePostLike(c, true)
}

// DELETE /api/posts/:id/like
func UnlikePost(c *gin.Context) {
	togglePostLike(c, false)
}

// togglePostLike is idempotent: the counter moves only when likedBy changes.
func togglePostLike(c *gin.Context, like bool) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	filter := bson.M{"_id": id, "status": models.PostPublished}
	var update bson.M
	if like {
		filter["likedBy"] = bson.M{"$ne": userID}
		update = bson.M{"$push": bson.M{"likedBy": userID}, "$inc": bson.M{"likes": 1}}
	} else {
		filter["likedBy"] = userID
		update = bson.M{"$pull": bson.M{"likedBy": userID}, "$inc": bson.M{"likes": -1}}
	}

	var post models.Post
	err := database.Posts.FindOneAndUpdate(ctx, filter, update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		current, findErr := findPost(ctx, bson.M{"_id": id, "status": models.PostPublished})
		if findErr != nil {
			fail(c, findErr)
			return
		}
		likeResponse(c, current, like)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	likeResponse(c, &post, like)
}

// GET /api/posts/mine
func MyPosts(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}
	page, limit := pageParams(c)
	filter := bson.M{"author": userID}
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	posts, total, err := findPage[models.Post](ctx, database.Posts, filter,
		bson.D{{Key: "updatedAt", Value: -1}}, page, limit, bson.M{"likedBy": 0})
	if err != nil {
		fail(c, err)
		return
	}
	respondList(c, posts, NewPagination(page, limit, total))
}

// GET /api/posts/admin/all
func AdminListPosts(c *gin.Context) {
	page, limit := pageParams(c)
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		if !models.ValidPostStatus(status) {
			fail(c, apperror.BadRequest("Invalid post status"))
			return
		}
		filter["status"] = status
	}
	if v := c.Query("search"); v != "" {
		re := searchRegex(v)
		filter["$or"] = bson.A{bson.M{"title": re}, bson.M{"excerpt": re}}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	posts, total, err := aggregatePage[postView](ctx, database.Posts, filter,
		bson.D{{Key: "createdAt", Value: -1}}, page, limit, postViewStages()...)
	if err != nil {
		fail(c, err)
		return
	}
	counts, err := statusCounts(ctx, database.Posts, bson.M{})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       posts,
		"pagination": NewPagination(page, limit, total),
		"counts":     counts,
	})
}
