package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/models"
	"wayfarer/moderation"
	"wayfarer/websocket"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var errProfanity = apperror.BadRequest("Comment contains inappropriate language")

type commentAuthorRequest struct {
	Name   string `json:"name" binding:"omitempty,min=2,max=50"`
	Email  string `json:"email" binding:"omitempty,email"`
	Avatar string `json:"avatar" binding:"omitempty,url"`
}

type submitCommentRequest struct {
	ResourceType string               `json:"resourceType" binding:"required,resourcetype"`
	ResourceID   string               `json:"resourceId" binding:"required,max=100"`
	Author       commentAuthorRequest `json:"author"`
	Content      string               `json:"content" binding:"required,max=2000"`
	ParentID     string               `json:"parentId" binding:"omitempty,objectid"`
}

func resourceCollection(resourceType string) *mongo.Collection {
	switch resourceType {
	case models.ResourceBlog:
		return database.Posts
	case models.ResourceDestination:
		return database.Destinations
	case models.ResourceGuide:
		return database.Guides
	case models.ResourcePhoto:
		return database.Photos
	}
	return nil
}

// commentableFilter matches value by id or slug among the resources readers
// can see. Photos have no slug, so a non-hex photo reference matches nothing.
func commentableFilter(resourceType, value string) (bson.M, bool) {
	filter := idOrSlug(value)
	if _, bySlug := filter["slug"]; bySlug && resourceType == models.ResourcePhoto {
		return nil, false
	}
	if resourceType == models.ResourceBlog {
		filter["status"] = models.PostPublished
	} else {
		filter["isPublished"] = true
	}
	return filter, true
}

// resolveResource returns the hex id of the commented resource.
func resolveResource(ctx context.Context, resourceType, value string) (string, error) {
	coll := resourceCollection(resourceType)
	if coll == nil {
		return "", apperror.BadRequest("Invalid resource type")
	}
	filter, ok := commentableFilter(resourceType, value)
	if !ok {
		return "", apperror.NotFound("Resource not found")
	}

	var doc struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	err := coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", apperror.NotFound("Resource not found")
	}
	if err != nil {
		return "", err
	}
	return doc.ID.Hex(), nil
}

// fillAuthor completes the author snapshot from the signed-in user.
func fillAuthor(ctx context.Context, userID primitive.ObjectID, author *models.CommentAuthor) error {
	var u models.User
	err := database.Users.FindOne(ctx, bson.M{"_id": userID},
		options.FindOne().SetProjection(bson.M{"name": 1, "email": 1, "avatar": 1})).Decode(&u)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	if err != nil {
		return err
	}
	author.User = &u.ID
	if author.Name == "" {
		author.Name = u.Name
	}
	if author.Email == "" {
		author.Email = u.Email
	}
	if author.Avatar == "" {
		author.Avatar = u.Avatar
	}
	return nil
}

// POST /api/comments
func SubmitComment(c *gin.Context) {
	var req submitCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	content := strings.TrimSpace(req.Content)
	if content == "" {
		fail(c, apperror.BadRequest("Comment content is required"))
		return
	}

	author := models.CommentAuthor{
		Name:   strings.TrimSpace(req.Author.Name),
		Email:  models.NormalizeEmail(req.Author.Email),
		Avatar: req.Author.Avatar,
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if userID, ok := currentUserID(c); ok {
		if err := fillAuthor(ctx, userID, &author); err != nil {
			fail(c, err)
			return
		}
	}
	if author.Name == "" || author.Email == "" {
		fail(c, apperror.BadRequest("Author name and email are required"))
		return
	}
	if moderation.ContainsProfanity(content) || moderation.ContainsProfanity(author.Name) {
		fail(c, errProfanity)
		return
	}

	settings, err := loadSettings(ctx)
	if err != nil {
		fail(c, err)
		return
	}
	if !settings.Features.Comments {
		fail(c, apperror.Forbidden("Comments are disabled"))
		return
	}

	resourceID, err := resolveResource(ctx, req.ResourceType, req.ResourceID)
	if err != nil {
		fail(c, err)
		return
	}

	if req.ParentID != "" {
		parentOID, _ := primitive.ObjectIDFromHex(req.ParentID)
		var parent models.Comment
		err := database.Comments.FindOne(ctx, bson.M{"_id": parentOID}).Decode(&parent)
		if errors.Is(err, mongo.ErrNoDocuments) {
			fail(c, apperror.BadRequest("Parent comment not found"))
			return
		}
		if err != nil {
			fail(c, err)
			return
		}
		if parent.ResourceType != req.ResourceType || parent.ResourceID != resourceID {
			fail(c, apperror.BadRequest("Parent comment belongs to a different resource"))
			return
		}
	}

	now := time.Now()
	comment := models.Comment{
		ID:           primitive.NewObjectID(),
		ResourceType: req.ResourceType,
		ResourceID:   resourceID,
		ParentID:     req.ParentID,
		Author:       author,
		Content:      content,
		EditHistory:  []models.CommentEdit{},
		Flags:        []models.CommentFlag{},
		Status:       models.CommentApproved,
		IPAddress:    c.ClientIP(),
		UserAgent:    c.Request.UserAgent(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := database.Comments.InsertOne(ctx, comment); err != nil {
		fail(c, err)
		return
	}

	logger.Handler("SubmitComment").WithFields(logrus.Fields{
		"comment":  comment.ID.Hex(),
		"resource": comment.ResourceType + ":" + comment.ResourceID,
	}).Info("Comment created")
	broadcast(websocket.EventCommentCreated, gin.H{
		"id":           comment.ID,
		"resourceType": comment.ResourceType,
		"resourceId":   comment.ResourceID,
		"author":       comment.Author.Name,
	})

	respond(c, http.StatusCreated, gin.H{"comment": models.CommentView{Comment: comment}})
}

type commentStats struct {
	Total    int64 `bson:"total" json:"total"`
	Likes    int64 `bson:"likes" json:"likes"`
	Dislikes int64 `bson:"dislikes" json:"dislikes"`
	TopLevel int64 `bson:"topLevel" json:"topLevel"`
	Replies  int64 `bson:"replies" json:"replies"`
}

var commentSorts = map[string]bson.D{
	"newest":  {{Key: "createdAt", Value: -1}},
	"oldest":  {{Key: "createdAt", Value: 1}},
	"popular": {{Key: "likes", Value: -1}, {Key: "createdAt", Value: -1}},
}

// replyCountStages adds the number of approved direct replies to each comment.
func replyCountStages() []bson.D {
	return []bson.D{
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: database.Comments.Name()},
			{Key: "let", Value: bson.D{{Key: "cid", Value: bson.D{{Key: "$toString", Value: "$_id"}}}}},
			{Key: "pipeline", Value: bson.A{
				bson.D{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$and", Value: bson.A{
					bson.D{{Key: "$eq", Value: bson.A{"$parentId", "$$cid"}}},
					bson.D{{Key: "$eq", Value: bson.A{"$status", models.CommentApproved}}},
				}}}}}}},
				bson.D{{Key: "$count", Value: "n"}},
			}},
			{Key: "as", Value: "replyStats"},
		}}},
		{{Key: "$addFields", Value: bson.D{{Key: "replyCount", Value: bson.D{{Key: "$ifNull", Value: bson.A{
			bson.D{{Key: "$arrayElemAt", Value: bson.A{"$replyStats.n", 0}}}, 0,
		}}}}}}},
		{{Key: "$project", Value: bson.D{{Key: "replyStats", Value: 0}}}},
	}
}

func resourceCommentStats(ctx context.Context, resourceType, resourceID string) (commentStats, error) {
	isReply := bson.D{{Key: "$gt", Value: bson.A{
		bson.D{{Key: "$strLenCP", Value: bson.D{{Key: "$ifNull", Value: bson.A{"$parentId", ""}}}}}, 0,
	}}}
	cursor, err := database.Comments.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"resourceType": resourceType,
			"resourceId":   resourceID,
			"status":       models.CommentApproved,
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "likes", Value: bson.D{{Key: "$sum", Value: "$likes"}}},
			{Key: "dislikes", Value: bson.D{{Key: "$sum", Value: "$dislikes"}}},
			{Key: "replies", Value: bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{isReply, 1, 0}}}}}},
		}}},
	})
	if err != nil {
		return commentStats{}, err
	}
	defer cursor.Close(ctx)

	var stats commentStats
	if cursor.Next(ctx) {
		if err := cursor.Decode(&stats); err != nil {
			return commentStats{}, err
		}
	}
	stats.TopLevel = stats.Total - stats.Replies
	return stats, cursor.Err()
}

// GET /api/comments/:resourceType/:resourceId
func GetComments(c *gin.Context) {
	resourceType := c.Param("resourceType")
	if !models.ValidResourceType(resourceType) {
		fail(c, apperror.BadRequest("Invalid resource type"))
		return
	}
	sortBy, ok := commentSorts[c.DefaultQuery("sort", "newest")]
	if !ok {
		fail(c, apperror.BadRequest("sort must be one of newest, oldest, popular"))
		return
	}
	page, limit := pageParams(c)

	ctx, cancel := dbContext(c)
	defer cancel()

	resourceID, err := resolveResource(ctx, resourceType, c.Param("resourceId"))
	if err != nil {
		fail(c, err)
		return
	}

	filter := bson.M{
		"resourceType": resourceType,
		"resourceId":   resourceID,
		"status":       models.CommentApproved,
	}
	if parentID := c.Query("parentId"); parentID != "" {
		if !primitive.IsValidObjectID(parentID) {
			fail(c, apperror.BadRequest("Invalid id"))
			return
		}
		filter["parentId"] = parentID
	} else {
		filter["parentId"] = bson.M{"$in": bson.A{nil, ""}}
	}

	comments, total, err := aggregatePage[models.CommentView](ctx, database.Comments, filter, sortBy, page, limit, replyCountStages()...)
	if err != nil {
		fail(c, err)
		return
	}
	for i := range comments {
		comments[i].FlagCount = len(comments[i].Flags)
	}

	stats, err := resourceCommentStats(ctx, resourceType, resourceID)
	if err != nil {
		fail(c, err)
		return
	}

	respond(c, http.StatusOK, gin.H{
		"comments":   comments,
		"pagination": NewPagination(page, limit, total),
		"stats":      stats,
	})
}

func voteComment(c *gin.Context, field string) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var comment models.Comment
	err := database.Comments.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "status": models.CommentApproved},
		bson.M{"$inc": bson.M{field: 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&comment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.NotFound("Comment not found"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": comment.ID, "likes": comment.Likes, "dislikes": comment.Dislikes})
}

// POST /api/comments/:id/like
func LikeComment(c *gin.Context) {
	voteComment(c, "likes")
}

// POST /api/comments/:id/dislike
func DislikeComment(c *gin.Context) {
	voteComment(c, "dislikes")
}

// canEditComment allows admins, the linked account, and anonymous authors
// who repeat the email they commented with.
func canEditComment(c *gin.Context, comment *models.Comment, authorEmail string) bool {
	if isAdmin(c) {
		return true
	}
	if userID, ok := currentUserID(c); ok && comment.Author.User != nil && *comment.Author.User == userID {
		return true
	}
	return comment.Author.User == nil && authorEmail != "" && models.NormalizeEmail(authorEmail) == comment.Author.Email
}

// PUT /api/comments/:id
func EditComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Content     string `json:"content" binding:"required,max=2000"`
		AuthorEmail string `json:"authorEmail" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		fail(c, apperror.BadRequest("Comment content is required"))
		return
	}
	if moderation.ContainsProfanity(content) {
		fail(c, errProfanity)
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var comment models.Comment
	if err := database.Comments.FindOne(ctx, bson.M{"_id": id}).Decode(&comment); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = apperror.NotFound("Comment not found")
		}
		fail(c, err)
		return
	}
	if !canEditComment(c, &comment, req.AuthorEmail) {
		fail(c, apperror.Forbidden("Not allowed to edit this comment"))
		return
	}

	now := time.Now()
	var updated models.Comment
	err := database.Comments.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "content": comment.Content},
		bson.M{
			"$set":  bson.M{"content": content, "edited": true, "editedAt": now, "updatedAt": now},
			"$push": bson.M{"editHistory": models.CommentEdit{Content: comment.Content, EditedAt: now}},
		},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.Conflict("Comment was modified concurrently, please retry"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"comment": models.CommentView{Comment: updated, FlagCount: updated.FlagCount()}})
}

// flagUpdate appends the flag and hides the comment once it has
// AutoHideFlags flags, in one atomic pipeline update.
func flagUpdate(flag models.CommentFlag, now time.Time) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "flags", Value: bson.D{{Key: "$concatArrays", Value: bson.A{
				bson.D{{Key: "$ifNull", Value: bson.A{"$flags", bson.A{}}}},
				bson.D{{Key: "$literal", Value: bson.A{flag}}},
			}}}},
			{Key: "updatedAt", Value: now},
		}}},
		{{Key: "$set", Value: bson.D{
			{Key: "status", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$gte", Value: bson.A{bson.D{{Key: "$size", Value: "$flags"}}, models.AutoHideFlags}}},
				models.CommentHidden,
				"$status",
			}}}},
		}}},
	}
}

// moderationUpdate builds the $set for a manual status change. Any status
// other than hidden resets the flags, so a visible comment never carries
// enough flags to have been auto-hidden.
func moderationUpdate(status, notes string, adminID primitive.ObjectID, now time.Time) bson.M {
	set := bson.M{
		"status":          status,
		"moderationNotes": notes,
		"moderatedBy":     adminID,
		"moderatedAt":     now,
		"updatedAt":       now,
	}
	if status != models.CommentHidden {
		set["flags"] = []models.CommentFlag{}
	}
	return set
}

// POST /api/comments/:id/flag
func FlagComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Reason        string `json:"reason" binding:"required,max=500"`
		ReporterEmail string `json:"reporterEmail" binding:"omitempty,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}

	now := time.Now()
	flag := models.CommentFlag{
		Reason:     strings.TrimSpace(req.Reason),
		ReportedBy: models.NormalizeEmail(req.ReporterEmail),
		CreatedAt:  now,
	}
	filter := bson.M{"_id": id}
	if flag.ReportedBy != "" {
		filter["flags.reportedBy"] = bson.M{"$ne": flag.ReportedBy}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var updated models.Comment
	err := database.Comments.FindOneAndUpdate(ctx, filter, flagUpdate(flag, now),
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		n, countErr := database.Comments.CountDocuments(ctx, bson.M{"_id": id})
		switch {
		case countErr != nil:
			err = countErr
		case n == 0:
			err = apperror.NotFound("Comment not found")
		default:
			err = apperror.BadRequest("You have already flagged this comment")
		}
		fail(c, err)
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	flags := updated.FlagCount()
	log := logger.Handler("FlagComment").WithField("comment", id.Hex())
	log.WithField("flags", flags).Info("Comment flagged")
	broadcast(websocket.EventCommentFlagged, gin.H{"id": id, "flagCount": flags, "reason": flag.Reason})

	if flags == models.AutoHideFlags && updated.Status == models.CommentHidden {
		log.Warn("Comment auto-hidden")
		broadcast(websocket.EventCommentHidden, gin.H{"id": id, "flagCount": flags})
		notifyAdmins("Comment hidden", updated.Content, "/admin/comments?status=hidden")
	}

	respond(c, http.StatusOK, gin.H{"id": id, "flagCount": flags, "status": updated.Status})
}

// PATCH /api/comments/:id/moderate
func ModerateComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
		Notes  string `json:"notes" binding:"max=1000"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, err)
		return
	}
	if !models.ValidCommentStatus(req.Status) {
		fail(c, apperror.BadRequest("Invalid comment status"))
		return
	}
	adminID, ok := requireUser(c)
	if !ok {
		return
	}

	set := moderationUpdate(req.Status, req.Notes, adminID, time.Now())

	ctx, cancel := dbContext(c)
	defer cancel()

	var updated models.Comment
	err := database.Comments.FindOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&updated)
	if errors.Is(err, mongo.ErrNoDocuments) {
		fail(c, apperror.NotFound("Comment not found"))
		return
	}
	if err != nil {
		fail(c, err)
		return
	}

	logger.Handler("ModerateComment").WithFields(logrus.Fields{
		"comment": id.Hex(),
		"status":  req.Status,
	}).Info("Comment moderated")
	respond(c, http.StatusOK, gin.H{"comment": models.CommentView{Comment: updated, FlagCount: updated.FlagCount()}})
}

// DELETE /api/comments/:id
func DeleteComment(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	var comment models.Comment
	if err := database.Comments.FindOne(ctx, bson.M{"_id": id}).Decode(&comment); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			err = apperror.NotFound("Comment not found")
		}
		fail(c, err)
		return
	}

	userID, _ := currentUserID(c)
	owner := comment.Author.User != nil && *comment.Author.User == userID
	if !isAdmin(c) && !owner {
		fail(c, apperror.Forbidden("Not allowed to delete this comment"))
		return
	}

	deleted, err := deleteCommentTree(ctx, id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"deleted": deleted})
}

// deleteCommentTree removes the comment and its direct replies. Deeper
// replies are left in place.
func deleteCommentTree(ctx context.Context, id primitive.ObjectID) (int64, error) {
	res, err := database.Comments.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, err
	}
	if res.DeletedCount == 0 {
		return 0, apperror.NotFound("Comment not found")
	}
	replies, err := database.Comments.DeleteMany(ctx, bson.M{"parentId": id.Hex()})
	if err != nil {
		return res.DeletedCount, err
	}
	return res.DeletedCount + replies.DeletedCount, nil
}

// adminComment exposes the fields hidden from public responses.
type adminComment struct {
	models.Comment `bson:",inline"`
	AuthorEmail    string               `bson:"-" json:"authorEmail"`
	FlagList       []models.CommentFlag `bson:"-" json:"flags"`
	FlagCount      int                  `bson:"-" json:"flagCount"`
	IP             string               `bson:"-" json:"ipAddress,omitempty"`
}

// GET /api/admin/comments
func AdminListComments(c *gin.Context) {
	page, limit := pageParams(c)
	filter := bson.M{}
	if status := c.Query("status"); status != "" {
		if !models.ValidCommentStatus(status) {
			fail(c, apperror.BadRequest("Invalid comment status"))
			return
		}
		filter["status"] = status
	}
	if rt := c.Query("resourceType"); rt != "" {
		if !models.ValidResourceType(rt) {
			fail(c, apperror.BadRequest("Invalid resource type"))
			return
		}
		filter["resourceType"] = rt
	}
	if flagged, ok := queryBool(c, "flagged"); ok && flagged {
		filter["flags.0"] = bson.M{"$exists": true}
	}
	if search := c.Query("search"); search != "" {
		re := searchRegex(search)
		filter["$or"] = bson.A{
			bson.M{"content": re},
			bson.M{"author.name": re},
			bson.M{"author.email": re},
		}
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	comments, total, err := findPage[adminComment](ctx, database.Comments, filter,
		bson.D{{Key: "createdAt", Value: -1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}
	for i := range comments {
		cm := &comments[i]
		cm.AuthorEmail = cm.Author.Email
		cm.FlagList = cm.Flags
		cm.FlagCount = len(cm.Flags)
		cm.IP = cm.IPAddress
	}

	counts, err := statusCounts(ctx, database.Comments, bson.M{})
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"data":       comments,
		"pagination": NewPagination(page, limit, total),
		"counts":     counts,
	})
}
