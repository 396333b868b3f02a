package handlers

import (
	"net/http"

	"wayfarer/apperror"
	"wayfarer/database"
	"wayfarer/logger"
	"wayfarer/models"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// followTarget resolves the :id param and rejects following yourself.
func followTarget(c *gin.Context) (me, target primitive.ObjectID, ok bool) {
	target, ok = paramID(c, "id")
	if !ok {
		return
	}
	me, ok = requireUser(c)
	if !ok {
		return
	}
	if me == target {
		fail(c, apperror.BadRequest("You cannot follow yourself"))
		return me, target, false
	}
	return me, target, true
}

// POST /api/users/:id/follow
func FollowUser(c *gin.Context) {
	me, target, ok := followTarget(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	res, err := database.Users.UpdateOne(ctx,
		bson.M{"_id": target, "isActive": true},
		bson.M{"$addToSet": bson.M{"followers": me}},
	)
	if err != nil {
		fail(c, err)
		return
	}
	if res.MatchedCount == 0 {
		fail(c, apperror.NotFound("User not found"))
		return
	}
	if _, err := database.Users.UpdateOne(ctx, bson.M{"_id": me}, bson.M{"$addToSet": bson.M{"following": target}}); err != nil {
		fail(c, err)
		return
	}

	logger.Handler("FollowUser").WithField("user", me.Hex()).WithField("target", target.Hex()).Debug("Followed")
	respond(c, http.StatusOK, gin.H{"following": true})
}

// DELETE /api/users/:id/follow
func UnfollowUser(c *gin.Context) {
	me, target, ok := followTarget(c)
	if !ok {
		return
	}

	ctx, cancel := dbContext(c)
	defer cancel()

	if _, err := database.Users.UpdateOne(ctx, bson.M{"_id": target}, bson.M{"$pull": bson.M{"followers": me}}); err != nil {
		fail(c, err)
		return
	}
	if _, err := database.Users.UpdateOne(ctx, bson.M{"_id": me}, bson.M{"$pull": bson.M{"following": target}}); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"following": false})
}

// GET /api/users/:id/followers
func GetFollowers(c *gin.Context) {
	listRelations(c, "followers")
}

// GET /api/users/:id/following
func GetFollowing(c *gin.Context) {
	listRelations(c, "following")
}

func listRelations(c *gin.Context, field string) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	page, limit := pageParams(c)

	ctx, cancel := dbContext(c)
	defer cancel()

	var owner struct {
		IDs []primitive.ObjectID `bson:"ids"`
	}
	err := database.Users.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"ids": "$" + field}),
	).Decode(&owner)
	if err != nil {
		fail(c, err)
		return
	}

	users, total, err := findPage[models.User](ctx, database.Users,
		bson.M{"_id": bson.M{"$in": owner.IDs}, "isActive": true},
		bson.D{{Key: "name", Value: 1}}, page, limit, nil)
	if err != nil {
		fail(c, err)
		return
	}

	profiles := make([]models.PublicProfile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].Public())
	}
	respondList(c, profiles, NewPagination(page, limit, total))
}
