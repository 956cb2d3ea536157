package web

import (
	"github.com/pioneerstudio/patternshop/constraint"
	"github.com/pioneerstudio/patternshop/view"
)

// stored object names carry an extension, it decides the served content type
var fileName = constraint.Match("?*.?*")

// Bodies are checked for shape here. Presence and business rules are left to the shop service
// so that its messages reach the client.
var (
	// cart items are the client's cart entries; only their ids are read
	checkoutVO = view.WithFields(
		view.List[string]("items").Pluck("id").Optional(),
		view.List[string]("patternIds").Optional(),
		view.Field[string]("email").Optional(),
	)

	signupVO = view.WithFields(
		view.Field[string]("email").Optional(),
		view.Field[string]("password").Optional(),
		view.Field[string]("name", constraint.MaxLength(200)).Optional(),
	)

	loginVO = view.WithFields(
		view.Field[string]("email"),
		view.Field[string]("password"),
	)

	patternVO = view.WithFields(
		view.Field[string]("patternId").Optional(),
	)

	emailVO = view.WithFields(
		view.Field[string]("email").Optional(),
	)

	freeDownloadVO = view.WithFields(
		view.Field[string]("email").Optional(),
		view.Field[string]("patternId").Optional(),
	)

	subscribeVO = view.WithFields(
		view.Field[string]("planType").Optional(),
	)

	createPatternVO = view.WithFields(
		view.Field[string]("name").Optional(),
		view.Field[string]("slug").Optional(),
		view.Field[string]("category").Optional(),
		view.Field[string]("description").Optional(),
		view.Field[int64]("price", constraint.Gte[int64](0)).Optional(),
		view.Field[string]("imageUrl").Optional(),
		view.Field[string]("previewFileName", fileName).Optional(),
		view.Field[string]("fullFileName", fileName).Optional(),
	)

	updatePatternVO = view.WithFields(
		view.Field[string]("name").Optional(),
		view.Field[string]("category").Optional(),
		view.Field[string]("description").Optional(),
		view.Field[int64]("price", constraint.Gte[int64](0)).Optional(),
		view.Field[string]("newImageUrl").Optional(),
		view.Field[string]("newPreviewFileName", fileName).Optional(),
		view.Field[string]("newFullFileName", fileName).Optional(),
	)

	storageCheckVO = view.WithFields(
		view.Field[string]("bucket", constraint.MinLength(1)),
		view.Field[string]("path", constraint.MinLength(1)),
	)
)
