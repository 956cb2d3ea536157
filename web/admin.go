package web

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/pioneerstudio/patternshop/shop"
	"github.com/pioneerstudio/patternshop/view/vom"
)

func (s *Server) adminPattern(c *gin.Context) {
	p, err := s.shop.AdminPattern(c.Request.Context(), callerOf(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": p})
}

func (s *Server) createPattern(c *gin.Context) {
	vo := vom.Value(c)
	p, err := s.shop.CreatePattern(c.Request.Context(), callerOf(c), shop.PatternInput{
		Name:            vo.StringOr("name"),
		Slug:            vo.StringOr("slug"),
		Category:        vo.StringOr("category"),
		Description:     vo.StringOr("description"),
		Price:           vo.Int64("price").OrEmpty(),
		ImageURL:        vo.StringOr("imageUrl"),
		PreviewFileName: vo.StringOr("previewFileName"),
		FullFileName:    vo.StringOr("fullFileName"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pattern": p})
}

func (s *Server) updatePattern(c *gin.Context) {
	vo := vom.Value(c)
	p, err := s.shop.UpdatePattern(c.Request.Context(), callerOf(c), c.Param("id"), shop.PatternUpdate{
		Name:               vo.StringOr("name"),
		Category:           vo.StringOr("category"),
		Description:        vo.StringOr("description"),
		Price:              vo.Int64("price").OrEmpty(),
		NewImageURL:        vo.StringOr("newImageUrl"),
		NewPreviewFileName: vo.StringOr("newPreviewFileName"),
		NewFullFileName:    vo.StringOr("newFullFileName"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "pattern": p})
}

func (s *Server) deletePattern(c *gin.Context) {
	if err := s.shop.DeletePattern(c.Request.Context(), callerOf(c), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Pattern deleted successfully"})
}

func (s *Server) storageCheck(c *gin.Context) {
	vo := vom.Value(c)
	exists, err := s.shop.ObjectExists(c.Request.Context(), callerOf(c), vo.StringOr("bucket"), vo.StringOr("path"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exists": exists})
}

func (s *Server) adminOrders(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	orders, err := s.shop.Orders(c.Request.Context(), callerOf(c), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) adminUsers(c *gin.Context) {
	users, err := s.shop.Users(c.Request.Context(), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}
