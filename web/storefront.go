package web

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pioneerstudio/patternshop/shop"
	"github.com/pioneerstudio/patternshop/view/vom"
)

func (s *Server) patterns(c *gin.Context) {
	patterns, err := s.shop.Patterns(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"patterns": patterns})
}

func (s *Server) pattern(c *gin.Context) {
	p, err := s.shop.Pattern(c.Request.Context(), c.Param("slug"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pattern": p})
}

func (s *Server) checkout(c *gin.Context) {
	vo := vom.Value(c)
	ids := append(vo.Strings("items").OrEmpty(), vo.Strings("patternIds").OrEmpty()...)
	session, err := s.shop.Checkout(c.Request.Context(), callerOf(c), ids, vo.StringOr("email"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) requestFreeDownload(c *gin.Context) {
	vo := vom.Value(c)
	if err := s.shop.RequestFreeDownload(c.Request.Context(), vo.StringOr("email"), vo.StringOr("patternId")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Free pattern download initiated! Check your email for the download link.",
	})
}

func (s *Server) freeDownload(c *gin.Context) {
	f, err := s.shop.FreeDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, f.Name))
	c.Header("Cache-Control", "private, max-age=3600")
	c.Data(http.StatusOK, f.ContentType, f.Data)
}

func (s *Server) download(c *gin.Context) {
	link, err := s.shop.Download(c.Request.Context(), callerOf(c), c.Param("patternId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (s *Server) purchaseWithCredit(c *gin.Context) {
	res, err := s.shop.PurchaseWithCredit(c.Request.Context(), callerOf(c), vom.Value(c).StringOr("patternId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) subscribe(c *gin.Context) {
	session, err := s.shop.Subscribe(c.Request.Context(), callerOf(c), vom.Value(c).StringOr("planType"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, session)
}

func (s *Server) billingPortal(c *gin.Context) {
	url, err := s.shop.BillingPortal(c.Request.Context(), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (s *Server) subscriptionStatus(c *gin.Context) {
	st, err := s.shop.Status(c.Request.Context(), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) signup(c *gin.Context) {
	vo := vom.Value(c)
	u, err := s.shop.Signup(c.Request.Context(), shop.SignupInput{
		Email:    vo.StringOr("email"),
		Password: vo.StringOr("password"),
		Name:     vo.StringOr("name"),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"success": true, "user": gin.H{"id": u.ID, "email": u.Email}})
}

func (s *Server) login(c *gin.Context) {
	vo := vom.Value(c)
	res, err := s.shop.Login(c.Request.Context(), vo.StringOr("email"), vo.StringOr("password"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) myOrders(c *gin.Context) {
	orders, err := s.shop.MyOrders(c.Request.Context(), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (s *Server) myDownloads(c *gin.Context) {
	downloads, err := s.shop.MyDownloads(c.Request.Context(), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"downloads": downloads})
}

func (s *Server) favorites(c *gin.Context) {
	patterns, err := s.shop.Favorites(c.Request.Context(), callerOf(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"favorites": patterns})
}

func (s *Server) toggleFavorite(c *gin.Context) {
	on, err := s.shop.ToggleFavorite(c.Request.Context(), callerOf(c), vom.Value(c).StringOr("patternId"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"isFavorited": on})
}

func (s *Server) subscribeNewsletter(c *gin.Context) {
	if err := s.shop.SubscribeNewsletter(c.Request.Context(), vom.Value(c).StringOr("email")); err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Successfully subscribed to newsletter"})
}
