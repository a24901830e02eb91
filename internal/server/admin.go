package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"worktracker/internal/admin"
	"worktracker/pkg/models"

	"github.com/gin-gonic/gin"
)

// adminError 校验错误返回 400，其余 500
func adminError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, admin.ErrInvalidFilter):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, admin.ErrNotConfirmed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// filter 查询参数 from/to/user_id；都缺省时沿用当前筛选
func (s *Server) filter(c *gin.Context) (admin.Filter, error) {
	from, to := c.Query("from"), c.Query("to")
	var userID *int64
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return admin.Filter{}, errors.Join(admin.ErrInvalidFilter, err)
		}
		userID = &id
	}
	if from == "" && to == "" {
		f := s.dashboard.Filter()
		f.UserID = userID
		return f, nil
	}
	return admin.ParseFilter(userID, from, to, time.Local)
}

func (s *Server) handleGetUsers(c *gin.Context) {
	users, err := s.dashboard.Users(c.Request.Context())
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (s *Server) handleGetEntries(c *gin.Context) {
	f, err := s.filter(c)
	if err != nil {
		adminError(c, err)
		return
	}
	rows, err := s.dashboard.Load(c.Request.Context(), f)
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}

// handleDeleteEntry 需要 ?confirm=true
func (s *Server) handleDeleteEntry(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	confirmed := c.Query("confirm") == "true"
	err := s.dashboard.Delete(c.Request.Context(), id, func(string) bool { return confirmed })
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, s.dashboard.Rows())
}

func (s *Server) handleGetEntryScreenshots(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	shots, err := s.dashboard.SelectEntry(c.Request.Context(), id)
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, shots)
}

func (s *Server) handleGetLightbox(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, s.dashboard.Lightbox(c.Request.Context(), id))
}

func (s *Server) handleGetThumbnail(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	img := s.dashboard.Thumbnail(c.Request.Context(), id)
	c.Header("Cache-Control", "max-age=3600")
	c.Data(http.StatusOK, img.ContentType, img.Data)
}

func (s *Server) handleGetReport(c *gin.Context) {
	kind := models.ReportKind(c.Param("kind"))
	f, err := s.filter(c)
	if err != nil {
		adminError(c, err)
		return
	}
	report, err := s.dashboard.Report(c.Request.Context(), kind, f)
	if err != nil {
		adminError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleExport 按筛选条件重新加载后导出 CSV
func (s *Server) handleExport(c *gin.Context) {
	f, err := s.filter(c)
	if err != nil {
		adminError(c, err)
		return
	}
	if _, err := s.dashboard.Load(c.Request.Context(), f); err != nil {
		adminError(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="`+admin.ExportFilename(s.now())+`"`)
	c.Status(http.StatusOK)
	if err := s.dashboard.ExportCSV(c.Writer); err != nil {
		c.Error(err)
	}
}
