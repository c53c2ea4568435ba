package handler

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quillnote/internal/storage"
	_ "golang.org/x/image/webp"
)

const maxUploadSize = 10 << 20

// UploadImage 处理图片上传请求，返回格式兼容 EasyMDE。
func (a *API) UploadImage(c *gin.Context) {
	if a.storage == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "未配置上传存储", "success": 0})
		return
	}

	file, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未找到上传的图片", "success": 0})
		return
	}
	if file.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "图片不能超过 10MB", "success": 0})
		return
	}

	contentType := file.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "只允许上传图片文件", "success": 0})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取文件失败", "success": 0})
		return
	}
	defer src.Close()

	// 解码文件头确认确实是图片，并取得尺寸
	cfg, format, err := image.DecodeConfig(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无法识别的图片格式", "success": 0})
		return
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "读取文件失败", "success": 0})
		return
	}

	name := storage.ObjectName(time.Now(), file.Filename)
	if filepath.Ext(file.Filename) == "" {
		name += "." + format
	}

	fileURL, err := a.storage.Save(c.Request.Context(), name, src, file.Size, contentType)
	if err != nil {
		log.Printf("[upload] save %s failed: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "保存文件失败", "success": 0})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": 1,
		"message": "上传成功",
		"data": gin.H{
			"filePath": fileURL,
			"url":      fileURL,
			"width":    cfg.Width,
			"height":   cfg.Height,
		},
	})
}
