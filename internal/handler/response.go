package handler

import (
	"github.com/MandipKumarKanu/pustakbazzar-sub002/internal/apperror"

	"github.com/gin-gonic/gin"
)

func respond(c *gin.Context, status int, body interface{}, message string) {
	c.JSON(status, gin.H{
		"HttpStatusCode": status,
		"ResponseBody":   body,
		"IsSuccess":      status < 400,
		"Message":        message,
	})
}

func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	respond(c, apperror.StatusOf(err), nil, apperror.MessageOf(err))
}
