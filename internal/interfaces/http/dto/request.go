package dto

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"therapy-chat-api/internal/domain/repository"
)

// BindPage 读取 page / page_size 查询参数；非法值按缺省处理
func BindPage(c *gin.Context) repository.Pagination {
	return repository.NewPagination(queryInt(c, "page"), queryInt(c, "page_size"))
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}

// BindSessionID 路径参数 :sid
func BindSessionID(c *gin.Context) string {
	return c.Param("sid")
}

// BindConversationID 路径参数 :cid
func BindConversationID(c *gin.Context) string {
	return c.Param("cid")
}
