package http

import (
	"github.com/gin-gonic/gin"

	"liar-game/internal/domain"
)

func ErrorResponse(c *gin.Context, code int, message string) {
	c.JSON(code, gin.H{"error": message})
}

func SuccessResponse(c *gin.Context, code int, data interface{}) {
	c.JSON(code, data)
}

// PageResponse 是分页列表的统一外壳
type PageResponse struct {
	Items interface{} `json:"items"`
	Total int64       `json:"total"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
}

// RoomDetailResponse 是房间及其在席玩家
type RoomDetailResponse struct {
	*domain.GameRoom
	Players []domain.RoomPlayer `json:"players"`
}

// PageQuery 绑定 ?page=&size= 查询参数
type PageQuery struct {
	Page int `form:"page" binding:"omitempty,min=1"`
	Size int `form:"size" binding:"omitempty,min=1,max=100"`
}

func (q PageQuery) normalized() (page, size int) {
	page, size = q.Page, q.Size
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	return page, size
}
