package router

import (
	"github.com/gin-gonic/gin"

	"z-bid-writer/internal/interfaces/http/handler"
)

// RegisterV1Routes 注册 v1 版本路由；limit 只作用于会调用模型的接口
func RegisterV1Routes(v1 *gin.RouterGroup, bidding *handler.BiddingHandler, limit gin.HandlerFunc) {
	// 输入文档
	v1.GET("/inputs", bidding.GetInputs)
	v1.PUT("/inputs", bidding.UpdateInputs)

	// 提纲
	outline := v1.Group("/outline")
	{
		outline.GET("", bidding.GetOutline)
		outline.PUT("", bidding.UpdateOutline)
		outline.POST("/generate", limit, bidding.GenerateOutline)
	}

	// 正文
	document := v1.Group("/document")
	{
		document.GET("", bidding.GetDocument)
		document.POST("/generate", limit, bidding.GenerateDocument)
	}

	v1.POST("/run", limit, bidding.Run)
	v1.GET("/status", bidding.Status)
}
