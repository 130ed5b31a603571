package ports

import "github.com/gin-gonic/gin"

type HTTPHandler interface {
	GetProbe(c *gin.Context)
	GetNetwork(c *gin.Context)
	ListNetworks(c *gin.Context)
	GetLatestResult(c *gin.Context)
}
