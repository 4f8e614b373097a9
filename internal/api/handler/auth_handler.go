package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/qutee-media/internal/api/middleware"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/pkg/response"
)

type connectRequest struct {
	Address string `json:"address" binding:"required,eth_addr"`
}

// Connect 以链上账户身份登录
// @Summary 连接钱包（仅限本链账户）
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body connectRequest true "账户地址"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response
// @Router /api/v1/auth/connect [post]
func (h *Handler) Connect(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	addr := chain.MustParseAddress(req.Address)
	if !h.chain.IsSigner(addr) {
		response.Forbidden(c, "address is not a signer on this chain")
		return
	}
	token, exp, err := middleware.GenerateToken(h.jwtSecret, addr, h.jwtTTL)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token, "address": addr, "expires_at": exp})
}
