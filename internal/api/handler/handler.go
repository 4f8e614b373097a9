package handler

import (
	"errors"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/qutee-media/internal/api/middleware"
	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/internal/contract"
	"github.com/d60-Lab/qutee-media/internal/service"
	"github.com/d60-Lab/qutee-media/pkg/response"
)

// Handler HTTP 处理器
type Handler struct {
	chain     *chain.Chain
	media     service.MediaService
	jwtSecret string
	jwtTTL    time.Duration
}

func NewHandler(c *chain.Chain, media service.MediaService, jwtSecret string, jwtTTL time.Duration) *Handler {
	if jwtTTL <= 0 {
		jwtTTL = 24 * time.Hour
	}
	return &Handler{chain: c, media: media, jwtSecret: jwtSecret, jwtTTL: jwtTTL}
}

// fail 把链上错误映射为 HTTP 状态
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, contract.ErrPostNotFound),
		errors.Is(err, contract.ErrTokenNotFound),
		errors.Is(err, chain.ErrContractNotFound),
		errors.Is(err, chain.ErrTxNotFound),
		errors.Is(err, contract.ErrWrongContractKind):
		response.NotFound(c, err.Error())
	case chain.IsRevert(err):
		response.BadRequest(c, chain.RevertReason(err))
	case errors.Is(err, chain.ErrUnknownSigner):
		response.Forbidden(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}

func addressParam(c *gin.Context, name string) (chain.Address, bool) {
	addr, err := chain.ParseAddress(c.Param(name))
	if err != nil {
		response.BadRequest(c, name+": "+err.Error())
		return chain.ZeroAddress, false
	}
	return addr, true
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil {
		response.BadRequest(c, name+": must be a non-negative integer")
		return 0, false
	}
	return v, true
}

// maxPage 保证 (page-1)*pageSize 不溢出
const maxPage = 10000

func pagination(c *gin.Context) (page, pageSize int, ok bool) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		response.BadRequest(c, "page: must not exceed "+strconv.Itoa(maxPage))
		return 0, 0, false
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize, true
}

func signer(c *gin.Context) (chain.Address, bool) {
	addr, ok := middleware.Signer(c)
	if !ok {
		response.Unauthorized(c, "login required")
	}
	return addr, ok
}
