package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/qutee-media/internal/chain"
	"github.com/d60-Lab/qutee-media/pkg/response"
)

// Accounts 链上可用账户
// @Summary 账户列表
// @Tags 链
// @Produce json
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/chain/accounts [get]
func (h *Handler) Accounts(c *gin.Context) {
	response.Success(c, gin.H{
		"network":  h.chain.Network(),
		"chain_id": h.chain.ChainID(),
		"accounts": h.chain.Signers(),
	})
}

// LatestBlock 最新区块
// @Summary 最新区块
// @Tags 链
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/chain/blocks/latest [get]
func (h *Handler) LatestBlock(c *gin.Context) {
	b, err := h.chain.LatestBlock(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, b)
}

// Mine 手动出一个空块
// @Summary 出块
// @Tags 链
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/chain/mine [post]
func (h *Handler) Mine(c *gin.Context) {
	n, err := h.chain.Mine(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"block_number": n})
}

// ListContracts 已部署合约
// @Summary 合约列表
// @Tags 链
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/contracts [get]
func (h *Handler) ListContracts(c *gin.Context) {
	list, err := h.chain.Contracts(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}

// GetContract 合约部署记录
// @Summary 合约详情
// @Tags 链
// @Produce json
// @Param address path string true "合约地址"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/contracts/{address} [get]
func (h *Handler) GetContract(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	ct, err := h.chain.Contract(c.Request.Context(), addr)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, ct)
}

// GetTransaction 交易回执
// @Summary 交易回执
// @Tags 链
// @Produce json
// @Param hash path string true "交易哈希"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/transactions/{hash} [get]
func (h *Handler) GetTransaction(c *gin.Context) {
	hash, err := chain.ParseHash(c.Param("hash"))
	if err != nil {
		response.BadRequest(c, "hash: "+err.Error())
		return
	}
	rcpt, err := h.chain.Receipt(c.Request.Context(), hash)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rcpt)
}

// ListTransactions 账户交易历史
// @Summary 账户交易
// @Tags 链
// @Produce json
// @Param address path string true "账户或合约地址"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/accounts/{address}/transactions [get]
func (h *Handler) ListTransactions(c *gin.Context) {
	addr, ok := addressParam(c, "address")
	if !ok {
		return
	}
	page, pageSize, ok := pagination(c)
	if !ok {
		return
	}
	list, err := h.chain.Transactions(c.Request.Context(), addr, (page-1)*pageSize, pageSize)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"page": page, "page_size": pageSize, "list": list})
}
